/*
 *     Copyright 2025 The CNAI Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadEmbeddedDefault(t *testing.T) {
	c, err := Load("")
	assert.NoError(t, err)

	entry, ok := c.Get("gpt2")
	assert.True(t, ok)
	assert.Equal(t, "gpt2", entry.RepoID)
	assert.NotEmpty(t, entry.RepoVersion)

	_, ok = c.Get("no_such_model")
	assert.False(t, ok)
}

func TestEmbeddedEntriesUseBundledHandler(t *testing.T) {
	c, err := Load("")
	assert.NoError(t, err)

	// The embedded catalog ships no handler files, so every entry must
	// resolve to the bundled generic handler instead of a dangling path.
	for _, name := range c.Names() {
		entry, ok := c.Get(name)
		assert.True(t, ok)
		assert.Empty(t, c.HandlerPath(entry), "model %s", name)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model_config.json")
	content := `{
	  "tiny": {
	    "repo_id": "acme/tiny",
	    "repo_version": "main",
	    "handler": "handlers/tiny.py",
	    "registration_params": {"initial_workers": 2, "batch_size": 4, "max_batch_delay": 200, "response_timeout": 120}
	  }
	}`
	assert.NoError(t, os.WriteFile(path, []byte(content), 0644))

	c, err := Load(path)
	assert.NoError(t, err)

	entry, ok := c.Get("tiny")
	assert.True(t, ok)
	assert.Equal(t, "acme/tiny", entry.RepoID)
	assert.Equal(t, "main", entry.RepoVersion)
	assert.NotNil(t, entry.RegistrationParams)
	assert.Equal(t, 2, entry.RegistrationParams.InitialWorkers)
	assert.Equal(t, 120, entry.RegistrationParams.ResponseTimeout)

	// Handler paths resolve relative to the catalog file.
	assert.Equal(t, filepath.Join(dir, "handlers/tiny.py"), c.HandlerPath(entry))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestNamesSorted(t *testing.T) {
	c, err := Load("")
	assert.NoError(t, err)

	names := c.Names()
	assert.Contains(t, names, "gpt2")
	assert.IsIncreasing(t, names)
}

func TestHandlerPathAbsolute(t *testing.T) {
	c, err := Load("")
	assert.NoError(t, err)

	entry := Entry{Handler: "/opt/handlers/llm_handler.py"}
	assert.Equal(t, "/opt/handlers/llm_handler.py", c.HandlerPath(entry))

	assert.Empty(t, c.HandlerPath(Entry{}))
}
