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
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

//go:embed model_config.json
var defaultConfig []byte

// RegistrationParams are per-model overrides for the serving snapshot.
type RegistrationParams struct {
	InitialWorkers  int `json:"initial_workers"`
	BatchSize       int `json:"batch_size"`
	MaxBatchDelay   int `json:"max_batch_delay"`
	ResponseTimeout int `json:"response_timeout"`
}

// ModelParams are the sampling parameters handed to the inference runtime
// through environment overrides at rollout time.
type ModelParams struct {
	Temperature       float64 `json:"temperature"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	TopP              float64 `json:"top_p"`
	MaxNewTokens      int     `json:"max_new_tokens"`
}

// Entry is a single catalog model: a pinned repository and revision, with an
// optional per-model handler. Entries without a handler serve through the
// bundled generic handler.
type Entry struct {
	RepoID             string              `json:"repo_id"`
	RepoVersion        string              `json:"repo_version"`
	Handler            string              `json:"handler,omitempty"`
	RegistrationParams *RegistrationParams `json:"registration_params,omitempty"`
	ModelParams        *ModelParams        `json:"model_params,omitempty"`
}

// Catalog is the immutable model registry, loaded once per process and
// passed explicitly to whoever resolves model names.
type Catalog struct {
	dir     string
	entries map[string]Entry
}

// Load reads the catalog from path, or the embedded default catalog when
// path is empty. Handler locations inside the file are kept relative to the
// file's directory.
func Load(path string) (*Catalog, error) {
	data := defaultConfig
	dir := "."

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read model config %s: %w", path, err)
		}
		data = b
		dir = filepath.Dir(path)
	}

	entries := make(map[string]Entry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode model config: %w", err)
	}

	return &Catalog{dir: dir, entries: entries}, nil
}

// Get looks up a catalog entry by model name.
func (c *Catalog) Get(name string) (Entry, bool) {
	entry, ok := c.entries[name]
	return entry, ok
}

// Names returns the sorted model names, for operator self-service output.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// HandlerPath resolves an entry's handler relative to the catalog file.
// Returns an empty string when the entry declares no handler.
func (c *Catalog) HandlerPath(entry Entry) string {
	if entry.Handler == "" {
		return ""
	}

	if filepath.IsAbs(entry.Handler) {
		return entry.Handler
	}

	return filepath.Join(c.dir, entry.Handler)
}
