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

package archive

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	internalpb "github.com/modelpack/llmctl/internal/pb"
)

func TestMain(m *testing.M) {
	internalpb.SetDisableProgress(true)
	os.Exit(m.Run())
}

// stubArchiver writes a shell script that mimics torch-model-archiver: it
// creates {model}.mar in the export path and exits with the given code.
func stubArchiver(t *testing.T, exitCode int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub archiver script requires a POSIX shell")
	}

	script := filepath.Join(t.TempDir(), "archiver.sh")
	content := "#!/bin/sh\nprintf mar > \"${12}/$2.mar\"\nexit " + strconv.Itoa(exitCode) + "\n"
	assert.NoError(t, os.WriteFile(script, []byte(content), 0755))
	return script
}

func testSpec(t *testing.T, bin string) *Spec {
	t.Helper()

	modelPath := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(modelPath, "model.safetensors"), []byte("weights"), 0644))
	assert.NoError(t, os.WriteFile(filepath.Join(modelPath, "config.json"), []byte("{}"), 0644))

	requirements, err := WriteDefaultRequirements(t.TempDir())
	assert.NoError(t, err)

	handler := filepath.Join(t.TempDir(), "handler.py")
	assert.NoError(t, os.WriteFile(handler, []byte("# handler"), 0644))

	return &Spec{
		ModelName:        "gpt2",
		Version:          "abc123",
		HandlerPath:      handler,
		ModelPath:        modelPath,
		RequirementsFile: requirements,
		ExportPath:       t.TempDir(),
		Bin:              bin,
	}
}

func TestGenerate(t *testing.T) {
	spec := testSpec(t, stubArchiver(t, 0))

	err := New().Generate(context.Background(), spec)
	assert.NoError(t, err)
	assert.FileExists(t, filepath.Join(spec.ExportPath, "gpt2.mar"))
}

func TestGenerateArchiverFailureIsFatal(t *testing.T) {
	spec := testSpec(t, stubArchiver(t, 1))

	err := New().Generate(context.Background(), spec)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to generate model archive")
}

func TestGenerateMissingRequirementsIsFatal(t *testing.T) {
	spec := testSpec(t, stubArchiver(t, 0))
	spec.RequirementsFile = filepath.Join(t.TempDir(), "missing.txt")

	err := New().Generate(context.Background(), spec)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "requirements file")
}

func TestGenerateEmptyModelDirIsFatal(t *testing.T) {
	spec := testSpec(t, stubArchiver(t, 0))
	spec.ModelPath = t.TempDir()

	err := New().Generate(context.Background(), spec)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no model files found")
}

func TestBuildArgs(t *testing.T) {
	spec := &Spec{
		ModelName:        "gpt2",
		Version:          "abc123",
		HandlerPath:      "/h/handler.py",
		RequirementsFile: "/r/model_requirements.txt",
		ExportPath:       "/out/model-store",
	}

	args := buildArgs(spec, []string{"/m/a.json", "/m/b.safetensors"})
	assert.Equal(t, []string{
		"--model-name", "gpt2",
		"--version", "abc123",
		"--handler", "/h/handler.py",
		"--extra-files", "/m/a.json,/m/b.safetensors",
		"--requirements-file", "/r/model_requirements.txt",
		"--export-path", "/out/model-store",
		"--force",
	}, args)
}

func TestCollectInputs(t *testing.T) {
	modelPath := t.TempDir()
	assert.NoError(t, os.MkdirAll(filepath.Join(modelPath, "nested"), 0755))
	assert.NoError(t, os.WriteFile(filepath.Join(modelPath, "a.bin"), []byte("12345"), 0644))
	assert.NoError(t, os.WriteFile(filepath.Join(modelPath, "nested", "b.json"), []byte("123"), 0644))

	files, total, err := collectInputs(modelPath)
	assert.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Equal(t, int64(8), total)
}

func TestWriteDefaultRequirements(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteDefaultRequirements(dir)
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, RequirementsFileName), path)

	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Contains(t, string(data), "transformers")
}

func TestWriteDefaultHandler(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteDefaultHandler(dir)
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, HandlerFileName), path)

	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Contains(t, string(data), "BaseHandler")
	assert.Contains(t, string(data), "AutoModelForCausalLM")
}
