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

package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/modelpack/llmctl/pkg/archive"
	"github.com/modelpack/llmctl/pkg/catalog"
	"github.com/modelpack/llmctl/pkg/config"
	"github.com/modelpack/llmctl/pkg/hub"
)

const testCommit = "11c5a3d5811f50298f278a704980280950aedb10"

// fakeHub is an in-memory hub collaborator that records how often each call
// was made.
type fakeHub struct {
	commit string
	files  []hub.FileInfo

	resolveCalls  int
	listCalls     int
	snapshotCalls int
}

func (f *fakeHub) ResolveCommit(ctx context.Context, repoID, revision string) (string, error) {
	f.resolveCalls++
	if f.commit == "" {
		return "", fmt.Errorf("revision %s not found for %s", revision, repoID)
	}

	return f.commit, nil
}

func (f *fakeHub) ListFiles(ctx context.Context, repoID, revision string) ([]hub.FileInfo, error) {
	f.listCalls++
	return f.files, nil
}

func (f *fakeHub) Snapshot(ctx context.Context, repoID, revision, outputDir string, files []hub.FileInfo, concurrency int) error {
	f.snapshotCalls++
	for _, file := range files {
		path := filepath.Join(outputDir, filepath.FromSlash(file.Path))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}

		if err := os.WriteFile(path, []byte(file.Path), 0644); err != nil {
			return err
		}
	}

	return nil
}

// fakeArchiver materializes an empty archive instead of shelling out.
type fakeArchiver struct {
	calls    int
	lastSpec *archive.Spec
}

func (f *fakeArchiver) Generate(ctx context.Context, spec *archive.Spec) error {
	f.calls++
	f.lastSpec = spec
	return os.WriteFile(filepath.Join(spec.ExportPath, spec.ModelName+".mar"), []byte("mar"), 0644)
}

func testEngine(t *testing.T, client *fakeHub, opts ...Option) (*Engine, *fakeArchiver, *config.Generate) {
	t.Helper()

	cat, err := catalog.Load("")
	assert.NoError(t, err)

	archiver := &fakeArchiver{}
	opts = append(opts, WithArchiver(archiver))
	engine := New(client, cat, opts...)

	handler := filepath.Join(t.TempDir(), "llm_handler.py")
	assert.NoError(t, os.WriteFile(handler, []byte("# handler"), 0644))

	cfg := config.NewGenerate()
	cfg.ModelName = "gpt2"
	cfg.Output = t.TempDir()
	cfg.HandlerPath = handler
	return engine, archiver, cfg
}

func gpt2Files() []hub.FileInfo {
	return []hub.FileInfo{
		{Path: "config.json", Size: 10},
		{Path: "model.safetensors", Size: 1000},
		{Path: "pytorch_model.bin", Size: 1000},
		{Path: "onnx/model.onnx", Size: 1000},
		{Path: "tokenizer.json", Size: 20},
	}
}

func TestGenerateEndToEnd(t *testing.T) {
	client := &fakeHub{commit: testCommit, files: gpt2Files()}
	engine, archiver, cfg := testEngine(t, client)

	assert.NoError(t, engine.Generate(context.Background(), cfg))

	// The preferred policy keeps safetensors and drops the other formats.
	downloadDir := filepath.Join(cfg.Output, "gpt2", testCommit, "download")
	for _, name := range []string{"config.json", "model.safetensors", "tokenizer.json"} {
		assert.FileExists(t, filepath.Join(downloadDir, name))
	}
	assert.NoFileExists(t, filepath.Join(downloadDir, "pytorch_model.bin"))
	assert.NoFileExists(t, filepath.Join(downloadDir, "onnx", "model.onnx"))

	assert.FileExists(t, filepath.Join(cfg.Output, "gpt2", testCommit, "model-store", "gpt2.mar"))
	assert.Equal(t, 1, archiver.calls)

	data, err := os.ReadFile(filepath.Join(cfg.Output, "gpt2", testCommit, "config", "config.properties"))
	assert.NoError(t, err)
	assert.Contains(t, string(data), testCommit)
	assert.Contains(t, string(data), `"marName":"gpt2.mar"`)
	assert.Contains(t, string(data), `"minWorkers":1,"maxWorkers":1,"batchSize":1`)
}

func TestGenerateDefaultsToBundledHandler(t *testing.T) {
	client := &fakeHub{commit: testCommit, files: gpt2Files()}
	engine, archiver, cfg := testEngine(t, client)
	cfg.HandlerPath = ""

	// The embedded catalog works out of the box: no --handler-path means the
	// bundled generic handler is materialized next to the model store.
	assert.NoError(t, engine.Generate(context.Background(), cfg))

	handler := filepath.Join(cfg.Output, "gpt2", testCommit, archive.HandlerFileName)
	assert.FileExists(t, handler)
	assert.Equal(t, handler, archiver.lastSpec.HandlerPath)
}

func TestGenerateIsIdempotent(t *testing.T) {
	client := &fakeHub{commit: testCommit, files: gpt2Files()}
	engine, archiver, cfg := testEngine(t, client)

	assert.NoError(t, engine.Generate(context.Background(), cfg))
	assert.NoError(t, engine.Generate(context.Background(), cfg))

	// A rerun over a complete tree re-verifies but never transfers or
	// repackages anything.
	assert.Equal(t, 1, client.snapshotCalls)
	assert.Equal(t, 1, archiver.calls)
}

func TestGenerateResumesAfterPartialDownload(t *testing.T) {
	client := &fakeHub{commit: testCommit, files: gpt2Files()}
	engine, archiver, cfg := testEngine(t, client)

	// Simulate an interrupted run that left a truncated tree behind.
	downloadDir := filepath.Join(cfg.Output, "gpt2", testCommit, "download")
	assert.NoError(t, os.MkdirAll(downloadDir, 0755))
	assert.NoError(t, os.WriteFile(filepath.Join(downloadDir, "config.json"), []byte("partial"), 0644))

	assert.NoError(t, engine.Generate(context.Background(), cfg))
	assert.Equal(t, 1, client.snapshotCalls)
	assert.Equal(t, 1, archiver.calls)
	assert.FileExists(t, filepath.Join(downloadDir, "model.safetensors"))
}

func TestGenerateFatalOnStaleSkippedDownload(t *testing.T) {
	client := &fakeHub{commit: testCommit, files: gpt2Files()}
	engine, archiver, cfg := testEngine(t, client)
	cfg.SkipDownload = true

	downloadDir := filepath.Join(cfg.Output, "gpt2", testCommit, "download")
	assert.NoError(t, os.MkdirAll(downloadDir, 0755))
	assert.NoError(t, os.WriteFile(filepath.Join(downloadDir, "stale.bin"), []byte("stale"), 0644))

	err := engine.Generate(context.Background(), cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "do not match")
	assert.Equal(t, 0, archiver.calls)
}

func TestGenerateUnknownModelListsCatalog(t *testing.T) {
	client := &fakeHub{}
	engine, _, cfg := testEngine(t, client)
	cfg.ModelName = "no_such_model"

	err := engine.Generate(context.Background(), cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "gpt2")
	assert.Contains(t, err.Error(), "llama2_7b")

	// A configuration error fires before the run lock creates the model
	// directory, so nothing is left behind.
	assert.NoDirExists(t, filepath.Join(cfg.Output, "no_such_model"))
}

func TestGenerateGatedRepoNeedsToken(t *testing.T) {
	client := &fakeHub{commit: testCommit}
	engine, _, cfg := testEngine(t, client)
	cfg.ModelName = "llama2_7b"

	err := engine.Generate(context.Background(), cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "token")

	// The precondition fires before any hub call.
	assert.Equal(t, 0, client.resolveCalls)
	assert.Equal(t, 0, client.listCalls)
}

func TestGenerateCustomModelWithLocalFiles(t *testing.T) {
	client := &fakeHub{}
	engine, archiver, cfg := testEngine(t, client)
	cfg.ModelName = "my_model"
	cfg.SkipDownload = true

	modelPath := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(modelPath, "weights.safetensors"), []byte("w"), 0644))
	cfg.ModelPath = modelPath

	assert.NoError(t, engine.Generate(context.Background(), cfg))
	assert.Equal(t, 1, archiver.calls)
	assert.FileExists(t, filepath.Join(cfg.Output, "my_model", "model-store", "my_model.mar"))

	data, err := os.ReadFile(filepath.Join(cfg.Output, "my_model", "config", "config.properties"))
	assert.NoError(t, err)
	assert.Contains(t, string(data), fmt.Sprintf("%q", CustomVersion))
	assert.Equal(t, 0, client.resolveCalls)
}

func TestGenerateCustomModelDefaultsToBundledHandler(t *testing.T) {
	client := &fakeHub{}
	engine, archiver, cfg := testEngine(t, client)
	cfg.ModelName = "my_model"
	cfg.SkipDownload = true
	cfg.HandlerPath = ""

	modelPath := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(modelPath, "weights.safetensors"), []byte("w"), 0644))
	cfg.ModelPath = modelPath

	assert.NoError(t, engine.Generate(context.Background(), cfg))

	handler := filepath.Join(cfg.Output, "my_model", archive.HandlerFileName)
	assert.FileExists(t, handler)
	assert.Equal(t, handler, archiver.lastSpec.HandlerPath)
}

func TestGenerateCustomModelEmptyDirIsFatal(t *testing.T) {
	client := &fakeHub{}
	engine, archiver, cfg := testEngine(t, client)
	cfg.ModelName = "my_model"
	cfg.SkipDownload = true
	cfg.ModelPath = t.TempDir()

	err := engine.Generate(context.Background(), cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no model files found")
	assert.Equal(t, 0, archiver.calls)
}

func TestGenerateCustomModelWithRepo(t *testing.T) {
	client := &fakeHub{commit: testCommit, files: []hub.FileInfo{
		{Path: "model.safetensors", Size: 10},
		{Path: "config.json", Size: 5},
	}}
	engine, archiver, cfg := testEngine(t, client)
	cfg.ModelName = "my_model"
	cfg.RepoID = "acme/my-model"
	cfg.ModelPath = t.TempDir()

	assert.NoError(t, engine.Generate(context.Background(), cfg))
	assert.Equal(t, 1, client.snapshotCalls)
	assert.Equal(t, 1, archiver.calls)
	assert.FileExists(t, filepath.Join(cfg.ModelPath, "model.safetensors"))
	assert.FileExists(t, filepath.Join(cfg.Output, "my_model", "model-store", "my_model.mar"))
}
