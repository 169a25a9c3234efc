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

package hub

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	sha256 "github.com/minio/sha256-simd"
	"github.com/stretchr/testify/assert"

	internalpb "github.com/modelpack/llmctl/internal/pb"
)

func TestMain(m *testing.M) {
	internalpb.SetDisableProgress(true)
	os.Exit(m.Run())
}

func TestResolveCommit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/models/acme/tiny/commits/main", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": "commit-a"}, {"id": "commit-b"}]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := New(WithBaseURL(srv.URL))
	commit, err := client.ResolveCommit(context.Background(), "acme/tiny", "main")
	assert.NoError(t, err)
	assert.Equal(t, "commit-a", commit)
}

func TestResolveCommitEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/models/acme/tiny/commits/main", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := New(WithBaseURL(srv.URL))
	_, err := client.ResolveCommit(context.Background(), "acme/tiny", "main")
	assert.ErrorContains(t, err, "no commits found")
}

func TestListFiles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/models/acme/tiny/revision/commit-a", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("blobs"))
		fmt.Fprint(w, `{
		  "sha": "commit-a",
		  "siblings": [
		    {"rfilename": "config.json", "size": 12},
		    {"rfilename": "model.safetensors", "size": 0, "lfs": {"oid": "deadbeef", "size": 2048}}
		  ]
		}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := New(WithBaseURL(srv.URL))
	files, err := client.ListFiles(context.Background(), "acme/tiny", "commit-a")
	assert.NoError(t, err)
	assert.Equal(t, []FileInfo{
		{Path: "config.json", Size: 12},
		{Path: "model.safetensors", Size: 2048, SHA256: "deadbeef"},
	}, files)
}

func TestAuthorizationHeader(t *testing.T) {
	var got string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/models/acme/gated/commits/main", func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		fmt.Fprint(w, `[{"id": "commit-a"}]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := New(WithBaseURL(srv.URL), WithToken("secret"))
	_, err := client.ResolveCommit(context.Background(), "acme/gated", "main")
	assert.NoError(t, err)
	assert.Equal(t, "Bearer secret", got)
}

func TestSnapshot(t *testing.T) {
	weights := []byte("weights-bytes")
	weightsDigest := fmt.Sprintf("%x", sha256.Sum256(weights))

	mux := http.NewServeMux()
	mux.HandleFunc("/acme/tiny/resolve/commit-a/config.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"model_type": "tiny"}`)
	})
	mux.HandleFunc("/acme/tiny/resolve/commit-a/weights/model.safetensors", func(w http.ResponseWriter, r *http.Request) {
		w.Write(weights)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	outputDir := t.TempDir()
	files := []FileInfo{
		{Path: "config.json", Size: 22},
		{Path: "weights/model.safetensors", Size: int64(len(weights)), SHA256: weightsDigest},
	}

	client := New(WithBaseURL(srv.URL))
	err := client.Snapshot(context.Background(), "acme/tiny", "commit-a", outputDir, files, 2)
	assert.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(outputDir, "weights/model.safetensors"))
	assert.NoError(t, err)
	assert.Equal(t, weights, content)

	_, err = os.Stat(filepath.Join(outputDir, "config.json"))
	assert.NoError(t, err)

	_, err = os.Stat(filepath.Join(outputDir, "weights/model.safetensors"+incompleteSuffix))
	assert.True(t, os.IsNotExist(err))
}

func TestSnapshotDigestMismatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/acme/tiny/resolve/commit-a/model.bin", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("corrupted"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	outputDir := t.TempDir()
	files := []FileInfo{
		{Path: "model.bin", Size: 9, SHA256: fmt.Sprintf("%x", sha256.Sum256([]byte("pristine")))},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	client := New(WithBaseURL(srv.URL))
	err := client.Snapshot(ctx, "acme/tiny", "commit-a", outputDir, files, 1)
	assert.ErrorContains(t, err, "digest mismatch")

	_, err = os.Stat(filepath.Join(outputDir, "model.bin"))
	assert.True(t, os.IsNotExist(err))
}

func TestGated(t *testing.T) {
	assert.True(t, Gated("meta-llama/Llama-2-7b-hf"))
	assert.False(t, Gated("gpt2"))
	assert.False(t, Gated("mosaicml/mpt-7b"))
}

func TestResolveToken(t *testing.T) {
	t.Setenv("HF_TOKEN", "from-env")
	assert.Equal(t, "explicit", ResolveToken("explicit"))
	assert.Equal(t, "from-env", ResolveToken(""))

	t.Setenv("HF_TOKEN", "")
	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)
	assert.Equal(t, "", ResolveToken(""))

	tokenDir := filepath.Join(homeDir, ".huggingface")
	assert.NoError(t, os.MkdirAll(tokenDir, 0755))
	assert.NoError(t, os.WriteFile(filepath.Join(tokenDir, "token"), []byte("from-file\n"), 0600))
	assert.Equal(t, "from-file", ResolveToken(""))
}
