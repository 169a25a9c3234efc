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
	"io"
	"os"
	"path/filepath"

	retry "github.com/avast/retry-go/v4"
	sha256 "github.com/minio/sha256-simd"
	godigest "github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	internalpb "github.com/modelpack/llmctl/internal/pb"
)

// incompleteSuffix marks partially written downloads so an interrupted run
// never leaves a truncated file under the final name.
const incompleteSuffix = ".incomplete"

// Snapshot downloads the given repository files into outputDir, preserving
// their repository-relative paths. Files are fetched concurrently and
// LFS-tracked files are verified against their content digest.
func (c *Client) Snapshot(ctx context.Context, repoID, revision, outputDir string, files []FileInfo, concurrency int) error {
	if len(files) == 0 {
		return nil
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	pb := internalpb.NewProgressBar()
	pb.Start()
	defer pb.Stop()

	g := &errgroup.Group{}
	g.SetLimit(concurrency)

	for _, file := range files {
		g.Go(func() error {
			return retry.Do(func() error {
				return c.downloadFile(ctx, pb, repoID, revision, file, outputDir)
			}, append(defaultRetryOpts, retry.Context(ctx))...)
		})
	}

	if err := g.Wait(); err != nil {
		logrus.Errorf("failed to wait for all downloads: %v", err)
		return fmt.Errorf("failed to wait for all downloads: %w", err)
	}

	return nil
}

// downloadFile fetches one repository file to outputDir, streaming through a
// digest writer and renaming into place only after the content checks out.
func (c *Client) downloadFile(ctx context.Context, pb *internalpb.ProgressBar, repoID, revision string, file FileInfo, outputDir string) error {
	dest := filepath.Join(outputDir, file.Path)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", file.Path, err)
	}

	endpoint := fmt.Sprintf("%s/%s/resolve/%s/%s", c.baseURL, repoID, revision, file.Path)
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		pb.Abort(file.Path, fmt.Errorf("failed to download file: %w", err))
		return fmt.Errorf("failed to download %s: %w", file.Path, err)
	}
	defer resp.Body.Close()

	size := file.Size
	if size == 0 && resp.ContentLength > 0 {
		size = resp.ContentLength
	}

	reader := pb.Add(internalpb.NormalizePrompt("Downloading file"), file.Path, size, resp.Body)

	tmp := dest + incompleteSuffix
	out, err := os.Create(tmp)
	if err != nil {
		pb.Abort(file.Path, fmt.Errorf("failed to create file: %w", err))
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	hash := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, hash), reader); err != nil {
		out.Close()
		os.Remove(tmp)
		pb.Abort(file.Path, fmt.Errorf("failed to write file: %w", err))
		return fmt.Errorf("failed to write %s: %w", file.Path, err)
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", file.Path, err)
	}

	if file.SHA256 != "" {
		expected := godigest.NewDigestFromEncoded(godigest.SHA256, file.SHA256)
		actual := godigest.NewDigest(godigest.SHA256, hash)
		if actual != expected {
			os.Remove(tmp)
			err := fmt.Errorf("digest mismatch for %s: expected %s, got %s", file.Path, expected, actual)
			pb.Abort(file.Path, err)
			return err
		}
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}

	pb.Complete(file.Path, fmt.Sprintf("%s %s", internalpb.NormalizePrompt("Downloaded file"), file.Path))
	return nil
}
