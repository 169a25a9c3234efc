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
	"io/fs"
	"os"
	"path/filepath"

	humanize "github.com/dustin/go-humanize"
	"github.com/emirpasic/gods/sets/hashset"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/sirupsen/logrus"

	"github.com/modelpack/llmctl/pkg/config"
	"github.com/modelpack/llmctl/pkg/hub"
)

// ensureModelFiles makes record.ModelPath hold exactly the files the ignore
// policy expects at the resolved commit. A tree that already verifies is
// kept as is; anything else is wiped and downloaded fresh.
func (e *Engine) ensureModelFiles(ctx context.Context, record *Record, cfg *config.Generate) error {
	expected, err := e.expectedFiles(ctx, record, cfg.IgnorePolicy)
	if err != nil {
		return err
	}

	if local, err := localFiles(record.ModelPath); err == nil && sameFiles(local, expected) {
		logrus.Infof("skipping download, model files of %s at %s are already present in %s",
			record.RepoID, record.RepoVersion, record.ModelPath)
		return nil
	}

	if err := checkDiskSpace(record.Output, totalSize(expected)); err != nil {
		return err
	}

	logrus.Infof("downloading %d files of %s at %s to %s",
		len(expected), record.RepoID, record.RepoVersion, record.ModelPath)

	if err := os.RemoveAll(record.ModelPath); err != nil {
		return fmt.Errorf("failed to clean model directory %s: %w", record.ModelPath, err)
	}

	if err := os.MkdirAll(record.ModelPath, 0755); err != nil {
		return fmt.Errorf("failed to create model directory %s: %w", record.ModelPath, err)
	}

	if err := e.client.Snapshot(ctx, record.RepoID, record.RepoVersion, record.ModelPath, expected, cfg.Concurrency); err != nil {
		logrus.Errorf("failed to download model files: %v", err)
		return fmt.Errorf("failed to download model files: %w", err)
	}

	logrus.Infof("successfully downloaded model files to %s", record.ModelPath)
	return nil
}

// expectedFiles is the remote listing minus the entries the ignore policy
// excludes, the authoritative file set for download and verification.
func (e *Engine) expectedFiles(ctx context.Context, record *Record, policy string) ([]hub.FileInfo, error) {
	files, err := e.client.ListFiles(ctx, record.RepoID, record.RepoVersion)
	if err != nil {
		logrus.Errorf("failed to list repository files: %v", err)
		return nil, fmt.Errorf("failed to list files of %s at %s (check repo id, repo version and token): %w",
			record.RepoID, record.RepoVersion, err)
	}

	paths := make([]string, 0, len(files))
	for _, file := range files {
		paths = append(paths, file.Path)
	}

	return FilterFiles(files, IgnorePatterns(policy, paths)), nil
}

// localFiles returns the relative paths of the regular files under root,
// including nested ones.
func localFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

// sameFiles reports whether the local relative paths are exactly the
// expected remote paths, regardless of order.
func sameFiles(local []string, expected []hub.FileInfo) bool {
	if len(local) != len(expected) {
		return false
	}

	set := hashset.New()
	for _, file := range expected {
		set.Add(file.Path)
	}

	for _, path := range local {
		if !set.Contains(path) {
			return false
		}
	}

	return true
}

func totalSize(files []hub.FileInfo) uint64 {
	var total uint64
	for _, file := range files {
		if file.Size > 0 {
			total += uint64(file.Size)
		}
	}

	return total
}

// checkDiskSpace verifies the filesystem holding path has the required
// bytes free before any data lands on it.
func checkDiskSpace(path string, required uint64) error {
	usage, err := disk.Usage(path)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem of %s: %w", path, err)
	}

	if usage.Free < required {
		return fmt.Errorf("not enough disk space under %s: need %s, have %s free",
			path, humanize.Bytes(required), humanize.Bytes(usage.Free))
	}

	return nil
}
