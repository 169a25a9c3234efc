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
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/emirpasic/gods/sets/hashset"

	"github.com/modelpack/llmctl/pkg/config"
	"github.com/modelpack/llmctl/pkg/hub"
)

// preferredFormats are weight serializations in preference order. The first
// format present in the remote tree is kept and the others are ignored.
var preferredFormats = []string{".safetensors", ".bin"}

// otherFormatPatterns match alternative weight serializations that are never
// needed once a preferred format is present.
var otherFormatPatterns = []string{
	"*.pt",
	"*.h5",
	"*.gguf",
	"*.msgpack",
	"*.tflite",
	"*.ot",
	"*.onnx",
}

// legacyIgnoreExtensions is the fixed exclusion list of the original
// download pipeline, kept selectable for model trees produced by it.
var legacyIgnoreExtensions = []string{
	".safetensors",
	".safetensors.index.json",
	".h5",
	".ot",
	".tflite",
	".msgpack",
	".onnx",
}

// IgnorePatterns derives the download exclusion globs for the policy from
// the file paths present in the repository.
func IgnorePatterns(policy string, repoFiles []string) []string {
	if policy == config.IgnorePolicyLegacy {
		patterns := make([]string, 0, len(legacyIgnoreExtensions))
		for _, ext := range legacyIgnoreExtensions {
			patterns = append(patterns, "*"+ext)
		}

		return patterns
	}

	extensions := hashset.New()
	for _, file := range repoFiles {
		if ext := filepath.Ext(file); ext != "" {
			extensions.Add(ext)
		}
	}

	for _, desired := range preferredFormats {
		if !extensions.Contains(desired) {
			continue
		}

		patterns := make([]string, 0, len(preferredFormats)-1+len(otherFormatPatterns))
		for _, format := range preferredFormats {
			if format != desired {
				patterns = append(patterns, "*"+format)
			}
		}

		return append(patterns, otherFormatPatterns...)
	}

	return nil
}

// Ignored reports whether the repository path matches any ignore pattern.
// Patterns are tried against the full relative path and the bare file name,
// matching how the hub applies ignore patterns to nested trees.
func Ignored(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, err := doublestar.Match(pattern, path); err == nil && matched {
			return true
		}

		if matched, err := doublestar.Match(pattern, base); err == nil && matched {
			return true
		}
	}

	return false
}

// FilterFiles drops the ignored entries from the remote listing.
func FilterFiles(files []hub.FileInfo, patterns []string) []hub.FileInfo {
	if len(patterns) == 0 {
		return files
	}

	kept := make([]hub.FileInfo, 0, len(files))
	for _, file := range files {
		if Ignored(file.Path, patterns) {
			continue
		}

		kept = append(kept, file)
	}

	return kept
}
