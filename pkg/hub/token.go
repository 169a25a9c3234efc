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
	"os"
	"path/filepath"
	"strings"
)

// gatedNamespaces lists repository owners whose models are gated on the Hub
// and cannot be resolved anonymously.
var gatedNamespaces = []string{
	"meta-llama",
}

// Gated reports whether the repository requires an access token.
func Gated(repoID string) bool {
	owner, _, found := strings.Cut(repoID, "/")
	if !found {
		return false
	}

	for _, ns := range gatedNamespaces {
		if owner == ns {
			return true
		}
	}

	return false
}

// ResolveToken returns the Hugging Face access token, preferring the explicit
// value, then the HF_TOKEN environment variable, then the token file written
// by `huggingface-cli login`. It returns an empty string when no token is
// configured anywhere.
func ResolveToken(explicit string) string {
	if explicit != "" {
		return explicit
	}

	if token := os.Getenv("HF_TOKEN"); token != "" {
		return token
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	data, err := os.ReadFile(filepath.Join(homeDir, ".huggingface", "token"))
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}
