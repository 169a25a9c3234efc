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
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/modelpack/llmctl/pkg/config"
	"github.com/modelpack/llmctl/pkg/hub"
)

// DefaultRevision is resolved when neither the catalog nor the user pins one.
const DefaultRevision = "main"

// resolve decides where model files come from and which version they are
// pinned to. Catalog entries resolve through the hub to a canonical commit;
// unknown models fall back to the custom flows.
func (e *Engine) resolve(ctx context.Context, cfg *config.Generate) (*Record, error) {
	record := &Record{
		ModelName:   cfg.ModelName,
		Download:    !cfg.SkipDownload,
		RepoVersion: cfg.RepoVersion,
		Token:       e.token,
		Output:      cfg.Output,
		HandlerPath: cfg.HandlerPath,
	}

	entry, found := e.catalog.Get(cfg.ModelName)
	switch {
	case found:
		record.RepoID = entry.RepoID
		record.RegistrationParams = entry.RegistrationParams
		if err := e.checkToken(record.RepoID); err != nil {
			return nil, err
		}

		if record.RepoVersion == "" {
			record.RepoVersion = entry.RepoVersion
		}

		commit, err := e.resolveCommit(ctx, record.RepoID, record.RepoVersion)
		if err != nil {
			return nil, err
		}
		record.RepoVersion = commit

		if record.HandlerPath == "" {
			record.HandlerPath = e.catalog.HandlerPath(entry)
		}

	case !record.Download:
		record.IsCustom = true
		if record.RepoVersion == "" {
			record.RepoVersion = CustomVersion
		}

	case cfg.RepoID != "":
		record.IsCustom = true
		record.RepoID = cfg.RepoID
		if err := e.checkToken(record.RepoID); err != nil {
			return nil, err
		}

		commit, err := e.resolveCommit(ctx, record.RepoID, record.RepoVersion)
		if err != nil {
			return nil, err
		}
		record.RepoVersion = commit

	default:
		return nil, fmt.Errorf("unknown model %s, supported models: %s; for a custom model set --repo-id, or --skip-download with --model-path",
			cfg.ModelName, strings.Join(e.catalog.Names(), ", "))
	}

	// An empty handler path means the bundled generic handler, materialized
	// at packaging time; a named handler must exist up front.
	if record.HandlerPath != "" {
		if _, err := os.Stat(record.HandlerPath); err != nil {
			return nil, fmt.Errorf("handler %s does not exist: %w", record.HandlerPath, err)
		}
	}

	if record.IsCustom && cfg.ModelPath == "" {
		return nil, fmt.Errorf("a model path is required for custom model %s, set --model-path", cfg.ModelName)
	}

	record.setLayout(cfg.ModelPath)
	return record, nil
}

// resolveCommit pins a revision to its canonical commit id.
func (e *Engine) resolveCommit(ctx context.Context, repoID, revision string) (string, error) {
	if revision == "" {
		revision = DefaultRevision
	}

	commit, err := e.client.ResolveCommit(ctx, repoID, revision)
	if err != nil {
		logrus.Errorf("failed to resolve commit of %s at %s: %v", repoID, revision, err)
		return "", fmt.Errorf("failed to resolve %s at %s (check repo id, repo version and token): %w", repoID, revision, err)
	}

	logrus.Infof("resolved %s at %s to commit %s", repoID, revision, commit)
	return commit, nil
}

// checkToken enforces the gated-namespace precondition before any hub call.
func (e *Engine) checkToken(repoID string) error {
	if hub.Gated(repoID) && e.token == "" {
		return fmt.Errorf("a Hugging Face token is required to access %s, set --hf-token or the HF_TOKEN environment variable", repoID)
	}

	return nil
}
