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

	"github.com/sirupsen/logrus"

	"github.com/modelpack/llmctl/internal/lockfile"
	"github.com/modelpack/llmctl/pkg/archive"
	"github.com/modelpack/llmctl/pkg/catalog"
	"github.com/modelpack/llmctl/pkg/config"
	"github.com/modelpack/llmctl/pkg/hub"
	"github.com/modelpack/llmctl/pkg/serving"
)

// lockFileName guards one model tree against interleaved generate runs.
const lockFileName = ".llmctl.lock"

// HubClient is the slice of the hub API the provisioning flow needs,
// satisfied by *hub.Client.
type HubClient interface {
	ResolveCommit(ctx context.Context, repoID, revision string) (string, error)
	ListFiles(ctx context.Context, repoID, revision string) ([]hub.FileInfo, error)
	Snapshot(ctx context.Context, repoID, revision, outputDir string, files []hub.FileInfo, concurrency int) error
}

// Archiver packages a model directory into a serving archive, satisfied by
// *archive.Generator.
type Archiver interface {
	Generate(ctx context.Context, spec *archive.Spec) error
}

// Stager copies custom model weights from a mirror into the model directory,
// satisfied by *mirror.Client.
type Stager interface {
	Stage(ctx context.Context, uri, dest string) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithToken sets the hub access token recorded for gated-namespace checks.
func WithToken(token string) Option {
	return func(e *Engine) {
		e.token = token
	}
}

// WithArchiver overrides the archive generator.
func WithArchiver(archiver Archiver) Option {
	return func(e *Engine) {
		e.archiver = archiver
	}
}

// WithStager sets the mirror used by --weights-uri staging.
func WithStager(stager Stager) Option {
	return func(e *Engine) {
		e.stager = stager
	}
}

// Engine drives the provisioning pipeline: resolution, acquisition and
// verification, archive generation and serving config rendering.
type Engine struct {
	client   HubClient
	catalog  *catalog.Catalog
	token    string
	archiver Archiver
	stager   Stager
}

// New creates a provisioning engine.
func New(client HubClient, cat *catalog.Catalog, opts ...Option) *Engine {
	e := &Engine{
		client:   client,
		catalog:  cat,
		archiver: archive.New(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Generate provisions one model end to end: it resolves the model source,
// ensures the weights are present and verified, packages the archive and
// writes the serving configuration. Every step is idempotent, a rerun over
// a complete tree only re-verifies it.
func (e *Engine) Generate(ctx context.Context, cfg *config.Generate) error {
	// The output root is typically a shared NFS mount and must already
	// exist, it is never created implicitly.
	info, err := os.Stat(cfg.Output)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("output directory %s does not exist", cfg.Output)
	}

	// Resolution validates the configuration before the lock creates the
	// model directory, so a bad model name leaves no tree behind.
	record, err := e.resolve(ctx, cfg)
	if err != nil {
		return err
	}

	lock, err := lockfile.New(filepath.Join(cfg.Output, cfg.ModelName), lockFileName)
	if err != nil {
		return fmt.Errorf("failed to create lock: %w", err)
	}

	if err := lock.Acquire(ctx); err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", lock.Path(), err)
	}
	defer lock.Release()

	logrus.Infof("provisioning model %s, version %s, custom: %t", record.ModelName, record.RepoVersion, record.IsCustom)

	if cfg.WeightsURI != "" {
		if err := e.stageWeights(ctx, record, cfg); err != nil {
			return err
		}
	}

	if record.Download && record.RepoID != "" {
		if err := e.ensureModelFiles(ctx, record, cfg); err != nil {
			return err
		}
	}

	if err := e.createArchive(ctx, record, cfg); err != nil {
		return err
	}

	params := serving.Params{
		ModelName:          record.ModelName,
		RepoVersion:        record.RepoVersion,
		RegistrationParams: record.RegistrationParams,
	}
	if err := serving.WriteConfig(record.ConfigPath(), params); err != nil {
		logrus.Errorf("failed to write serving config: %v", err)
		return fmt.Errorf("failed to write serving config: %w", err)
	}

	logrus.Infof("successfully provisioned %s: archive %s, serving config %s",
		record.ModelName, record.MarPath(), record.ConfigPath())
	return nil
}

// stageWeights copies custom model weights from the configured mirror into
// the model directory before the non-empty gate runs.
func (e *Engine) stageWeights(ctx context.Context, record *Record, cfg *config.Generate) error {
	if !record.IsCustom {
		return fmt.Errorf("staging weights from a mirror is only supported for custom models")
	}

	if e.stager == nil {
		return fmt.Errorf("no weights mirror configured")
	}

	logrus.Infof("staging weights from %s to %s", cfg.WeightsURI, record.ModelPath)
	if err := e.stager.Stage(ctx, cfg.WeightsURI, record.ModelPath); err != nil {
		logrus.Errorf("failed to stage weights: %v", err)
		return fmt.Errorf("failed to stage weights from %s: %w", cfg.WeightsURI, err)
	}

	return nil
}

// createArchive packages the model directory unless the archive already
// exists. Catalog models must verify against the remote listing right before
// packaging; custom models only need a non-empty directory.
func (e *Engine) createArchive(ctx context.Context, record *Record, cfg *config.Generate) error {
	if e.marExists(record) {
		logrus.Infof("skipping archive generation, %s is already present in %s", record.MarName(), record.MarOutput)
		return nil
	}

	info, err := os.Stat(record.ModelPath)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("model path %s does not exist", record.ModelPath)
	}

	if record.IsCustom {
		local, err := localFiles(record.ModelPath)
		if err != nil {
			return fmt.Errorf("failed to list model files: %w", err)
		}

		if len(local) == 0 {
			return fmt.Errorf("no model files found for custom model %s in %s", record.ModelName, record.ModelPath)
		}
	} else {
		expected, err := e.expectedFiles(ctx, record, cfg.IgnorePolicy)
		if err != nil {
			return err
		}

		local, err := localFiles(record.ModelPath)
		if err != nil {
			return fmt.Errorf("failed to list model files: %w", err)
		}

		if !sameFiles(local, expected) {
			logrus.Errorf("model files in %s do not match the repository file list", record.ModelPath)
			return fmt.Errorf("model files in %s do not match the file list of %s at %s",
				record.ModelPath, record.RepoID, record.RepoVersion)
		}
	}

	if err := os.MkdirAll(record.MarOutput, 0755); err != nil {
		return fmt.Errorf("failed to create model store directory %s: %w", record.MarOutput, err)
	}

	requirements := cfg.RequirementsFile
	if requirements == "" {
		requirements, err = archive.WriteDefaultRequirements(record.SpecDir())
		if err != nil {
			return err
		}
	}

	handler := record.HandlerPath
	if handler == "" {
		handler, err = archive.WriteDefaultHandler(record.SpecDir())
		if err != nil {
			return err
		}
	}

	spec := &archive.Spec{
		ModelName:        record.ModelName,
		Version:          record.RepoVersion,
		HandlerPath:      handler,
		ModelPath:        record.ModelPath,
		RequirementsFile: requirements,
		ExportPath:       record.MarOutput,
		Bin:              cfg.ArchiverBin,
	}

	return e.archiver.Generate(ctx, spec)
}

// marExists reports whether the model store already holds exactly the one
// expected archive.
func (e *Engine) marExists(record *Record) bool {
	entries, err := os.ReadDir(record.MarOutput)
	if err != nil {
		return false
	}

	return len(entries) == 1 && entries[0].Name() == record.MarName()
}
