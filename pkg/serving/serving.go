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

// Package serving renders the config.properties file consumed by the
// inference runtime. The appended model_snapshot line is a compatibility
// contract, its shape must not change.
package serving

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/modelpack/llmctl/pkg/catalog"
)

const (
	// ModelStorePath is where the runtime finds archives inside the
	// serving container, fixed by the volume mount layout.
	ModelStorePath = "/mnt/models/model-store"

	// DefaultWorkers is the initial and max worker count per model.
	DefaultWorkers = 1

	// DefaultBatchSize is the per-model inference batch size.
	DefaultBatchSize = 1

	// DefaultMaxBatchDelay is the batch aggregation delay in milliseconds.
	DefaultMaxBatchDelay = 500

	// DefaultResponseTimeout is the per-request timeout in milliseconds
	// applied unless the catalog entry overrides it.
	DefaultResponseTimeout = 2000

	// LegacyResponseTimeout is the 60 second timeout the legacy download
	// pipeline wrote. Catalog entries pinning old behavior set it through
	// registration_params; it is never picked implicitly.
	LegacyResponseTimeout = 60
)

//go:embed config.properties
var baseProperties []byte

// Params describe one model snapshot entry.
type Params struct {
	ModelName          string
	RepoVersion        string
	RegistrationParams *catalog.RegistrationParams
}

// versionSpec is the per-version part of the snapshot JSON. Field order
// mirrors the file format consumed by the runtime.
type versionSpec struct {
	DefaultVersion  bool   `json:"defaultVersion"`
	MarName         string `json:"marName"`
	MinWorkers      int    `json:"minWorkers"`
	MaxWorkers      int    `json:"maxWorkers"`
	BatchSize       int    `json:"batchSize"`
	MaxBatchDelay   int    `json:"maxBatchDelay"`
	ResponseTimeout int    `json:"responseTimeout"`
}

type snapshot struct {
	Name       string                            `json:"name"`
	ModelCount int                               `json:"modelCount"`
	Models     map[string]map[string]versionSpec `json:"models"`
}

// Snapshot renders the model_snapshot JSON value for the given model.
func Snapshot(params Params) (string, error) {
	spec := versionSpec{
		DefaultVersion:  true,
		MarName:         params.ModelName + ".mar",
		MinWorkers:      DefaultWorkers,
		MaxWorkers:      DefaultWorkers,
		BatchSize:       DefaultBatchSize,
		MaxBatchDelay:   DefaultMaxBatchDelay,
		ResponseTimeout: DefaultResponseTimeout,
	}

	if rp := params.RegistrationParams; rp != nil {
		if rp.InitialWorkers > 0 {
			spec.MinWorkers = rp.InitialWorkers
			spec.MaxWorkers = rp.InitialWorkers
		}

		if rp.BatchSize > 0 {
			spec.BatchSize = rp.BatchSize
		}

		if rp.MaxBatchDelay > 0 {
			spec.MaxBatchDelay = rp.MaxBatchDelay
		}

		if rp.ResponseTimeout > 0 {
			spec.ResponseTimeout = rp.ResponseTimeout
		}
	}

	data, err := json.Marshal(snapshot{
		Name:       "startup.cfg",
		ModelCount: 1,
		Models: map[string]map[string]versionSpec{
			params.ModelName: {params.RepoVersion: spec},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode model snapshot: %w", err)
	}

	return string(data), nil
}

// WriteConfig writes the full serving configuration to path: the base
// properties followed by the model store location and the snapshot line.
func WriteConfig(path string, params Params) error {
	snap, err := Snapshot(params)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf("%s\ninstall_py_dep_per_model=true\nmodel_store=%s\nmodel_snapshot=%s\n",
		baseProperties, ModelStorePath, snap)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write serving config %s: %w", path, err)
	}

	logrus.Infof("wrote serving config for %s at %s to %s", params.ModelName, params.RepoVersion, path)
	return nil
}
