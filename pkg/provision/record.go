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

	"github.com/modelpack/llmctl/pkg/catalog"
)

const (
	configDirName     = "config"
	configFileName    = "config.properties"
	modelStoreDirName = "model-store"
	downloadDirName   = "download"

	// CustomVersion labels archives built from local files that never went
	// through hub commit resolution.
	CustomVersion = "1.0"
)

// Record carries the resolved state of one provisioning run, from model
// resolution through archive generation and serving config rendering.
type Record struct {
	ModelName string
	IsCustom  bool
	Download  bool

	RepoID string
	// RepoVersion is the canonical commit id for hub models, or the user
	// supplied version (CustomVersion by default) for custom models.
	RepoVersion string
	Token       string

	Output      string
	ModelPath   string
	MarOutput   string
	HandlerPath string

	RegistrationParams *catalog.RegistrationParams
}

// setLayout derives the storage layout once resolution has fixed IsCustom
// and RepoVersion. Custom models keep their weights wherever --model-path
// points; hub models get a versioned tree under the output root.
func (r *Record) setLayout(modelPath string) {
	if r.IsCustom {
		r.ModelPath = modelPath
		r.MarOutput = filepath.Join(r.Output, r.ModelName, modelStoreDirName)
		return
	}

	r.ModelPath = filepath.Join(r.Output, r.ModelName, r.RepoVersion, downloadDirName)
	r.MarOutput = filepath.Join(r.Output, r.ModelName, r.RepoVersion, modelStoreDirName)
}

// SpecDir is the directory holding the model store and serving config for
// this model, versioned for hub models and flat for custom ones.
func (r *Record) SpecDir() string {
	if r.IsCustom {
		return filepath.Join(r.Output, r.ModelName)
	}

	return filepath.Join(r.Output, r.ModelName, r.RepoVersion)
}

// ConfigPath is where the serving configuration is written.
func (r *Record) ConfigPath() string {
	return filepath.Join(r.SpecDir(), configDirName, configFileName)
}

// MarName is the archive file name.
func (r *Record) MarName() string {
	return r.ModelName + ".mar"
}

// MarPath is the full path of the archive.
func (r *Record) MarPath() string {
	return filepath.Join(r.MarOutput, r.MarName())
}
