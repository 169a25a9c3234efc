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

package config

import (
	"fmt"
	"strings"
)

const (
	// IgnorePolicyPreferred keeps the first preferred weight format found in
	// the remote tree and ignores every interchangeable alternative.
	IgnorePolicyPreferred = "preferred"

	// IgnorePolicyLegacy ignores a fixed extension list regardless of what
	// the remote tree contains.
	IgnorePolicyLegacy = "legacy"

	// defaultArchiverBin is the archiver executable resolved from PATH.
	defaultArchiverBin = "torch-model-archiver"

	// defaultDownloadConcurrency is the default number of concurrent file
	// downloads during a snapshot.
	defaultDownloadConcurrency = 8
)

type Generate struct {
	ModelName        string
	RepoID           string
	RepoVersion      string
	ModelPath        string
	Output           string
	HandlerPath      string
	Token            string
	SkipDownload     bool
	ModelConfig      string
	IgnorePolicy     string
	RequirementsFile string
	ArchiverBin      string
	WeightsURI       string
	WeightsEndpoint  string
	Concurrency      int
	Debug            bool
}

func NewGenerate() *Generate {
	return &Generate{
		IgnorePolicy: IgnorePolicyPreferred,
		ArchiverBin:  defaultArchiverBin,
		Concurrency:  defaultDownloadConcurrency,
	}
}

func (g *Generate) Validate() error {
	if len(g.ModelName) == 0 {
		return fmt.Errorf("model name is required")
	}

	if len(g.Output) == 0 {
		return fmt.Errorf("output is required")
	}

	if g.IgnorePolicy != IgnorePolicyPreferred && g.IgnorePolicy != IgnorePolicyLegacy {
		return fmt.Errorf("invalid ignore policy: %s, must be %q or %q", g.IgnorePolicy, IgnorePolicyPreferred, IgnorePolicyLegacy)
	}

	if len(g.ArchiverBin) == 0 {
		return fmt.Errorf("archiver binary is required")
	}

	if g.Concurrency < 1 {
		return fmt.Errorf("invalid concurrency: %d", g.Concurrency)
	}

	if len(g.WeightsURI) != 0 && !strings.HasPrefix(g.WeightsURI, "s3://") {
		return fmt.Errorf("invalid weights uri: %s, only s3:// is supported", g.WeightsURI)
	}

	return nil
}
