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

// defaultNamespace is the namespace rollouts land in unless overridden.
const defaultNamespace = "default"

// memoryUnits are the binary suffixes accepted for container memory requests.
var memoryUnits = []string{"Ei", "Pi", "Ti", "Gi", "Mi", "Ki"}

type Deploy struct {
	ModelName    string
	DeployName   string
	Namespace    string
	NFS          string
	GPUs         int
	CPUs         int
	Memory       string
	MountPath    string
	RepoVersion  string
	ModelTimeout int
	DataDir      string
	IngressHost  string
	IngressPort  string
	SampleInput  string
	ModelConfig  string
	Debug        bool
}

func NewDeploy() *Deploy {
	return &Deploy{
		Namespace: defaultNamespace,
	}
}

func (d *Deploy) Validate() error {
	if len(d.ModelName) == 0 {
		return fmt.Errorf("model name is required")
	}

	if len(d.DeployName) == 0 {
		return fmt.Errorf("deploy name is required")
	}

	if len(d.Namespace) == 0 {
		return fmt.Errorf("namespace is required")
	}

	if _, _, err := SplitNFS(d.NFS); err != nil {
		return err
	}

	if err := ValidateMemoryUnit(d.Memory); err != nil {
		return err
	}

	if d.GPUs < 0 {
		return fmt.Errorf("invalid gpu count: %d", d.GPUs)
	}

	if d.CPUs < 1 {
		return fmt.Errorf("invalid cpu count: %d", d.CPUs)
	}

	if len(d.MountPath) == 0 {
		return fmt.Errorf("mount path is required")
	}

	if d.ModelTimeout < 1 {
		return fmt.Errorf("invalid model timeout: %d", d.ModelTimeout)
	}

	return nil
}

// SplitNFS splits an `<address>:<share_path>` NFS locator into its parts.
func SplitNFS(nfs string) (server, path string, err error) {
	server, path, ok := strings.Cut(nfs, ":")
	if !ok || server == "" || path == "" {
		return "", "", fmt.Errorf("NFS server and share path was not provided in accepted format - <address>:<share_path>")
	}

	return server, path, nil
}

// ValidateMemoryUnit rejects container memory requests that do not carry one
// of the recognized binary-unit suffixes, before any cluster mutation happens.
func ValidateMemoryUnit(memory string) error {
	for _, unit := range memoryUnits {
		if strings.HasSuffix(memory, unit) {
			return nil
		}
	}

	return fmt.Errorf("container memory unit has to be one of %v, got %q", memoryUnits, memory)
}
