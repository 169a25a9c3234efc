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

// Package deploy drives a packaged model archive through rollout on a
// KServe cluster: backing storage, the inference service and the bounded
// health check gating traffic.
package deploy

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"

	"github.com/modelpack/llmctl/pkg/catalog"
	"github.com/modelpack/llmctl/pkg/config"
)

// defaultHealthInterval is the fixed delay between health probe attempts.
const defaultHealthInterval = 30 * time.Second

// resources are the container resources of the predictor, mirrored between
// requests and limits.
type resources struct {
	cpus   int
	gpus   int
	memory string
}

// Option configures a Deployer.
type Option func(*Deployer)

// WithHTTPClient overrides the HTTP client used for inference probes.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(d *Deployer) {
		d.httpClient = httpClient
	}
}

// WithHealthInterval overrides the delay between health probe attempts.
func WithHealthInterval(interval time.Duration) Option {
	return func(d *Deployer) {
		d.healthInterval = interval
	}
}

// Deployer provisions cluster storage, requests the rollout and health
// checks the resulting endpoint.
type Deployer struct {
	kube           kubernetes.Interface
	dyn            dynamic.Interface
	catalog        *catalog.Catalog
	httpClient     *http.Client
	healthInterval time.Duration
}

// New creates a Deployer on the given cluster clients.
func New(kube kubernetes.Interface, dyn dynamic.Interface, cat *catalog.Catalog, opts ...Option) *Deployer {
	d := &Deployer{
		kube:           kube,
		dyn:            dyn,
		catalog:        cat,
		httpClient:     &http.Client{Timeout: 2 * time.Minute},
		healthInterval: defaultHealthInterval,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Deploy walks the rollout state machine: preflight, storage creation,
// rollout request, then the bounded health check and the optional validation
// pass over supplied inputs. Any failure is fatal to the invocation.
func (d *Deployer) Deploy(ctx context.Context, cfg *config.Deploy) error {
	res, nfsServer, nfsPath, version, err := d.preflight(cfg)
	if err != nil {
		return err
	}

	if err := d.createPV(ctx, cfg.DeployName, nfsServer, nfsPath); err != nil {
		return err
	}

	if err := d.createPVC(ctx, cfg.DeployName, cfg.Namespace); err != nil {
		return err
	}

	storageURI := fmt.Sprintf("pvc://%s/%s", cfg.DeployName, cfg.ModelName)
	if version != "" {
		storageURI += "/" + version
	}

	var params *catalog.ModelParams
	if entry, ok := d.catalog.Get(cfg.ModelName); ok {
		params = entry.ModelParams
	}

	if err := d.createInferenceService(ctx, cfg.DeployName, cfg.Namespace, storageURI, res, params); err != nil {
		return err
	}

	logrus.Infof("waiting for model registration of %s to complete, this can take a while", cfg.ModelName)
	if err := d.healthCheck(ctx, cfg); err != nil {
		return err
	}

	if cfg.DataDir != "" {
		if err := d.runValidation(ctx, cfg); err != nil {
			return err
		}
	}

	return nil
}

// preflight validates everything that must hold before the first cluster
// mutation: the memory quantity, the NFS locator and the presence of the
// model tree on the mounted share.
func (d *Deployer) preflight(cfg *config.Deploy) (resources, string, string, string, error) {
	if err := config.ValidateMemoryUnit(cfg.Memory); err != nil {
		return resources{}, "", "", "", err
	}

	if _, err := resource.ParseQuantity(cfg.Memory); err != nil {
		return resources{}, "", "", "", fmt.Errorf("invalid container memory %q: %w", cfg.Memory, err)
	}

	nfsServer, nfsPath, err := config.SplitNFS(cfg.NFS)
	if err != nil {
		return resources{}, "", "", "", err
	}

	version := cfg.RepoVersion
	if version == "" {
		if entry, ok := d.catalog.Get(cfg.ModelName); ok {
			version = entry.RepoVersion
		}
	}

	modelSpecPath := filepath.Join(cfg.MountPath, cfg.ModelName, version)
	if info, err := os.Stat(modelSpecPath); err != nil || !info.IsDir() {
		return resources{}, "", "", "", fmt.Errorf("the %s model files for version %q are not present under %s",
			cfg.ModelName, version, modelSpecPath)
	}

	res := resources{cpus: cfg.CPUs, gpus: cfg.GPUs, memory: cfg.Memory}
	return res, nfsServer, nfsPath, version, nil
}
