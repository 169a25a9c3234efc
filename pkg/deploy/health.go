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

package deploy

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/sirupsen/logrus"

	"github.com/modelpack/llmctl/pkg/config"
)

//go:embed sample_text.json
var samplePayload []byte

// healthCheck probes the new endpoint with one fixed sample request until it
// answers 200 or the wall-clock budget is spent. The attempt count is
// floor(timeout/interval), at least one.
func (d *Deployer) healthCheck(ctx context.Context, cfg *config.Deploy) error {
	payload := samplePayload
	if cfg.SampleInput != "" {
		data, err := os.ReadFile(cfg.SampleInput)
		if err != nil {
			return fmt.Errorf("failed to read sample input %s: %w", cfg.SampleInput, err)
		}
		payload = data
	}

	attempts := int64(time.Duration(cfg.ModelTimeout) * time.Second / d.healthInterval)
	if attempts < 1 {
		attempts = 1
	}

	err := retry.Do(func() error {
		return d.infer(ctx, cfg, payload)
	},
		retry.Attempts(uint(attempts)),
		retry.Delay(d.healthInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		logrus.Errorf("health check failed for model %s: %v", cfg.ModelName, err)
		return fmt.Errorf("failed health check after multiple retries for model %s: %w", cfg.ModelName, err)
	}

	logrus.Infof("health check passed, model %s deployed", cfg.ModelName)
	return nil
}

// runValidation replays every input file under the data directory against
// the healthy endpoint, in order. The first failure is fatal, there is no
// retry here.
func (d *Deployer) runValidation(ctx context.Context, cfg *config.Deploy) error {
	entries, err := os.ReadDir(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to read validation inputs %s: %w", cfg.DataDir, err)
	}

	var inputs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			inputs = append(inputs, filepath.Join(cfg.DataDir, entry.Name()))
		}
	}
	sort.Strings(inputs)

	for _, input := range inputs {
		payload, err := os.ReadFile(input)
		if err != nil {
			return fmt.Errorf("failed to read validation input %s: %w", input, err)
		}

		if err := d.infer(ctx, cfg, payload); err != nil {
			logrus.Errorf("validation inference failed on %s: %v", input, err)
			return fmt.Errorf("failed to run inference on %s with input %s: %w", cfg.ModelName, input, err)
		}

		logrus.Infof("successfully ran inference on %s with input %s", cfg.ModelName, input)
	}

	return nil
}

// infer posts one inference payload to the v2 endpoint through the ingress,
// addressing the service by its virtual host name.
func (d *Deployer) infer(ctx context.Context, cfg *config.Deploy, payload []byte) error {
	hostname, err := d.serviceHostname(ctx, cfg.DeployName, cfg.Namespace)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("http://%s:%s/v2/models/%s/infer", cfg.IngressHost, cfg.IngressPort, cfg.ModelName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create inference request: %w", err)
	}

	req.Host = hostname
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach inference endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status code %d from inference endpoint: %s", resp.StatusCode, string(body))
	}

	return nil
}
