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
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/modelpack/llmctl/pkg/catalog"
)

// isvcGVR addresses the KServe InferenceService custom resource.
var isvcGVR = schema.GroupVersionResource{
	Group:    "serving.kserve.io",
	Version:  "v1beta1",
	Resource: "inferenceservices",
}

// createInferenceService submits the rollout request: a PyTorch predictor
// serving the archive from the claim, with the sampling parameters passed as
// environment overrides and requests mirrored into limits.
func (d *Deployer) createInferenceService(ctx context.Context, deployName, namespace, storageURI string, res resources, params *catalog.ModelParams) error {
	env := []any{
		envVar("TS_SERVICE_ENVELOPE", "body"),
		envVar("TS_NUMBER_OF_GPU", strconv.Itoa(res.gpus)),
		envVar("NAI_TEMPERATURE", formatParam(params, func(p *catalog.ModelParams) any { return p.Temperature })),
		envVar("NAI_REP_PENALTY", formatParam(params, func(p *catalog.ModelParams) any { return p.RepetitionPenalty })),
		envVar("NAI_TOP_P", formatParam(params, func(p *catalog.ModelParams) any { return p.TopP })),
		envVar("NAI_MAX_TOKENS", formatParam(params, func(p *catalog.ModelParams) any { return p.MaxNewTokens })),
	}

	quantities := map[string]any{
		"cpu":            strconv.Itoa(res.cpus),
		"memory":         res.memory,
		"nvidia.com/gpu": strconv.Itoa(res.gpus),
	}

	isvc := &unstructured.Unstructured{
		Object: map[string]any{
			"apiVersion": isvcGVR.Group + "/" + isvcGVR.Version,
			"kind":       "InferenceService",
			"metadata": map[string]any{
				"name":      deployName,
				"namespace": namespace,
			},
			"spec": map[string]any{
				"predictor": map[string]any{
					"pytorch": map[string]any{
						"protocolVersion": "v2",
						"storageUri":      storageURI,
						"env":             env,
						"resources": map[string]any{
							"requests": quantities,
							"limits":   quantities,
						},
					},
				},
			},
		},
	}

	if _, err := d.dyn.Resource(isvcGVR).Namespace(namespace).Create(ctx, isvc, metav1.CreateOptions{}); err != nil {
		if apierrors.IsAlreadyExists(err) {
			logrus.Infof("inference service %s already exists in %s", deployName, namespace)
			return nil
		}

		return fmt.Errorf("failed to create inference service %s: %w", deployName, err)
	}

	logrus.Infof("created inference service %s in %s, storage uri %s", deployName, namespace, storageURI)
	return nil
}

// serviceHostname reads back the routable virtual host name from the rollout
// status URL.
func (d *Deployer) serviceHostname(ctx context.Context, deployName, namespace string) (string, error) {
	isvc, err := d.dyn.Resource(isvcGVR).Namespace(namespace).Get(ctx, deployName, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get inference service %s: %w", deployName, err)
	}

	statusURL, found, err := unstructured.NestedString(isvc.Object, "status", "url")
	if err != nil || !found || statusURL == "" {
		return "", fmt.Errorf("inference service %s has no status url yet", deployName)
	}

	parsed, err := url.Parse(statusURL)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("invalid status url %s of inference service %s", statusURL, deployName)
	}

	return parsed.Host, nil
}

func envVar(name, value string) map[string]any {
	return map[string]any{"name": name, "value": value}
}

// formatParam renders a sampling parameter, empty when the model carries no
// catalog parameters so the serving handler falls back to its own defaults.
func formatParam(params *catalog.ModelParams, pick func(*catalog.ModelParams) any) string {
	if params == nil {
		return ""
	}

	return fmt.Sprintf("%v", pick(params))
}
