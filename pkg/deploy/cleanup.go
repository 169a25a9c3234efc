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

	"github.com/sirupsen/logrus"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/modelpack/llmctl/pkg/config"
)

// Cleanup tears down the inference service, the claim and the volume of a
// deployment, in that order. Every deletion is attempted; resources that are
// already gone are fine, cleanup is re-entrant.
func (d *Deployer) Cleanup(ctx context.Context, cfg *config.Cleanup) error {
	logrus.Infof("cleaning up deployment %s in %s", cfg.DeployName, cfg.Namespace)

	err := d.dyn.Resource(isvcGVR).Namespace(cfg.Namespace).Delete(ctx, cfg.DeployName, metav1.DeleteOptions{})
	logDeletion("inference service", cfg.DeployName, err)

	err = d.kube.CoreV1().PersistentVolumeClaims(cfg.Namespace).Delete(ctx, cfg.DeployName, metav1.DeleteOptions{})
	logDeletion("persistent volume claim", cfg.DeployName, err)

	err = d.kube.CoreV1().PersistentVolumes().Delete(ctx, cfg.DeployName, metav1.DeleteOptions{})
	logDeletion("persistent volume", cfg.DeployName, err)

	return nil
}

// logDeletion reports one best-effort deletion. Absent resources are
// informational, anything else is surfaced as an error without stopping the
// remaining deletions.
func logDeletion(kind, name string, err error) {
	switch {
	case err == nil:
		logrus.Infof("deleted %s %s", kind, name)
	case apierrors.IsNotFound(err) || apierrors.IsGone(err):
		logrus.Infof("%s %s is already deleted", kind, name)
	default:
		logrus.Errorf("failed to delete %s %s: %v", kind, name, err)
	}
}
