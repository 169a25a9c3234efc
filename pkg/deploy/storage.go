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

	"github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
)

const (
	// storageCapacity is the fixed capacity budget of the model volume.
	storageCapacity = "100Gi"

	// storageLabelKey and storageLabelValue bind the claim to the volume.
	storageLabelKey   = "storage"
	storageLabelValue = "nfs"
)

// createPV creates the NFS backed persistent volume for the deployment.
// An already existing volume is fine, redeploys are re-entrant.
func (d *Deployer) createPV(ctx context.Context, deployName, nfsServer, nfsPath string) error {
	pv := &corev1.PersistentVolume{
		ObjectMeta: metav1.ObjectMeta{
			Name:   deployName,
			Labels: map[string]string{storageLabelKey: storageLabelValue},
		},
		Spec: corev1.PersistentVolumeSpec{
			Capacity: corev1.ResourceList{
				corev1.ResourceStorage: resource.MustParse(storageCapacity),
			},
			AccessModes:                   []corev1.PersistentVolumeAccessMode{corev1.ReadWriteMany},
			PersistentVolumeReclaimPolicy: corev1.PersistentVolumeReclaimRetain,
			PersistentVolumeSource: corev1.PersistentVolumeSource{
				NFS: &corev1.NFSVolumeSource{
					Server: nfsServer,
					Path:   nfsPath,
				},
			},
		},
	}

	if _, err := d.kube.CoreV1().PersistentVolumes().Create(ctx, pv, metav1.CreateOptions{}); err != nil {
		if apierrors.IsAlreadyExists(err) {
			logrus.Infof("persistent volume %s already exists", deployName)
			return nil
		}

		return fmt.Errorf("failed to create persistent volume %s: %w", deployName, err)
	}

	logrus.Infof("created persistent volume %s (%s on %s:%s)", deployName, storageCapacity, nfsServer, nfsPath)
	return nil
}

// createPVC creates the namespaced claim selecting the volume by label.
func (d *Deployer) createPVC(ctx context.Context, deployName, namespace string) error {
	pvc := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      deployName,
			Namespace: namespace,
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			// An empty class disables dynamic provisioning so the claim
			// binds the pre-created volume.
			StorageClassName: ptr.To(""),
			AccessModes:      []corev1.PersistentVolumeAccessMode{corev1.ReadWriteMany},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{
					corev1.ResourceStorage: resource.MustParse(storageCapacity),
				},
			},
			Selector: &metav1.LabelSelector{
				MatchLabels: map[string]string{storageLabelKey: storageLabelValue},
			},
		},
	}

	if _, err := d.kube.CoreV1().PersistentVolumeClaims(namespace).Create(ctx, pvc, metav1.CreateOptions{}); err != nil {
		if apierrors.IsAlreadyExists(err) {
			logrus.Infof("persistent volume claim %s already exists in %s", deployName, namespace)
			return nil
		}

		return fmt.Errorf("failed to create persistent volume claim %s: %w", deployName, err)
	}

	logrus.Infof("created persistent volume claim %s in %s", deployName, namespace)
	return nil
}
