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

package lockfile

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	// FileLockRetryDelay is the delay between retries when acquiring file locks.
	FileLockRetryDelay = 100 * time.Millisecond
)

// Lock guards a model output tree against concurrent provisioning runs.
type Lock struct {
	flock *flock.Flock
}

// New creates a lock for the given directory. The directory is created if
// it does not exist yet.
func New(dir, name string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	return &Lock{flock: flock.New(filepath.Join(dir, name))}, nil
}

// Acquire takes the lock, retrying until the context is canceled.
func (l *Lock) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := l.flock.TryLockContext(ctx, FileLockRetryDelay); err != nil {
		return err
	}

	return nil
}

// Release drops the lock. Safe to call when the lock is not held.
func (l *Lock) Release() error {
	return l.flock.Unlock()
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.flock.Path()
}
