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
	"os"
	"path/filepath"
)

const (
	// defaultLogLevel is the default log level.
	defaultLogLevel = "info"

	// defaultPprofAddr is the default address for the pprof server.
	defaultPprofAddr = "localhost:6060"
)

type Root struct {
	Pprof           bool
	PprofAddr       string
	DisableProgress bool
	LogDir          string
	LogLevel        string
}

func NewRoot() (*Root, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	return &Root{
		Pprof:           false,
		PprofAddr:       defaultPprofAddr,
		DisableProgress: false,
		LogDir:          filepath.Join(home, ".llmctl", "logs"),
		LogLevel:        defaultLogLevel,
	}, nil
}
