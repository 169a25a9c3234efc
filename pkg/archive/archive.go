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

// Package archive packages a model directory into a TorchServe model archive
// by shelling out to torch-model-archiver, with a poll-driven progress bar
// sized from the inputs.
package archive

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	sha256 "github.com/minio/sha256-simd"
	godigest "github.com/opencontainers/go-digest"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/sirupsen/logrus"

	internalpb "github.com/modelpack/llmctl/internal/pb"
)

const (
	// RequirementsFileName is the default per-model python dependency list
	// packaged into every archive.
	RequirementsFileName = "model_requirements.txt"

	// HandlerFileName is the generic serving handler bundled when neither
	// the catalog entry nor the operator names one.
	HandlerFileName = "llm_handler.py"

	// marSizeFactor approximates the archiver's packaging overhead; the
	// estimate only sizes the progress bar.
	marSizeFactor = 1.15

	// pollInterval is how often the reporter samples the growing archive.
	pollInterval = 2 * time.Second
)

//go:embed model_requirements.txt
var defaultRequirements []byte

//go:embed llm_handler.py
var defaultHandler []byte

// WriteDefaultRequirements materializes the embedded requirements list into
// dir and returns its path.
func WriteDefaultRequirements(dir string) (string, error) {
	path := filepath.Join(dir, RequirementsFileName)
	if err := os.WriteFile(path, defaultRequirements, 0644); err != nil {
		return "", fmt.Errorf("failed to write requirements file %s: %w", path, err)
	}

	return path, nil
}

// WriteDefaultHandler materializes the embedded generic handler into dir and
// returns its path.
func WriteDefaultHandler(dir string) (string, error) {
	path := filepath.Join(dir, HandlerFileName)
	if err := os.WriteFile(path, defaultHandler, 0644); err != nil {
		return "", fmt.Errorf("failed to write handler file %s: %w", path, err)
	}

	return path, nil
}

// Spec describes one archive build.
type Spec struct {
	ModelName        string
	Version          string
	HandlerPath      string
	ModelPath        string
	RequirementsFile string
	ExportPath       string
	Bin              string
}

// Generator packages model files with the torch-model-archiver CLI.
type Generator struct{}

// New creates an archive generator.
func New() *Generator {
	return &Generator{}
}

// Generate builds {ModelName}.mar under ExportPath. The subprocess blocks
// until done; a reporter goroutine polls the growing file to drive the
// progress bar and is always stopped and joined before returning.
func (g *Generator) Generate(ctx context.Context, spec *Spec) error {
	inputs, inputSize, err := collectInputs(spec.ModelPath)
	if err != nil {
		return err
	}

	if _, err := os.Stat(spec.RequirementsFile); err != nil {
		return fmt.Errorf("requirements file %s does not exist: %w", spec.RequirementsFile, err)
	}

	estimate := int64(float64(inputSize) / marSizeFactor)
	if err := checkDiskSpace(spec.ExportPath, uint64(estimate)); err != nil {
		return err
	}

	marName := spec.ModelName + ".mar"
	marPath := filepath.Join(spec.ExportPath, marName)
	args := buildArgs(spec, inputs)

	logrus.Infof("generating model archive %s from %d files (%s), this can take a while",
		marName, len(inputs), humanize.Bytes(uint64(inputSize)))
	logrus.Debugf("running %s %s", spec.Bin, strings.Join(args, " "))

	pb := internalpb.NewProgressBar()
	pb.Start()
	pb.Add(internalpb.NormalizePrompt("Creating archive"), marName, estimate, nil)

	stop := make(chan struct{})
	done := make(chan struct{})
	go monitorArchiveSize(pb, marName, marPath, stop, done)

	cmd := exec.CommandContext(ctx, spec.Bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	runErr := cmd.Run()

	close(stop)
	<-done

	if runErr != nil {
		pb.Abort(marName, fmt.Errorf("archive generation failed"))
		pb.Stop()
		logrus.Errorf("failed to generate model archive %s: %v", marName, runErr)
		return fmt.Errorf("failed to generate model archive %s: %w", marName, runErr)
	}

	digest, size, err := fileDigest(marPath)
	if err != nil {
		pb.Abort(marName, fmt.Errorf("archive generation failed"))
		pb.Stop()
		logrus.Errorf("failed to hash model archive: %v", err)
		return fmt.Errorf("failed to hash model archive %s: %w", marPath, err)
	}

	// Reconcile the estimate-sized bar with what the archiver actually wrote.
	pb.SetTotal(marName, size)
	pb.Complete(marName, fmt.Sprintf("%s %s", internalpb.NormalizePrompt("Created archive"), marName))
	pb.Stop()

	logrus.Infof("generated %s, size %s, digest %s", marPath, humanize.Bytes(uint64(size)), digest)
	return nil
}

// monitorArchiveSize drives the archive progress bar by sampling the output
// file size until told to stop.
func monitorArchiveSize(pb *internalpb.ProgressBar, name, marPath string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if info, err := os.Stat(marPath); err == nil {
				pb.SetCurrent(name, info.Size())
			}
		}
	}
}

// buildArgs assembles the torch-model-archiver invocation.
func buildArgs(spec *Spec, extraFiles []string) []string {
	return []string{
		"--model-name", spec.ModelName,
		"--version", spec.Version,
		"--handler", spec.HandlerPath,
		"--extra-files", strings.Join(extraFiles, ","),
		"--requirements-file", spec.RequirementsFile,
		"--export-path", spec.ExportPath,
		"--force",
	}
}

// collectInputs lists every file under the model directory along with the
// summed size.
func collectInputs(modelPath string) ([]string, int64, error) {
	var files []string
	var total int64

	err := filepath.WalkDir(modelPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		files = append(files, path)
		total += info.Size()
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list model files under %s: %w", modelPath, err)
	}

	if len(files) == 0 {
		return nil, 0, fmt.Errorf("no model files found under %s", modelPath)
	}

	return files, total, nil
}

// fileDigest streams the file through sha256 and returns the typed digest
// and size.
func fileDigest(path string) (godigest.Digest, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, file)
	if err != nil {
		return "", 0, err
	}

	return godigest.NewDigest(godigest.SHA256, hash), size, nil
}

// checkDiskSpace verifies the export filesystem can hold the estimated
// archive before the subprocess starts writing it.
func checkDiskSpace(path string, required uint64) error {
	usage, err := disk.Usage(path)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem of %s: %w", path, err)
	}

	if usage.Free < required {
		return fmt.Errorf("not enough disk space under %s: need %s, have %s free",
			path, humanize.Bytes(required), humanize.Bytes(usage.Free))
	}

	return nil
}
