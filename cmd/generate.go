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

package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/modelpack/llmctl/pkg/catalog"
	"github.com/modelpack/llmctl/pkg/config"
	"github.com/modelpack/llmctl/pkg/hub"
	"github.com/modelpack/llmctl/pkg/mirror"
	"github.com/modelpack/llmctl/pkg/provision"
)

var generateConfig = config.NewGenerate()

// generateCmd represents the llmctl command for generate.
var generateCmd = &cobra.Command{
	Use:                "generate [flags]",
	Short:              "A command line tool for llmctl generate",
	Args:               cobra.NoArgs,
	DisableAutoGenTag:  true,
	SilenceUsage:       true,
	FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerate(cmd.Context())
	},
}

// init initializes generate command.
func init() {
	flags := generateCmd.Flags()
	flags.StringVar(&generateConfig.ModelName, "model-name", "", "name of the model, a catalog entry or a custom identifier")
	flags.StringVar(&generateConfig.RepoID, "repo-id", "", "Hugging Face repository of a custom model")
	flags.StringVar(&generateConfig.RepoVersion, "repo-version", "", "revision of the repository, a tag, branch or commit id")
	flags.StringVar(&generateConfig.ModelPath, "model-path", "", "local directory holding the files of a custom model")
	flags.StringVar(&generateConfig.Output, "output", "", "root of the shared storage area the archive tree is written under")
	flags.StringVar(&generateConfig.HandlerPath, "handler-path", "", "serving handler bound into the archive")
	flags.StringVar(&generateConfig.Token, "hf-token", "", "Hugging Face access token, falls back to HF_TOKEN and the token file")
	flags.BoolVar(&generateConfig.SkipDownload, "skip-download", false, "skip the download, the model files are already present locally")
	flags.StringVar(&generateConfig.ModelConfig, "model-config", "", "path to the model catalog file, empty uses the built-in catalog")
	flags.StringVar(&generateConfig.IgnorePolicy, "ignore-policy", generateConfig.IgnorePolicy, "weight format exclusion policy, preferred or legacy")
	flags.StringVar(&generateConfig.RequirementsFile, "requirements-file", "", "python requirements packaged into the archive")
	flags.StringVar(&generateConfig.ArchiverBin, "archiver-bin", generateConfig.ArchiverBin, "model archiver executable")
	flags.StringVar(&generateConfig.WeightsURI, "weights-uri", "", "stage custom model weights from an s3://bucket/prefix mirror")
	flags.StringVar(&generateConfig.WeightsEndpoint, "weights-endpoint", "", "endpoint of an S3-compatible weights mirror")
	flags.IntVar(&generateConfig.Concurrency, "concurrency", generateConfig.Concurrency, "number of concurrent file downloads")
	flags.BoolVar(&generateConfig.Debug, "debug", false, "enable debug logging")

	if err := viper.BindPFlags(flags); err != nil {
		panic(fmt.Errorf("bind generate flags to viper: %w", err))
	}
}

// runGenerate runs the generate llmctl.
func runGenerate(ctx context.Context) error {
	if err := generateConfig.Validate(); err != nil {
		return err
	}

	if generateConfig.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cat, err := catalog.Load(generateConfig.ModelConfig)
	if err != nil {
		return err
	}

	token := hub.ResolveToken(generateConfig.Token)
	client := hub.New(hub.WithToken(token))

	opts := []provision.Option{provision.WithToken(token)}
	if generateConfig.WeightsURI != "" {
		stager, err := mirror.New(ctx, generateConfig.WeightsEndpoint)
		if err != nil {
			return err
		}

		opts = append(opts, provision.WithStager(stager))
	}

	engine := provision.New(client, cat, opts...)
	if err := engine.Generate(ctx, generateConfig); err != nil {
		return err
	}

	fmt.Printf("Successfully generated model archive for: %s\n", generateConfig.ModelName)
	return nil
}
