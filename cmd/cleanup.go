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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/modelpack/llmctl/pkg/config"
	"github.com/modelpack/llmctl/pkg/deploy"
)

var cleanupConfig = config.NewCleanup()

// cleanupCmd represents the llmctl command for cleanup.
var cleanupCmd = &cobra.Command{
	Use:                "cleanup [flags]",
	Short:              "A command line tool for llmctl cleanup",
	Args:               cobra.NoArgs,
	DisableAutoGenTag:  true,
	SilenceUsage:       true,
	FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCleanup(cmd.Context())
	},
}

// init initializes cleanup command.
func init() {
	flags := cleanupCmd.Flags()
	flags.StringVar(&cleanupConfig.DeployName, "deploy-name", "", "name of the deployment to clean up")
	flags.StringVar(&cleanupConfig.Namespace, "namespace", cleanupConfig.Namespace, "namespace of the deployment")

	if err := viper.BindPFlags(flags); err != nil {
		panic(fmt.Errorf("bind cleanup flags to viper: %w", err))
	}
}

// runCleanup runs the cleanup llmctl.
func runCleanup(ctx context.Context) error {
	if err := cleanupConfig.Validate(); err != nil {
		return err
	}

	kube, dyn, err := deploy.NewClients()
	if err != nil {
		return err
	}

	d := deploy.New(kube, dyn, nil)
	if err := d.Cleanup(ctx, cleanupConfig); err != nil {
		return err
	}

	fmt.Printf("Successfully cleaned up deployment: %s\n", cleanupConfig.DeployName)
	return nil
}
