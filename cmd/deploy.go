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
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/modelpack/llmctl/pkg/catalog"
	"github.com/modelpack/llmctl/pkg/config"
	"github.com/modelpack/llmctl/pkg/deploy"
)

var deployConfig = config.NewDeploy()

// deployCmd represents the llmctl command for deploy.
var deployCmd = &cobra.Command{
	Use:                "deploy [flags]",
	Short:              "A command line tool for llmctl deploy",
	Args:               cobra.NoArgs,
	DisableAutoGenTag:  true,
	SilenceUsage:       true,
	FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeploy(cmd.Context())
	},
}

// init initializes deploy command.
func init() {
	flags := deployCmd.Flags()
	flags.StringVar(&deployConfig.ModelName, "model-name", "", "name of the model to deploy")
	flags.StringVar(&deployConfig.DeployName, "deploy-name", "", "name of the deployment")
	flags.StringVar(&deployConfig.Namespace, "namespace", deployConfig.Namespace, "namespace the rollout lands in")
	flags.StringVar(&deployConfig.NFS, "nfs", "", "NFS locator of the model store in <address>:<share_path> form")
	flags.IntVar(&deployConfig.GPUs, "gpus", 0, "number of gpus for the predictor")
	flags.IntVar(&deployConfig.CPUs, "cpus", 1, "number of cpus for the predictor")
	flags.StringVar(&deployConfig.Memory, "memory", "", "container memory with a binary unit suffix, e.g. 16Gi")
	flags.StringVar(&deployConfig.MountPath, "mount-path", "", "local mount of the NFS share holding the model trees")
	flags.StringVar(&deployConfig.RepoVersion, "repo-version", "", "version of the model tree, defaults to the catalog pinned version")
	flags.IntVar(&deployConfig.ModelTimeout, "model-timeout", 1200, "health check budget in seconds")
	flags.StringVar(&deployConfig.DataDir, "data", "", "directory of validation inference inputs")
	flags.StringVar(&deployConfig.IngressHost, "ingress-host", os.Getenv("INGRESS_HOST"), "ingress host of the cluster")
	flags.StringVar(&deployConfig.IngressPort, "ingress-port", os.Getenv("INGRESS_PORT"), "ingress port of the cluster")
	flags.StringVar(&deployConfig.SampleInput, "sample-input", "", "override the bundled health probe payload")
	flags.StringVar(&deployConfig.ModelConfig, "model-config", "", "path to the model catalog file, empty uses the built-in catalog")
	flags.BoolVar(&deployConfig.Debug, "debug", false, "enable debug logging")

	if err := viper.BindPFlags(flags); err != nil {
		panic(fmt.Errorf("bind deploy flags to viper: %w", err))
	}
}

// runDeploy runs the deploy llmctl.
func runDeploy(ctx context.Context) error {
	if err := deployConfig.Validate(); err != nil {
		return err
	}

	if deployConfig.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cat, err := catalog.Load(deployConfig.ModelConfig)
	if err != nil {
		return err
	}

	kube, dyn, err := deploy.NewClients()
	if err != nil {
		return err
	}

	d := deploy.New(kube, dyn, cat)
	if err := d.Deploy(ctx, deployConfig); err != nil {
		return err
	}

	fmt.Printf("Successfully deployed model: %s\n", deployConfig.ModelName)
	return nil
}
