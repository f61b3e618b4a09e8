// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"github.com/spf13/cobra"
	"github.com/teradata-labs/agentctl/pkg/logstream"
)

var logsCmd = &cobra.Command{
	Use:   "logs <agent>",
	Short: "Stream an agent's pod logs",
	Long: `Stream the logs of every pod of an agent through kubectl.

kubectl must be on PATH and configured for the target cluster.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogs,
}

var (
	logsFollow bool
	logsTail   int
)

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "keep streaming new output")
	logsCmd.Flags().IntVar(&logsTail, "tail", -1, "lines of recent output to show (-1 for all)")
}

func runLogs(cmd *cobra.Command, args []string) error {
	c := logstream.KubectlLogs(config.Cluster.Namespace, args[0], logsFollow, logsTail)
	if config.Cluster.Kubeconfig != "" {
		c.Args = append(c.Args, "--kubeconfig", config.Cluster.Kubeconfig)
	}
	if config.Cluster.Context != "" {
		c.Args = append(c.Args, "--context", config.Cluster.Context)
	}
	return logstream.Stream(cmd.Context(), c, cmd.OutOrStdout(), cmd.ErrOrStderr())
}
