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
	"errors"
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/teradata-labs/agentctl/pkg/rollback"
)

var errCancelled = errors.New("cancelled")

var rollbackCmd = &cobra.Command{
	Use:   "rollback <agent> [version]",
	Short: "Make an earlier code version active",
	Long: heredoc.Doc(`
		Restore an earlier version of an agent's code and restart the agent.

		No version is deleted: the version that was active stays in the
		history and can be restored again. Without a version argument the
		history is listed and one can be picked interactively.
	`),
	Example: heredoc.Doc(`
		agentctl rollback billing-bot v2
		agentctl rollback billing-bot original --yes
	`),
	Args: cobra.RangeArgs(1, 2),
	RunE: runRollback,
}

var rollbackYes bool

func init() {
	rootCmd.AddCommand(rollbackCmd)
	rollbackCmd.Flags().BoolVarP(&rollbackYes, "yes", "y", false, "do not ask for confirmation")
}

func runRollback(cmd *cobra.Command, args []string) error {
	agent := args[0]
	ctx := cmd.Context()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	mgr, err := rollback.NewManager(rollback.Config{
		Versions:  a.versions,
		Cluster:   a.cluster,
		Namespace: a.config.Cluster.Namespace,
		Logger:    a.logger.Named("rollback"),
		Tracer:    a.tracer,
	})
	if err != nil {
		return err
	}

	interactive := isInteractive(os.Stdin) && !a.out.structured()
	prompt := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout(), a.out)

	target := ""
	if len(args) == 2 {
		target = args[1]
	} else {
		if !interactive {
			return fmt.Errorf("a version is required when not running interactively (see `agentctl versions list %s`)", agent)
		}
		entries, err := mgr.List(ctx, agent)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("%s has no versions to roll back to", agent)
		}
		target, err = prompt.choose(fmt.Sprintf("Versions of %s", agent), rollback.Choices(entries))
		if errors.Is(err, errCancelled) {
			a.out.warn("Rollback cancelled")
			return nil
		}
		if err != nil {
			return err
		}
	}

	if interactive && !rollbackYes {
		ok, err := prompt.confirm(fmt.Sprintf("Roll %s back to %s and restart it?", agent, target), false)
		if err != nil {
			return err
		}
		if !ok {
			a.out.warn("Rollback cancelled")
			return nil
		}
	}

	res := mgr.Rollback(ctx, agent, target)
	if a.out.structured() {
		if err := a.out.encode(res); err != nil {
			return err
		}
	} else if res.Success {
		a.out.ok("%s (%d pod(s) restarted)", res.Message, res.PodsRestarted)
	} else {
		a.out.fail("%s", res.Message)
	}
	if !res.Success {
		return res.Error
	}
	return nil
}
