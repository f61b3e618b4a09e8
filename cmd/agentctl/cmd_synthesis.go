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
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/teradata-labs/agentctl/pkg/synthesis"
	"go.uber.org/zap"
)

var errSynthesisFailed = errors.New("synthesis failed")

var synthesisCmd = &cobra.Command{
	Use:   "synthesis",
	Short: "Follow the operator's code synthesis for an agent",
}

var synthesisWaitCmd = &cobra.Command{
	Use:   "wait <agent>",
	Short: "Wait until the agent's code has been synthesized",
	Long: `Poll the agent until its Synthesized condition resolves.

When the wait budget runs out the command still exits successfully and
reports a timeout, unless --strict is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runSynthesisWait,
}

func init() {
	rootCmd.AddCommand(synthesisCmd)
	synthesisCmd.AddCommand(synthesisWaitCmd)

	synthesisWaitCmd.Flags().Duration("interval", synthesis.DefaultInterval, "poll interval")
	synthesisWaitCmd.Flags().Duration("timeout", synthesis.DefaultTimeout, "wait budget")
	synthesisWaitCmd.Flags().Bool("strict", false, "treat timeouts and read errors as failures")

	_ = viper.BindPFlag("synthesis.interval", synthesisWaitCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("synthesis.timeout", synthesisWaitCmd.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("synthesis.strict", synthesisWaitCmd.Flags().Lookup("strict"))
}

func runSynthesisWait(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := synthesis.NewWatcher(synthesis.Config{
		Cluster:   a.cluster,
		Namespace: a.config.Cluster.Namespace,
		Interval:  a.config.Synthesis.Interval,
		Timeout:   a.config.Synthesis.Timeout,
		Strict:    a.config.Synthesis.Strict,
		Logger:    a.logger.Named("synthesis"),
		Tracer:    a.tracer,
	})
	if err != nil {
		return err
	}

	if !a.out.structured() {
		a.out.heading("Waiting for " + args[0] + " to be synthesized...")
	}
	res := w.Wait(cmd.Context(), args[0])
	if a.out.structured() {
		if err := a.out.encode(res); err != nil {
			return err
		}
	} else {
		switch {
		case res.Timeout && res.Success:
			a.out.warn("Synthesis still running after %s; check `agentctl synthesis wait %s` later", res.Duration.Round(time.Second), args[0])
		case res.Warning != "":
			a.out.warn("%s", res.Warning)
		case res.Success:
			a.out.ok("%s synthesized in %s", args[0], res.Duration.Round(time.Second))
		default:
			a.out.fail("Synthesis failed: %s", res.Message)
		}
	}
	if !res.Success {
		a.logger.Debug("Synthesis wait failed", zap.String("state", res.State.String()))
		if res.Err != nil {
			return res.Err
		}
		return errSynthesisFailed
	}
	return nil
}
