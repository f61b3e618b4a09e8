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
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/teradata-labs/agentctl/pkg/learning"
)

var learningCmd = &cobra.Command{
	Use:   "learning",
	Short: "Show or toggle an agent's learning",
}

var learningStatusCmd = &cobra.Command{
	Use:   "status <agent>",
	Short: "Show learning state and per-task progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runLearningStatus,
}

var learningEnableCmd = &cobra.Command{
	Use:   "enable <agent>",
	Short: "Enable learning for an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLearningToggle(cmd, args[0], true)
	},
}

var learningDisableCmd = &cobra.Command{
	Use:   "disable <agent>",
	Short: "Disable learning for an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLearningToggle(cmd, args[0], false)
	},
}

func init() {
	rootCmd.AddCommand(learningCmd)
	learningCmd.AddCommand(learningStatusCmd, learningEnableCmd, learningDisableCmd)
}

func newTracker(a *app) (*learning.Tracker, error) {
	return learning.NewTracker(learning.Config{
		Cluster:   a.cluster,
		Namespace: a.config.Cluster.Namespace,
		Logger:    a.logger.Named("learning"),
		Tracer:    a.tracer,
	})
}

func runLearningStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	tracker, err := newTracker(a)
	if err != nil {
		return err
	}

	st, err := tracker.Status(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if a.out.structured() {
		return a.out.encode(st)
	}

	if st.Enabled {
		a.out.ok("Learning is enabled for %s", st.Agent)
	} else {
		a.out.warn("Learning is disabled for %s", st.Agent)
	}
	for _, w := range st.Warnings {
		a.out.warn("%s", w)
	}
	if !st.HasData {
		fmt.Fprintln(cmd.OutOrStdout(), a.out.dim("No learning data yet."))
		return nil
	}

	if len(st.Tasks) > 0 {
		fmt.Fprintln(cmd.OutOrStdout())
		rows := make([][]string, 0, len(st.Tasks))
		for _, t := range st.Tasks {
			rows = append(rows, []string{t.Name, t.Mode, strconv.Itoa(t.Confidence) + "%", strconv.Itoa(t.Executions)})
		}
		if err := a.out.table([]string{"TASK", "MODE", "CONFIDENCE", "EXECUTIONS"}, rows); err != nil {
			return err
		}
	}
	if len(st.History) > 0 {
		fmt.Fprintln(cmd.OutOrStdout())
		a.out.heading("History")
		for _, e := range st.History {
			line := e.Timestamp.Local().Format(time.DateTime) + "  " + e.Action
			if e.Task != "" {
				line += " " + e.Task
			}
			fmt.Fprintln(cmd.OutOrStdout(), "  "+line)
		}
	}
	return nil
}

func runLearningToggle(cmd *cobra.Command, agent string, enable bool) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	tracker, err := newTracker(a)
	if err != nil {
		return err
	}

	var res *learning.ToggleResult
	if enable {
		res, err = tracker.Enable(cmd.Context(), agent)
	} else {
		res, err = tracker.Disable(cmd.Context(), agent)
	}
	if err != nil {
		return err
	}
	if a.out.structured() {
		return a.out.encode(res)
	}
	if res.Changed {
		a.out.ok("%s", res.Message)
	} else {
		a.out.warn("%s", res.Message)
	}
	return nil
}
