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
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/teradata-labs/agentctl/pkg/versions"
)

var versionsCmd = &cobra.Command{
	Use:     "versions",
	Aliases: []string{"version-history"},
	Short:   "Inspect and prune an agent's code versions",
}

var versionsListCmd = &cobra.Command{
	Use:   "list <agent>",
	Short: "List code versions, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersionsList,
}

var versionsShowCmd = &cobra.Command{
	Use:   "show <agent> [version]",
	Short: "Print the code of a version (default: active)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runVersionsShow,
}

var versionsDiffCmd = &cobra.Command{
	Use:   "diff <agent> <from> [to]",
	Short: "Show the changes between two versions",
	Long: heredoc.Doc(`
		Show a line diff between two versions of an agent's code. When to is
		omitted the active version is used. "original" names the code the
		agent had before its first optimization.
	`),
	Example: heredoc.Doc(`
		agentctl versions diff billing-bot original
		agentctl versions diff billing-bot v2 v4
	`),
	Args: cobra.RangeArgs(2, 3),
	RunE: runVersionsDiff,
}

var versionsPruneCmd = &cobra.Command{
	Use:   "prune <agent>",
	Short: "Delete versions beyond the newest --keep",
	Long: heredoc.Doc(`
		Delete old versions of an agent's code. The newest --keep versions
		and the active version are always kept.
	`),
	Args: cobra.ExactArgs(1),
	RunE: runVersionsPrune,
}

var (
	diffContext int
	pruneKeep   int
)

func init() {
	rootCmd.AddCommand(versionsCmd)
	versionsCmd.AddCommand(versionsListCmd, versionsShowCmd, versionsDiffCmd, versionsPruneCmd)

	versionsDiffCmd.Flags().IntVarP(&diffContext, "unified", "U", 3, "unchanged lines shown around each change")
	versionsPruneCmd.Flags().IntVar(&pruneKeep, "keep", 0, "versions to keep (default: versions.keep_last)")
}

func runVersionsList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.versions.ListVersions(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if a.out.structured() {
		return a.out.encode(list)
	}
	if len(list) == 0 {
		a.out.warn("%s has no versions yet; it runs its original code", args[0])
		return nil
	}

	rows := make([][]string, 0, len(list))
	for _, v := range list {
		active := ""
		if v.Active {
			active = "*"
		}
		task := v.Task
		if task == "" {
			task = "-"
		}
		rows = append(rows, []string{active, v.ID, v.SourceType, task, v.PreviousVersion, v.CreatedAt.Local().Format(time.DateTime), shortDigest(v.Digest)})
	}
	return a.out.table([]string{"", "VERSION", "SOURCE", "TASK", "PREVIOUS", "CREATED", "DIGEST"}, rows)
}

func runVersionsShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	id := ""
	if len(args) == 2 {
		id = args[1]
	}
	v, err := a.versions.GetVersion(cmd.Context(), args[0], id)
	if err != nil {
		return err
	}
	if a.out.structured() {
		return a.out.encode(struct {
			versions.Artifact `yaml:",inline"`
			Code              string `json:"code" yaml:"code"`
		}{*v, v.Code})
	}
	fmt.Fprint(cmd.OutOrStdout(), v.Code)
	return nil
}

func runVersionsDiff(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	to := ""
	if len(args) == 3 {
		to = args[2]
	}
	diff, err := a.versions.Diff(cmd.Context(), args[0], args[1], to)
	if err != nil {
		return err
	}
	if a.out.structured() {
		return a.out.encode(diff)
	}
	if diff.Insertions == 0 && diff.Deletions == 0 {
		a.out.ok("%s and %s are identical", diff.From, diff.To)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), a.out.colorDiff(diff.Unified(diffContext)))
	fmt.Fprintln(cmd.OutOrStdout(), a.out.dim(fmt.Sprintf("%d insertion(s), %d deletion(s)", diff.Insertions, diff.Deletions)))
	return nil
}

func runVersionsPrune(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	keep := pruneKeep
	if keep <= 0 {
		keep = a.config.Versions.KeepLast
	}
	res, err := a.versions.Prune(cmd.Context(), args[0], keep)
	if res != nil && a.out.structured() {
		failed := make(map[string]string, len(res.Failed))
		for id, ferr := range res.Failed {
			failed[id] = ferr.Error()
		}
		out := struct {
			Deleted []string          `json:"deleted" yaml:"deleted"`
			Kept    []string          `json:"kept" yaml:"kept"`
			Failed  map[string]string `json:"failed,omitempty" yaml:"failed,omitempty"`
		}{res.Deleted, res.Kept, failed}
		if encErr := a.out.encode(out); encErr != nil {
			return encErr
		}
	} else if res != nil {
		if len(res.Deleted) == 0 {
			a.out.ok("Nothing to prune (%d version(s) kept)", len(res.Kept))
		} else {
			a.out.ok("Pruned %d version(s): %v", len(res.Deleted), res.Deleted)
		}
		for id, ferr := range res.Failed {
			a.out.fail("%s: %v", id, ferr)
		}
	}
	if err != nil {
		return err
	}
	if len(res.Failed) > 0 {
		return fmt.Errorf("failed to prune %d version(s)", len(res.Failed))
	}
	return nil
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
