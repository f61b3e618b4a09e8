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
	"os"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/teradata-labs/agentctl/pkg/optimizer"
	"github.com/teradata-labs/agentctl/pkg/safety"
	"github.com/teradata-labs/agentctl/pkg/traces"
	"go.uber.org/zap"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize <agent>",
	Short: "Replace repetitive agent tasks with generated code",
	Long: heredoc.Doc(`
		Analyze an agent's execution traces, propose code for tasks that are
		solved the same way every time, and apply accepted proposals as new
		code versions.

		Each accepted proposal becomes the next version, the agent's pods are
		restarted, and versions beyond versions.keep_last are pruned.
	`),
	Example: heredoc.Doc(`
		# Review proposals interactively
		agentctl optimize billing-bot

		# See what would change without writing anything
		agentctl optimize billing-bot --dry-run

		# Apply high-confidence proposals for one task without prompting
		agentctl optimize billing-bot --task summarize --auto-accept --min-confidence 0.9
	`),
	Args: cobra.ExactArgs(1),
	RunE: runOptimize,
}

var (
	optimizeSince        time.Duration
	optimizeTasks        []string
	optimizeAutoAccept   bool
	optimizeDryRun       bool
	optimizeUseSynthesis bool
)

func init() {
	rootCmd.AddCommand(optimizeCmd)

	optimizeCmd.Flags().DurationVar(&optimizeSince, "since", 0, "trace window to analyze (default: optimize.since)")
	optimizeCmd.Flags().StringSliceVar(&optimizeTasks, "task", nil, "only optimize these tasks (repeatable)")
	optimizeCmd.Flags().BoolVar(&optimizeAutoAccept, "auto-accept", false, "apply proposals at or above --min-confidence without prompting")
	optimizeCmd.Flags().BoolVar(&optimizeDryRun, "dry-run", false, "report proposals without applying them")
	optimizeCmd.Flags().BoolVar(&optimizeUseSynthesis, "use-synthesis", false, "propose code with the configured language model only")
	optimizeCmd.Flags().Float64("min-confidence", 0.85, "consistency score required for --auto-accept")

	_ = viper.BindPFlag("optimize.min_confidence", optimizeCmd.Flags().Lookup("min-confidence"))
}

func runOptimize(cmd *cobra.Command, args []string) error {
	agent := args[0]
	ctx := cmd.Context()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	tracesClient, err := traces.NewClient(traces.Config{
		Endpoint:   a.config.Traces.Endpoint,
		APIKey:     a.config.Traces.APIKey,
		Timeout:    time.Duration(a.config.Traces.TimeoutSeconds) * time.Second,
		MaxRetries: a.config.Traces.MaxRetries,
		Logger:     a.logger.Named("traces"),
	})
	if err != nil {
		return err
	}

	var synth optimizer.CodeProposer
	if a.config.SynthesisEnabled() {
		model := a.config.LLM.AnthropicModel
		if a.config.LLM.Provider == optimizer.ProviderBedrock {
			model = a.config.LLM.BedrockModelID
		}
		s, err := optimizer.NewLLMSynthesizer(ctx, optimizer.SynthesizerConfig{
			Provider:       a.config.LLM.Provider,
			APIKey:         a.config.LLM.AnthropicAPIKey,
			Model:          model,
			BedrockRegion:  a.config.LLM.BedrockRegion,
			BedrockProfile: a.config.LLM.BedrockProfile,
			MaxTokens:      a.config.LLM.MaxTokens,
			Temperature:    a.config.LLM.Temperature,
			Code:           a.versions,
			Logger:         a.logger.Named("synthesis"),
		})
		if err != nil {
			return err
		}
		synth = s
	}

	proposer, err := optimizer.NewProposer(tracesClient, synth, optimizeUseSynthesis || a.config.Optimize.UseSynthesis)
	if err != nil {
		return err
	}

	var decider optimizer.Decider
	interactive := isInteractive(os.Stdin) && !a.out.structured()
	if interactive {
		decider = newPrompter(cmd.InOrStdin(), cmd.OutOrStdout(), a.out)
	}

	pipeline, err := optimizer.New(optimizer.Config{
		Versions:            a.versions,
		Cluster:             a.cluster,
		Namespace:           a.config.Cluster.Namespace,
		Analyzer:            tracesClient,
		Proposer:            proposer,
		Validator:           safety.NewValidator(),
		Decider:             decider,
		SynthesisConfigured: synth != nil,
		MinConfidence:       a.config.Optimize.MinConfidence,
		KeepLast:            a.config.Versions.KeepLast,
		Logger:              a.logger.Named("optimizer"),
		Tracer:              a.tracer,
	})
	if err != nil {
		return err
	}

	since := optimizeSince
	if since == 0 {
		since = a.config.Optimize.Since
	}
	report, err := pipeline.Run(ctx, optimizer.Options{
		Agent:      agent,
		Since:      since,
		Tasks:      optimizeTasks,
		AutoAccept: optimizeAutoAccept,
		DryRun:     optimizeDryRun,
	})
	if report == nil {
		return err
	}
	if perr := printOptimizeReport(a.out, report); perr != nil {
		a.logger.Warn("Failed to print report", zap.Error(perr))
	}
	if err != nil {
		return err
	}
	if n := report.Count(optimizer.StatusFailed); n > 0 {
		return fmt.Errorf("%d task(s) failed", n)
	}
	return nil
}

func printOptimizeReport(p *printer, r *optimizer.Report) error {
	if p.structured() {
		return p.encode(r)
	}
	if len(r.Opportunities) == 0 {
		p.warn("No optimization opportunities for %s yet", r.Agent)
		return nil
	}
	if len(r.Candidates) == 0 {
		p.warn("%d task(s) observed for %s, none ready for optimization", len(r.Opportunities), r.Agent)
		return nil
	}

	rows := make([][]string, 0, len(r.Tasks))
	for _, t := range r.Tasks {
		score := "-"
		if t.Proposal != nil {
			score = fmt.Sprintf("%.2f", t.Proposal.ConsistencyScore)
		}
		version := "-"
		if t.Apply != nil && t.Apply.Version != "" {
			version = t.Apply.Version
		}
		rows = append(rows, []string{t.Task, string(t.Status), score, version, t.Reason})
	}
	if err := p.table([]string{"TASK", "STATUS", "SCORE", "VERSION", "DETAIL"}, rows); err != nil {
		return err
	}
	for _, t := range r.Tasks {
		if t.Apply == nil {
			continue
		}
		for _, w := range t.Apply.Warnings {
			p.warn("%s: %s", t.Task, w)
		}
	}

	var summary []string
	for _, s := range []optimizer.Status{optimizer.StatusApplied, optimizer.StatusDryRun, optimizer.StatusRejected, optimizer.StatusSkipped, optimizer.StatusFailed, optimizer.StatusAborted} {
		if n := r.Count(s); n > 0 {
			summary = append(summary, fmt.Sprintf("%d %s", n, s))
		}
	}
	line := strings.Join(summary, ", ")
	switch {
	case r.Count(optimizer.StatusFailed) > 0:
		p.fail("%s", line)
	case r.Aborted:
		p.warn("Aborted: %s", line)
	default:
		p.ok("%s", line)
	}
	return nil
}
