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
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teradata-labs/agentctl/pkg/agentcode"
	"github.com/teradata-labs/agentctl/pkg/cluster"
	"github.com/teradata-labs/agentctl/pkg/observability"
	"github.com/teradata-labs/agentctl/pkg/safety"
	"github.com/teradata-labs/agentctl/pkg/versions"
	"go.uber.org/zap"
)

// DefaultMinConfidence is the score auto-accept requires.
const DefaultMinConfidence = 0.85

// VersionWriter is the part of versions.Store the pipeline writes through.
type VersionWriter interface {
	CreateVersion(ctx context.Context, agent string, change versions.Change) (*versions.VersionResult, error)
	Prune(ctx context.Context, agent string, keepLast int) (*versions.PruneResult, error)
}

// Config configures a Pipeline.
type Config struct {
	Versions  VersionWriter
	Cluster   cluster.Store
	Namespace string

	Analyzer  Analyzer
	Proposer  CodeProposer
	Validator Validator
	// Decider is consulted when a proposal is not auto-accepted. Without
	// one such proposals are skipped.
	Decider Decider

	// SynthesisConfigured widens candidate selection to every task with
	// enough executions.
	SynthesisConfigured bool

	MinConfidence float64
	KeepLast      int

	Logger *zap.Logger
	Tracer observability.Tracer
}

// Options control one optimization run.
type Options struct {
	Agent      string
	Since      time.Duration
	Tasks      []string
	AutoAccept bool
	DryRun     bool
}

// Status is the outcome of one task in a run.
type Status string

const (
	StatusApplied  Status = "applied"
	StatusRejected Status = "rejected"
	StatusSkipped  Status = "skipped"
	StatusDryRun   Status = "dry-run"
	StatusFailed   Status = "failed"
	StatusAborted  Status = "aborted"
)

// ApplyResult reports an Apply. Apply never returns an error; failures are
// described here.
type ApplyResult struct {
	Success         bool     `json:"success" yaml:"success"`
	Task            string   `json:"task" yaml:"task"`
	Version         string   `json:"version,omitempty" yaml:"version,omitempty"`
	PreviousVersion string   `json:"previousVersion,omitempty" yaml:"previousVersion,omitempty"`
	PodsRestarted   int      `json:"podsRestarted" yaml:"podsRestarted"`
	Pruned          []string `json:"pruned,omitempty" yaml:"pruned,omitempty"`
	Warnings        []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Message         string   `json:"message" yaml:"message"`
	Error           error    `json:"-" yaml:"-"`
}

// TaskResult is one task's outcome in a Report.
type TaskResult struct {
	Task       string             `json:"task" yaml:"task"`
	Status     Status             `json:"status" yaml:"status"`
	Reason     string             `json:"reason,omitempty" yaml:"reason,omitempty"`
	Proposal   *Proposal          `json:"proposal,omitempty" yaml:"proposal,omitempty"`
	Apply      *ApplyResult       `json:"apply,omitempty" yaml:"apply,omitempty"`
	Violations []safety.Violation `json:"violations,omitempty" yaml:"violations,omitempty"`
}

// Report summarizes a Run.
type Report struct {
	Agent         string        `json:"agent" yaml:"agent"`
	Opportunities []Opportunity `json:"opportunities" yaml:"opportunities"`
	Candidates    []string      `json:"candidates" yaml:"candidates"`
	Tasks         []TaskResult  `json:"tasks" yaml:"tasks"`
	Aborted       bool          `json:"aborted" yaml:"aborted"`
}

// Count returns how many tasks ended with status.
func (r *Report) Count(status Status) int {
	n := 0
	for _, t := range r.Tasks {
		if t.Status == status {
			n++
		}
	}
	return n
}

// Pipeline runs analyze, propose, validate, decide, and apply for an agent.
type Pipeline struct {
	config Config
}

// New creates a Pipeline.
func New(config Config) (*Pipeline, error) {
	if config.Versions == nil {
		return nil, fmt.Errorf("version store is required")
	}
	if config.Cluster == nil {
		return nil, fmt.Errorf("cluster store is required")
	}
	if config.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if config.Proposer == nil {
		return nil, fmt.Errorf("proposer is required")
	}
	if config.Validator == nil {
		config.Validator = safety.NewValidator()
	}
	if config.Namespace == "" {
		config.Namespace = "default"
	}
	if config.MinConfidence <= 0 {
		config.MinConfidence = DefaultMinConfidence
	}
	if config.KeepLast <= 0 {
		config.KeepLast = versions.DefaultKeepLast
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Tracer == nil {
		config.Tracer = observability.NewNoOpTracer()
	}
	return &Pipeline{config: config}, nil
}

// Analyze returns the analyzer's opportunities for agent.
func (p *Pipeline) Analyze(ctx context.Context, agent string, since time.Duration) ([]Opportunity, error) {
	if !p.config.Analyzer.Available(ctx) {
		return nil, fmt.Errorf("trace analyzer: %w", ErrUnavailable)
	}
	opps, err := p.config.Analyzer.Opportunities(ctx, agent, since)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze traces for %s: %w", agent, err)
	}
	return opps, nil
}

// SelectCandidates filters opportunities. With synthesis configured any task
// with at least SynthesisMinExecutions executions qualifies; otherwise only
// tasks the analyzer marked ready. A non-empty tasks list restricts the
// result to those names.
func SelectCandidates(opps []Opportunity, synthesisConfigured bool, tasks []string) []Opportunity {
	var allow map[string]bool
	if len(tasks) > 0 {
		allow = make(map[string]bool, len(tasks))
		for _, t := range tasks {
			allow[t] = true
		}
	}

	var out []Opportunity
	for _, o := range opps {
		if allow != nil && !allow[o.TaskName] {
			continue
		}
		if synthesisConfigured {
			if o.ExecutionCount >= SynthesisMinExecutions {
				out = append(out, o)
			}
			continue
		}
		if o.ReadyForLearning {
			out = append(out, o)
		}
	}
	return out
}

// Run optimizes every candidate task of opts.Agent. A failing task does not
// stop the batch; only an abort decision or cancellation does.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	ctx, span := p.config.Tracer.StartSpan(ctx, observability.SpanOptimizeRun,
		observability.WithAttribute(observability.AttrAgent, opts.Agent))
	defer p.config.Tracer.EndSpan(span)

	opps, err := p.Analyze(ctx, opts.Agent, opts.Since)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	report := &Report{Agent: opts.Agent, Opportunities: opps}
	candidates := SelectCandidates(opps, p.config.SynthesisConfigured, opts.Tasks)
	for _, c := range candidates {
		report.Candidates = append(report.Candidates, c.TaskName)
	}
	p.config.Logger.Info("Selected optimization candidates",
		zap.String("agent", opts.Agent),
		zap.Int("opportunities", len(opps)),
		zap.Strings("candidates", report.Candidates))

	for i, opp := range candidates {
		if err := ctx.Err(); err != nil {
			report.Aborted = true
			p.abortRemaining(report, candidates[i:], "cancelled")
			return report, err
		}
		result := p.runTask(ctx, opts, opp)
		report.Tasks = append(report.Tasks, result)
		p.config.Tracer.RecordMetric("optimize_tasks_total", 1, map[string]string{"status": string(result.Status)})
		if result.Status == StatusAborted {
			report.Aborted = true
			p.abortRemaining(report, candidates[i+1:], "batch aborted")
			break
		}
	}

	span.SetAttribute("optimize.applied", report.Count(StatusApplied))
	return report, nil
}

func (p *Pipeline) abortRemaining(report *Report, rest []Opportunity, reason string) {
	for _, o := range rest {
		report.Tasks = append(report.Tasks, TaskResult{Task: o.TaskName, Status: StatusAborted, Reason: reason})
	}
}

func (p *Pipeline) runTask(ctx context.Context, opts Options, opp Opportunity) TaskResult {
	logger := p.config.Logger.With(zap.String("agent", opts.Agent), zap.String("task", opp.TaskName))
	result := TaskResult{Task: opp.TaskName}

	proposal, err := p.config.Proposer.Propose(ctx, opts.Agent, opp.TaskName)
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientData), errors.Is(err, agentcode.ErrTaskNotFound):
			result.Status = StatusSkipped
			logger.Warn("Skipping task", zap.Error(err))
		default:
			result.Status = StatusFailed
			logger.Error("Failed to get proposal", zap.Error(err))
		}
		result.Reason = err.Error()
		return result
	}
	if proposal.ConsistencyScore == 0 {
		proposal.ConsistencyScore = opp.ConsistencyScore
	}
	result.Proposal = proposal

	if violations := p.config.Validator.Validate(proposal.ProposedCode); len(violations) > 0 {
		result.Status = StatusSkipped
		result.Violations = violations
		result.Reason = fmt.Sprintf("failed safety validation: %s", violations[0])
		logger.Warn("Proposal failed safety validation", zap.Int("violations", len(violations)))
		return result
	}

	autoAccept := opts.AutoAccept && proposal.ConsistencyScore >= p.config.MinConfidence
	if opts.DryRun {
		result.Status = StatusDryRun
		if autoAccept {
			result.Reason = "would be applied automatically"
		} else {
			result.Reason = "would require confirmation"
		}
		return result
	}

	if !autoAccept {
		if p.config.Decider == nil {
			result.Status = StatusSkipped
			result.Reason = fmt.Sprintf("score %.2f below %.2f and no confirmation available", proposal.ConsistencyScore, p.config.MinConfidence)
			return result
		}
		decision, err := p.config.Decider.Decide(ctx, opts.Agent, proposal)
		if err != nil {
			result.Status = StatusFailed
			result.Reason = fmt.Sprintf("confirmation failed: %v", err)
			return result
		}
		switch decision {
		case DecisionAbort:
			result.Status = StatusAborted
			result.Reason = "aborted by user"
			return result
		case DecisionReject:
			result.Status = StatusRejected
			result.Reason = "rejected by user"
			return result
		}
	}

	apply := p.Apply(ctx, opts.Agent, proposal)
	result.Apply = apply
	result.Reason = apply.Message
	if apply.Success {
		result.Status = StatusApplied
	} else {
		result.Status = StatusFailed
	}
	return result
}

// Apply stores proposal as a new version, restarts the agent, and prunes old
// versions. It never returns an error.
func (p *Pipeline) Apply(ctx context.Context, agent string, proposal *Proposal) (result *ApplyResult) {
	ctx, span := p.config.Tracer.StartSpan(ctx, observability.SpanOptimizeApply,
		observability.WithAttribute(observability.AttrAgent, agent),
		observability.WithAttribute(observability.AttrTask, proposal.TaskName))
	defer p.config.Tracer.EndSpan(span)

	result = &ApplyResult{Task: proposal.TaskName}
	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Error = fmt.Errorf("panic during apply: %v", r)
			result.Message = result.Error.Error()
		}
		if result.Error != nil {
			span.RecordError(result.Error)
		}
	}()

	vr, err := p.config.Versions.CreateVersion(ctx, agent, versions.Change{
		TaskName:   proposal.TaskName,
		Definition: proposal.Definition,
		Body:       proposal.ProposedCode,
		SourceType: versions.SourceOptimized,
	})
	if err != nil {
		result.Error = err
		result.Message = fmt.Sprintf("failed to create version: %v", err)
		return result
	}
	result.Version = vr.Version
	result.PreviousVersion = vr.PreviousVersion

	n, err := cluster.RestartWorkload(ctx, p.config.Cluster, p.config.Namespace, agent)
	if err != nil {
		result.Error = err
		result.Message = fmt.Sprintf("version %s is active but restarting %s failed: %v", vr.Version, agent, err)
		return result
	}
	result.PodsRestarted = n

	pruned, err := p.config.Versions.Prune(ctx, agent, p.config.KeepLast)
	if pruned != nil {
		result.Pruned = pruned.Deleted
	}
	if err != nil {
		// The new version is live; pruning never fails the apply.
		result.Warnings = append(result.Warnings, fmt.Sprintf("pruning old versions failed: %v", err))
		p.config.Logger.Warn("Pruning after apply failed",
			zap.String("agent", agent),
			zap.String("version", vr.Version),
			zap.Error(err))
	}

	result.Success = true
	result.Message = fmt.Sprintf("%s optimized as %s", proposal.TaskName, vr.Version)
	p.config.Logger.Info("Applied optimization",
		zap.String("agent", agent),
		zap.String("task", proposal.TaskName),
		zap.String("version", vr.Version),
		zap.Int("pods_restarted", n))
	return result
}
