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
// Package optimizer turns execution traces into task rewrites. It asks an
// analyzer which tasks are worth optimizing, asks a proposer for new code,
// validates and confirms each proposal, and applies accepted ones as new
// code versions.
package optimizer

import (
	"context"
	"errors"
	"time"

	"github.com/teradata-labs/agentctl/pkg/agentcode"
	"github.com/teradata-labs/agentctl/pkg/safety"
)

var (
	// ErrInsufficientData means a proposer has too few traces for a task.
	// The task is skipped with a warning.
	ErrInsufficientData = errors.New("insufficient data to propose code")
	// ErrUnavailable means a proposer or analyzer cannot be reached.
	ErrUnavailable = errors.New("service unavailable")
)

// SynthesisMinExecutions is the execution count that makes a task a
// candidate when synthesis is configured.
const SynthesisMinExecutions = 10

// Proposal sources.
const (
	SourcePattern   = "pattern"
	SourceSynthesis = "synthesis"
)

// Opportunity is a task the analyzer considers for optimization.
type Opportunity struct {
	TaskName         string  `json:"task_name" yaml:"task_name"`
	ExecutionCount   int     `json:"execution_count" yaml:"execution_count"`
	ReadyForLearning bool    `json:"ready_for_learning" yaml:"ready_for_learning"`
	ConsistencyScore float64 `json:"consistency_score" yaml:"consistency_score"`
}

// Proposal is replacement code for one task.
type Proposal struct {
	TaskName         string                   `json:"task_name" yaml:"task_name"`
	CurrentCode      string                   `json:"current_code" yaml:"current_code"`
	ProposedCode     string                   `json:"proposed_code" yaml:"proposed_code"`
	Definition       agentcode.TaskDefinition `json:"task_definition" yaml:"task_definition"`
	ConsistencyScore float64                  `json:"consistency_score" yaml:"consistency_score"`
	Source           string                   `json:"source" yaml:"source"`
}

// Analyzer finds optimization opportunities in execution traces.
type Analyzer interface {
	Available(ctx context.Context) bool
	Opportunities(ctx context.Context, agent string, since time.Duration) ([]Opportunity, error)
}

// CodeProposer produces replacement code for a task.
type CodeProposer interface {
	Propose(ctx context.Context, agent, task string) (*Proposal, error)
}

// Validator checks proposed code for unsafe constructs.
type Validator interface {
	Validate(code string) []safety.Violation
}

// Decision is the answer to a proposal review.
type Decision int

const (
	DecisionReject Decision = iota
	DecisionAccept
	// DecisionAbort rejects this proposal and every remaining one.
	DecisionAbort
)

func (d Decision) String() string {
	switch d {
	case DecisionAccept:
		return "accept"
	case DecisionAbort:
		return "abort"
	default:
		return "reject"
	}
}

// Decider asks a human about a proposal.
type Decider interface {
	Decide(ctx context.Context, agent string, p *Proposal) (Decision, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, agent string, p *Proposal) (Decision, error)

// Decide implements Decider.
func (f DeciderFunc) Decide(ctx context.Context, agent string, p *Proposal) (Decision, error) {
	return f(ctx, agent, p)
}
