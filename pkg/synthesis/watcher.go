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
// Package synthesis waits for the cluster controller to finish synthesizing
// an agent's code.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teradata-labs/agentctl/pkg/cluster"
	"github.com/teradata-labs/agentctl/pkg/observability"
	"go.uber.org/zap"
)

// ConditionSynthesized is the condition the controller sets on a
// LanguageAgent once code synthesis finishes.
const ConditionSynthesized = "Synthesized"

const (
	DefaultInterval = 2 * time.Second
	DefaultTimeout  = 600 * time.Second
)

// State is the outcome of a watch.
type State int

const (
	StatePending State = iota
	StateSucceeded
	StateFailed
	StateTimeout
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON and YAML output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config configures a Watcher.
type Config struct {
	Cluster   cluster.Store
	Namespace string
	Interval  time.Duration
	Timeout   time.Duration

	// Strict turns the fail-open outcomes (budget exhausted, unexpected
	// store errors) into failures.
	Strict bool

	Logger *zap.Logger
	Tracer observability.Tracer

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Result reports how a watch ended. Success is true for soft outcomes too;
// check Timeout and Warning.
type Result struct {
	Agent    string            `json:"agent" yaml:"agent"`
	State    State             `json:"state" yaml:"state"`
	Success  bool              `json:"success" yaml:"success"`
	Timeout  bool              `json:"timeout" yaml:"timeout"`
	Duration time.Duration     `json:"duration" yaml:"duration"`
	Polls    int               `json:"polls" yaml:"polls"`
	Message  string            `json:"message,omitempty" yaml:"message,omitempty"`
	Warning  string            `json:"warning,omitempty" yaml:"warning,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Err      error             `json:"-" yaml:"-"`
}

// Watcher polls a LanguageAgent until its Synthesized condition resolves.
type Watcher struct {
	config Config
}

// NewWatcher creates a Watcher.
func NewWatcher(config Config) (*Watcher, error) {
	if config.Cluster == nil {
		return nil, fmt.Errorf("cluster store is required")
	}
	if config.Namespace == "" {
		config.Namespace = "default"
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Tracer == nil {
		config.Tracer = observability.NewNoOpTracer()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Sleep == nil {
		config.Sleep = sleepContext
	}
	return &Watcher{config: config}, nil
}

// Wait blocks until the agent's synthesis resolves, the budget runs out, or
// ctx is cancelled. A resource that does not exist yet is retried.
func (w *Watcher) Wait(ctx context.Context, agent string) *Result {
	ctx, span := w.config.Tracer.StartSpan(ctx, observability.SpanSynthesisWatch,
		observability.WithAttribute(observability.AttrAgent, agent))
	defer w.config.Tracer.EndSpan(span)

	result := w.watch(ctx, agent)
	span.SetAttribute("synthesis.state", result.State.String())
	span.SetAttribute("synthesis.polls", result.Polls)
	if result.Err != nil {
		span.RecordError(result.Err)
	}
	w.config.Tracer.RecordMetric("synthesis_watch_total", 1, map[string]string{"state": result.State.String()})
	return result
}

func (w *Watcher) watch(ctx context.Context, agent string) *Result {
	logger := w.config.Logger.With(zap.String("agent", agent))
	start := w.config.Now()
	result := &Result{Agent: agent, State: StatePending}

	for {
		if err := ctx.Err(); err != nil {
			return w.cancelled(result, start, err)
		}
		result.Polls++

		obj, err := w.config.Cluster.Get(ctx, cluster.KindAgent, w.config.Namespace, agent)
		switch {
		case err == nil:
			if cond := obj.Condition(ConditionSynthesized); cond != nil {
				switch cond.Status {
				case cluster.ConditionTrue:
					result.State = StateSucceeded
					result.Success = true
					result.Duration = w.config.Now().Sub(start)
					result.Message = cond.Message
					result.Metadata = obj.DeepCopy().Status.Synthesis
					logger.Info("Synthesis complete", zap.Duration("duration", result.Duration))
					return result
				case cluster.ConditionFalse:
					result.State = StateFailed
					result.Duration = w.config.Now().Sub(start)
					result.Message = cond.Message
					if result.Message == "" {
						result.Message = cond.Reason
					}
					result.Err = fmt.Errorf("synthesis failed: %s", result.Message)
					return result
				}
			}
		case cluster.IsNotFound(err):
			logger.Debug("Agent not visible yet", zap.Int("poll", result.Polls))
		default:
			if ctx.Err() != nil {
				return w.cancelled(result, start, ctx.Err())
			}
			result.Duration = w.config.Now().Sub(start)
			if w.config.Strict {
				result.State = StateFailed
				result.Err = fmt.Errorf("watching synthesis of %s: %w", agent, err)
				return result
			}
			logger.Warn("Error while watching synthesis", zap.Error(err))
			result.State = StatePending
			result.Success = true
			result.Warning = fmt.Sprintf("could not confirm synthesis status: %v", err)
			return result
		}

		elapsed := w.config.Now().Sub(start)
		if elapsed >= w.config.Timeout {
			result.State = StateTimeout
			result.Timeout = true
			result.Duration = elapsed
			result.Message = fmt.Sprintf("synthesis did not finish within %s", w.config.Timeout)
			if w.config.Strict {
				result.Err = errors.New(result.Message)
				return result
			}
			result.Success = true
			result.Warning = result.Message + "; it may still be in progress"
			logger.Warn("Synthesis watch timed out", zap.Duration("timeout", w.config.Timeout))
			return result
		}

		if err := w.config.Sleep(ctx, w.config.Interval); err != nil {
			return w.cancelled(result, start, err)
		}
	}
}

func (w *Watcher) cancelled(result *Result, start time.Time, err error) *Result {
	result.State = StateFailed
	result.Success = false
	result.Duration = w.config.Now().Sub(start)
	result.Err = err
	result.Message = "watch cancelled"
	return result
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
