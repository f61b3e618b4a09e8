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
// Package learning reads and toggles an agent's learning state.
//
// Learning is on unless the LanguageAgent carries the learning-disabled
// annotation. Per-task confidence and history are written to the
// learning-status annotation by the operator; this package only renders
// them.
package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teradata-labs/agentctl/pkg/cluster"
	"github.com/teradata-labs/agentctl/pkg/observability"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// Task modes reported by the operator.
const (
	ModeNeural   = "neural"
	ModeSymbolic = "symbolic"
	ModeHybrid   = "hybrid"
)

// TaskStatus is one task's learning progress.
type TaskStatus struct {
	Name       string `json:"name" yaml:"name"`
	Confidence int    `json:"confidence" yaml:"confidence"`
	Executions int    `json:"executions" yaml:"executions"`
	Mode       string `json:"status" yaml:"status"`
}

// Event is one entry of the learning history.
type Event struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Action    string    `json:"action" yaml:"action"`
	Task      string    `json:"task,omitempty" yaml:"task,omitempty"`
}

// Status is what `agentctl learning status` shows.
type Status struct {
	Agent    string       `json:"agent" yaml:"agent"`
	Enabled  bool         `json:"enabled" yaml:"enabled"`
	HasData  bool         `json:"hasData" yaml:"hasData"`
	Tasks    []TaskStatus `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	History  []Event      `json:"history,omitempty" yaml:"history,omitempty"`
	Warnings []string     `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// ToggleResult reports an Enable or Disable.
type ToggleResult struct {
	Agent   string `json:"agent" yaml:"agent"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Changed bool   `json:"changed" yaml:"changed"`
	Message string `json:"message" yaml:"message"`
}

const statusSchema = `{
  "type": "object",
  "properties": {
    "tasks": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["confidence"],
        "properties": {
          "confidence": {"type": "number", "minimum": 0, "maximum": 100},
          "executions": {"type": "integer", "minimum": 0},
          "status": {"enum": ["neural", "symbolic", "hybrid"]}
        }
      }
    },
    "history": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["timestamp", "action"],
        "properties": {
          "timestamp": {"type": "string", "format": "date-time"},
          "action": {"type": "string"},
          "task": {"type": "string"}
        }
      }
    }
  }
}`

type statusDoc struct {
	Tasks map[string]struct {
		Confidence float64 `json:"confidence"`
		Executions int     `json:"executions"`
		Status     string  `json:"status"`
	} `json:"tasks"`
	History []Event `json:"history"`
}

// Config configures a Tracker.
type Config struct {
	Cluster   cluster.Store
	Namespace string
	Logger    *zap.Logger
	Tracer    observability.Tracer
}

// Tracker reads and toggles learning state.
type Tracker struct {
	cluster   cluster.Store
	namespace string
	schema    *gojsonschema.Schema
	logger    *zap.Logger
	tracer    observability.Tracer
}

// NewTracker creates a Tracker.
func NewTracker(config Config) (*Tracker, error) {
	if config.Cluster == nil {
		return nil, fmt.Errorf("cluster store is required")
	}
	if config.Namespace == "" {
		config.Namespace = "default"
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Tracer == nil {
		config.Tracer = observability.NewNoOpTracer()
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(statusSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile learning status schema: %w", err)
	}
	return &Tracker{
		cluster:   config.Cluster,
		namespace: config.Namespace,
		schema:    schema,
		logger:    config.Logger,
		tracer:    config.Tracer,
	}, nil
}

// Status returns the agent's learning state. Missing or malformed progress
// data is not an error.
func (t *Tracker) Status(ctx context.Context, agent string) (*Status, error) {
	obj, err := t.cluster.Get(ctx, cluster.KindAgent, t.namespace, agent)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent %s: %w", agent, err)
	}

	status := &Status{Agent: agent, Enabled: enabled(obj)}
	raw, ok := obj.Annotation(cluster.AnnotationLearningStatus)
	if !ok || strings.TrimSpace(raw) == "" {
		return status, nil
	}

	result, err := t.schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		status.Warnings = append(status.Warnings, fmt.Sprintf("learning status is not valid JSON: %v", err))
		return status, nil
	}
	if !result.Valid() {
		for _, e := range result.Errors() {
			status.Warnings = append(status.Warnings, "learning status: "+e.String())
		}
		return status, nil
	}

	var doc statusDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		status.Warnings = append(status.Warnings, fmt.Sprintf("failed to decode learning status: %v", err))
		return status, nil
	}
	for name, ts := range doc.Tasks {
		status.Tasks = append(status.Tasks, TaskStatus{
			Name:       name,
			Confidence: int(ts.Confidence + 0.5),
			Executions: ts.Executions,
			Mode:       ts.Status,
		})
	}
	sort.Slice(status.Tasks, func(i, j int) bool { return status.Tasks[i].Name < status.Tasks[j].Name })
	status.History = doc.History
	sort.SliceStable(status.History, func(i, j int) bool { return status.History[i].Timestamp.Before(status.History[j].Timestamp) })
	status.HasData = len(status.Tasks) > 0 || len(status.History) > 0
	return status, nil
}

// Enable turns learning on.
func (t *Tracker) Enable(ctx context.Context, agent string) (*ToggleResult, error) {
	return t.set(ctx, agent, true)
}

// Disable turns learning off.
func (t *Tracker) Disable(ctx context.Context, agent string) (*ToggleResult, error) {
	return t.set(ctx, agent, false)
}

// set writes only when the state changes. The write carries the
// ResourceVersion read here; a concurrent change is reported as a conflict.
func (t *Tracker) set(ctx context.Context, agent string, enable bool) (*ToggleResult, error) {
	ctx, span := t.tracer.StartSpan(ctx, observability.SpanLearningToggle,
		observability.WithAttribute(observability.AttrAgent, agent),
		observability.WithAttribute("learning.enable", enable))
	defer t.tracer.EndSpan(span)

	obj, err := t.cluster.Get(ctx, cluster.KindAgent, t.namespace, agent)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read agent %s: %w", agent, err)
	}

	state := "disabled"
	if enable {
		state = "enabled"
	}
	result := &ToggleResult{Agent: agent, Enabled: enable}
	if enabled(obj) == enable {
		result.Message = fmt.Sprintf("learning already %s for %s", state, agent)
		return result, nil
	}

	updated := obj.DeepCopy()
	if enable {
		delete(updated.Annotations, cluster.AnnotationLearningDisabled)
	} else {
		updated.SetAnnotation(cluster.AnnotationLearningDisabled, "true")
	}
	if _, err := t.cluster.Update(ctx, updated); err != nil {
		span.RecordError(err)
		if cluster.IsConflict(err) {
			return nil, fmt.Errorf("agent %s changed while updating learning state, re-run the command: %w", agent, err)
		}
		return nil, fmt.Errorf("failed to update agent %s: %w", agent, err)
	}

	t.logger.Info("Changed learning state", zap.String("agent", agent), zap.Bool("enabled", enable))
	result.Changed = true
	result.Message = fmt.Sprintf("learning %s for %s", state, agent)
	return result, nil
}

// enabled is true unless the disable flag is present, whatever its value.
func enabled(obj *cluster.Resource) bool {
	_, ok := obj.Annotation(cluster.AnnotationLearningDisabled)
	return !ok
}
