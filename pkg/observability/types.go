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
// Package observability provides lightweight tracing and metrics for
// agentctl operations.
//
// Every lifecycle operation (version create, prune, rollback, synthesis
// watch, optimization apply) opens a span and records counters. Metrics are
// exported through Prometheus when a pushgateway is configured, otherwise the
// no-op tracer is used.
//
// Example usage:
//
//	ctx, span := tracer.StartSpan(ctx, observability.SpanRollback)
//	defer tracer.EndSpan(span)
//	span.SetAttribute(observability.AttrVersion, "v2")
package observability

import (
	"time"
)

// StatusCode represents the final status of a span.
type StatusCode int

const (
	// StatusUnset indicates status was not explicitly set.
	StatusUnset StatusCode = iota
	// StatusOK indicates successful completion.
	StatusOK
	// StatusError indicates an error occurred.
	StatusError
)

func (s StatusCode) String() string {
	switch s {
	case StatusUnset:
		return "unset"
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Status represents the final status of a span with optional message.
type Status struct {
	Code    StatusCode
	Message string
}

// Event represents a point-in-time occurrence within a span.
type Event struct {
	Timestamp  time.Time
	Name       string
	Attributes map[string]interface{}
}

// Span represents a unit of work with timing and metadata.
type Span struct {
	TraceID  string
	SpanID   string
	ParentID string

	Name       string
	Attributes map[string]interface{}

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration // set by EndSpan

	Events []Event
	Status Status
}

// SetAttribute sets a key-value attribute on the span.
func (s *Span) SetAttribute(key string, value interface{}) {
	if s.Attributes == nil {
		s.Attributes = make(map[string]interface{})
	}
	s.Attributes[key] = value
}

// AddEvent adds a timestamped event to the span.
func (s *Span) AddEvent(name string, attrs map[string]interface{}) {
	s.Events = append(s.Events, Event{
		Timestamp:  time.Now(),
		Name:       name,
		Attributes: attrs,
	})
}

// RecordError records an error on the span and marks it failed.
func (s *Span) RecordError(err error) {
	if err == nil {
		return
	}
	s.Status = Status{
		Code:    StatusError,
		Message: err.Error(),
	}
	s.SetAttribute(AttrErrorMessage, err.Error())
}

// SpanOption is a functional option for configuring spans.
type SpanOption func(*Span)

// WithAttribute returns a SpanOption that sets an attribute.
func WithAttribute(key string, value interface{}) SpanOption {
	return func(s *Span) {
		s.SetAttribute(key, value)
	}
}

// Standard span names.
const (
	SpanVersionCreate  = "versions.create"
	SpanVersionRestore = "versions.restore"
	SpanVersionPrune   = "versions.prune"
	SpanOptimizeRun    = "optimizer.run"
	SpanOptimizeApply  = "optimizer.apply"
	SpanRollback       = "rollback.execute"
	SpanSynthesisWatch = "synthesis.watch"
	SpanLearningToggle = "learning.toggle"
)

// Standard attribute keys.
const (
	AttrAgent        = "agent"
	AttrNamespace    = "namespace"
	AttrTask         = "task"
	AttrVersion      = "version"
	AttrErrorMessage = "error.message"
)
