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
// Package rollback restores an agent to an earlier code version.
package rollback

import (
	"context"
	"fmt"
	"time"

	"github.com/teradata-labs/agentctl/pkg/cluster"
	"github.com/teradata-labs/agentctl/pkg/observability"
	"github.com/teradata-labs/agentctl/pkg/versions"
	"go.uber.org/zap"
)

// VersionStore is the part of versions.Store rollback needs.
type VersionStore interface {
	ListVersions(ctx context.Context, agent string) ([]*versions.Artifact, error)
	Restore(ctx context.Context, agent, target string) (*versions.RestoreResult, error)
}

// Config configures a Manager.
type Config struct {
	Versions  VersionStore
	Cluster   cluster.Store
	Namespace string
	Logger    *zap.Logger
	Tracer    observability.Tracer
}

// Manager lists versions and rolls agents back to them.
type Manager struct {
	versions  VersionStore
	cluster   cluster.Store
	namespace string
	logger    *zap.Logger
	tracer    observability.Tracer
}

// Entry is one row of the version history shown before a rollback.
type Entry struct {
	Version    string    `json:"version" yaml:"version"`
	SourceType string    `json:"sourceType" yaml:"sourceType"`
	Task       string    `json:"task,omitempty" yaml:"task,omitempty"`
	CreatedAt  time.Time `json:"createdAt" yaml:"createdAt"`
	Active     bool      `json:"active" yaml:"active"`
}

// Choice is an entry offered for selection.
type Choice struct {
	Label    string
	Version  string
	Disabled bool
}

// Result reports a rollback. Rollback never returns an error; failures are
// described here.
type Result struct {
	Success         bool      `json:"success" yaml:"success"`
	Agent           string    `json:"agent" yaml:"agent"`
	Version         string    `json:"version,omitempty" yaml:"version,omitempty"`
	PreviousVersion string    `json:"previousVersion,omitempty" yaml:"previousVersion,omitempty"`
	RolledBackAt    time.Time `json:"rolledBackAt,omitempty" yaml:"rolledBackAt,omitempty"`
	PodsRestarted   int       `json:"podsRestarted" yaml:"podsRestarted"`
	Message         string    `json:"message" yaml:"message"`
	Error           error     `json:"-" yaml:"-"`
}

// NewManager creates a Manager.
func NewManager(config Config) (*Manager, error) {
	if config.Versions == nil {
		return nil, fmt.Errorf("version store is required")
	}
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
	return &Manager{
		versions:  config.Versions,
		cluster:   config.Cluster,
		namespace: config.Namespace,
		logger:    config.Logger,
		tracer:    config.Tracer,
	}, nil
}

// List returns the agent's versions, highest first.
func (m *Manager) List(ctx context.Context, agent string) ([]Entry, error) {
	artifacts, err := m.versions.ListVersions(ctx, agent)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(artifacts))
	for _, a := range artifacts {
		entries = append(entries, Entry{
			Version:    a.ID,
			SourceType: a.SourceType,
			Task:       a.Task,
			CreatedAt:  a.CreatedAt,
			Active:     a.Active,
		})
	}
	return entries, nil
}

// Choices turns entries into selectable options. The active version is
// listed but cannot be chosen.
func Choices(entries []Entry) []Choice {
	out := make([]Choice, 0, len(entries))
	for _, e := range entries {
		label := fmt.Sprintf("%s  %s  %s", e.Version, e.CreatedAt.Local().Format("2006-01-02 15:04"), e.SourceType)
		if e.Task != "" {
			label += " (" + e.Task + ")"
		}
		if e.Active {
			label += "  [active]"
		}
		out = append(out, Choice{Label: label, Version: e.Version, Disabled: e.Active})
	}
	return out
}

// Rollback restores version and restarts the agent. No version is deleted.
func (m *Manager) Rollback(ctx context.Context, agent, version string) *Result {
	ctx, span := m.tracer.StartSpan(ctx, observability.SpanRollback,
		observability.WithAttribute(observability.AttrAgent, agent),
		observability.WithAttribute(observability.AttrVersion, version))
	defer m.tracer.EndSpan(span)

	result := &Result{Agent: agent}
	restored, err := m.versions.Restore(ctx, agent, version)
	if err != nil {
		span.RecordError(err)
		result.Error = err
		result.Message = fmt.Sprintf("rollback of %s failed: %v", agent, err)
		return result
	}
	result.Version = restored.Version
	result.PreviousVersion = restored.PreviousVersion
	result.RolledBackAt = restored.RolledBackAt

	n, err := cluster.RestartWorkload(ctx, m.cluster, m.namespace, agent)
	result.PodsRestarted = n
	if err != nil {
		span.RecordError(err)
		result.Error = err
		result.Message = fmt.Sprintf("%s restored to %s but restart failed: %v", agent, restored.Version, err)
		return result
	}

	m.tracer.RecordMetric("rollbacks_total", 1, map[string]string{"namespace": m.namespace})
	m.logger.Info("Rolled back agent",
		zap.String("agent", agent),
		zap.String("version", restored.Version),
		zap.String("previous", restored.PreviousVersion),
		zap.Int("pods_restarted", n))

	result.Success = true
	result.Message = fmt.Sprintf("%s rolled back from %s to %s", agent, restored.PreviousVersion, restored.Version)
	return result
}
