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
package rollback

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teradata-labs/agentctl/pkg/agentcode"
	"github.com/teradata-labs/agentctl/pkg/cluster"
	"github.com/teradata-labs/agentctl/pkg/cluster/memory"
	"github.com/teradata-labs/agentctl/pkg/observability"
	"github.com/teradata-labs/agentctl/pkg/versions"
)

const source = `agent "billing-bot" do
  task :summarize do |inputs|
    { summary: llm(inputs[:text]) }
  end
end
`

func setup(t *testing.T) (*memory.Store, *versions.Store, *Manager) {
	t.Helper()
	ctx := context.Background()
	mem := memory.New()
	_, err := mem.Create(ctx, &cluster.Resource{
		Kind:      cluster.KindConfigMap,
		Namespace: "default",
		Name:      versions.BaseName("billing-bot"),
		Labels:    cluster.CodeSelector("billing-bot"),
		Data:      map[string]string{versions.DataKey: source},
	})
	require.NoError(t, err)

	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	vs, err := versions.New(versions.Config{Cluster: mem, Namespace: "default", Now: func() time.Time {
		clock = clock.Add(time.Hour)
		return clock
	}})
	require.NoError(t, err)

	// v1 original, then v2, v3, v4.
	for i := 2; i <= 4; i++ {
		_, err := vs.CreateVersion(ctx, "billing-bot", versions.Change{
			TaskName:   "summarize",
			Definition: agentcode.TaskDefinition{},
			Body:       fmt.Sprintf("{ summary: inputs[:text][0, %d] }", i*10),
			SourceType: versions.SourceOptimized,
		})
		require.NoError(t, err)
	}
	_, err = mem.Create(ctx, &cluster.Resource{
		Kind:      cluster.KindPod,
		Namespace: "default",
		Name:      "billing-bot-0",
		Labels:    cluster.AgentSelector("billing-bot"),
	})
	require.NoError(t, err)

	m, err := NewManager(Config{Versions: vs, Cluster: mem, Namespace: "default"})
	require.NoError(t, err)
	return mem, vs, m
}

func TestRollback_RecordsProvenance(t *testing.T) {
	mem, vs, m := setup(t)
	ctx := context.Background()

	res := m.Rollback(ctx, "billing-bot", "v2")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "v2", res.Version)
	assert.Equal(t, "v4", res.PreviousVersion)
	assert.Equal(t, 1, res.PodsRestarted)

	base, err := mem.Get(ctx, cluster.KindConfigMap, "default", versions.BaseName("billing-bot"))
	require.NoError(t, err)
	rolledBack, _ := base.Annotation(cluster.AnnotationRolledBack)
	previous, _ := base.Annotation(cluster.AnnotationPreviousVersion)
	assert.Equal(t, "true", rolledBack)
	assert.Equal(t, "v4", previous)
	assert.Contains(t, base.Data[versions.DataKey], "[0, 20]")

	active, err := vs.ActiveVersion(ctx, "billing-bot")
	require.NoError(t, err)
	assert.Equal(t, "v2", active)
}

func TestRollback_MetricLabeledByNamespace(t *testing.T) {
	mem, vs, _ := setup(t)
	tracer := observability.NewPrometheusTracer(observability.PrometheusConfig{Namespace: "test"})
	m, err := NewManager(Config{Versions: vs, Cluster: mem, Namespace: "default", Tracer: tracer})
	require.NoError(t, err)

	res := m.Rollback(context.Background(), "billing-bot", "v3")
	require.True(t, res.Success, res.Message)

	families, err := tracer.Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() != "test_rollbacks_total" {
			continue
		}
		found = true
		require.Len(t, mf.GetMetric(), 1)
		labels := mf.GetMetric()[0].GetLabel()
		require.Len(t, labels, 1)
		assert.Equal(t, "namespace", labels[0].GetName())
		assert.Equal(t, "default", labels[0].GetValue())
		assert.Equal(t, 1.0, mf.GetMetric()[0].GetCounter().GetValue())
	}
	assert.True(t, found, "rollbacks counter not registered")
}

func TestRollback_NeverDeletesVersions(t *testing.T) {
	_, _, m := setup(t)
	ctx := context.Background()

	before, err := m.List(ctx, "billing-bot")
	require.NoError(t, err)
	require.Len(t, before, 4)

	for _, v := range []string{"v2", "original", "v4"} {
		res := m.Rollback(ctx, "billing-bot", v)
		require.True(t, res.Success, res.Message)

		after, err := m.List(ctx, "billing-bot")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(after), len(before))
	}
}

func TestRollback_Failures(t *testing.T) {
	_, _, m := setup(t)
	ctx := context.Background()

	res := m.Rollback(ctx, "billing-bot", "v4")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Error, versions.ErrAlreadyActive)

	res = m.Rollback(ctx, "billing-bot", "v9")
	assert.False(t, res.Success)
	var unknown *versions.UnknownVersionError
	require.True(t, errors.As(res.Error, &unknown))
	assert.Equal(t, []string{"v4", "v3", "v2", "v1"}, unknown.Known)

	res = m.Rollback(ctx, "payments-bot", "v1")
	assert.False(t, res.Success)
	assert.True(t, cluster.IsNotFound(res.Error))
}

func TestChoices_DisablesActive(t *testing.T) {
	_, _, m := setup(t)
	entries, err := m.List(context.Background(), "billing-bot")
	require.NoError(t, err)

	choices := Choices(entries)
	require.Len(t, choices, 4)
	assert.Equal(t, "v4", choices[0].Version)
	assert.True(t, choices[0].Disabled)
	assert.Contains(t, choices[0].Label, "[active]")
	for _, c := range choices[1:] {
		assert.False(t, c.Disabled)
	}
	assert.Equal(t, versions.SourceOriginal, entries[3].SourceType)
}
