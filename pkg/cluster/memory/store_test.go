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
package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teradata-labs/agentctl/pkg/cluster"
)

func configMap(name string, labels map[string]string) *cluster.Resource {
	return &cluster.Resource{
		Kind:      cluster.KindConfigMap,
		Namespace: "default",
		Name:      name,
		Labels:    labels,
		Data:      map[string]string{"agent.rb": "code"},
	}
}

func TestStore_CreateGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.Create(ctx, configMap("a", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, created.UID)
	assert.NotEmpty(t, created.ResourceVersion)
	assert.False(t, created.CreatedAt.IsZero())

	_, err = s.Create(ctx, configMap("a", nil))
	assert.ErrorIs(t, err, cluster.ErrAlreadyExists)

	got, err := s.Get(ctx, cluster.KindConfigMap, "default", "a")
	require.NoError(t, err)
	assert.Equal(t, created.UID, got.UID)

	// Returned copies are independent of stored state.
	got.Data["agent.rb"] = "mutated"
	again, err := s.Get(ctx, cluster.KindConfigMap, "default", "a")
	require.NoError(t, err)
	assert.Equal(t, "code", again.Data["agent.rb"])

	_, err = s.Get(ctx, cluster.KindConfigMap, "default", "missing")
	assert.True(t, cluster.IsNotFound(err))
}

func TestStore_UpdateConcurrencyToken(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.Create(ctx, configMap("a", nil))
	require.NoError(t, err)

	first := created.DeepCopy()
	first.Data["agent.rb"] = "first"
	updated, err := s.Update(ctx, first)
	require.NoError(t, err)
	assert.NotEqual(t, created.ResourceVersion, updated.ResourceVersion)

	stale := created.DeepCopy()
	stale.Data["agent.rb"] = "second"
	_, err = s.Update(ctx, stale)
	require.Error(t, err)
	assert.True(t, cluster.IsConflict(err))

	var conflict *cluster.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, created.ResourceVersion, conflict.ExpectedVersion)
	assert.Equal(t, updated.ResourceVersion, conflict.ActualVersion)

	unconditional := created.DeepCopy()
	unconditional.ResourceVersion = ""
	unconditional.Data["agent.rb"] = "forced"
	_, err = s.Update(ctx, unconditional)
	require.NoError(t, err)
}

func TestStore_ListSelector(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Create(ctx, configMap("bot-code", cluster.CodeSelector("bot")))
	require.NoError(t, err)
	_, err = s.Create(ctx, configMap("bot-code-v1", cluster.CodeSelector("bot")))
	require.NoError(t, err)
	_, err = s.Create(ctx, configMap("other-code", cluster.CodeSelector("other")))
	require.NoError(t, err)

	list, err := s.List(ctx, cluster.KindConfigMap, "default", cluster.CodeSelector("bot"))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "bot-code", list[0].Name)
	assert.Equal(t, "bot-code-v1", list[1].Name)
}

func TestStore_DeleteCascadesToOwned(t *testing.T) {
	ctx := context.Background()
	s := New()

	base, err := s.Create(ctx, configMap("bot-code", nil))
	require.NoError(t, err)

	child := configMap("bot-code-v1", nil)
	child.Owners = []cluster.OwnerReference{base.OwnerRef()}
	child, err = s.Create(ctx, child)
	require.NoError(t, err)

	grandchild := configMap("bot-code-v1-extra", nil)
	grandchild.Owners = []cluster.OwnerReference{child.OwnerRef()}
	_, err = s.Create(ctx, grandchild)
	require.NoError(t, err)

	_, err = s.Create(ctx, configMap("unrelated", nil))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, cluster.KindConfigMap, "default", "bot-code"))
	assert.Equal(t, 1, s.Len())

	err = s.Delete(ctx, cluster.KindConfigMap, "default", "bot-code")
	assert.True(t, cluster.IsNotFound(err))
}

func TestStore_DeleteCollection(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, name := range []string{"bot-1", "bot-2"} {
		_, err := s.Create(ctx, &cluster.Resource{
			Kind: cluster.KindPod, Namespace: "default", Name: name,
			Labels: cluster.AgentSelector("bot"),
		})
		require.NoError(t, err)
	}
	_, err := s.Create(ctx, &cluster.Resource{
		Kind: cluster.KindPod, Namespace: "default", Name: "other-1",
		Labels: cluster.AgentSelector("other"),
	})
	require.NoError(t, err)

	n, err := cluster.RestartWorkload(ctx, s, "default", "bot")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, s.Len())
}

func TestStore_SetStatus(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Create(ctx, &cluster.Resource{Kind: cluster.KindAgent, Namespace: "default", Name: "bot"})
	require.NoError(t, err)

	require.NoError(t, s.SetStatus(cluster.KindAgent, "default", "bot", cluster.ResourceStatus{
		Conditions: []cluster.Condition{{Type: "Synthesized", Status: cluster.ConditionTrue}},
	}))

	got, err := s.Get(ctx, cluster.KindAgent, "default", "bot")
	require.NoError(t, err)
	require.NotNil(t, got.Condition("Synthesized"))
	assert.Equal(t, cluster.ConditionTrue, got.Condition("Synthesized").Status)

	// Update does not clobber controller-owned status.
	got.SetAnnotation("k", "v")
	updated, err := s.Update(ctx, got)
	require.NoError(t, err)
	assert.NotNil(t, updated.Condition("Synthesized"))
}
