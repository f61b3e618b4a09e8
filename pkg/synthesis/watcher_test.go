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
package synthesis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teradata-labs/agentctl/pkg/cluster"
	"github.com/teradata-labs/agentctl/pkg/cluster/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	return nil
}

// scriptedStore answers Get for the agent from a list of canned responses,
// repeating the last one.
type scriptedStore struct {
	cluster.Store
	responses []func() (*cluster.Resource, error)
	calls     int
}

func (s *scriptedStore) Get(ctx context.Context, kind, namespace, name string) (*cluster.Resource, error) {
	i := s.calls
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.calls++
	return s.responses[i]()
}

func notFound() (*cluster.Resource, error) {
	return nil, cluster.NotFound(cluster.KindAgent, "default", "billing-bot")
}

func withCondition(status, message string) func() (*cluster.Resource, error) {
	return func() (*cluster.Resource, error) {
		return &cluster.Resource{
			Kind: cluster.KindAgent, Namespace: "default", Name: "billing-bot",
			Status: cluster.ResourceStatus{
				Conditions: []cluster.Condition{{Type: ConditionSynthesized, Status: status, Message: message}},
				Synthesis:  map[string]string{"model": "claude", "codeSize": "2048"},
			},
		}, nil
	}
}

func pending() (*cluster.Resource, error) {
	return &cluster.Resource{Kind: cluster.KindAgent, Namespace: "default", Name: "billing-bot"}, nil
}

func newTestWatcher(t *testing.T, store cluster.Store, clock *fakeClock, strict bool, timeout time.Duration) *Watcher {
	t.Helper()
	w, err := NewWatcher(Config{
		Cluster: store,
		Timeout: timeout,
		Strict:  strict,
		Now:     clock.Now,
		Sleep:   clock.Sleep,
	})
	require.NoError(t, err)
	return w
}

func TestWait_SucceedsAfterNotFound(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := &scriptedStore{responses: []func() (*cluster.Resource, error){
		notFound, notFound, notFound, withCondition(cluster.ConditionTrue, ""),
	}}
	w := newTestWatcher(t, store, clock, false, 0)

	res := w.Wait(context.Background(), "billing-bot")
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.False(t, res.Timeout)
	assert.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, 4, res.Polls)
	assert.GreaterOrEqual(t, res.Duration, 6*time.Second)
	assert.LessOrEqual(t, res.Duration, 8*time.Second)
	assert.Equal(t, "claude", res.Metadata["model"])
}

func TestWait_Failed(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := &scriptedStore{responses: []func() (*cluster.Resource, error){
		pending, withCondition(cluster.ConditionFalse, "model returned invalid code"),
	}}
	res := newTestWatcher(t, store, clock, false, 0).Wait(context.Background(), "billing-bot")

	assert.False(t, res.Success)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, "model returned invalid code", res.Message)
	assert.Error(t, res.Err)
}

func TestWait_Timeout(t *testing.T) {
	tests := []struct {
		name        string
		strict      bool
		wantSuccess bool
	}{
		{name: "fail open", strict: false, wantSuccess: true},
		{name: "strict", strict: true, wantSuccess: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: time.Now()}
			store := &scriptedStore{responses: []func() (*cluster.Resource, error){pending}}
			res := newTestWatcher(t, store, clock, tt.strict, 20*time.Second).Wait(context.Background(), "billing-bot")

			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.True(t, res.Timeout)
			assert.Equal(t, StateTimeout, res.State)
			assert.Equal(t, 11, res.Polls)
			assert.Equal(t, 20*time.Second, res.Duration)
			if tt.strict {
				assert.Error(t, res.Err)
			} else {
				assert.NoError(t, res.Err)
				assert.NotEmpty(t, res.Warning)
			}
		})
	}
}

func TestWait_UnexpectedError(t *testing.T) {
	boom := func() (*cluster.Resource, error) { return nil, errors.New("connection refused") }

	clock := &fakeClock{now: time.Now()}
	soft := newTestWatcher(t, &scriptedStore{responses: []func() (*cluster.Resource, error){boom}}, clock, false, 0).
		Wait(context.Background(), "billing-bot")
	assert.True(t, soft.Success)
	assert.Contains(t, soft.Warning, "connection refused")
	assert.NoError(t, soft.Err)

	strict := newTestWatcher(t, &scriptedStore{responses: []func() (*cluster.Resource, error){boom}}, clock, true, 0).
		Wait(context.Background(), "billing-bot")
	assert.False(t, strict.Success)
	assert.Equal(t, StateFailed, strict.State)
	assert.ErrorContains(t, strict.Err, "connection refused")
}

func TestWait_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	clock := &fakeClock{now: time.Now()}
	res := newTestWatcher(t, &scriptedStore{responses: []func() (*cluster.Resource, error){pending}}, clock, false, 0).
		Wait(ctx, "billing-bot")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestWait_MemoryStoreWithController(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	_, err := mem.Create(ctx, &cluster.Resource{Kind: cluster.KindAgent, Namespace: "default", Name: "billing-bot"})
	require.NoError(t, err)

	clock := &fakeClock{now: time.Now()}
	polls := 0
	w, err := NewWatcher(Config{
		Cluster: mem,
		Now:     clock.Now,
		Sleep: func(ctx context.Context, d time.Duration) error {
			polls++
			if polls == 2 {
				require.NoError(t, mem.SetStatus(cluster.KindAgent, "default", "billing-bot", cluster.ResourceStatus{
					Conditions: []cluster.Condition{{Type: ConditionSynthesized, Status: cluster.ConditionTrue}},
				}))
			}
			return clock.Sleep(ctx, d)
		},
	})
	require.NoError(t, err)

	res := w.Wait(ctx, "billing-bot")
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Polls)
	assert.Equal(t, 4*time.Second, res.Duration)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "timeout", StateTimeout.String())
	assert.Equal(t, "unknown", State(99).String())
}
