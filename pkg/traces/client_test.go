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
package traces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teradata-labs/agentctl/pkg/optimizer"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{Endpoint: srv.URL + "/", APIKey: "secret", MaxRetries: 2, RetryBackoff: 100 * time.Millisecond})
	require.NoError(t, err)
	var sleeps []time.Duration
	c.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return c, &sleeps
}

func TestNewClient_RequiresEndpoint(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestAvailable(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthz", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	assert.True(t, c.Available(context.Background()))

	down, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	assert.False(t, down.Available(context.Background()))
}

func TestOpportunities(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/agents/billing-bot/opportunities", r.URL.Path)
		assert.Equal(t, "24h0m0s", r.URL.Query().Get("since"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"opportunities": []map[string]any{
				{"task_name": "summarize", "execution_count": 120, "ready_for_learning": true, "consistency_score": 0.95},
				{"task_name": "classify", "execution_count": 4, "ready_for_learning": false, "consistency_score": 0.2},
			},
		})
	}))

	opps, err := c.Opportunities(context.Background(), "billing-bot", 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, opps, 2)
	assert.Equal(t, optimizer.Opportunity{TaskName: "summarize", ExecutionCount: 120, ReadyForLearning: true, ConsistencyScore: 0.95}, opps[0])
	assert.False(t, opps[1].ReadyForLearning)
}

func TestRetriesServerErrorsWithBackoff(t *testing.T) {
	var calls int32
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"opportunities": []}`))
	}))

	opps, err := c.Opportunities(context.Background(), "billing-bot", time.Hour)
	require.NoError(t, err)
	assert.Empty(t, opps)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *sleeps)
}

func TestRetriesExhausted(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.Opportunities(context.Background(), "billing-bot", time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad since", http.StatusBadRequest)
	}))

	_, err := c.Opportunities(context.Background(), "billing-bot", time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad since")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, *sleeps)
}

func TestPropose(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		check   func(t *testing.T, p *optimizer.Proposal)
	}{
		{
			name:   "ok",
			status: http.StatusOK,
			body:   `{"task_name":"summarize","proposed_code":"{ summary: inputs[:text][0, 80] }","consistency_score":0.93,"inputs":{"text":"string"},"outputs":{"summary":"string"}}`,
			check: func(t *testing.T, p *optimizer.Proposal) {
				assert.Equal(t, "summarize", p.TaskName)
				assert.InDelta(t, 0.93, p.ConsistencyScore, 1e-9)
				assert.Equal(t, "string", p.Definition.Inputs["text"])
				assert.Equal(t, optimizer.SourcePattern, p.Source)
			},
		},
		{name: "insufficient data", status: http.StatusUnprocessableEntity, body: "only 3 executions", wantErr: optimizer.ErrInsufficientData},
		{name: "not deployed", status: http.StatusNotFound, wantErr: optimizer.ErrUnavailable},
		{name: "unavailable", status: http.StatusServiceUnavailable, wantErr: optimizer.ErrUnavailable},
		{name: "score out of range", status: http.StatusOK, body: `{"task_name":"summarize","proposed_code":"x","consistency_score":7}`},
		{name: "missing code", status: http.StatusOK, body: `{"task_name":"summarize","consistency_score":0.5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/v1/agents/billing-bot/tasks/summarize/propose", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			p, err := c.Propose(context.Background(), "billing-bot", "summarize")
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.check != nil:
				require.NoError(t, err)
				tt.check(t, p)
			default:
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid proposal")
			}
		})
	}
}
