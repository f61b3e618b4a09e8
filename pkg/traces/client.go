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
// Package traces is a client for the trace analysis service. The service
// reports which agent tasks have stable enough execution traces to be
// replaced by code, and proposes that code from observed patterns.
package traces

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teradata-labs/agentctl/pkg/agentcode"
	"github.com/teradata-labs/agentctl/pkg/optimizer"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = time.Second
)

// Config configures a Client.
type Config struct {
	// Endpoint is the base URL of the analysis service, e.g.
	// http://trace-analyzer.langop-system:8080.
	Endpoint string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds a single request. Default: 30s.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt for
	// transport errors and 5xx responses. Default: 3.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled after each retry.
	// Default: 1s.
	RetryBackoff time.Duration

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client

	Logger *zap.Logger
}

// Client talks to the trace analysis service. It implements
// optimizer.Analyzer and optimizer.CodeProposer.
type Client struct {
	config   Config
	client   *http.Client
	proposal *gojsonschema.Schema
	sleep    func(time.Duration)
}

var (
	_ optimizer.Analyzer     = (*Client)(nil)
	_ optimizer.CodeProposer = (*Client)(nil)
)

// proposalSchema is the contract for POST .../propose responses.
const proposalSchema = `{
  "type": "object",
  "required": ["task_name", "proposed_code", "consistency_score"],
  "properties": {
    "task_name": {"type": "string", "minLength": 1},
    "current_code": {"type": "string"},
    "proposed_code": {"type": "string", "minLength": 1},
    "consistency_score": {"type": "number", "minimum": 0, "maximum": 1},
    "inputs": {"type": "object", "additionalProperties": {"type": "string"}},
    "outputs": {"type": "object", "additionalProperties": {"type": "string"}}
  }
}`

// NewClient creates a Client.
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("trace analyzer endpoint is required (set traces.endpoint)")
	}
	if _, err := url.Parse(config.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid trace analyzer endpoint %q: %w", config.Endpoint, err)
	}
	config.Endpoint = strings.TrimRight(config.Endpoint, "/")
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	} else if config.MaxRetries == 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = DefaultRetryBackoff
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(proposalSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile proposal schema: %w", err)
	}

	return &Client{config: config, client: client, proposal: schema, sleep: time.Sleep}, nil
}

// Available reports whether the service answers its health check.
func (c *Client) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.Endpoint+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.config.Logger.Debug("Trace analyzer health check failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

type opportunitiesResponse struct {
	Opportunities []optimizer.Opportunity `json:"opportunities"`
}

// Opportunities lists optimization opportunities for agent observed within
// since.
func (c *Client) Opportunities(ctx context.Context, agent string, since time.Duration) ([]optimizer.Opportunity, error) {
	path := fmt.Sprintf("/v1/agents/%s/opportunities?since=%s", url.PathEscape(agent), url.QueryEscape(since.String()))
	body, status, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusNotFound:
		return nil, nil
	case status != http.StatusOK:
		return nil, fmt.Errorf("trace analyzer returned status %d: %s", status, snippet(body))
	}

	var out opportunitiesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode opportunities: %w", err)
	}
	return out.Opportunities, nil
}

type proposeRequest struct {
	Agent string `json:"agent"`
	Task  string `json:"task_name"`
}

type proposeResponse struct {
	TaskName         string            `json:"task_name"`
	CurrentCode      string            `json:"current_code"`
	ProposedCode     string            `json:"proposed_code"`
	ConsistencyScore float64           `json:"consistency_score"`
	Inputs           map[string]string `json:"inputs"`
	Outputs          map[string]string `json:"outputs"`
}

// Propose asks the service for pattern-derived code for task. 422 means the
// traces do not yet support a proposal; 404 and 503 mean the proposer is not
// running.
func (c *Client) Propose(ctx context.Context, agent, task string) (*optimizer.Proposal, error) {
	payload, err := json.Marshal(proposeRequest{Agent: agent, Task: task})
	if err != nil {
		return nil, fmt.Errorf("marshal proposal request: %w", err)
	}
	path := fmt.Sprintf("/v1/agents/%s/tasks/%s/propose", url.PathEscape(agent), url.PathEscape(task))
	body, status, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", optimizer.ErrUnavailable, err)
	}
	switch status {
	case http.StatusOK:
	case http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("task %s: %s: %w", task, snippet(body), optimizer.ErrInsufficientData)
	case http.StatusNotFound, http.StatusServiceUnavailable:
		return nil, fmt.Errorf("pattern proposer returned status %d: %w", status, optimizer.ErrUnavailable)
	default:
		return nil, fmt.Errorf("pattern proposer returned status %d: %s", status, snippet(body))
	}

	result, err := c.proposal.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to validate proposal: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			msgs[i] = e.String()
		}
		return nil, fmt.Errorf("invalid proposal for %s: %s", task, strings.Join(msgs, "; "))
	}

	var resp proposeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode proposal: %w", err)
	}
	return &optimizer.Proposal{
		TaskName:         resp.TaskName,
		CurrentCode:      resp.CurrentCode,
		ProposedCode:     resp.ProposedCode,
		Definition:       agentcode.TaskDefinition{Inputs: resp.Inputs, Outputs: resp.Outputs},
		ConsistencyScore: resp.ConsistencyScore,
		Source:           optimizer.SourcePattern,
	}, nil
}

// do sends a request, retrying transport errors and 5xx responses other
// than 503 with exponential backoff. 4xx responses and 503 are returned to
// the caller without retry.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	var lastErr error
	backoff := c.config.RetryBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.config.Endpoint+path, reader)
		if err != nil {
			return nil, 0, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			lastErr = fmt.Errorf("send to trace analyzer (attempt %d/%d): %w", attempt+1, c.config.MaxRetries+1, err)
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				lastErr = fmt.Errorf("read response (attempt %d/%d): %w", attempt+1, c.config.MaxRetries+1, readErr)
			} else if resp.StatusCode < 500 || resp.StatusCode == http.StatusServiceUnavailable {
				return body, resp.StatusCode, nil
			} else {
				lastErr = fmt.Errorf("trace analyzer returned status %d (attempt %d/%d)", resp.StatusCode, attempt+1, c.config.MaxRetries+1)
			}
		}

		c.config.Logger.Debug("Trace analyzer request failed", zap.String("path", path), zap.Error(lastErr))
		if attempt < c.config.MaxRetries {
			c.sleep(backoff)
			backoff *= 2
		}
	}
	return nil, 0, fmt.Errorf("trace analyzer request failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
