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
package observability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// PrometheusConfig configures the Prometheus-backed tracer.
type PrometheusConfig struct {
	Namespace      string      // metric name prefix (default: agentctl)
	PushgatewayURL string      // when empty, Flush is a no-op
	Job            string      // pushgateway job name (default: agentctl)
	Registry       *prometheus.Registry
	Logger         *zap.Logger
}

// PrometheusTracer records span durations in a histogram and metrics as
// counters in a private registry. A CLI process is short-lived, so the
// registry is pushed to a Pushgateway on Flush instead of being scraped.
type PrometheusTracer struct {
	config    PrometheusConfig
	registry  *prometheus.Registry
	durations *prometheus.HistogramVec
	logger    *zap.Logger

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
}

// NewPrometheusTracer creates a tracer with its own registry.
func NewPrometheusTracer(config PrometheusConfig) *PrometheusTracer {
	if config.Namespace == "" {
		config.Namespace = "agentctl"
	}
	if config.Job == "" {
		config.Job = "agentctl"
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	durations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "span_duration_seconds",
			Help:      "Duration of agentctl operations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8), // 10ms to ~164s
		},
		[]string{"span", "status"},
	)
	config.Registry.MustRegister(durations)

	return &PrometheusTracer{
		config:    config,
		registry:  config.Registry,
		durations: durations,
		logger:    config.Logger,
		counters:  make(map[string]*prometheus.CounterVec),
	}
}

// Registry exposes the underlying registry (used by tests).
func (t *PrometheusTracer) Registry() *prometheus.Registry {
	return t.registry
}

// StartSpan creates a span; its duration is observed on EndSpan.
func (t *PrometheusTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	span := newSpan(ctx, name, opts)
	return ContextWithSpan(ctx, span), span
}

// EndSpan observes the span duration.
func (t *PrometheusTracer) EndSpan(span *Span) {
	if span == nil {
		return
	}
	finishSpan(span)
	t.durations.WithLabelValues(span.Name, span.Status.Code.String()).Observe(span.Duration.Seconds())
}

// RecordMetric adds value to the counter identified by name and the label keys.
func (t *PrometheusTracer) RecordMetric(name string, value float64, labels map[string]string) {
	if value < 0 {
		t.logger.Debug("Ignoring negative counter delta", zap.String("metric", name), zap.Float64("value", value))
		return
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, sanitizeName(k))
	}
	sort.Strings(keys)

	vec, err := t.counterFor(sanitizeName(name), keys)
	if err != nil {
		t.logger.Debug("Failed to register metric", zap.String("metric", name), zap.Error(err))
		return
	}

	values := prometheus.Labels{}
	for k, v := range labels {
		values[sanitizeName(k)] = v
	}
	vec.With(values).Add(value)
}

// RecordEvent counts events by name.
func (t *PrometheusTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	t.RecordMetric("events_total", 1, map[string]string{"event": name})
}

// Flush pushes the registry to the configured Pushgateway.
func (t *PrometheusTracer) Flush(ctx context.Context) error {
	if t.config.PushgatewayURL == "" {
		return nil
	}
	pusher := push.New(t.config.PushgatewayURL, t.config.Job).Gatherer(t.registry)
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", t.config.PushgatewayURL, err)
	}
	return nil
}

func (t *PrometheusTracer) counterFor(name string, labelKeys []string) (*prometheus.CounterVec, error) {
	key := name + "|" + strings.Join(labelKeys, ",")

	t.mu.Lock()
	defer t.mu.Unlock()

	if vec, ok := t.counters[key]; ok {
		return vec, nil
	}

	vec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: t.config.Namespace,
			Name:      name,
			Help:      "agentctl counter " + name,
		},
		labelKeys,
	)
	if err := t.registry.Register(vec); err != nil {
		return nil, err
	}
	t.counters[key] = vec
	return vec, nil
}

// sanitizeName maps dotted metric names to Prometheus-safe identifiers.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

var _ Tracer = (*PrometheusTracer)(nil)
