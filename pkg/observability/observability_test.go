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
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoOpTracer_ParentLinking(t *testing.T) {
	tracer := NewNoOpTracer()
	ctx, parent := tracer.StartSpan(context.Background(), "parent")
	_, child := tracer.StartSpan(ctx, "child", WithAttribute(AttrAgent, "billing-bot"))

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)
	assert.Equal(t, "billing-bot", child.Attributes[AttrAgent])

	tracer.EndSpan(child)
	assert.Equal(t, StatusOK, child.Status.Code)
	assert.NoError(t, tracer.Flush(context.Background()))
}

func TestSpan_RecordError(t *testing.T) {
	span := &Span{}
	span.RecordError(nil)
	assert.Equal(t, StatusUnset, span.Status.Code)

	span.RecordError(errors.New("boom"))
	assert.Equal(t, StatusError, span.Status.Code)
	assert.Equal(t, "boom", span.Attributes[AttrErrorMessage])

	finishSpan(span)
	assert.Equal(t, StatusError, span.Status.Code, "EndSpan must not clear an error status")
}

func TestPrometheusTracer_Counters(t *testing.T) {
	tracer := NewPrometheusTracer(PrometheusConfig{})

	tracer.RecordMetric("versions.created", 1, map[string]string{"agent": "a"})
	tracer.RecordMetric("versions.created", 2, map[string]string{"agent": "a"})
	tracer.RecordMetric("versions.created", 1, map[string]string{"agent": "b"})
	tracer.RecordMetric("versions.created", -1, map[string]string{"agent": "b"})

	vec := tracer.counters["versions_created|agent"]
	require.NotNil(t, vec)
	assert.Equal(t, 3.0, testutil.ToFloat64(vec.WithLabelValues("a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(vec.WithLabelValues("b")))
}

func TestPrometheusTracer_SpanDurations(t *testing.T) {
	tracer := NewPrometheusTracer(PrometheusConfig{Namespace: "test"})
	_, span := tracer.StartSpan(context.Background(), SpanRollback)
	tracer.EndSpan(span)

	count, err := testutil.GatherAndCount(tracer.Registry(), "test_span_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPrometheusTracer_FlushWithoutGateway(t *testing.T) {
	tracer := NewPrometheusTracer(PrometheusConfig{})
	assert.NoError(t, tracer.Flush(context.Background()))
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "optimizer_apply_total", sanitizeName("optimizer.apply-total"))
}
