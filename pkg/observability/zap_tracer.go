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
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ZapTracer exports spans and metrics as structured log records.
// It is the default production tracer for spindle deployments that do not
// ship traces to a dedicated backend.
type ZapTracer struct {
	logger *zap.Logger
}

// NewZapTracer creates a tracer that logs spans and metrics via the given
// logger. A nil logger falls back to a no-op logger.
func NewZapTracer(logger *zap.Logger) *ZapTracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapTracer{logger: logger}
}

// StartSpan creates a new span linked to any parent found in ctx.
func (t *ZapTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	span := &Span{
		TraceID:    uuid.New().String(),
		SpanID:     uuid.New().String(),
		Name:       name,
		StartTime:  time.Now(),
		Attributes: make(map[string]interface{}),
	}

	for _, opt := range opts {
		opt(span)
	}

	if parent := SpanFromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	}

	return ContextWithSpan(ctx, span), span
}

// EndSpan completes the span and emits it as a log record.
func (t *ZapTracer) EndSpan(span *Span) {
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)

	fields := []zap.Field{
		zap.String("trace_id", span.TraceID),
		zap.String("span_id", span.SpanID),
		zap.Duration("duration", span.Duration),
		zap.String("status", span.Status.Code.String()),
	}
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", span.ParentID))
	}
	if span.Status.Message != "" {
		fields = append(fields, zap.String("status_message", span.Status.Message))
	}
	if len(span.Attributes) > 0 {
		fields = append(fields, zap.Any("attributes", span.Attributes))
	}

	if span.Status.Code == StatusError {
		t.logger.Warn("span "+span.Name, fields...)
		return
	}
	t.logger.Debug("span "+span.Name, fields...)
}

// RecordMetric emits the metric as a debug log record.
func (t *ZapTracer) RecordMetric(name string, value float64, labels map[string]string) {
	t.logger.Debug("metric "+name,
		zap.Float64("value", value),
		zap.Any("labels", labels))
}

// Flush syncs the underlying logger.
func (t *ZapTracer) Flush(ctx context.Context) error {
	// Sync errors on stderr sinks are expected and harmless.
	_ = t.logger.Sync()
	return nil
}

// Ensure ZapTracer implements Tracer interface.
var _ Tracer = (*ZapTracer)(nil)
