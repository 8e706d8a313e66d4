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

package analysis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/llm"
	"github.com/teradata-labs/spindle/pkg/observability"
	"github.com/teradata-labs/spindle/pkg/prompts"
	"github.com/teradata-labs/spindle/pkg/tabular"
	"github.com/teradata-labs/spindle/pkg/types"
)

// Default bounds for the plan-generation call.
const (
	defaultTimeout   = 30 * time.Second
	defaultMaxTokens = 512
)

// Config holds configuration for the analysis backend.
type Config struct {
	// Provider generates analysis plans. Required.
	Provider llm.Provider

	// Timeout bounds one plan-generation call. Default: 30s.
	Timeout time.Duration

	// MaxTokens bounds the plan response. Default: 512.
	MaxTokens int

	// Logger for backend operations.
	Logger *zap.Logger

	// Tracer for spans and metrics.
	Tracer observability.Tracer
}

// Backend answers statistical and exploratory questions about a
// materialized CSV file by evaluating a generated plan against its frame.
type Backend struct {
	provider  llm.Provider
	timeout   time.Duration
	maxTokens int
	logger    *zap.Logger
	tracer    observability.Tracer
}

// NewBackend creates an analysis backend.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("Provider is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}

	return &Backend{
		provider:  cfg.Provider,
		timeout:   cfg.Timeout,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
		tracer:    cfg.Tracer,
	}, nil
}

// Execute answers a question about the handle's data. Plan generation
// failures surface as GenerationError, evaluation failures as
// ExecutionError.
func (b *Backend) Execute(ctx context.Context, question string, handle *tabular.Handle) (*types.QueryResult, error) {
	ctx, span := b.tracer.StartSpan(ctx, "analysis.execute",
		observability.WithAttribute("file_ref", handle.FileRef()))
	defer b.tracer.EndSpan(span)

	frame := handle.Frame()

	raw, err := b.provider.Complete(ctx, llm.CompletionRequest{
		System:    prompts.AnalysisSystem,
		Prompt:    prompts.AnalysisPlanPrompt(question, frame.SchemaDescription()),
		MaxTokens: b.maxTokens,
		Timeout:   b.timeout,
	})
	if err != nil {
		return nil, &types.GenerationError{Stage: "plan", Err: err}
	}

	p, err := parsePlan(raw)
	if err != nil {
		b.logger.Warn("unusable analysis plan",
			zap.String("file", handle.FileRef()),
			zap.Error(err))
		return nil, &types.GenerationError{Stage: "plan", Err: err}
	}
	if err := p.bind(frame); err != nil {
		return nil, &types.GenerationError{Stage: "plan", Err: err}
	}

	b.logger.Debug("evaluating analysis plan",
		zap.String("operation", p.Operation),
		zap.String("file", handle.FileRef()))
	span.SetAttribute("operation", p.Operation)

	result, err := eval(p, frame)
	if err != nil {
		return nil, &types.ExecutionError{Backend: types.BackendAnalysis, Err: err}
	}
	return result, nil
}
