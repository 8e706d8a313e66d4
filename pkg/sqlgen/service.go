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

// Package sqlgen turns natural-language questions into SQL and result sets
// back into natural-language answers.
//
// The service is stateless: a pure function of its inputs plus one external
// LLM dependency. GenerateSQL performs no retries (callers own retry
// policy); ExplainResult never fails, degrading to a mechanical description
// when the LLM is unavailable.
package sqlgen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/llm"
	"github.com/teradata-labs/spindle/pkg/observability"
	"github.com/teradata-labs/spindle/pkg/prompts"
	"github.com/teradata-labs/spindle/pkg/types"
)

// ResultShape hints how a result set should be phrased.
type ResultShape string

const (
	// ShapeScalar is a single value (1x1).
	ShapeScalar ResultShape = "scalar"
	// ShapeList is a single column of values.
	ShapeList ResultShape = "list"
	// ShapeTable is a multi-column result.
	ShapeTable ResultShape = "table"
)

const (
	// DefaultTimeout bounds each generation call.
	DefaultTimeout = 30 * time.Second

	// DefaultSchemaTokenBudget caps how much schema text reaches a prompt.
	DefaultSchemaTokenBudget = 2000

	// explainPreviewRows caps how many rows are rendered into the
	// explanation prompt.
	explainPreviewRows = 20
)

// Service generates SQL and explains results via the LLM collaborator.
type Service struct {
	provider          llm.Provider
	logger            *zap.Logger
	tracer            observability.Tracer
	timeout           time.Duration
	schemaTokenBudget int
	counter           *llm.TokenCounter
}

// Config holds configuration for the SQL generation service.
type Config struct {
	// Provider is the LLM used for generation. Required.
	Provider llm.Provider

	// Logger for generation operations.
	Logger *zap.Logger

	// Tracer for spans and metrics.
	Tracer observability.Tracer

	// Timeout bounds each LLM call. Default: 30s.
	Timeout time.Duration

	// SchemaTokenBudget caps schema text embedded in prompts.
	// Default: 2000 tokens.
	SchemaTokenBudget int
}

// NewService creates a SQL generation service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("Provider is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SchemaTokenBudget == 0 {
		cfg.SchemaTokenBudget = DefaultSchemaTokenBudget
	}

	return &Service{
		provider:          cfg.Provider,
		logger:            cfg.Logger,
		tracer:            cfg.Tracer,
		timeout:           cfg.Timeout,
		schemaTokenBudget: cfg.SchemaTokenBudget,
		counter:           llm.GetTokenCounter(),
	}, nil
}

// GenerateSQL produces a candidate SQL string for the question against the
// given schema description. Fails with GenerationError when the LLM call
// fails or returns empty output. No retries are performed here.
func (s *Service) GenerateSQL(ctx context.Context, question, schemaDescription string) (string, error) {
	ctx, span := s.tracer.StartSpan(ctx, "sqlgen.generate")
	defer s.tracer.EndSpan(span)

	schemaText := s.counter.TruncateToBudget(schemaDescription, s.schemaTokenBudget)

	raw, err := s.provider.Complete(ctx, llm.CompletionRequest{
		System:      prompts.SQLSystem,
		Prompt:      prompts.SQLGenerationPrompt(question, schemaText),
		MaxTokens:   1024,
		Temperature: 0.0,
		Timeout:     s.timeout,
	})
	if err != nil {
		span.Status = observability.Status{Code: observability.StatusError, Message: err.Error()}
		s.tracer.RecordMetric("sqlgen.generate.failed", 1.0, nil)
		return "", &types.GenerationError{Stage: "sql", Err: err}
	}

	sql := CleanSQL(raw)
	if sql == "" {
		span.Status = observability.Status{Code: observability.StatusError, Message: "empty output"}
		s.tracer.RecordMetric("sqlgen.generate.empty", 1.0, nil)
		return "", &types.GenerationError{Stage: "sql", Err: fmt.Errorf("LLM returned empty SQL")}
	}

	s.logger.Debug("generated SQL",
		zap.String("sql", sql))
	span.Status = observability.Status{Code: observability.StatusOK}
	return sql, nil
}

// ExplainResult phrases an already-computed result as a natural-language
// answer. On any LLM failure it returns the mechanical description instead;
// it never blocks a structured result on explanation failure.
func (s *Service) ExplainResult(ctx context.Context, question string, result *types.QueryResult, shape ResultShape) string {
	ctx, span := s.tracer.StartSpan(ctx, "sqlgen.explain")
	defer s.tracer.EndSpan(span)

	answer, err := s.provider.Complete(ctx, llm.CompletionRequest{
		System:      prompts.ExplainSystem,
		Prompt:      prompts.ExplainPrompt(question, string(shape), RenderResult(result, explainPreviewRows)),
		MaxTokens:   512,
		Temperature: 0.2,
		Timeout:     s.timeout,
	})
	if err != nil || strings.TrimSpace(answer) == "" {
		s.logger.Debug("explanation unavailable, using mechanical description",
			zap.Error(err))
		s.tracer.RecordMetric("sqlgen.explain.fallback", 1.0, nil)
		span.Status = observability.Status{Code: observability.StatusOK, Message: "mechanical fallback"}
		return MechanicalDescription(result, shape)
	}

	span.Status = observability.Status{Code: observability.StatusOK}
	return strings.TrimSpace(answer)
}

// CleanSQL strips markdown fences, labels, and trailing semicolons from raw
// LLM output.
func CleanSQL(raw string) string {
	sql := strings.TrimSpace(raw)

	if strings.HasPrefix(sql, "```") {
		sql = strings.TrimPrefix(sql, "```sql")
		sql = strings.TrimPrefix(sql, "```SQL")
		sql = strings.TrimPrefix(sql, "```")
		if idx := strings.Index(sql, "```"); idx >= 0 {
			sql = sql[:idx]
		}
	}

	sql = strings.TrimSpace(sql)
	sql = strings.TrimSuffix(sql, ";")
	return strings.TrimSpace(sql)
}

// MechanicalDescription is the templated fallback answer.
func MechanicalDescription(result *types.QueryResult, shape ResultShape) string {
	if result == nil || result.RowCount == 0 {
		return "The query returned no rows."
	}
	if shape == ShapeScalar && len(result.Rows) == 1 && len(result.Rows[0]) == 1 {
		return fmt.Sprintf("The result is %v.", result.Rows[0][0])
	}
	if result.RowCount == 1 {
		return "The query returned 1 row."
	}
	return fmt.Sprintf("The query returned %d rows.", result.RowCount)
}

// RenderResult renders a result set as compact text for embedding in an
// explanation prompt.
func RenderResult(result *types.QueryResult, maxRows int) string {
	if result == nil || len(result.Columns) == 0 {
		return "(empty)"
	}

	var b strings.Builder
	b.WriteString(strings.Join(result.Columns, " | "))
	b.WriteString("\n")

	n := len(result.Rows)
	if n > maxRows {
		n = maxRows
	}
	for i := 0; i < n; i++ {
		cells := make([]string, len(result.Rows[i]))
		for j, v := range result.Rows[i] {
			cells[j] = fmt.Sprintf("%v", v)
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	if result.RowCount > n {
		fmt.Fprintf(&b, "... (%d rows total)\n", result.RowCount)
	}
	return strings.TrimRight(b.String(), "\n")
}
