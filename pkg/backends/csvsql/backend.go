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

// Package csvsql answers questions about CSV data by generating SQL and
// running it against the file's in-memory relational materialization.
package csvsql

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/observability"
	"github.com/teradata-labs/spindle/pkg/sqlgen"
	"github.com/teradata-labs/spindle/pkg/tabular"
	"github.com/teradata-labs/spindle/pkg/types"
)

// Config holds configuration for the CSV-SQL backend.
type Config struct {
	// Generator turns questions into SQL. Required.
	Generator *sqlgen.Service

	// Logger for backend operations.
	Logger *zap.Logger

	// Tracer for spans and metrics.
	Tracer observability.Tracer
}

// Backend answers filtering, joining, and aggregation questions by running
// generated SQL against a file's sqlite materialization. Only read-only
// statements ever reach the engine.
type Backend struct {
	generator *sqlgen.Service
	logger    *zap.Logger
	tracer    observability.Tracer
}

// NewBackend creates a CSV-SQL backend.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("Generator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}

	return &Backend{
		generator: cfg.Generator,
		logger:    cfg.Logger,
		tracer:    cfg.Tracer,
	}, nil
}

// Execute answers a question about the handle's data. The generated SQL is
// returned on the result for transparency even though execution already
// happened.
func (b *Backend) Execute(ctx context.Context, question string, handle *tabular.Handle) (*types.QueryResult, error) {
	ctx, span := b.tracer.StartSpan(ctx, "csvsql.execute",
		observability.WithAttribute("file_ref", handle.FileRef()))
	defer b.tracer.EndSpan(span)

	query, err := b.generator.GenerateSQL(ctx, question, handle.SchemaDescription())
	if err != nil {
		return nil, err
	}

	if err := sqlgen.EnsureReadOnly(query); err != nil {
		b.logger.Warn("generated statement rejected",
			zap.String("file", handle.FileRef()),
			zap.String("sql", query),
			zap.Error(err))
		return nil, &types.GenerationError{Stage: "sql", Err: err}
	}
	span.SetAttribute("sql", query)

	table, err := handle.Table(ctx)
	if err != nil {
		return nil, &types.ExecutionError{Backend: types.BackendCSVSQL, SQL: query, Err: err}
	}

	cols, rows, err := table.Query(ctx, query)
	if err != nil {
		return nil, &types.ExecutionError{Backend: types.BackendCSVSQL, SQL: query, Err: err}
	}

	b.logger.Debug("query executed",
		zap.String("file", handle.FileRef()),
		zap.Int("rows", len(rows)))

	return &types.QueryResult{
		Columns:      cols,
		Rows:         rows,
		RowCount:     len(rows),
		GeneratedSQL: query,
	}, nil
}
