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

// Package dbagent answers questions about remote databases by generating
// SQL and submitting it to the database's registered agent. Statements are
// checked for read-only shape before they leave the process; the remote
// side is expected to enforce its own guard as well.
package dbagent

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/observability"
	"github.com/teradata-labs/spindle/pkg/sqlgen"
	"github.com/teradata-labs/spindle/pkg/types"
)

// Transport moves statements to remote agents. The agent hub is the
// production implementation.
type Transport interface {
	// IsConnected reports whether an agent is live for the reference.
	IsConnected(ref string) bool

	// FetchSchema returns the schema snapshot for the connection.
	FetchSchema(ctx context.Context, ref string) (string, error)

	// SubmitQuery runs one read-only statement on the remote database.
	SubmitQuery(ctx context.Context, ref, sql string) ([]string, [][]any, error)
}

// Schema cache defaults.
const (
	defaultSchemaCacheSize = 128
	defaultSchemaCacheTTL  = 5 * time.Minute
)

// Config holds configuration for the database backend.
type Config struct {
	// Transport delivers statements to agents. Required.
	Transport Transport

	// Generator turns questions into SQL. Required.
	Generator *sqlgen.Service

	// SchemaCacheSize bounds the cached connection schemas. Default: 128.
	SchemaCacheSize int

	// SchemaCacheTTL bounds how long a schema snapshot is reused before
	// the agent is asked again. Default: 5m.
	SchemaCacheTTL time.Duration

	// Logger for backend operations.
	Logger *zap.Logger

	// Tracer for spans and metrics.
	Tracer observability.Tracer
}

// Backend answers questions against remote databases through their agents.
type Backend struct {
	transport   Transport
	generator   *sqlgen.Service
	schemaCache *lru.LRU[string, string]
	logger      *zap.Logger
	tracer      observability.Tracer
}

// NewBackend creates a database backend.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("Transport is required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("Generator is required")
	}
	if cfg.SchemaCacheSize == 0 {
		cfg.SchemaCacheSize = defaultSchemaCacheSize
	}
	if cfg.SchemaCacheTTL == 0 {
		cfg.SchemaCacheTTL = defaultSchemaCacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}

	return &Backend{
		transport:   cfg.Transport,
		generator:   cfg.Generator,
		schemaCache: lru.NewLRU[string, string](cfg.SchemaCacheSize, nil, cfg.SchemaCacheTTL),
		logger:      cfg.Logger,
		tracer:      cfg.Tracer,
	}, nil
}

// Execute answers a question against the database behind connectionRef.
// An offline agent surfaces as AgentUnavailableError, the one retryable
// failure in the system.
func (b *Backend) Execute(ctx context.Context, question, connectionRef string) (*types.QueryResult, error) {
	ctx, span := b.tracer.StartSpan(ctx, "dbagent.execute",
		observability.WithAttribute("connection", connectionRef))
	defer b.tracer.EndSpan(span)

	if !b.transport.IsConnected(connectionRef) {
		return nil, &types.AgentUnavailableError{ConnectionRef: connectionRef}
	}

	schema, err := b.schema(ctx, connectionRef)
	if err != nil {
		return nil, err
	}

	query, err := b.generator.GenerateSQL(ctx, question, schema)
	if err != nil {
		return nil, err
	}

	if err := sqlgen.EnsureReadOnly(query); err != nil {
		b.logger.Warn("generated statement rejected before transmission",
			zap.String("connection", connectionRef),
			zap.String("sql", query),
			zap.Error(err))
		return nil, &types.GenerationError{Stage: "sql", Err: err}
	}
	span.SetAttribute("sql", query)

	cols, rows, err := b.transport.SubmitQuery(ctx, connectionRef, query)
	if err != nil {
		if types.Retryable(err) {
			return nil, err
		}
		return nil, &types.ExecutionError{Backend: types.BackendDatabase, SQL: query, Err: err}
	}

	b.logger.Debug("remote query executed",
		zap.String("connection", connectionRef),
		zap.Int("rows", len(rows)))

	return &types.QueryResult{
		Columns:      cols,
		Rows:         rows,
		RowCount:     len(rows),
		GeneratedSQL: query,
	}, nil
}

// schema returns the connection's schema description, cached briefly so
// repeated questions do not re-interrogate the agent.
func (b *Backend) schema(ctx context.Context, ref string) (string, error) {
	if cached, ok := b.schemaCache.Get(ref); ok {
		return cached, nil
	}
	schema, err := b.transport.FetchSchema(ctx, ref)
	if err != nil {
		return "", err
	}
	b.schemaCache.Add(ref, schema)
	return schema, nil
}

// InvalidateSchema drops the cached schema for a connection, forcing the
// next question to fetch a fresh snapshot.
func (b *Backend) InvalidateSchema(ref string) {
	b.schemaCache.Remove(ref)
}
