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

// Package dispatch ties validation, routing, backend execution, and result
// formatting into the one entry point request handlers call.
package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/observability"
	"github.com/teradata-labs/spindle/pkg/tabular"
	"github.com/teradata-labs/spindle/pkg/types"
)

// Router produces a routing decision for an auto-routed request.
type Router interface {
	Decide(ctx context.Context, req *types.QueryRequest) (*types.RoutingDecision, error)
}

// FileBackend executes a question against a materialized CSV file. The
// analysis and CSV-SQL backends share this shape.
type FileBackend interface {
	Execute(ctx context.Context, question string, handle *tabular.Handle) (*types.QueryResult, error)
}

// DatabaseBackend executes a question against a remote database by
// connection reference.
type DatabaseBackend interface {
	Execute(ctx context.Context, question, connectionRef string) (*types.QueryResult, error)
}

// Config holds every collaborator the dispatcher needs. All fields except
// Logger and Tracer are required.
type Config struct {
	// Arena materializes CSV files for the file-backed backends.
	Arena *tabular.Arena

	// Router decides the backend for auto-routed requests.
	Router Router

	// Analysis is the programmatic-analysis backend.
	Analysis FileBackend

	// CSVSQL is the SQL-over-CSV backend.
	CSVSQL FileBackend

	// Database is the remote-database backend.
	Database DatabaseBackend

	// Formatter normalizes and explains backend results.
	Formatter *Formatter

	// Logger for dispatch operations.
	Logger *zap.Logger

	// Tracer for spans and metrics.
	Tracer observability.Tracer
}

// Dispatcher routes one request to one backend and formats the result.
// It holds no per-request state and is safe for concurrent use.
type Dispatcher struct {
	arena     *tabular.Arena
	router    Router
	analysis  FileBackend
	csvsql    FileBackend
	database  DatabaseBackend
	formatter *Formatter
	logger    *zap.Logger
	tracer    observability.Tracer
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	switch {
	case cfg.Arena == nil:
		return nil, fmt.Errorf("Arena is required")
	case cfg.Router == nil:
		return nil, fmt.Errorf("Router is required")
	case cfg.Analysis == nil:
		return nil, fmt.Errorf("Analysis backend is required")
	case cfg.CSVSQL == nil:
		return nil, fmt.Errorf("CSVSQL backend is required")
	case cfg.Database == nil:
		return nil, fmt.Errorf("Database backend is required")
	case cfg.Formatter == nil:
		return nil, fmt.Errorf("Formatter is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}

	return &Dispatcher{
		arena:     cfg.Arena,
		router:    cfg.Router,
		analysis:  cfg.Analysis,
		csvsql:    cfg.CSVSQL,
		database:  cfg.Database,
		formatter: cfg.Formatter,
		logger:    cfg.Logger,
		tracer:    cfg.Tracer,
	}, nil
}

// Handle validates, routes, executes, and formats one request.
//
// Explicit backend requests that violate the csv-to-database isolation
// rule fail with IsolationViolationError; they are never silently
// corrected. Once a backend starts executing there is no re-routing: its
// error surfaces as-is, tagged retryable only for agent unavailability.
func (d *Dispatcher) Handle(ctx context.Context, req *types.QueryRequest) (*types.QueryResult, error) {
	ctx, span := d.tracer.StartSpan(ctx, "dispatch.handle")
	defer d.tracer.EndSpan(span)

	requestID := uuid.New().String()
	span.SetAttribute("request_id", requestID)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	backend, decision, err := d.chooseBackend(ctx, req)
	if err != nil {
		return nil, err
	}
	span.SetAttribute("backend", string(backend))

	d.logger.Info("dispatching query",
		zap.String("request_id", requestID),
		zap.String("backend", string(backend)),
		zap.String("source", string(req.Source)),
		zap.Bool("auto_routed", decision != nil))

	result, err := d.execute(ctx, backend, req)
	if err != nil {
		span.Status = observability.Status{Code: observability.StatusError, Message: err.Error()}
		d.tracer.RecordMetric("dispatch.failures", 1.0, map[string]string{"backend": string(backend)})
		return nil, err
	}

	result.Routing = decision
	d.formatter.Format(ctx, req.Question, result)
	return result, nil
}

// chooseBackend resolves the executing backend, consulting the router
// only for auto-routed requests.
func (d *Dispatcher) chooseBackend(ctx context.Context, req *types.QueryRequest) (types.BackendKind, *types.RoutingDecision, error) {
	if req.RequestedBackend != "" && req.RequestedBackend != types.BackendAuto {
		if !req.PermittedBackend(req.RequestedBackend) {
			return "", nil, &types.IsolationViolationError{
				Source:    req.Source,
				Requested: req.RequestedBackend,
			}
		}
		// File-backed backends need a file; a database-sourced request
		// carries none, so honoring the override is impossible.
		if req.RequestedBackend != types.BackendDatabase && req.FileRef == "" {
			return "", nil, &types.InvalidRequestError{
				Reason: fmt.Sprintf("backend %q requested but no file reference supplied", req.RequestedBackend),
			}
		}
		return req.RequestedBackend, nil, nil
	}

	decision, err := d.router.Decide(ctx, req)
	if err != nil {
		// Only an empty question reaches here; routing otherwise always
		// falls back internally.
		return "", nil, err
	}

	// A routed csv backend needs a file. A database-sourced request
	// carries no file reference, so the database backend is the only
	// executable choice; correct before execution begins.
	if decision.Backend != types.BackendDatabase && req.FileRef == "" {
		d.logger.Warn("routed backend has no file to run against, using database",
			zap.String("routed", string(decision.Backend)))
		decision.Backend = types.BackendDatabase
		decision.Fallback = true
	}
	return decision.Backend, decision, nil
}

func (d *Dispatcher) execute(ctx context.Context, backend types.BackendKind, req *types.QueryRequest) (*types.QueryResult, error) {
	switch backend {
	case types.BackendAnalysis, types.BackendCSVSQL:
		handle, err := d.arena.Acquire(ctx, req.Owner, req.FileRef)
		if err != nil {
			return nil, err
		}
		defer handle.Release()
		if backend == types.BackendAnalysis {
			return d.analysis.Execute(ctx, req.Question, handle)
		}
		return d.csvsql.Execute(ctx, req.Question, handle)
	case types.BackendDatabase:
		return d.database.Execute(ctx, req.Question, req.ConnectionRef)
	default:
		return nil, &types.InvalidRequestError{Reason: fmt.Sprintf("unknown backend %q", backend)}
	}
}

// Release drops the materializations of a file, freeing their memory.
func (d *Dispatcher) Release(owner, fileRef string) {
	d.arena.Drop(owner, fileRef)
}
