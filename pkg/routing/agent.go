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

// Package routing decides which execution backend serves an auto-routed
// question.
//
// The agent consults the LLM for a recommendation but never trusts it: the
// response is schema-validated, the recommended service is checked against
// the candidate set derived from the request's source, and any failure along
// the way collapses to a deterministic default. Decide always returns a
// valid decision; in particular, a CSV-sourced request can never come back
// routed to the database backend, no matter what the model says.
package routing

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

const (
	// FallbackReason is the reasoning attached to deterministic fallback
	// decisions.
	FallbackReason = "fallback: routing unavailable"

	// OverrideAnnotation is appended to the reasoning when an LLM
	// recommendation outside the candidate set is discarded.
	OverrideAnnotation = "service isolation override applied"

	// DefaultTimeout bounds the routing LLM call. Routing is on the hot
	// path of every auto request, so the bound is short.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxTokens bounds the routing response. A recommendation is a
	// few hundred tokens at most.
	DefaultMaxTokens = 512
)

// Soft complexity signals folded into the routing prompt. These bias the
// recommendation toward the programmatic backend; they are hints, not a
// classifier, and the decision never depends on any one of them.
var statisticalHints = []string{
	"correlation", "correlate", "pivot", "distribution", "median",
	"standard deviation", "variance", "percentile", "regression",
	"statistical", "statistics", "outlier",
}

// Agent makes routing decisions for auto-routed requests.
type Agent struct {
	provider  llm.Provider
	logger    *zap.Logger
	tracer    observability.Tracer
	timeout   time.Duration
	maxTokens int
}

// Config holds configuration for the routing agent.
type Config struct {
	// Provider is the LLM used for recommendations. Required.
	Provider llm.Provider

	// Logger for routing operations.
	Logger *zap.Logger

	// Tracer for spans and metrics.
	Tracer observability.Tracer

	// Timeout bounds each routing LLM call. Default: 10s.
	Timeout time.Duration

	// MaxTokens bounds the routing response. Default: 512.
	MaxTokens int
}

// NewAgent creates a routing agent.
func NewAgent(cfg Config) (*Agent, error) {
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
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	return &Agent{
		provider:  cfg.Provider,
		logger:    cfg.Logger,
		tracer:    cfg.Tracer,
		timeout:   cfg.Timeout,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Decide returns the routing decision for the request.
//
// Decide never fails for LLM or isolation reasons: LLM errors map to the
// deterministic default, and out-of-candidate-set recommendations are
// discarded and substituted. The returned decision's backend is always a
// member of the request's candidate set.
func (a *Agent) Decide(ctx context.Context, req *types.QueryRequest) (*types.RoutingDecision, error) {
	ctx, span := a.tracer.StartSpan(ctx, "routing.decide",
		observability.WithAttribute("source", string(req.Source)))
	defer a.tracer.EndSpan(span)

	if strings.TrimSpace(req.Question) == "" {
		return nil, &types.RoutingFailure{Err: fmt.Errorf("question is empty")}
	}

	candidates := req.CandidateBackends()

	rec, err := a.recommend(ctx, req, candidates)
	if err != nil {
		// LLM unavailable, timed out, or returned garbage: never
		// propagate, always fall back.
		a.logger.Warn("routing recommendation unavailable, using deterministic fallback",
			zap.String("source", string(req.Source)),
			zap.Error(err))
		a.tracer.RecordMetric("routing.fallback", 1.0, map[string]string{
			"source": string(req.Source),
		})
		decision := a.fallbackDecision(req)
		span.SetAttribute("backend", string(decision.Backend))
		span.SetAttribute("fallback", true)
		span.Status = observability.Status{Code: observability.StatusOK, Message: "fallback"}
		return decision, nil
	}

	decision := a.validate(req, candidates, rec)
	span.SetAttribute("backend", string(decision.Backend))
	span.SetAttribute("fallback", decision.Fallback)
	span.Status = observability.Status{Code: observability.StatusOK}
	return decision, nil
}

// recommend runs the LLM call and parses its structured response.
func (a *Agent) recommend(ctx context.Context, req *types.QueryRequest, candidates []types.BackendKind) (*recommendation, error) {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = string(c)
	}

	raw, err := a.provider.Complete(ctx, llm.CompletionRequest{
		System:      prompts.RoutingSystem,
		Prompt:      prompts.RoutingPrompt(req.Question, names, a.contextHints(req)),
		MaxTokens:   a.maxTokens,
		Temperature: 0.0,
		Timeout:     a.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM call failed: %w", err)
	}

	rec, err := parseRecommendation(raw)
	if err != nil {
		return nil, fmt.Errorf("unparseable recommendation: %w", err)
	}
	return rec, nil
}

// validate applies the post-decision isolation check. It runs on every
// successfully parsed recommendation, regardless of how plausible it looks:
// the isolation rule must hold even against adversarial model output.
func (a *Agent) validate(req *types.QueryRequest, candidates []types.BackendKind, rec *recommendation) *types.RoutingDecision {
	recommended, err := types.ParseBackendKind(rec.RecommendedService)
	permitted := err == nil && recommended.Executable() && contains(candidates, recommended)

	if !permitted {
		a.logger.Warn("discarding routing recommendation outside candidate set",
			zap.String("recommended", rec.RecommendedService),
			zap.String("source", string(req.Source)))
		a.tracer.RecordMetric("routing.isolation_override", 1.0, map[string]string{
			"source":      string(req.Source),
			"recommended": rec.RecommendedService,
		})
		decision := a.fallbackDecision(req)
		decision.Reasoning = decision.Reasoning + "; " + OverrideAnnotation
		return decision
	}

	confidence := rec.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &types.RoutingDecision{
		Backend:    recommended,
		Reasoning:  rec.Reasoning,
		Confidence: confidence,
		KeyFactors: rec.KeyFactors,
	}
}

// fallbackDecision is the deterministic default: csv_sql for CSV sources,
// database for database sources.
func (a *Agent) fallbackDecision(req *types.QueryRequest) *types.RoutingDecision {
	backend := types.BackendCSVSQL
	if req.Source == types.SourceDatabase {
		backend = types.BackendDatabase
	}
	return &types.RoutingDecision{
		Backend:    backend,
		Reasoning:  FallbackReason,
		Confidence: 0,
		KeyFactors: []string{"deterministic_default"},
		Fallback:   true,
	}
}

// contextHints assembles the soft signals embedded in the routing prompt.
func (a *Agent) contextHints(req *types.QueryRequest) []string {
	var hints []string

	if req.FileSizeHint > 0 {
		hints = append(hints, fmt.Sprintf("source file size: %d bytes", req.FileSizeHint))
	}
	switch req.Preference {
	case types.PreferSQL:
		hints = append(hints, "the user prefers SQL-style execution")
	case types.PreferProgrammatic:
		hints = append(hints, "the user prefers programmatic analysis")
	}

	question := strings.ToLower(req.Question)
	for _, kw := range statisticalHints {
		if strings.Contains(question, kw) {
			hints = append(hints, "the question mentions statistical analysis ("+kw+"), which the csv service handles natively")
			break
		}
	}

	return hints
}

func contains(set []types.BackendKind, kind types.BackendKind) bool {
	for _, k := range set {
		if k == kind {
			return true
		}
	}
	return false
}
