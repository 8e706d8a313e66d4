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

// Package types contains the shared request, decision, and result types used
// across the spindle routing and execution packages. It has no dependencies
// on the packages that consume it, which keeps the backend, routing, and
// dispatch packages free of import cycles.
package types

import (
	"fmt"
	"strings"
)

// BackendKind identifies one of the executable query strategies.
//
// It is a closed set: dispatch switches over it exhaustively, so adding a
// backend is a compile-visible change rather than a string comparison buried
// in a handler.
type BackendKind string

const (
	// BackendAnalysis answers questions programmatically against the
	// materialized columnar frame, without SQL.
	BackendAnalysis BackendKind = "csv"

	// BackendCSVSQL runs generated SQL against the in-memory relational
	// table built from the CSV.
	BackendCSVSQL BackendKind = "csv_sql"

	// BackendDatabase forwards generated SQL to a customer-deployed agent
	// over its transport channel.
	BackendDatabase BackendKind = "database"

	// BackendAuto is a request-only selector: the routing agent picks the
	// executing backend. It is never a valid executing backend itself.
	BackendAuto BackendKind = "auto"
)

// ParseBackendKind converts a wire tag into a BackendKind.
func ParseBackendKind(s string) (BackendKind, error) {
	switch BackendKind(strings.ToLower(strings.TrimSpace(s))) {
	case BackendAnalysis:
		return BackendAnalysis, nil
	case BackendCSVSQL:
		return BackendCSVSQL, nil
	case BackendDatabase:
		return BackendDatabase, nil
	case BackendAuto, "":
		return BackendAuto, nil
	default:
		return "", fmt.Errorf("unknown backend kind: %q", s)
	}
}

// Executable reports whether the kind names a real backend (not auto).
func (b BackendKind) Executable() bool {
	switch b {
	case BackendAnalysis, BackendCSVSQL, BackendDatabase:
		return true
	default:
		return false
	}
}

// SourceKind identifies where the data behind a request lives.
type SourceKind string

const (
	// SourceCSV means the request targets an uploaded CSV file.
	SourceCSV SourceKind = "csv"

	// SourceDatabase means the request targets a remote database reachable
	// through a deployed agent.
	SourceDatabase SourceKind = "database"
)

// Preference is an advisory hint from the user about execution style.
// It biases routing; it never overrides the isolation rules.
type Preference string

const (
	PreferenceNone     Preference = ""
	PreferSQL          Preference = "sql"
	PreferProgrammatic Preference = "programmatic"
)

// QueryRequest is the ephemeral, per-question context handed to the
// dispatcher. Exactly one of FileRef and ConnectionRef is set, matching
// SourceKind.
type QueryRequest struct {
	// Question is the user's natural-language question.
	Question string

	// Source identifies whether this request targets a CSV or a database.
	Source SourceKind

	// FileRef resolves to a stored CSV (only when Source is SourceCSV).
	FileRef string

	// ConnectionRef resolves to a live agent connection (only when Source
	// is SourceDatabase).
	ConnectionRef string

	// Owner scopes materializations and storage lookups to the caller.
	Owner string

	// Preference is the user's stated execution-style hint, advisory only.
	Preference Preference

	// RequestedBackend is an explicit backend override. Empty or
	// BackendAuto means the routing agent decides.
	RequestedBackend BackendKind

	// FileSizeHint is the stored size of the referenced file in bytes,
	// zero when unknown. Fed into the routing prompt as a soft signal.
	FileSizeHint int64
}

// Validate checks the structural invariants of the request: a non-empty
// question and exactly one source reference, consistent with Source.
func (r *QueryRequest) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return &InvalidRequestError{Reason: "question is empty"}
	}
	switch r.Source {
	case SourceCSV:
		if r.FileRef == "" {
			return &InvalidRequestError{Reason: "source is csv but no file reference supplied"}
		}
		if r.ConnectionRef != "" {
			return &InvalidRequestError{Reason: "source is csv but a connection reference was supplied"}
		}
	case SourceDatabase:
		if r.ConnectionRef == "" {
			return &InvalidRequestError{Reason: "source is database but no connection reference supplied"}
		}
		if r.FileRef != "" {
			return &InvalidRequestError{Reason: "source is database but a file reference was supplied"}
		}
	default:
		return &InvalidRequestError{Reason: fmt.Sprintf("unknown source kind: %q", r.Source)}
	}
	if r.RequestedBackend != "" && r.RequestedBackend != BackendAuto && !r.RequestedBackend.Executable() {
		return &InvalidRequestError{Reason: fmt.Sprintf("unknown requested backend: %q", r.RequestedBackend)}
	}
	return nil
}

// CandidateBackends returns the backends permitted for this request's
// source. This is the isolation rule in constructive form: the database
// backend is never a candidate for a CSV-sourced request.
func (r *QueryRequest) CandidateBackends() []BackendKind {
	if r.Source == SourceCSV {
		return []BackendKind{BackendAnalysis, BackendCSVSQL}
	}
	return []BackendKind{BackendAnalysis, BackendCSVSQL, BackendDatabase}
}

// PermittedBackend reports whether kind is in the request's candidate set.
func (r *QueryRequest) PermittedBackend(kind BackendKind) bool {
	for _, c := range r.CandidateBackends() {
		if c == kind {
			return true
		}
	}
	return false
}

// RoutingDecision is produced once per auto-routed request.
type RoutingDecision struct {
	// Backend is the chosen executing backend, always a member of the
	// request's candidate set.
	Backend BackendKind `json:"service_used"`

	// Reasoning is a free-text explanation of the choice.
	Reasoning string `json:"reasoning"`

	// Confidence is in [0,1]. Zero when the decision is a deterministic
	// fallback rather than a model recommendation.
	Confidence float64 `json:"confidence"`

	// KeyFactors are short tags describing what drove the decision,
	// e.g. "simple_query", "large_dataset".
	KeyFactors []string `json:"key_factors"`

	// Fallback is true when the decision came from the deterministic
	// default rather than a model recommendation.
	Fallback bool `json:"-"`
}

// QueryResult is the uniform output of every backend.
type QueryResult struct {
	// Columns are the ordered result column names.
	Columns []string `json:"columns"`

	// Rows are the (possibly preview-truncated) result rows. Each row has
	// the same arity as Columns.
	Rows [][]any `json:"rows"`

	// RowCount is the true number of result rows before any truncation
	// for display.
	RowCount int `json:"row_count"`

	// Answer is the natural-language summary of the result.
	Answer string `json:"natural_language_answer"`

	// GeneratedSQL is the SQL actually executed, empty for purely
	// programmatic backends.
	GeneratedSQL string `json:"generated_sql"`

	// Routing describes the routing decision. Nil unless the request was
	// auto-routed.
	Routing *RoutingDecision `json:"routing_info,omitempty"`
}
