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

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/types"
)

// defaultOwner scopes materializations when the caller sends no owner.
const defaultOwner = "default"

// queryRequest is the POST /v1/query body.
type queryRequest struct {
	Question         string `json:"question"`
	Source           string `json:"source"`
	FileRef          string `json:"file_ref,omitempty"`
	ConnectionRef    string `json:"connection_ref,omitempty"`
	RequestedBackend string `json:"requested_backend,omitempty"`
	Preference       string `json:"preference,omitempty"`
	Owner            string `json:"owner,omitempty"`
}

// errorResponse is the uniform error body. Retryable tells the caller
// whether resending the same request could succeed.
type errorResponse struct {
	Error        string `json:"error"`
	Kind         string `json:"kind"`
	Retryable    bool   `json:"retryable"`
	GeneratedSQL string `json:"generated_sql,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var body queryRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, &types.InvalidRequestError{Reason: "malformed JSON body"})
		return
	}
	if body.Owner == "" {
		body.Owner = defaultOwner
	}

	backend, err := types.ParseBackendKind(body.RequestedBackend)
	if err != nil {
		s.writeError(w, &types.InvalidRequestError{Reason: err.Error()})
		return
	}

	req := &types.QueryRequest{
		Question:         body.Question,
		Source:           types.SourceKind(body.Source),
		FileRef:          body.FileRef,
		ConnectionRef:    body.ConnectionRef,
		Owner:            body.Owner,
		Preference:       types.Preference(body.Preference),
		RequestedBackend: backend,
	}

	result, err := s.dispatcher.Handle(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleConnections(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"connections": s.hub.Connections(),
	})
}

func (s *Server) handleConnectionStatus(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("ref")
	s.writeJSON(w, http.StatusOK, map[string]any{
		"connection_ref": ref,
		"connected":      s.hub.IsConnected(ref),
	})
}

func (s *Server) handleFileRelease(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		owner = defaultOwner
	}
	s.dispatcher.Release(owner, r.PathValue("ref"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

// writeError maps the error taxonomy onto HTTP statuses. Callers can
// branch on the "kind" field without parsing messages.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal"
	var generatedSQL string

	var (
		invalid     *types.InvalidRequestError
		isolation   *types.IsolationViolationError
		notFound    *types.NotFoundError
		parse       *types.ParseError
		capacity    *types.CapacityError
		generation  *types.GenerationError
		execution   *types.ExecutionError
		unavailable *types.AgentUnavailableError
	)
	switch {
	case errors.As(err, &invalid):
		status, kind = http.StatusBadRequest, "invalid_request"
	case errors.As(err, &isolation):
		status, kind = http.StatusForbidden, "isolation_violation"
	case errors.As(err, &notFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.As(err, &parse):
		status, kind = http.StatusUnprocessableEntity, "parse_error"
	case errors.As(err, &capacity):
		status, kind = http.StatusRequestEntityTooLarge, "capacity_exceeded"
	case errors.As(err, &generation):
		status, kind = http.StatusUnprocessableEntity, "generation_error"
	case errors.As(err, &execution):
		status, kind = http.StatusUnprocessableEntity, "execution_error"
		generatedSQL = execution.SQL
	case errors.As(err, &unavailable):
		status, kind = http.StatusServiceUnavailable, "agent_unavailable"
		w.Header().Set("Retry-After", "5")
	}

	s.logger.Info("request failed",
		zap.String("kind", kind),
		zap.Int("status", status),
		zap.Error(err))

	s.writeJSON(w, status, errorResponse{
		Error:        err.Error(),
		Kind:         kind,
		Retryable:    types.Retryable(err),
		GeneratedSQL: generatedSQL,
	})
}
