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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/spindle/pkg/agenthub"
	"github.com/teradata-labs/spindle/pkg/backends/analysis"
	"github.com/teradata-labs/spindle/pkg/backends/csvsql"
	"github.com/teradata-labs/spindle/pkg/backends/dbagent"
	"github.com/teradata-labs/spindle/pkg/dispatch"
	"github.com/teradata-labs/spindle/pkg/llm"
	"github.com/teradata-labs/spindle/pkg/prompts"
	"github.com/teradata-labs/spindle/pkg/routing"
	"github.com/teradata-labs/spindle/pkg/sqlgen"
	"github.com/teradata-labs/spindle/pkg/storage"
	"github.com/teradata-labs/spindle/pkg/tabular"
)

// cannedProvider keys responses on the system prompt so one provider can
// serve routing, generation, and explanation.
type cannedProvider struct {
	routing string
	sql     string
	explain string
}

func (p *cannedProvider) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	switch req.System {
	case prompts.RoutingSystem:
		return p.routing, nil
	case prompts.SQLSystem:
		return p.sql, nil
	case prompts.ExplainSystem:
		return p.explain, nil
	default:
		return "{}", nil
	}
}

func (p *cannedProvider) Name() string  { return "canned" }
func (p *cannedProvider) Model() string { return "canned-model" }

func newTestServer(t *testing.T, provider llm.Provider, files map[string]string) *Server {
	t.Helper()
	logger := zaptest.NewLogger(t)

	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	store, err := storage.NewFSStore(dir)
	require.NoError(t, err)
	arena, err := tabular.NewArena(tabular.ArenaConfig{Store: store, Logger: logger})
	require.NoError(t, err)

	hub := agenthub.NewHub(agenthub.Config{Logger: logger})
	gen, err := sqlgen.NewService(sqlgen.Config{Provider: provider, Logger: logger})
	require.NoError(t, err)
	router, err := routing.NewAgent(routing.Config{Provider: provider, Logger: logger})
	require.NoError(t, err)
	analysisBackend, err := analysis.NewBackend(analysis.Config{Provider: provider, Logger: logger})
	require.NoError(t, err)
	csvsqlBackend, err := csvsql.NewBackend(csvsql.Config{Generator: gen, Logger: logger})
	require.NoError(t, err)
	dbBackend, err := dbagent.NewBackend(dbagent.Config{Transport: hub, Generator: gen, Logger: logger})
	require.NoError(t, err)

	dispatcher, err := dispatch.NewDispatcher(dispatch.Config{
		Arena:     arena,
		Router:    router,
		Analysis:  analysisBackend,
		CSVSQL:    csvsqlBackend,
		Database:  dbBackend,
		Formatter: dispatch.NewFormatter(dispatch.FormatterConfig{Explainer: gen, Logger: logger}),
		Logger:    logger,
	})
	require.NoError(t, err)

	srv, err := NewServer(Config{
		Addr:       "127.0.0.1:0",
		Dispatcher: dispatcher,
		Hub:        hub,
		CORS:       DefaultCORSConfig(),
		Logger:     logger,
	})
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

const deptCSV = "department,salary\nEngineering,50000\nMarketing,60000\n"

func TestServer_QueryHappyPath(t *testing.T) {
	provider := &cannedProvider{
		routing: `{"recommended_service": "csv_sql", "reasoning": "simple", "confidence": 0.9}`,
		sql:     "SELECT AVG(salary) FROM data",
		explain: "The average salary is 55000.",
	}
	srv := newTestServer(t, provider, map[string]string{"dept.csv": deptCSV})

	rec := doJSON(t, srv, http.MethodPost, "/v1/query",
		`{"question": "What is the average salary?", "source": "csv", "file_ref": "dept.csv"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["row_count"])
	assert.Equal(t, "The average salary is 55000.", resp["natural_language_answer"])
	assert.Equal(t, "SELECT AVG(salary) FROM data", resp["generated_sql"])

	routingInfo, ok := resp["routing_info"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "csv_sql", routingInfo["service_used"])
}

func TestServer_IsolationViolation(t *testing.T) {
	srv := newTestServer(t, &cannedProvider{}, map[string]string{"dept.csv": deptCSV})

	rec := doJSON(t, srv, http.MethodPost, "/v1/query",
		`{"question": "q", "source": "csv", "file_ref": "dept.csv", "requested_backend": "database"}`)

	require.Equal(t, http.StatusForbidden, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "isolation_violation", resp.Kind)
	assert.False(t, resp.Retryable)
}

func TestServer_AgentOffline(t *testing.T) {
	provider := &cannedProvider{
		routing: `{"recommended_service": "database", "reasoning": "r", "confidence": 0.9}`,
		sql:     "SELECT 1",
	}
	srv := newTestServer(t, provider, nil)

	rec := doJSON(t, srv, http.MethodPost, "/v1/query",
		`{"question": "q", "source": "database", "connection_ref": "warehouse"}`)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "agent_unavailable", resp.Kind)
	assert.True(t, resp.Retryable)
}

func TestServer_BadRequests(t *testing.T) {
	srv := newTestServer(t, &cannedProvider{}, nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"question": `},
		{name: "unknown backend", body: `{"question": "q", "source": "csv", "file_ref": "a.csv", "requested_backend": "spark"}`},
		{name: "no reference", body: `{"question": "q", "source": "csv"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/v1/query", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "invalid_request", resp.Kind)
		})
	}
}

func TestServer_MissingFileIs404(t *testing.T) {
	provider := &cannedProvider{
		routing: `{"recommended_service": "csv_sql", "reasoning": "r", "confidence": 0.9}`,
	}
	srv := newTestServer(t, provider, nil)

	rec := doJSON(t, srv, http.MethodPost, "/v1/query",
		`{"question": "q", "source": "csv", "file_ref": "nope.csv"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ConnectionStatus(t *testing.T) {
	srv := newTestServer(t, &cannedProvider{}, nil)

	rec := doJSON(t, srv, http.MethodGet, "/v1/connections/warehouse/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "warehouse", resp["connection_ref"])
	assert.Equal(t, false, resp["connected"])

	rec = doJSON(t, srv, http.MethodGet, "/v1/connections", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_FileRelease(t *testing.T) {
	srv := newTestServer(t, &cannedProvider{}, nil)

	rec := doJSON(t, srv, http.MethodDelete, "/v1/files/dept.csv?owner=tester", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t, &cannedProvider{}, nil)

	rec := doJSON(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestServer_CORSPreflight(t *testing.T) {
	srv := newTestServer(t, &cannedProvider{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/v1/query", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
