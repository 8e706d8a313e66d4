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

package sqlgen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/spindle/pkg/llm"
	"github.com/teradata-labs/spindle/pkg/types"
)

type mockProvider struct {
	response   string
	err        error
	lastPrompt string
}

func (m *mockProvider) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	m.lastPrompt = req.Prompt
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockProvider) Name() string  { return "mock" }
func (m *mockProvider) Model() string { return "mock-model" }

func newTestService(t *testing.T, provider llm.Provider) *Service {
	t.Helper()
	svc, err := NewService(Config{Provider: provider, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return svc
}

func TestGenerateSQL(t *testing.T) {
	provider := &mockProvider{response: "SELECT AVG(salary) FROM data;"}
	svc := newTestService(t, provider)

	sql, err := svc.GenerateSQL(context.Background(), "average salary?", "TABLE data (salary INTEGER)")
	require.NoError(t, err)
	assert.Equal(t, "SELECT AVG(salary) FROM data", sql)
	assert.Contains(t, provider.lastPrompt, "TABLE data (salary INTEGER)")
}

func TestGenerateSQLStripsCodeFences(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"```sql\nSELECT 1\n```", "SELECT 1"},
		{"```\nSELECT 2;\n```", "SELECT 2"},
		{"  SELECT 3 ;  ", "SELECT 3"},
		{"```sql\nSELECT 4\n```\nThis query counts rows.", "SELECT 4"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanSQL(tt.raw), "raw %q", tt.raw)
	}
}

func TestGenerateSQLFailures(t *testing.T) {
	t.Run("llm error", func(t *testing.T) {
		svc := newTestService(t, &mockProvider{err: errors.New("quota exceeded")})
		_, err := svc.GenerateSQL(context.Background(), "q", "schema")
		require.Error(t, err)
		var genErr *types.GenerationError
		require.True(t, errors.As(err, &genErr))
		assert.Equal(t, "sql", genErr.Stage)
	})

	t.Run("empty output", func(t *testing.T) {
		svc := newTestService(t, &mockProvider{response: "```sql\n```"})
		_, err := svc.GenerateSQL(context.Background(), "q", "schema")
		var genErr *types.GenerationError
		require.True(t, errors.As(err, &genErr))
	})
}

func TestExplainResult(t *testing.T) {
	provider := &mockProvider{response: "The average salary is 55000."}
	svc := newTestService(t, provider)

	result := &types.QueryResult{
		Columns:  []string{"avg_salary"},
		Rows:     [][]any{{55000.0}},
		RowCount: 1,
	}
	answer := svc.ExplainResult(context.Background(), "average salary?", result, ShapeScalar)
	assert.Equal(t, "The average salary is 55000.", answer)
	assert.Contains(t, provider.lastPrompt, "avg_salary")
	assert.Contains(t, provider.lastPrompt, "55000")
}

func TestExplainResultFallsBackOnError(t *testing.T) {
	svc := newTestService(t, &mockProvider{err: errors.New("timeout")})

	result := &types.QueryResult{
		Columns:  []string{"department", "total"},
		Rows:     [][]any{{"eng", 12}, {"sales", 7}},
		RowCount: 2,
	}
	answer := svc.ExplainResult(context.Background(), "q", result, ShapeTable)
	assert.Equal(t, "The query returned 2 rows.", answer)
}

func TestExplainResultFallsBackOnEmptyAnswer(t *testing.T) {
	svc := newTestService(t, &mockProvider{response: "   "})

	result := &types.QueryResult{
		Columns:  []string{"n"},
		Rows:     [][]any{{int64(3)}},
		RowCount: 1,
	}
	answer := svc.ExplainResult(context.Background(), "q", result, ShapeScalar)
	assert.Equal(t, "The result is 3.", answer)
}

func TestMechanicalDescription(t *testing.T) {
	assert.Equal(t, "The query returned no rows.", MechanicalDescription(nil, ShapeTable))
	assert.Equal(t, "The query returned no rows.",
		MechanicalDescription(&types.QueryResult{RowCount: 0}, ShapeTable))
	assert.Equal(t, "The result is 42.",
		MechanicalDescription(&types.QueryResult{Rows: [][]any{{42}}, RowCount: 1}, ShapeScalar))
	assert.Equal(t, "The query returned 1 row.",
		MechanicalDescription(&types.QueryResult{Rows: [][]any{{1, 2}}, RowCount: 1}, ShapeTable))
	assert.Equal(t, "The query returned 10 rows.",
		MechanicalDescription(&types.QueryResult{RowCount: 10}, ShapeTable))
}

func TestRenderResultTruncates(t *testing.T) {
	result := &types.QueryResult{
		Columns:  []string{"n"},
		RowCount: 100,
	}
	for i := 0; i < 100; i++ {
		result.Rows = append(result.Rows, []any{i})
	}

	rendered := RenderResult(result, 5)
	assert.Contains(t, rendered, "(100 rows total)")
	assert.Contains(t, rendered, "n\n0\n1\n2\n3\n4")
}
