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

package tabular

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func mustTable(t *testing.T, csvData string) *SQLTable {
	t.Helper()
	parsed, err := Parse("test.csv", []byte(csvData), ParseOptions{})
	require.NoError(t, err)
	table, err := newSQLTable(context.Background(), parsed, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = table.Close() })
	return table
}

func TestSQLTable_CountRoundTrip(t *testing.T) {
	table := mustTable(t, "name,age\nalice,30\nbob,25\ncarol,41\n")

	cols, rows, err := table.Query(context.Background(), "SELECT COUNT(*) FROM data")
	require.NoError(t, err)
	require.Len(t, cols, 1)
	require.Len(t, rows, 1)
	assert.EqualValues(t, int64(3), rows[0][0])
}

func TestSQLTable_TypedAggregation(t *testing.T) {
	table := mustTable(t, "name,salary\nalice,50000\nbob,60000\n")

	_, rows, err := table.Query(context.Background(), "SELECT AVG(salary) FROM data")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 55000.0, rows[0][0], 0.001)
}

func TestSQLTable_EmptyCellsAreNull(t *testing.T) {
	table := mustTable(t, "name,age\nalice,30\nbob,\n")

	_, rows, err := table.Query(context.Background(), "SELECT COUNT(age) FROM data")
	require.NoError(t, err)
	assert.EqualValues(t, int64(1), rows[0][0], "NULL ages excluded from COUNT(col)")
}

func TestSQLTable_QuotedIdentifiers(t *testing.T) {
	// Column names with spaces and punctuation still work when quoted.
	table := mustTable(t, "first name,total ($)\nalice,10\n")

	_, rows, err := table.Query(context.Background(), `SELECT "first name" FROM data`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0][0])
}

func TestSQLTable_OrderedResults(t *testing.T) {
	table := mustTable(t, "name,age\ncarol,41\nalice,30\nbob,25\n")

	cols, rows, err := table.Query(context.Background(), "SELECT name FROM data ORDER BY age DESC")
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, cols)
	require.Len(t, rows, 3)
	assert.Equal(t, "carol", rows[0][0])
	assert.Equal(t, "bob", rows[2][0])
}

func TestSQLTable_BadQuery(t *testing.T) {
	table := mustTable(t, "a\n1\n")

	_, _, err := table.Query(context.Background(), "SELECT nope FROM data")
	assert.Error(t, err)
}
