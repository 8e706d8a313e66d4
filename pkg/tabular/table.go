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
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// TableName is the sqlite table every CSV materializes as. One file, one
// in-memory database, one table.
const TableName = "data"

// SQLTable is the relational materialization of a parsed table: an
// in-memory sqlite database holding one table named TableName.
type SQLTable struct {
	db     *sql.DB
	schema string
}

// newSQLTable builds the sqlite materialization.
func newSQLTable(ctx context.Context, t *ParsedTable, logger *zap.Logger) (*SQLTable, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// A pooled second connection would see its own empty :memory:
	// database; pin everything to one connection.
	db.SetMaxOpenConns(1)

	if err := loadTable(ctx, db, t); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("materialized relational table",
		zap.String("file", t.FileRef),
		zap.Int("rows", len(t.Records)),
		zap.Int("columns", len(t.Header)))

	return &SQLTable{
		db:     db,
		schema: t.SchemaDescription(),
	}, nil
}

func loadTable(ctx context.Context, db *sql.DB, t *ParsedTable) error {
	cols := make([]string, len(t.Header))
	placeholders := make([]string, len(t.Header))
	for i, name := range t.Header {
		cols[i] = fmt.Sprintf("%s %s", quoteIdent(name), t.Types[i].SQLType())
		placeholders[i] = "?"
	}

	createStmt := fmt.Sprintf("CREATE TABLE %s (%s)", TableName, strings.Join(cols, ", "))
	if _, err := db.ExecContext(ctx, createStmt); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin load transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insertStmt := fmt.Sprintf("INSERT INTO %s VALUES (%s)", TableName, strings.Join(placeholders, ", "))
	stmt, err := tx.PrepareContext(ctx, insertStmt)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(t.Header))
	for _, rec := range t.Records {
		for i, cell := range rec {
			args[i] = cellValue(cell, t.Types[i])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit load: %w", err)
	}
	return nil
}

// cellValue converts a CSV cell into the driver value matching the
// column's inferred type. Empty cells become NULL.
func cellValue(cell string, typ ColumnType) any {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" {
		return nil
	}
	switch typ {
	case TypeInteger:
		if v, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return v
		}
	case TypeReal:
		if v, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return v
		}
	}
	return cell
}

// Query executes SQL against the materialized table and returns ordered
// columns and rows.
func (s *SQLTable) Query(ctx context.Context, query string) ([]string, [][]any, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]any
	for rows.Next() {
		scan := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range scan {
			ptrs[i] = &scan[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		for i, v := range scan {
			if b, ok := v.([]byte); ok {
				scan[i] = string(b)
			}
		}
		out = append(out, scan)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return cols, out, nil
}

// SchemaDescription returns the table schema for SQL-generation prompts.
func (s *SQLTable) SchemaDescription() string {
	return s.schema
}

// Close releases the in-memory database.
func (s *SQLTable) Close() error {
	return s.db.Close()
}

// quoteIdent quotes a column name for sqlite, escaping embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
