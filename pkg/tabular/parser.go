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

// Package tabular materializes raw CSV bytes into queryable in-memory
// structures: a columnar frame for programmatic analysis and a sqlite table
// for SQL execution. Materializations are soft state, cached per
// (owner, file) in an Arena with memory ceilings, leases, and LRU eviction;
// everything is rebuildable from the source bytes at any time.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/types"
)

// ColumnType is the inferred storage type of a CSV column.
type ColumnType int

const (
	// TypeText is the default column type.
	TypeText ColumnType = iota
	// TypeInteger means every non-empty cell parses as an int64.
	TypeInteger
	// TypeReal means every non-empty cell parses as a float64.
	TypeReal
)

// SQLType returns the sqlite column type name.
func (t ColumnType) SQLType() string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

func (t ColumnType) String() string { return t.SQLType() }

// Numeric reports whether the column holds numbers.
func (t ColumnType) Numeric() bool {
	return t == TypeInteger || t == TypeReal
}

// DefaultMaxColumns rejects files wider than this. A four-digit column
// count almost always means the delimiter was mis-detected and every row
// landed in one record.
const DefaultMaxColumns = 512

// ParseOptions configures CSV parsing.
type ParseOptions struct {
	// MaxColumns rejects wider files. Default: DefaultMaxColumns.
	MaxColumns int

	// Logger for discrepancy reporting.
	Logger *zap.Logger
}

// ParsedTable is the structured form of one CSV file. Records are
// normalized: every row has exactly len(Header) fields.
type ParsedTable struct {
	// FileRef names the source file, for error messages and cache keys.
	FileRef string

	// Header holds the column names from the first row.
	Header []string

	// Types holds the inferred type of each column.
	Types []ColumnType

	// Records holds the data rows, header excluded.
	Records [][]string

	// PaddedRows counts rows that arrived short and were padded with
	// empty fields; TruncatedRows counts rows that arrived long and were
	// cut to the header width.
	PaddedRows    int
	TruncatedRows int

	// Footprint is the estimated in-memory size in bytes.
	Footprint int64
}

// Parse converts raw CSV bytes into a ParsedTable.
//
// Quoted fields may contain the delimiter and escaped ("") quotes; rows with
// a field count differing from the header are padded or truncated
// deterministically and counted, never silently misaligned. Files wider
// than MaxColumns fail with ParseError.
func Parse(fileRef string, data []byte, opts ParseOptions) (*ParsedTable, error) {
	if opts.MaxColumns <= 0 {
		opts.MaxColumns = DefaultMaxColumns
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &types.ParseError{FileRef: fileRef, Reason: "file is empty"}
	}

	reader := csv.NewReader(bytes.NewReader(data))
	// Field-count normalization is handled here, not by the csv package,
	// so discrepancies can be counted and logged.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = false

	header, err := reader.Read()
	if err != nil {
		return nil, &types.ParseError{FileRef: fileRef, Reason: fmt.Sprintf("unreadable header: %v", err)}
	}
	if len(header) > opts.MaxColumns {
		return nil, &types.ParseError{
			FileRef: fileRef,
			Reason:  fmt.Sprintf("%d columns exceeds the limit of %d; the delimiter was likely mis-detected", len(header), opts.MaxColumns),
		}
	}

	for i, name := range header {
		header[i] = strings.TrimSpace(name)
		if header[i] == "" {
			header[i] = fmt.Sprintf("column_%d", i+1)
		}
	}

	table := &ParsedTable{
		FileRef: fileRef,
		Header:  header,
	}

	width := len(header)
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, &types.ParseError{FileRef: fileRef, Reason: fmt.Sprintf("row %d: %v", line, err)}
		}

		switch {
		case len(record) < width:
			padded := make([]string, width)
			copy(padded, record)
			record = padded
			table.PaddedRows++
			opts.Logger.Debug("padded short row",
				zap.String("file", fileRef),
				zap.Int("row", line))
		case len(record) > width:
			record = record[:width]
			table.TruncatedRows++
			opts.Logger.Debug("truncated long row",
				zap.String("file", fileRef),
				zap.Int("row", line))
		}
		table.Records = append(table.Records, record)
	}

	if table.PaddedRows > 0 || table.TruncatedRows > 0 {
		opts.Logger.Warn("normalized ragged rows",
			zap.String("file", fileRef),
			zap.Int("padded", table.PaddedRows),
			zap.Int("truncated", table.TruncatedRows))
	}

	table.Types = inferTypes(table)
	table.Footprint = estimateFootprint(table)
	return table, nil
}

// inferTypes scans every cell of each column: a column is INTEGER or REAL
// only when all its non-empty cells parse as such.
func inferTypes(t *ParsedTable) []ColumnType {
	typesOut := make([]ColumnType, len(t.Header))
	for col := range t.Header {
		allInt := true
		allReal := true
		nonEmpty := 0
		for _, rec := range t.Records {
			cell := strings.TrimSpace(rec[col])
			if cell == "" {
				continue
			}
			nonEmpty++
			if allInt {
				if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
					allInt = false
				}
			}
			if allReal {
				if _, err := strconv.ParseFloat(cell, 64); err != nil {
					allReal = false
				}
			}
			if !allInt && !allReal {
				break
			}
		}

		switch {
		case nonEmpty == 0:
			typesOut[col] = TypeText
		case allInt:
			typesOut[col] = TypeInteger
		case allReal:
			typesOut[col] = TypeReal
		default:
			typesOut[col] = TypeText
		}
	}
	return typesOut
}

// estimateFootprint approximates the in-memory cost of a parsed table plus
// its derived materializations (frame and sqlite copies roughly double the
// cell payload).
func estimateFootprint(t *ParsedTable) int64 {
	var cells int64
	for _, rec := range t.Records {
		for _, cell := range rec {
			cells += int64(len(cell))
		}
	}
	rowOverhead := int64(len(t.Records)) * int64(24+16*len(t.Header))
	return 2*cells + rowOverhead
}

// SchemaDescription renders the table schema for embedding in prompts.
func (t *ParsedTable) SchemaDescription() string {
	var b strings.Builder
	fmt.Fprintf(&b, "TABLE %s (\n", TableName)
	for i, name := range t.Header {
		fmt.Fprintf(&b, "  %s %s", name, t.Types[i].SQLType())
		if i < len(t.Header)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	fmt.Fprintf(&b, " -- %d rows", len(t.Records))
	return b.String()
}
