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
	"fmt"
	"strconv"
	"strings"
)

// Frame is the columnar, programmatic-analysis view of a parsed table.
// Numeric columns are decoded once at construction; all access is
// read-only, so a Frame is safe for concurrent use.
type Frame struct {
	table   *ParsedTable
	numeric map[int][]float64
	valid   map[int][]bool
}

// NewFrame builds the columnar view of a parsed table.
func NewFrame(t *ParsedTable) *Frame {
	f := &Frame{
		table:   t,
		numeric: make(map[int][]float64),
		valid:   make(map[int][]bool),
	}

	for col, typ := range t.Types {
		if !typ.Numeric() {
			continue
		}
		values := make([]float64, len(t.Records))
		valid := make([]bool, len(t.Records))
		for row, rec := range t.Records {
			cell := strings.TrimSpace(rec[col])
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				continue
			}
			values[row] = v
			valid[row] = true
		}
		f.numeric[col] = values
		f.valid[col] = valid
	}

	return f
}

// NumRows returns the number of data rows.
func (f *Frame) NumRows() int {
	return len(f.table.Records)
}

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	return f.table.Header
}

// Type returns the inferred type of column i.
func (f *Frame) Type(i int) ColumnType {
	return f.table.Types[i]
}

// ColumnIndex finds a column by name, case-insensitively.
func (f *Frame) ColumnIndex(name string) (int, bool) {
	for i, h := range f.table.Header {
		if strings.EqualFold(h, name) {
			return i, true
		}
	}
	return 0, false
}

// Numeric returns the decoded values of a numeric column along with a
// validity mask (false marks empty or unparseable cells). Fails on text
// columns.
func (f *Frame) Numeric(i int) ([]float64, []bool, error) {
	values, ok := f.numeric[i]
	if !ok {
		return nil, nil, fmt.Errorf("column %q is not numeric", f.table.Header[i])
	}
	return values, f.valid[i], nil
}

// Value returns the raw cell text at (row, col).
func (f *Frame) Value(row, col int) string {
	return f.table.Records[row][col]
}

// SchemaDescription renders "name: TYPE" lines for analysis prompts.
func (f *Frame) SchemaDescription() string {
	var b strings.Builder
	for i, name := range f.table.Header {
		fmt.Fprintf(&b, "%s: %s\n", name, f.table.Types[i].SQLType())
	}
	return strings.TrimRight(b.String(), "\n")
}
