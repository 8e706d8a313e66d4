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

package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/teradata-labs/spindle/pkg/tabular"
	"github.com/teradata-labs/spindle/pkg/types"
)

// defaultHeadLimit rows are returned by head when the plan gives no limit.
const defaultHeadLimit = 5

// eval runs a bound plan against the frame and produces a result. The
// plan is trusted at this point: bind has checked every column reference.
func eval(p *plan, f *tabular.Frame) (*types.QueryResult, error) {
	rows, err := filterRows(p.Filters, f)
	if err != nil {
		return nil, err
	}

	switch p.Operation {
	case "aggregate":
		return evalAggregate(p, f, rows)
	case "group_aggregate":
		return evalGroupAggregate(p, f, rows)
	case "correlation":
		return evalCorrelation(p, f, rows)
	case "describe":
		return evalDescribe(p, f, rows)
	case "value_counts":
		return evalValueCounts(p, f, rows)
	case "select":
		return evalSelect(p, f, rows)
	case "sort":
		return evalSort(p, f, rows)
	case "head":
		return evalHead(p, f, rows)
	default:
		return nil, fmt.Errorf("unknown operation %q", p.Operation)
	}
}

// filterRows returns the indices of rows passing every filter, in order.
func filterRows(filters []filter, f *tabular.Frame) ([]int, error) {
	rows := make([]int, 0, f.NumRows())
	for i := 0; i < f.NumRows(); i++ {
		rows = append(rows, i)
	}

	for _, flt := range filters {
		col, _ := f.ColumnIndex(flt.Column)
		kept := rows[:0]
		for _, r := range rows {
			ok, err := matches(f.Value(r, col), flt.Op, flt.Value)
			if err != nil {
				return nil, err
			}
			if ok {
				kept = append(kept, r)
			}
		}
		rows = kept
	}
	return rows, nil
}

// matches applies one filter operator. Ordering operators compare
// numerically when both sides parse as numbers, lexically otherwise.
func matches(cell, op, operand string) (bool, error) {
	switch op {
	case "eq":
		return strings.EqualFold(cell, operand), nil
	case "ne":
		return !strings.EqualFold(cell, operand), nil
	case "contains":
		return strings.Contains(strings.ToLower(cell), strings.ToLower(operand)), nil
	case "gt", "ge", "lt", "le":
		cmp := strings.Compare(cell, operand)
		a, errA := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		b, errB := strconv.ParseFloat(strings.TrimSpace(operand), 64)
		if errA == nil && errB == nil {
			switch {
			case a > b:
				cmp = 1
			case a < b:
				cmp = -1
			default:
				cmp = 0
			}
		}
		switch op {
		case "gt":
			return cmp > 0, nil
		case "ge":
			return cmp >= 0, nil
		case "lt":
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	default:
		return false, fmt.Errorf("unknown filter operator %q", op)
	}
}

// numericValues returns the valid numeric values of a column restricted to
// the given rows.
func numericValues(f *tabular.Frame, name string, rows []int) ([]float64, error) {
	col, _ := f.ColumnIndex(name)
	all, valid, err := f.Numeric(col)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if valid[r] {
			out = append(out, all[r])
		}
	}
	return out, nil
}

func aggregateOf(name string, vals []float64) (float64, error) {
	if name == "count" {
		return float64(len(vals)), nil
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("no numeric values to aggregate")
	}
	switch name {
	case "sum":
		var s float64
		for _, v := range vals {
			s += v
		}
		return s, nil
	case "mean":
		var s float64
		for _, v := range vals {
			s += v
		}
		return s / float64(len(vals)), nil
	case "min":
		m := vals[0]
		for _, v := range vals[1:] {
			if v < m {
				m = v
			}
		}
		return m, nil
	case "max":
		m := vals[0]
		for _, v := range vals[1:] {
			if v > m {
				m = v
			}
		}
		return m, nil
	case "median":
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 0 {
			return (sorted[mid-1] + sorted[mid]) / 2, nil
		}
		return sorted[mid], nil
	case "std":
		if len(vals) < 2 {
			return 0, fmt.Errorf("std requires at least two values")
		}
		var s float64
		for _, v := range vals {
			s += v
		}
		mean := s / float64(len(vals))
		var ss float64
		for _, v := range vals {
			d := v - mean
			ss += d * d
		}
		return math.Sqrt(ss / float64(len(vals)-1)), nil
	default:
		return 0, fmt.Errorf("unknown aggregate %q", name)
	}
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func evalAggregate(p *plan, f *tabular.Frame, rows []int) (*types.QueryResult, error) {
	var val float64
	var err error
	label := p.Aggregate

	if p.Aggregate == "count" && p.Column == "" {
		val = float64(len(rows))
		label = "count(*)"
	} else {
		var vals []float64
		if p.Aggregate == "count" {
			// count over a column counts its non-empty cells
			col, _ := f.ColumnIndex(p.Column)
			for _, r := range rows {
				if strings.TrimSpace(f.Value(r, col)) != "" {
					vals = append(vals, 0)
				}
			}
		} else {
			vals, err = numericValues(f, p.Column, rows)
			if err != nil {
				return nil, err
			}
		}
		val, err = aggregateOf(p.Aggregate, vals)
		if err != nil {
			return nil, err
		}
		label = fmt.Sprintf("%s(%s)", p.Aggregate, p.Column)
	}

	rendered := formatNumber(val)
	return &types.QueryResult{
		Columns:  []string{label},
		Rows:     [][]any{{val}},
		RowCount: 1,
		Answer:   fmt.Sprintf("%s = %s", label, rendered),
	}, nil
}

func evalGroupAggregate(p *plan, f *tabular.Frame, rows []int) (*types.QueryResult, error) {
	groupCol, _ := f.ColumnIndex(p.GroupBy)

	groups := make(map[string][]int)
	var order []string
	for _, r := range rows {
		key := f.Value(r, groupCol)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}
	sort.Strings(order)

	label := fmt.Sprintf("%s(%s)", p.Aggregate, p.Column)
	if p.Aggregate == "count" && p.Column == "" {
		label = "count(*)"
	}

	out := make([][]any, 0, len(order))
	for _, key := range order {
		var val float64
		if p.Aggregate == "count" && p.Column == "" {
			val = float64(len(groups[key]))
		} else {
			vals, err := numericValues(f, p.Column, groups[key])
			if err != nil {
				return nil, err
			}
			v, err := aggregateOf(p.Aggregate, vals)
			if err != nil {
				return nil, fmt.Errorf("group %q: %w", key, err)
			}
			val = v
		}
		out = append(out, []any{key, val})
	}

	return &types.QueryResult{
		Columns:  []string{p.GroupBy, label},
		Rows:     out,
		RowCount: len(out),
		Answer:   fmt.Sprintf("%s by %s over %d groups", label, p.GroupBy, len(out)),
	}, nil
}

func evalCorrelation(p *plan, f *tabular.Frame, rows []int) (*types.QueryResult, error) {
	xCol, _ := f.ColumnIndex(p.Columns[0])
	yCol, _ := f.ColumnIndex(p.Columns[1])
	xs, xValid, err := f.Numeric(xCol)
	if err != nil {
		return nil, err
	}
	ys, yValid, err := f.Numeric(yCol)
	if err != nil {
		return nil, err
	}

	var px, py []float64
	for _, r := range rows {
		if xValid[r] && yValid[r] {
			px = append(px, xs[r])
			py = append(py, ys[r])
		}
	}
	if len(px) < 2 {
		return nil, fmt.Errorf("correlation requires at least two paired values")
	}

	r := pearson(px, py)
	return &types.QueryResult{
		Columns:  []string{"correlation"},
		Rows:     [][]any{{r}},
		RowCount: 1,
		Answer: fmt.Sprintf("correlation(%s, %s) = %s over %d rows",
			p.Columns[0], p.Columns[1], strconv.FormatFloat(r, 'f', 4, 64), len(px)),
	}, nil
}

func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))
	var sx, sy float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
	}
	mx, my := sx/n, sy/n

	var cov, vx, vy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}

func evalDescribe(p *plan, f *tabular.Frame, rows []int) (*types.QueryResult, error) {
	targets := p.Columns
	if len(targets) == 0 {
		for i, name := range f.Columns() {
			if f.Type(i).Numeric() {
				targets = append(targets, name)
			}
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no numeric columns to describe")
	}

	out := make([][]any, 0, len(targets))
	for _, name := range targets {
		vals, err := numericValues(f, name, rows)
		if err != nil {
			return nil, err
		}
		row := []any{name, float64(len(vals))}
		for _, agg := range []string{"mean", "min", "max"} {
			if len(vals) == 0 {
				row = append(row, nil)
				continue
			}
			v, err := aggregateOf(agg, vals)
			if err != nil {
				return nil, err
			}
			row = append(row, v)
		}
		out = append(out, row)
	}

	return &types.QueryResult{
		Columns:  []string{"column", "count", "mean", "min", "max"},
		Rows:     out,
		RowCount: len(out),
		Answer:   fmt.Sprintf("summary statistics for %d columns", len(out)),
	}, nil
}

func evalValueCounts(p *plan, f *tabular.Frame, rows []int) (*types.QueryResult, error) {
	col, _ := f.ColumnIndex(p.Column)

	counts := make(map[string]int)
	for _, r := range rows {
		counts[f.Value(r, col)]++
	}

	type kv struct {
		key   string
		count int
	}
	pairs := make([]kv, 0, len(counts))
	for k, c := range counts {
		pairs = append(pairs, kv{k, c})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].key < pairs[j].key
	})
	if p.Limit > 0 && len(pairs) > p.Limit {
		pairs = pairs[:p.Limit]
	}

	out := make([][]any, 0, len(pairs))
	for _, pr := range pairs {
		out = append(out, []any{pr.key, int64(pr.count)})
	}

	return &types.QueryResult{
		Columns:  []string{p.Column, "count"},
		Rows:     out,
		RowCount: len(out),
		Answer:   fmt.Sprintf("%d distinct values of %s", len(counts), p.Column),
	}, nil
}

// projection resolves the plan's column selection to frame indices, all
// columns when the plan names none.
func projection(p *plan, f *tabular.Frame) ([]string, []int) {
	names := p.Columns
	if len(names) == 0 {
		names = f.Columns()
	}
	idx := make([]int, len(names))
	for i, name := range names {
		idx[i], _ = f.ColumnIndex(name)
	}
	return names, idx
}

func project(f *tabular.Frame, rows []int, cols []int) [][]any {
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		row := make([]any, len(cols))
		for i, c := range cols {
			row[i] = cellAny(f, r, c)
		}
		out = append(out, row)
	}
	return out
}

// cellAny returns a typed cell: numeric columns surface float64 values,
// empty cells surface nil.
func cellAny(f *tabular.Frame, row, col int) any {
	raw := f.Value(row, col)
	if !f.Type(col).Numeric() {
		return raw
	}
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	vals, valid, err := f.Numeric(col)
	if err != nil || !valid[row] {
		return raw
	}
	return vals[row]
}

func evalSelect(p *plan, f *tabular.Frame, rows []int) (*types.QueryResult, error) {
	names, idx := projection(p, f)
	if p.Limit > 0 && len(rows) > p.Limit {
		rows = rows[:p.Limit]
	}
	out := project(f, rows, idx)
	return &types.QueryResult{
		Columns:  names,
		Rows:     out,
		RowCount: len(out),
		Answer:   fmt.Sprintf("%d matching rows", len(out)),
	}, nil
}

func evalSort(p *plan, f *tabular.Frame, rows []int) (*types.QueryResult, error) {
	sortCol, _ := f.ColumnIndex(p.SortBy)

	sorted := append([]int(nil), rows...)
	if f.Type(sortCol).Numeric() {
		vals, valid, err := f.Numeric(sortCol)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(sorted, func(i, j int) bool {
			a, b := sorted[i], sorted[j]
			// invalid cells sort last regardless of direction
			if valid[a] != valid[b] {
				return valid[a]
			}
			if p.Descending {
				return vals[a] > vals[b]
			}
			return vals[a] < vals[b]
		})
	} else {
		sort.SliceStable(sorted, func(i, j int) bool {
			a := f.Value(sorted[i], sortCol)
			b := f.Value(sorted[j], sortCol)
			if p.Descending {
				return a > b
			}
			return a < b
		})
	}

	if p.Limit > 0 && len(sorted) > p.Limit {
		sorted = sorted[:p.Limit]
	}

	names, idx := projection(p, f)
	out := project(f, sorted, idx)
	return &types.QueryResult{
		Columns:  names,
		Rows:     out,
		RowCount: len(out),
		Answer:   fmt.Sprintf("%d rows sorted by %s", len(out), p.SortBy),
	}, nil
}

func evalHead(p *plan, f *tabular.Frame, rows []int) (*types.QueryResult, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultHeadLimit
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	names, idx := projection(p, f)
	out := project(f, rows, idx)
	return &types.QueryResult{
		Columns:  names,
		Rows:     out,
		RowCount: len(out),
		Answer:   fmt.Sprintf("first %d rows", len(out)),
	}, nil
}
