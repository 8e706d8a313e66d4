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

// Package analysis answers questions about CSV data by evaluating a
// model-generated plan against an in-memory frame.
//
// The model never produces code. It produces a JSON plan drawn from a
// closed set of operations, and the evaluator executes only those
// operations against the materialized columns. A plan referencing unknown
// columns, operations, or aggregates is rejected before anything runs.
package analysis

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/teradata-labs/spindle/pkg/llm"
	"github.com/teradata-labs/spindle/pkg/tabular"
)

// plan is the declared shape of the model's analysis output.
type plan struct {
	Operation  string   `json:"operation"`
	Column     string   `json:"column,omitempty"`
	Columns    []string `json:"columns,omitempty"`
	Aggregate  string   `json:"aggregate,omitempty"`
	GroupBy    string   `json:"group_by,omitempty"`
	Filters    []filter `json:"filters,omitempty"`
	SortBy     string   `json:"sort_by,omitempty"`
	Descending bool     `json:"descending,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

type filter struct {
	Column string `json:"column"`
	Op     string `json:"op"`
	Value  string `json:"value"`
}

const planSchema = `{
  "type": "object",
  "required": ["operation"],
  "properties": {
    "operation": {
      "type": "string",
      "enum": ["aggregate", "group_aggregate", "correlation", "describe", "value_counts", "select", "sort", "head"]
    },
    "column": {"type": "string"},
    "columns": {"type": "array", "items": {"type": "string"}},
    "aggregate": {
      "type": "string",
      "enum": ["count", "sum", "mean", "min", "max", "median", "std"]
    },
    "group_by": {"type": "string"},
    "filters": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["column", "op", "value"],
        "properties": {
          "column": {"type": "string"},
          "op": {"type": "string", "enum": ["eq", "ne", "gt", "ge", "lt", "le", "contains"]},
          "value": {"type": "string"}
        }
      }
    },
    "sort_by": {"type": "string"},
    "descending": {"type": "boolean"},
    "limit": {"type": "integer", "minimum": 0}
  }
}`

var (
	compiledPlanSchema *gojsonschema.Schema
	planSchemaOnce     sync.Once
	planSchemaErr      error
)

func schema() (*gojsonschema.Schema, error) {
	planSchemaOnce.Do(func() {
		compiledPlanSchema, planSchemaErr = gojsonschema.NewSchema(
			gojsonschema.NewStringLoader(planSchema))
	})
	return compiledPlanSchema, planSchemaErr
}

// parsePlan extracts and validates the JSON plan from raw model output.
func parsePlan(raw string) (*plan, error) {
	jsonContent := llm.ExtractJSON(raw)
	if jsonContent == "" {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	s, err := schema()
	if err != nil {
		return nil, fmt.Errorf("schema compilation failed: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewStringLoader(jsonContent))
	if err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("response does not match plan schema: %v", result.Errors())
	}

	var p plan
	if err := json.Unmarshal([]byte(jsonContent), &p); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	return &p, nil
}

// bind resolves every column the plan mentions against the frame, so the
// evaluator never touches a name the data does not have.
func (p *plan) bind(f *tabular.Frame) error {
	check := func(name, role string) error {
		if name == "" {
			return nil
		}
		if _, ok := f.ColumnIndex(name); !ok {
			return fmt.Errorf("%s column %q does not exist", role, name)
		}
		return nil
	}

	if err := check(p.Column, "target"); err != nil {
		return err
	}
	if err := check(p.GroupBy, "grouping"); err != nil {
		return err
	}
	if err := check(p.SortBy, "sort"); err != nil {
		return err
	}
	for _, c := range p.Columns {
		if err := check(c, "selected"); err != nil {
			return err
		}
	}
	for _, flt := range p.Filters {
		if err := check(flt.Column, "filter"); err != nil {
			return err
		}
	}

	switch p.Operation {
	case "aggregate", "group_aggregate":
		if p.Aggregate == "" {
			return fmt.Errorf("%s requires an aggregate", p.Operation)
		}
		if p.Column == "" && p.Aggregate != "count" {
			return fmt.Errorf("aggregate %q requires a target column", p.Aggregate)
		}
		if p.Operation == "group_aggregate" && p.GroupBy == "" {
			return fmt.Errorf("group_aggregate requires group_by")
		}
	case "correlation":
		if len(p.Columns) != 2 {
			return fmt.Errorf("correlation requires exactly two columns, got %d", len(p.Columns))
		}
	case "value_counts":
		if p.Column == "" {
			return fmt.Errorf("value_counts requires a column")
		}
	case "sort":
		if p.SortBy == "" {
			return fmt.Errorf("sort requires sort_by")
		}
	}
	return nil
}
