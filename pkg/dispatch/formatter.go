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

package dispatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/sqlgen"
	"github.com/teradata-labs/spindle/pkg/types"
)

// DefaultMaxPreviewRows bounds how many rows a formatted result carries.
const DefaultMaxPreviewRows = 100

// FormatterConfig holds configuration for the result formatter.
type FormatterConfig struct {
	// Explainer phrases natural-language answers. Required.
	Explainer *sqlgen.Service

	// MaxPreviewRows bounds returned rows. The true row count is always
	// preserved on the result. Default: 100.
	MaxPreviewRows int

	// Logger for formatting operations.
	Logger *zap.Logger
}

// Formatter normalizes backend results: bounded row previews and a
// natural-language answer for every result, with the explanation never
// blocking the structured data.
type Formatter struct {
	explainer      *sqlgen.Service
	maxPreviewRows int
	logger         *zap.Logger
}

// NewFormatter creates a formatter.
func NewFormatter(cfg FormatterConfig) *Formatter {
	if cfg.MaxPreviewRows <= 0 {
		cfg.MaxPreviewRows = DefaultMaxPreviewRows
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Formatter{
		explainer:      cfg.Explainer,
		maxPreviewRows: cfg.MaxPreviewRows,
		logger:         cfg.Logger,
	}
}

// Format truncates the result's row preview and fills in the
// natural-language answer when the backend did not produce one.
func (f *Formatter) Format(ctx context.Context, question string, result *types.QueryResult) {
	if result.RowCount < len(result.Rows) {
		result.RowCount = len(result.Rows)
	}
	if len(result.Rows) > f.maxPreviewRows {
		result.Rows = result.Rows[:f.maxPreviewRows]
		f.logger.Debug("truncated result preview",
			zap.Int("rows", result.RowCount),
			zap.Int("preview", f.maxPreviewRows))
	}

	if result.Answer != "" {
		return
	}
	shape := ShapeOf(result)
	if f.explainer != nil {
		result.Answer = f.explainer.ExplainResult(ctx, question, result, shape)
		return
	}
	result.Answer = sqlgen.MechanicalDescription(result, shape)
}

// ShapeOf classifies a result as scalar, list, or table.
func ShapeOf(result *types.QueryResult) sqlgen.ResultShape {
	switch {
	case len(result.Columns) == 1 && result.RowCount <= 1:
		return sqlgen.ShapeScalar
	case len(result.Columns) == 1:
		return sqlgen.ShapeList
	default:
		return sqlgen.ShapeTable
	}
}
