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

package prompts

import "strings"

// RoutingSystem is the system prompt for backend routing decisions.
const RoutingSystem = `You route data questions to execution services. You respond with a single JSON object and nothing else.`

const routingTemplate = `A user asked a question about their data. Choose which execution service should answer it.

Question: {{.question}}

Available services (choose exactly one of these, no other value is acceptable):
{{.candidates}}

Service characteristics:
- csv: programmatic analysis over an in-memory frame. Best for statistics, correlation, distributions, pivots, and multi-step transformations.
- csv_sql: SQL over an in-memory table built from the uploaded file. Best for filters, aggregations, counts, ordering, and joins within one file.
- database: SQL executed on the customer's live database through a deployed agent. The only service that can see live database tables.

Context:
{{.context}}

Respond with JSON exactly matching:
{
  "recommended_service": "<one of the listed services>",
  "reasoning": "<one or two sentences>",
  "confidence": <number between 0 and 1>,
  "key_factors": ["<short_tag>", ...]
}`

// RoutingPrompt builds the routing decision prompt. The candidate list is
// authoritative: services not listed must never appear in it, which is how
// the database service stays invisible to CSV-sourced requests.
func RoutingPrompt(question string, candidates []string, contextHints []string) string {
	var candidateLines []string
	for _, c := range candidates {
		candidateLines = append(candidateLines, "- "+c)
	}
	ctx := "- (none)"
	if len(contextHints) > 0 {
		ctx = "- " + strings.Join(contextHints, "\n- ")
	}

	prompt := Interpolate(routingTemplate, map[string]interface{}{
		"question": question,
	})
	return InterpolateRaw(prompt, map[string]interface{}{
		"candidates": strings.Join(candidateLines, "\n"),
		"context":    ctx,
	})
}

// SQLSystem is the system prompt for SQL generation.
const SQLSystem = `You translate natural-language questions into a single read-only SQL query. Respond with the SQL statement only: no markdown, no commentary, no trailing semicolon.`

const sqlTemplate = `Schema:
{{.schema}}

Question: {{.question}}

Write one SELECT statement that answers the question. Use only tables and columns from the schema.`

// SQLGenerationPrompt builds the SQL generation prompt.
func SQLGenerationPrompt(question, schemaDescription string) string {
	prompt := Interpolate(sqlTemplate, map[string]interface{}{
		"question": question,
	})
	return InterpolateRaw(prompt, map[string]interface{}{
		"schema": schemaDescription,
	})
}

// ExplainSystem is the system prompt for result explanation.
const ExplainSystem = `You summarize query results in one or two plain sentences. Never invent numbers that are not in the result.`

const explainTemplate = `Question: {{.question}}

Result shape: {{.shape}}
Result (possibly truncated):
{{.result}}

Answer the question in one or two sentences using only the result above.`

// ExplainPrompt builds the result explanation prompt.
func ExplainPrompt(question, shape, renderedResult string) string {
	prompt := Interpolate(explainTemplate, map[string]interface{}{
		"question": question,
	})
	return InterpolateRaw(prompt, map[string]interface{}{
		"shape":  shape,
		"result": renderedResult,
	})
}

// AnalysisSystem is the system prompt for analysis-plan generation.
const AnalysisSystem = `You translate data questions into a JSON analysis plan for a restricted evaluator. You respond with a single JSON object and nothing else.`

const analysisTemplate = `Columns of the table (name: type):
{{.schema}}

Question: {{.question}}

Produce a JSON plan with this shape:
{
  "operation": "<aggregate|group_aggregate|correlation|describe|value_counts|select|sort|head>",
  "column": "<primary column, if the operation takes one>",
  "columns": ["<columns for correlation/select/describe>"],
  "aggregate": "<count|sum|mean|min|max|median|std>",
  "group_by": "<grouping column for group_aggregate>",
  "filters": [{"column": "...", "op": "<eq|ne|gt|ge|lt|le|contains>", "value": "..."}],
  "sort_by": "<column>",
  "descending": false,
  "limit": 0
}

Omit fields the operation does not need. Use only column names from the list above.`

// AnalysisPlanPrompt builds the analysis-plan prompt.
func AnalysisPlanPrompt(question, schemaDescription string) string {
	prompt := Interpolate(analysisTemplate, map[string]interface{}{
		"question": question,
	})
	return InterpolateRaw(prompt, map[string]interface{}{
		"schema": schemaDescription,
	})
}
