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

package routing

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/teradata-labs/spindle/pkg/llm"
)

// recommendation is the declared response shape of the routing LLM call.
// The model's output is validated against recommendationSchema before any
// field of it is allowed to influence the decision.
type recommendation struct {
	RecommendedService string   `json:"recommended_service"`
	Reasoning          string   `json:"reasoning"`
	Confidence         float64  `json:"confidence"`
	KeyFactors         []string `json:"key_factors"`
}

const recommendationSchema = `{
  "type": "object",
  "required": ["recommended_service", "reasoning", "confidence"],
  "properties": {
    "recommended_service": {"type": "string", "minLength": 1},
    "reasoning": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "key_factors": {"type": "array", "items": {"type": "string"}}
  }
}`

var (
	compiledSchema     *gojsonschema.Schema
	compiledSchemaOnce sync.Once
	compiledSchemaErr  error
)

func schema() (*gojsonschema.Schema, error) {
	compiledSchemaOnce.Do(func() {
		compiledSchema, compiledSchemaErr = gojsonschema.NewSchema(
			gojsonschema.NewStringLoader(recommendationSchema))
	})
	return compiledSchema, compiledSchemaErr
}

// parseRecommendation extracts and validates the JSON recommendation from
// raw LLM output. Any deviation from the declared schema is an error; the
// caller maps errors to the deterministic fallback.
func parseRecommendation(raw string) (*recommendation, error) {
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
		return nil, fmt.Errorf("response does not match recommendation schema: %v", result.Errors())
	}

	var rec recommendation
	if err := json.Unmarshal([]byte(jsonContent), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode recommendation: %w", err)
	}
	return &rec, nil
}
