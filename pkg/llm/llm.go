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

// Package llm defines the external LLM collaborator boundary.
//
// Spindle treats text generation as a typed external service: a single
// Complete call with bounded tokens, bounded latency, and no implied retry
// policy. Provider implementations live in subpackages (anthropic,
// openaicompat); callers that need structured output validate the returned
// text themselves before trusting it.
package llm

import (
	"context"
	"time"
)

// Default completion bounds applied when a request leaves them zero.
const (
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.0
	DefaultTimeout     = 30 * time.Second
)

// CompletionRequest describes a single bounded completion call.
type CompletionRequest struct {
	// System is the optional system prompt.
	System string

	// Prompt is the user-turn prompt text.
	Prompt string

	// MaxTokens bounds the response length. Zero means DefaultMaxTokens.
	MaxTokens int

	// Temperature controls sampling. Spindle's routing and SQL-generation
	// calls always run at low temperature.
	Temperature float64

	// Timeout is the upper bound on the call. Zero means DefaultTimeout.
	// The provider must respect both this and any deadline already on the
	// context, whichever is sooner.
	Timeout time.Duration
}

// Provider is the interface all LLM backends implement.
//
// Complete returns the raw response text or an error; errors include
// timeouts, quota exhaustion, and network failures. Providers never retry
// internally — retry policy belongs to the caller.
type Provider interface {
	// Complete sends one prompt and returns the response text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Name returns the provider name (e.g., "anthropic", "openai-compat").
	Name() string

	// Model returns the configured model identifier.
	Model() string
}

// Normalize fills in default bounds for unset request fields.
func (r CompletionRequest) Normalize() CompletionRequest {
	if r.MaxTokens <= 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	if r.Timeout <= 0 {
		r.Timeout = DefaultTimeout
	}
	return r
}

// ExtractJSON pulls the JSON object out of model output that may wrap it
// in explanatory prose or markdown fences. Returns "" when no object
// delimiters are found.
func ExtractJSON(text string) string {
	start := -1
	end := -1

	for i, ch := range text {
		if ch == '{' && start == -1 {
			start = i
		}
		if ch == '}' {
			end = i
		}
	}

	if start == -1 || end == -1 || start >= end {
		return ""
	}

	return text[start : end+1]
}
