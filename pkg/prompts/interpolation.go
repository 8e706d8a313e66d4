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

// Package prompts holds the prompt templates spindle sends to its LLM
// collaborator, plus safe variable interpolation. User-controlled values
// (questions, column names) are escaped before they reach a prompt so they
// cannot manufacture routing or generation instructions.
package prompts

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var placeholderRe = regexp.MustCompile(`\{\{\.(\w+)\}\}`)

// Interpolate performs safe variable substitution in a prompt template.
//
// Uses {{.variable_name}} syntax. All values are escaped to prevent prompt
// injection. Placeholders without a matching variable are left intact.
func Interpolate(template string, vars map[string]interface{}) string {
	if vars == nil {
		return template
	}

	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}}"), "{{.")

		value, ok := vars[varName]
		if !ok {
			return match
		}
		return escapeValue(value)
	})
}

// InterpolateRaw substitutes without escaping. Only for values spindle
// itself produced (schema descriptions, candidate lists), never for user
// input.
func InterpolateRaw(template string, vars map[string]interface{}) string {
	if vars == nil {
		return template
	}

	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}}"), "{{.")

		value, ok := vars[varName]
		if !ok {
			return match
		}
		return fmt.Sprintf("%v", value)
	})
}

// escapeValue converts a value to string and escapes it.
func escapeValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return EscapeString(v)
	case int, int64, int32, float64, float32:
		return fmt.Sprintf("%v", v)
	case bool:
		return fmt.Sprintf("%t", v)
	case []string:
		escaped := make([]string, len(v))
		for i, s := range v {
			escaped[i] = EscapeString(s)
		}
		return strings.Join(escaped, ", ")
	default:
		return EscapeString(fmt.Sprintf("%v", v))
	}
}

// EscapeString escapes special characters to prevent prompt injection:
// control characters are dropped, line endings become spaces, and common
// injection delimiters are blanked.
func EscapeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}

	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\t", " ")

	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) && r != ' ' {
			continue
		}
		result.WriteRune(r)
	}
	s = result.String()

	s = sanitizePromptInjection(s)

	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(s)
}

// sanitizePromptInjection blanks common prompt injection delimiters.
func sanitizePromptInjection(s string) string {
	injectionPatterns := []string{
		"```",
		"###",
		"System:",
		"Assistant:",
		"Human:",
		"[INST]",
		"[/INST]",
		"<|im_start|>",
		"<|im_end|>",
		"### Instruction:",
		"### Response:",
	}

	for _, pattern := range injectionPatterns {
		s = strings.ReplaceAll(s, pattern, strings.Repeat(" ", len(pattern)))
	}

	return s
}
