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

package llm

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter provides token counting for prompt budgeting.
// Uses tiktoken with cl100k_base encoding, a workable approximation across
// the providers spindle targets.
type TokenCounter struct {
	mu      sync.Mutex
	encoder *tiktoken.Tiktoken
}

var (
	globalTokenCounter *TokenCounter
	counterInitOnce    sync.Once
)

// GetTokenCounter returns the shared token counter instance.
func GetTokenCounter() *TokenCounter {
	counterInitOnce.Do(func() {
		tkm, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			// Fall back to char-based estimation.
			globalTokenCounter = &TokenCounter{encoder: nil}
			return
		}
		globalTokenCounter = &TokenCounter{encoder: tkm}
	})
	return globalTokenCounter
}

// CountTokens returns the token count for text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc.encoder == nil {
		return len(text) / 4
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	return len(tc.encoder.Encode(text, nil, nil))
}

// TruncateToBudget trims text to at most budget tokens, cutting at a line
// boundary so schema descriptions stay readable inside prompts. Returns the
// text unchanged when it already fits.
func (tc *TokenCounter) TruncateToBudget(text string, budget int) string {
	if budget <= 0 || tc.CountTokens(text) <= budget {
		return text
	}

	lines := strings.Split(text, "\n")
	var b strings.Builder
	used := 0
	for _, line := range lines {
		n := tc.CountTokens(line) + 1 // newline
		if used+n > budget {
			break
		}
		b.WriteString(line)
		b.WriteString("\n")
		used += n
	}
	return strings.TrimRight(b.String(), "\n")
}
