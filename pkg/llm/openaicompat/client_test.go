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

package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/spindle/pkg/llm"
)

func TestComplete(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": " SELECT COUNT(*) FROM t "}, "finish_reason": "stop"},
			},
		})
	}))
	defer server.Close()

	c := NewClient(Config{Endpoint: server.URL, Model: "qwen2.5-coder"})
	text, err := c.Complete(context.Background(), llm.CompletionRequest{
		System: "sys",
		Prompt: "count rows",
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM t", text)

	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "user", gotReq.Messages[1].Role)
	assert.False(t, gotReq.Stream)
}

func TestCompleteEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	}))
	defer server.Close()

	c := NewClient(Config{Endpoint: server.URL})
	_, err := c.Complete(context.Background(), llm.CompletionRequest{Prompt: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestCompleteErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "model not loaded", "type": "server_error"},
		})
	}))
	defer server.Close()

	c := NewClient(Config{Endpoint: server.URL})
	_, err := c.Complete(context.Background(), llm.CompletionRequest{Prompt: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}
