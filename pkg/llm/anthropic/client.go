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

// Package anthropic implements the llm.Provider interface against the
// Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/teradata-labs/spindle/pkg/llm"
)

const (
	// DefaultModel is the default Claude model.
	DefaultModel = "claude-sonnet-4-5-20250929"
	// DefaultEndpoint is the default Anthropic API endpoint.
	DefaultEndpoint = "https://api.anthropic.com/v1/messages"
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 60 * time.Second

	apiVersion = "2023-06-01"
)

// Client implements llm.Provider for Anthropic's Claude API.
type Client struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

// Config holds configuration for the Anthropic client.
type Config struct {
	APIKey   string // Default: ANTHROPIC_API_KEY env var
	Model    string // Default: claude-sonnet-4-5-20250929
	Endpoint string // Default: https://api.anthropic.com/v1/messages
	Timeout  time.Duration
}

// NewClient creates a new Anthropic client.
func NewClient(config Config) *Client {
	if config.APIKey == "" {
		config.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if config.Model == "" {
		if envModel := os.Getenv("ANTHROPIC_DEFAULT_MODEL"); envModel != "" {
			config.Model = envModel
		} else {
			config.Model = DefaultModel
		}
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	return &Client{
		apiKey:   config.APIKey,
		model:    config.Model,
		endpoint: config.Endpoint,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one prompt to the Messages API and returns the text.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	req = req.Normalize()

	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	body := messagesRequest{
		Model:       c.model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      req.System,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var parsed messagesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("anthropic API error (%s): %s", parsed.Error.Type, parsed.Error.Message)
		}
		return "", fmt.Errorf("anthropic API returned status %d", resp.StatusCode)
	}

	for _, block := range parsed.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("anthropic response contained no text content")
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "anthropic"
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Ensure Client implements llm.Provider.
var _ llm.Provider = (*Client)(nil)
