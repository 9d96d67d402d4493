// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package llm is a client for an OpenAI-compatible chat completions API.
// The engine uses two model tiers: a fast one for classification and
// first drafts, and a stronger one for regeneration.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Request is a single-turn completion request.
type Request struct {
	Model       string
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	// JSON asks the service to emit a single JSON object.
	JSON bool
}

// Response is the completion text and the model that produced it.
type Response struct {
	Text  string
	Model string
}

// ProviderError is returned when the completion API responds with an error.
type ProviderError struct {
	StatusCode int
	Type       string
	Message    string
}

func (err *ProviderError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsRateLimited returns true for HTTP 429 responses.
func (err *ProviderError) IsRateLimited() bool {
	return err.StatusCode == http.StatusTooManyRequests
}

// Client calls the chat completions endpoint. The http.Client must carry
// authentication (see httpauth.NewHTTPClient).
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a completion client.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model          string          `json:"model"`
	Messages       []wireMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type wireResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type wireError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the request and returns the first choice's text.
func (c *Client) Complete(ctx context.Context, request Request) (*Response, error) {
	wire := wireRequest{
		Model:       request.Model,
		Temperature: request.Temperature,
		MaxTokens:   request.MaxTokens,
	}
	if request.System != "" {
		wire.Messages = append(wire.Messages, wireMessage{Role: "system", Content: request.System})
	}
	wire.Messages = append(wire.Messages, wireMessage{Role: "user", Content: request.User})
	if request.JSON {
		wire.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling completion API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr wireError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, &ProviderError{StatusCode: resp.StatusCode, Type: apiErr.Error.Type, Message: apiErr.Error.Message}
		}
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var result wireResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("completion API returned no choices")
	}

	model := result.Model
	if model == "" {
		model = request.Model
	}
	return &Response{
		Text:  strings.TrimSpace(result.Choices[0].Message.Content),
		Model: model,
	}, nil
}
