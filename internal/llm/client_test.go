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

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestComplete verifies the wire request and response parsing.
func TestComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req wireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Model != "fast-model" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Errorf("response_format = %+v", req.ResponseFormat)
		}
		w.Write([]byte(`{"model":"fast-model-2026","choices":[{"message":{"content":"  {\"intent\":\"general\"}  "}}]}`))
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL+"/v1/")
	resp, err := c.Complete(context.Background(), Request{
		Model:  "fast-model",
		System: "classify",
		User:   "hello",
		JSON:   true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != `{"intent":"general"}` {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.Model != "fast-model-2026" {
		t.Errorf("Model = %q", resp.Model)
	}
}

// TestComplete_ProviderError verifies error responses are typed.
func TestComplete_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL)
	_, err := c.Complete(context.Background(), Request{Model: "m", User: "u"})

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *ProviderError", err)
	}
	if !perr.IsRateLimited() {
		t.Error("expected IsRateLimited")
	}
	if perr.Error() != "llm: HTTP 429: rate_limit_error: slow down" {
		t.Errorf("Error() = %q", perr.Error())
	}
}

// TestComplete_NoChoices verifies an empty choices list is an error.
func TestComplete_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL)
	if _, err := c.Complete(context.Background(), Request{Model: "m", User: "u"}); err == nil {
		t.Error("expected error for empty choices")
	}
}
