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

package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func messageJSON(id, from string, date int64) map[string]interface{} {
	return map[string]interface{}{
		"id":        id,
		"thread_id": "thread-1",
		"subject":   "Where is my order #4821?",
		"from": []map[string]string{
			{"email": from, "name": "Customer"},
		},
		"body": "Hi, where is my order?",
		"date": date,
		"headers": []map[string]string{
			{"name": "auto-submitted", "value": "no"},
			{"name": "Message-ID", "value": "<abc@example.com>"},
		},
	}
}

// TestFetchMessage verifies request shape and parsing.
func TestFetchMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/grants/grant-1/messages/msg-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("fields") != "include_headers" {
			t.Errorf("fields = %q", r.URL.Query().Get("fields"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"data": messageJSON("msg-1", "customer@example.com", 1700000000)})
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL)
	msg, err := c.FetchMessage(context.Background(), "grant-1", "msg-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.From != "customer@example.com" {
		t.Errorf("From = %q", msg.From)
	}
	if msg.SenderName != "Customer" {
		t.Errorf("SenderName = %q", msg.SenderName)
	}
	if msg.ThreadID != "thread-1" {
		t.Errorf("ThreadID = %q", msg.ThreadID)
	}
	if got := msg.Headers["Auto-Submitted"]; got != "no" {
		t.Errorf("Auto-Submitted header = %q, want canonicalised key", got)
	}
	if msg.ReceivedAt.Unix() != 1700000000 {
		t.Errorf("ReceivedAt = %v", msg.ReceivedAt)
	}
}

// TestFetchMessage_HTMLBody verifies HTML bodies are flattened.
func TestFetchMessage_HTMLBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := messageJSON("msg-2", "customer@example.com", 1700000000)
		m["body"] = `<html><body><p>Where is my order?</p><div class="gmail_quote">old thread</div></body></html>`
		json.NewEncoder(w).Encode(map[string]interface{}{"data": m})
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL)
	msg, err := c.FetchMessage(context.Background(), "grant-1", "msg-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Body != "Where is my order?" {
		t.Errorf("Body = %q", msg.Body)
	}
}

// TestFetchMessage_NotFound verifies 404 maps to ErrNotFound.
func TestFetchMessage_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL)
	_, err := c.FetchMessage(context.Background(), "grant-1", "gone")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// TestFetchMessage_APIError verifies non-2xx responses surface as APIError.
func TestFetchMessage_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL)
	_, err := c.FetchMessage(context.Background(), "grant-1", "msg")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d", apiErr.StatusCode)
	}
}

// TestListThread_SortsChronologically verifies thread ordering.
func TestListThread_SortsChronologically(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("thread_id") != "thread-1" {
			t.Errorf("thread_id = %q", r.URL.Query().Get("thread_id"))
		}
		if r.URL.Query().Get("limit") != "20" {
			t.Errorf("limit = %q", r.URL.Query().Get("limit"))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				messageJSON("c", "support@shop.example", 300),
				messageJSON("a", "customer@example.com", 100),
				messageJSON("b", "customer@example.com", 200),
			},
		})
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL)
	msgs, err := c.ListThread(context.Background(), "grant-1", "thread-1", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []string{"a", "b", "c"} {
		if msgs[i].ID != want {
			t.Errorf("msgs[%d].ID = %q, want %q", i, msgs[i].ID, want)
		}
	}
}

// TestSendReply verifies the send payload and returned ID.
func TestSendReply(t *testing.T) {
	var mu sync.Mutex
	var got sendRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/grants/grant-1/messages/send" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		json.Unmarshal(body, &got)
		mu.Unlock()
		w.Write([]byte(`{"data":{"id":"sent-1"}}`))
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL)
	id, err := c.SendReply(context.Background(), "grant-1", Reply{
		ReplyToMessageID: "msg-1",
		To:               "customer@example.com",
		Subject:          "Re: order",
		Body:             "Your order shipped.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "sent-1" {
		t.Errorf("id = %q, want sent-1", id)
	}

	mu.Lock()
	defer mu.Unlock()
	if got.ReplyToMessageID != "msg-1" || got.Body != "Your order shipped." {
		t.Errorf("payload = %+v", got)
	}
	if len(got.To) != 1 || got.To[0].Email != "customer@example.com" {
		t.Errorf("to = %+v", got.To)
	}
}

// TestHTMLToText verifies block structure is kept.
func TestHTMLToText(t *testing.T) {
	text, err := HTMLToText("<div>Hello</div><div>World&nbsp;!</div><script>x()</script>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "Hello\nWorld") {
		t.Errorf("text = %q", text)
	}
	if strings.Contains(text, "x()") {
		t.Error("script content should be removed")
	}
}
