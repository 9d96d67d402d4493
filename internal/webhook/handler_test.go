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

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bcem/autoreply/internal/escalation"
	"github.com/bcem/autoreply/internal/models"
	"github.com/bcem/autoreply/internal/queue"
)

type mockPublisher struct {
	mu   sync.Mutex
	refs []models.InboundMessageRef
	err  error
}

func (m *mockPublisher) Publish(_ context.Context, ref models.InboundMessageRef) (*queue.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.refs = append(m.refs, ref)
	return &queue.Job{ID: "job-" + ref.MessageID, Ref: ref}, nil
}

func (m *mockPublisher) published() []models.InboundMessageRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.InboundMessageRef(nil), m.refs...)
}

const singleRef = `{"accountId":"acct-1","threadId":"t-1","messageId":"m-1","mailboxGrantId":"g-1"}`

// TestServeVerification verifies the relay's challenge probe.
func TestServeVerification(t *testing.T) {
	h := NewHandler(&mockPublisher{}, "")

	req := httptest.NewRequest(http.MethodGet, "/webhook?challenge=test-token-123", nil)
	rr := httptest.NewRecorder()
	h.ServeVerification(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if body := rr.Body.String(); body != "test-token-123" {
		t.Errorf("body = %q, want %q", body, "test-token-123")
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
}

// TestServeNotification_Single verifies a single reference is accepted and enqueued.
func TestServeNotification_Single(t *testing.T) {
	pub := &mockPublisher{}
	h := NewHandler(pub, "")

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(singleRef))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeNotification(rr, req)
	h.Wait()

	if rr.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusAccepted)
	}
	got := pub.published()
	if len(got) != 1 || got[0].MessageID != "m-1" || got[0].GrantID != "g-1" {
		t.Errorf("published = %+v", got)
	}
}

// TestServeNotification_Batch verifies batches are split and incomplete refs skipped.
func TestServeNotification_Batch(t *testing.T) {
	pub := &mockPublisher{}
	h := NewHandler(pub, "")

	body := `{"events":[` + singleRef + `,{"accountId":"acct-1","messageId":"m-2"},` +
		`{"accountId":"acct-2","threadId":"t-9","messageId":"m-3","mailboxGrantId":"g-2"}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeNotification(rr, req)
	h.Wait()

	if rr.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusAccepted)
	}
	got := pub.published()
	if len(got) != 2 || got[0].MessageID != "m-1" || got[1].MessageID != "m-3" {
		t.Errorf("published = %+v", got)
	}
}

// TestServeNotification_InvalidJSON verifies graceful handling of bad payloads.
func TestServeNotification_InvalidJSON(t *testing.T) {
	pub := &mockPublisher{}
	h := NewHandler(pub, "")

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("not json"))
	rr := httptest.NewRecorder()
	h.ServeNotification(rr, req)
	h.Wait()

	// Should still return 202, don't ask the relay to retry
	if rr.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusAccepted)
	}
	if len(pub.published()) != 0 {
		t.Error("nothing should be enqueued")
	}
}

// TestServeNotification_Secret verifies the shared-secret header check.
func TestServeNotification_Secret(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"correct", "s3cret", http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &mockPublisher{}
			h := NewHandler(pub, "s3cret")

			req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(singleRef))
			if tt.header != "" {
				req.Header.Set(SecretHeader, tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeNotification(rr, req)
			h.Wait()

			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			wantPublished := 0
			if tt.want == http.StatusAccepted {
				wantPublished = 1
			}
			if n := len(pub.published()); n != wantPublished {
				t.Errorf("published = %d, want %d", n, wantPublished)
			}
		})
	}
}

// TestServeNotification_PublishError verifies the relay still gets 202.
func TestServeNotification_PublishError(t *testing.T) {
	h := NewHandler(&mockPublisher{err: errors.New("redis down")}, "")

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(singleRef))
	rr := httptest.NewRecorder()
	h.ServeNotification(rr, req)
	h.Wait()

	if rr.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusAccepted)
	}
}

type mockReviewStore struct {
	mu       sync.Mutex
	items    []models.ReviewQueueItem
	err      error
	resolved map[string]string
}

func (m *mockReviewStore) ListPending(_ context.Context, accountID string, limit int) ([]models.ReviewQueueItem, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []models.ReviewQueueItem
	for _, it := range m.items {
		if it.AccountID == accountID {
			out = append(out, it)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockReviewStore) Resolve(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status != models.ReviewResolved && status != models.ReviewDismissed {
		return escalation.ErrInvalidStatus
	}
	if id != "rev-1" {
		return escalation.ErrNotFound
	}
	if m.resolved == nil {
		m.resolved = map[string]string{}
	}
	m.resolved[id] = status
	return nil
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func newTestRouter(store *mockReviewStore, checks map[string]Pinger) http.Handler {
	return NewRouter(NewHandler(&mockPublisher{}, ""), NewReviewHandler(store), NewHealth(checks))
}

func TestRouter_ListReviews(t *testing.T) {
	store := &mockReviewStore{items: []models.ReviewQueueItem{
		{ID: "rev-1", AccountID: "acct-1", EscalationReason: "quota_exceeded", Status: models.ReviewPending},
		{ID: "rev-2", AccountID: "acct-2", EscalationReason: "send_failed", Status: models.ReviewPending},
	}}
	router := newTestRouter(store, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reviews?account_id=acct-1&limit=10", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var items []models.ReviewQueueItem
	if err := json.NewDecoder(rr.Body).Decode(&items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].ID != "rev-1" || items[0].EscalationReason != "quota_exceeded" {
		t.Errorf("items = %+v", items)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reviews?account_id=acct-3", nil))
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("empty list: status = %d, body = %q", rr.Code, rr.Body.String())
	}

	for _, target := range []string{"/reviews", "/reviews?account_id=a&limit=x"} {
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rr.Code)
		}
	}
}

func TestRouter_ResolveReview(t *testing.T) {
	tests := []struct {
		name string
		id   string
		body string
		want int
	}{
		{"default status", "rev-1", "", http.StatusOK},
		{"dismiss", "rev-1", `{"status":"dismissed"}`, http.StatusOK},
		{"bad status", "rev-1", `{"status":"pending"}`, http.StatusBadRequest},
		{"bad body", "rev-1", `{`, http.StatusBadRequest},
		{"unknown id", "rev-404", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&mockReviewStore{}, nil)
			req := httptest.NewRequest(http.MethodPost, "/reviews/"+tt.id+"/resolve", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(&mockReviewStore{}, map[string]Pinger{
		"redis":    stubPinger{},
		"postgres": stubPinger{},
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}

	router = newTestRouter(&mockReviewStore{}, map[string]Pinger{
		"redis":    stubPinger{},
		"postgres": PingFunc(func(context.Context) error { return errors.New("down") }),
	})
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
	var body map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if body["postgres"] != "unavailable" || body["redis"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestRouter_Verification(t *testing.T) {
	router := newTestRouter(&mockReviewStore{}, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/webhook?challenge=abc", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "abc" {
		t.Errorf("status = %d, body = %q", rr.Code, rr.Body.String())
	}
}
