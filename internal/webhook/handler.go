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

// Package webhook is the HTTP surface of the service. The mailbox relay
// POSTs inbound message references here; each one is acknowledged with
// 202 immediately and handed to the job queue. The same router serves
// the human review API and the health check.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bcem/autoreply/internal/models"
	"github.com/bcem/autoreply/internal/queue"
)

// SecretHeader carries the shared secret configured on the relay.
const SecretHeader = "X-Webhook-Secret"

const (
	maxBodyBytes   = 1 << 20
	publishTimeout = 5 * time.Second
)

// Publisher enqueues pipeline jobs. Implemented by queue.Queue.
type Publisher interface {
	Publish(ctx context.Context, ref models.InboundMessageRef) (*queue.Job, error)
}

// batchPayload is the multi-event form the relay may send.
type batchPayload struct {
	Events []models.InboundMessageRef `json:"events"`
}

// Handler accepts inbound message notifications.
type Handler struct {
	publisher Publisher
	secret    string
	wg        sync.WaitGroup
}

// NewHandler creates a notification handler. An empty secret disables
// the shared-secret check.
func NewHandler(publisher Publisher, secret string) *Handler {
	return &Handler{publisher: publisher, secret: secret}
}

// ServeVerification answers the relay's endpoint verification probe:
// GET /webhook?challenge=<token> must echo the token as plain text.
func (h *Handler) ServeVerification(w http.ResponseWriter, r *http.Request) {
	challenge := r.URL.Query().Get("challenge")
	if challenge == "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	slog.Info("webhook verification probe received")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// ServeNotification handles POST /webhook.
//
// The body is either a single reference
//
//	{"accountId": "...", "threadId": "...", "messageId": "...", "mailboxGrantId": "..."}
//
// or a batch {"events": [ ... ]}. The relay always gets 202 for a
// well-authenticated request, even when the body is garbage: a retry
// would not make it any better.
func (h *Handler) ServeNotification(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretHeader)), []byte(h.secret)) != 1 {
		slog.Warn("webhook secret mismatch", "remote_addr", r.RemoteAddr)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		slog.Error("failed to read notification body", "error", err)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	refs, err := parseRefs(body)
	if err != nil {
		slog.Info("notification body not valid JSON, ignoring", "body_len", len(body))
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// Respond immediately; the relay expects a fast answer.
	w.WriteHeader(http.StatusAccepted)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.enqueue(context.WithoutCancel(r.Context()), refs)
	}()
}

// Wait blocks until every accepted notification has been enqueued.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func parseRefs(body []byte) ([]models.InboundMessageRef, error) {
	var batch batchPayload
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, err
	}
	if batch.Events != nil {
		return batch.Events, nil
	}

	var single models.InboundMessageRef
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, err
	}
	return []models.InboundMessageRef{single}, nil
}

func (h *Handler) enqueue(ctx context.Context, refs []models.InboundMessageRef) {
	for _, ref := range refs {
		if !ref.Valid() {
			slog.Warn("skipping incomplete notification",
				"account_id", ref.AccountID,
				"message_id", ref.MessageID,
			)
			continue
		}

		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		job, err := h.publisher.Publish(pctx, ref)
		cancel()
		if err != nil {
			slog.Error("publish failed",
				"account_id", ref.AccountID,
				"message_id", ref.MessageID,
				"error", err,
			)
			continue
		}

		slog.Info("notification enqueued",
			"job_id", job.ID,
			"account_id", ref.AccountID,
			"message_id", ref.MessageID,
		)
	}
}
