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
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bcem/autoreply/internal/escalation"
	"github.com/bcem/autoreply/internal/models"
)

// ReviewStore is the human side of the escalation queue. Implemented by
// escalation.Store.
type ReviewStore interface {
	ListPending(ctx context.Context, accountID string, limit int) ([]models.ReviewQueueItem, error)
	Resolve(ctx context.Context, id, status string) error
}

// ReviewHandler serves the review queue API.
type ReviewHandler struct {
	store ReviewStore
}

// NewReviewHandler creates a review API handler.
func NewReviewHandler(store ReviewStore) *ReviewHandler {
	return &ReviewHandler{store: store}
}

// List handles GET /reviews?account_id=&limit=.
func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	items, err := h.store.ListPending(r.Context(), accountID, limit)
	if err != nil {
		slog.Error("list review items failed", "account_id", accountID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list review items")
		return
	}
	if items == nil {
		items = []models.ReviewQueueItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

type resolveRequest struct {
	Status string `json:"status"`
}

// Resolve handles POST /reviews/{id}/resolve with an optional body
// {"status": "resolved" | "dismissed"}; the default is resolved.
func (h *ReviewHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req := resolveRequest{Status: models.ReviewResolved}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Status == "" {
			req.Status = models.ReviewResolved
		}
	}

	err := h.store.Resolve(r.Context(), id, req.Status)
	switch {
	case errors.Is(err, escalation.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "status must be resolved or dismissed")
	case errors.Is(err, escalation.ErrNotFound):
		writeError(w, http.StatusNotFound, "review item not found or already closed")
	case err != nil:
		slog.Error("resolve review item failed", "review_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve review item")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": req.Status})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
