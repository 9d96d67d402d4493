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

// Package escalation persists human review items and the metadata-only
// audit log in Postgres.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/autoreply/internal/models"
)

// DefaultListLimit caps ListPending when no limit is given.
const DefaultListLimit = 50

var (
	// ErrNotFound is returned when no pending item has the given ID.
	ErrNotFound = errors.New("escalation: review item not found")
	// ErrInvalidStatus is returned for a resolution other than resolved or dismissed.
	ErrInvalidStatus = errors.New("escalation: invalid status")
)

// Store provides the review queue and audit log.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an escalation store backed by the given Postgres pool.
// It ensures the review_queue and audit_log tables exist on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure escalation schema: %w", err)
	}
	slog.Info("escalation store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS review_queue (
			id                UUID PRIMARY KEY,
			account_id        TEXT NOT NULL,
			thread_id         TEXT NOT NULL,
			message_id        TEXT NOT NULL,
			intent            TEXT NOT NULL DEFAULT '',
			escalation_reason TEXT NOT NULL,
			draft_reply       TEXT,
			status            TEXT NOT NULL DEFAULT 'pending',
			created_at        TIMESTAMPTZ DEFAULT NOW(),
			resolved_at       TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_review_account_status ON review_queue(account_id, status, created_at);

		CREATE TABLE IF NOT EXISTS audit_log (
			id                BIGSERIAL PRIMARY KEY,
			account_id        TEXT NOT NULL,
			intent            TEXT NOT NULL DEFAULT '',
			order_number      TEXT,
			auto_sent         BOOLEAN NOT NULL DEFAULT FALSE,
			escalated         BOOLEAN NOT NULL DEFAULT FALSE,
			escalation_reason TEXT,
			response_time_ms  BIGINT NOT NULL DEFAULT 0,
			quality_warning   TEXT,
			action            TEXT NOT NULL,
			model_used        TEXT,
			created_at        TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_audit_account_created ON audit_log(account_id, created_at);
	`)
	return err
}

// Enqueue inserts a review item. Items are not deduplicated here; callers
// produce at most one per run.
func (s *Store) Enqueue(ctx context.Context, item models.ReviewQueueItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = models.ReviewPending
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO review_queue
			(id, account_id, thread_id, message_id, intent, escalation_reason, draft_reply, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, item.ID, item.AccountID, item.ThreadID, item.MessageID, string(item.Intent),
		item.EscalationReason, nullable(item.DraftReply), item.Status, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue review item: %w", err)
	}
	return nil
}

// LogAudit writes one audit row. Only metadata is stored.
func (s *Store) LogAudit(ctx context.Context, e models.AuditEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log
			(account_id, intent, order_number, auto_sent, escalated, escalation_reason,
			 response_time_ms, quality_warning, action, model_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.AccountID, string(e.Intent), nullable(e.OrderNumber), e.AutoSent, e.Escalated,
		nullable(e.EscalationReason), e.ResponseTime.Milliseconds(), nullable(e.QualityWarning),
		string(e.Action), nullable(e.ModelUsed))
	if err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// ListPending returns the oldest pending items for an account.
func (s *Store) ListPending(ctx context.Context, accountID string, limit int) ([]models.ReviewQueueItem, error) {
	if limit <= 0 || limit > 500 {
		limit = DefaultListLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, thread_id, message_id, intent, escalation_reason,
		       COALESCE(draft_reply, ''), status, created_at
		FROM review_queue
		WHERE account_id = $1 AND status = 'pending'
		ORDER BY created_at
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// Resolve closes a pending item as resolved or dismissed.
func (s *Store) Resolve(ctx context.Context, id, status string) error {
	if status != models.ReviewResolved && status != models.ReviewDismissed {
		return ErrInvalidStatus
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE review_queue
		SET status = $1, resolved_at = NOW()
		WHERE id = $2 AND status = 'pending'
	`, status, id)
	if err != nil {
		return fmt.Errorf("resolve review item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectItems(rows pgx.Rows) ([]models.ReviewQueueItem, error) {
	var items []models.ReviewQueueItem
	for rows.Next() {
		var (
			it     models.ReviewQueueItem
			id     uuid.UUID
			intent string
		)
		if err := rows.Scan(
			&id, &it.AccountID, &it.ThreadID, &it.MessageID, &intent,
			&it.EscalationReason, &it.DraftReply, &it.Status, &it.CreatedAt,
		); err != nil {
			return nil, err
		}
		it.ID = id.String()
		it.Intent = models.Intent(intent)
		items = append(items, it)
	}
	return items, rows.Err()
}

// nullable maps empty strings to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
