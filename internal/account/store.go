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

// Package account provides read access to tenant operating configuration
// in Postgres, plus the usage counter the pipeline increments on send.
package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/autoreply/internal/models"
)

// ErrNotFound is returned when no account row exists for the ID.
var ErrNotFound = errors.New("account: not found")

// Store reads account rows.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an account store backed by the given Postgres pool.
// It ensures the accounts table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure account schema: %w", err)
	}
	slog.Info("account store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id                      TEXT PRIMARY KEY,
			is_live                 BOOLEAN NOT NULL DEFAULT FALSE,
			is_active               BOOLEAN NOT NULL DEFAULT FALSE,
			auto_send_enabled       BOOLEAN NOT NULL DEFAULT FALSE,
			daily_quota             INTEGER NOT NULL DEFAULT 50,
			emails_used_this_period INTEGER NOT NULL DEFAULT 0,
			mailbox_address         TEXT NOT NULL DEFAULT '',
			store_name              TEXT NOT NULL DEFAULT '',
			brand_voice             TEXT NOT NULL DEFAULT '',
			sign_off                TEXT NOT NULL DEFAULT '',
			policies                JSONB,
			faqs                    JSONB,
			do_dont_rules           JSONB,
			commerce                JSONB,
			created_at              TIMESTAMPTZ DEFAULT NOW(),
			updated_at              TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

// Load returns the operating flags, quota and mailbox of an account.
// Knowledge fields are filled separately by LoadKnowledge.
func (s *Store) Load(ctx context.Context, accountID string) (*models.AccountConfig, error) {
	var (
		a        models.AccountConfig
		commerce []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, is_live, is_active, auto_send_enabled, daily_quota,
		       emails_used_this_period, mailbox_address, store_name, commerce
		FROM accounts
		WHERE id = $1
	`, accountID).Scan(
		&a.ID, &a.IsLive, &a.IsActive, &a.AutoSendEnabled, &a.DailyQuota,
		&a.EmailsUsedThisPeriod, &a.MailboxAddress, &a.StoreName, &commerce,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", accountID, err)
	}

	cred, err := decodeCommerce(commerce)
	if err != nil {
		// A broken integration row only disables enrichment.
		slog.Warn("invalid commerce credential", "account_id", accountID, "error", err)
	}
	a.Commerce = cred
	return &a, nil
}

// LoadKnowledge fills brand voice, rules, policies and FAQs into acct.
func (s *Store) LoadKnowledge(ctx context.Context, acct *models.AccountConfig) error {
	var policies, faqs, rules []byte
	err := s.pool.QueryRow(ctx, `
		SELECT brand_voice, sign_off, policies, faqs, do_dont_rules
		FROM accounts
		WHERE id = $1
	`, acct.ID).Scan(&acct.BrandVoice, &acct.SignOff, &policies, &faqs, &rules)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load knowledge %s: %w", acct.ID, err)
	}

	if err := decodeJSON(policies, &acct.Policies); err != nil {
		return fmt.Errorf("decode policies: %w", err)
	}
	if err := decodeJSON(faqs, &acct.FAQs); err != nil {
		return fmt.Errorf("decode faqs: %w", err)
	}
	if err := decodeJSON(rules, &acct.DoDontRules); err != nil {
		return fmt.Errorf("decode rules: %w", err)
	}
	return nil
}

// IncrementUsage counts one auto-sent reply against the billing period.
func (s *Store) IncrementUsage(ctx context.Context, accountID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET emails_used_this_period = emails_used_this_period + 1, updated_at = NOW()
		WHERE id = $1
	`, accountID)
	if err != nil {
		return fmt.Errorf("increment usage %s: %w", accountID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func decodeCommerce(raw []byte) (*models.CommerceCredential, error) {
	var cred *models.CommerceCredential
	if err := decodeJSON(raw, &cred); err != nil {
		return nil, err
	}
	if cred == nil || cred.ShopDomain == "" || cred.AccessToken == "" {
		return nil, nil
	}
	return cred, nil
}

// decodeJSON leaves dst untouched for NULL columns.
func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
