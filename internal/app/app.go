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

// Package app wires the decision engine from configuration. Both the
// server and the replay tool build their collaborators here.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/autoreply/internal/account"
	"github.com/bcem/autoreply/internal/classify"
	"github.com/bcem/autoreply/internal/commerce"
	"github.com/bcem/autoreply/internal/config"
	"github.com/bcem/autoreply/internal/dedup"
	"github.com/bcem/autoreply/internal/escalation"
	"github.com/bcem/autoreply/internal/generate"
	"github.com/bcem/autoreply/internal/guard"
	"github.com/bcem/autoreply/internal/httpauth"
	"github.com/bcem/autoreply/internal/llm"
	"github.com/bcem/autoreply/internal/mailbox"
	"github.com/bcem/autoreply/internal/pipeline"
	"github.com/bcem/autoreply/internal/quality"
	"github.com/bcem/autoreply/internal/queue"
	"github.com/bcem/autoreply/internal/ratelimit"
)

// App holds the connected infrastructure and the assembled pipeline.
type App struct {
	DB          *pgxpool.Pool
	Redis       *redis.Client
	Queue       *queue.Queue
	Limiter     *ratelimit.Limiter
	Mailbox     *mailbox.Client
	Accounts    *account.Store
	Escalations *escalation.Store
	Pipeline    *pipeline.Pipeline
}

// New connects to PostgreSQL and Redis, ensures schemas and builds every
// collaborator of the pipeline.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pgPool.Ping(ctx); err != nil {
		pgPool.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pgPool.Close()
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opt)

	a := &App{DB: pgPool, Redis: rdb}
	if err := a.build(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config) error {
	a.Queue = queue.New(a.Redis, cfg.JobsQueue)
	if err := a.Queue.Ping(ctx); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	slog.Info("connected to Redis", "queue", a.Queue.Name())

	var err error
	a.Accounts, err = account.NewStore(ctx, a.DB)
	if err != nil {
		return fmt.Errorf("initialise account store: %w", err)
	}
	a.Escalations, err = escalation.NewStore(ctx, a.DB)
	if err != nil {
		return fmt.Errorf("initialise escalation store: %w", err)
	}

	// --- Provider clients ---
	mailHTTP, err := httpauth.NewHTTPClient(ctx, httpauth.AuthConfig{
		Mode:         cfg.Mailbox.AuthMode,
		APIKey:       cfg.Mailbox.APIKey,
		ClientID:     cfg.Mailbox.ClientID,
		ClientSecret: cfg.Mailbox.ClientSecret,
		TokenURL:     cfg.Mailbox.TokenURL,
		Scopes:       cfg.Mailbox.Scopes,
	})
	if err != nil {
		return fmt.Errorf("mailbox auth: %w", err)
	}
	a.Mailbox = mailbox.NewClient(mailHTTP, cfg.Mailbox.BaseURL)

	llmHTTP, err := httpauth.NewHTTPClient(ctx, httpauth.AuthConfig{
		Mode:   httpauth.AuthAPIKey,
		APIKey: cfg.Completion.APIKey,
	})
	if err != nil {
		return fmt.Errorf("completion auth: %w", err)
	}
	completions := llm.NewClient(llmHTTP, cfg.Completion.BaseURL)

	a.Limiter = ratelimit.NewLimiter(a.Redis)
	shop := commerce.NewClient(&http.Client{}, cfg.CommerceAPIVersion)

	a.Pipeline = pipeline.New(pipeline.Deps{
		Ledger:     dedup.NewLedger(a.Redis),
		Limiter:    a.Limiter,
		Accounts:   a.Accounts,
		Mailbox:    a.Mailbox,
		Guard:      guard.New(a.Mailbox, cfg.Timeouts.Guard),
		Classifier: classify.New(completions, cfg.Completion.FastModel, cfg.Timeouts.Classify),
		Enricher:   commerce.NewConnector(shop, a.Limiter, cfg.Timeouts.Commerce),
		Generator:  generate.New(completions, cfg.Timeouts.Generate),
		Quality: quality.New(quality.Options{
			MinLength:       cfg.Pipeline.MinReplyLength,
			MaxLength:       cfg.Pipeline.MaxReplyLength,
			StrictOrderData: cfg.Pipeline.StrictOrderData,
		}),
		Escalations: a.Escalations,
	}, pipeline.Options{
		ThreadLimit:    cfg.Pipeline.ThreadLimit,
		ThreadWindow:   cfg.Pipeline.ThreadWindow,
		DedupTTL:       cfg.Pipeline.DedupTTL,
		DraftLimit:     cfg.Pipeline.DraftLimit,
		PrimaryModel:   cfg.Completion.FastModel,
		StrongModel:    cfg.Completion.StrongModel,
		StoreTimeout:   cfg.Timeouts.Store,
		MailboxTimeout: cfg.Timeouts.Mailbox,
		SendTimeout:    cfg.Timeouts.Send,
	})
	return nil
}

// Close releases the connections.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
