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

// Package pipeline is the reply decision engine. Process takes one inbound
// message reference through a fixed sequence of states and ends in exactly
// one ProcessingResult: replied, queued, escalated, ignored or blocked.
//
// Every collaborator is injected as an interface. Runs share no memory;
// cross-run coordination goes through the ledger and the rate limiter.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/bcem/autoreply/internal/dedup"
	"github.com/bcem/autoreply/internal/generate"
	"github.com/bcem/autoreply/internal/mailbox"
	"github.com/bcem/autoreply/internal/models"
	"github.com/bcem/autoreply/internal/quality"
)

// Ledger is the idempotency store. Implemented by dedup.Ledger.
type Ledger interface {
	MarkIfNew(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Has(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string, ttl time.Duration) error
}

// RateLimiter is the shared window counter. Implemented by ratelimit.Limiter.
type RateLimiter interface {
	IncrementAndCheck(ctx context.Context, key string, window time.Duration, max int) (bool, error)
}

// Accounts reads tenant configuration. Implemented by account.Store.
type Accounts interface {
	Load(ctx context.Context, accountID string) (*models.AccountConfig, error)
	LoadKnowledge(ctx context.Context, acct *models.AccountConfig) error
	IncrementUsage(ctx context.Context, accountID string) error
}

// Mailbox fetches and sends mail. Implemented by mailbox.Client.
type Mailbox interface {
	FetchMessage(ctx context.Context, grantID, messageID string) (*models.MessageContent, error)
	SendReply(ctx context.Context, grantID string, reply mailbox.Reply) (string, error)
}

// InboxGuard detects a human reply on the thread. Implemented by guard.Guard.
type InboxGuard interface {
	HumanAlreadyReplied(ctx context.Context, grantID, threadID, customerEmail, accountEmail string) bool
}

// Classifier assigns an intent. Implemented by classify.Classifier.
type Classifier interface {
	Classify(ctx context.Context, subject, body string) models.ClassificationResult
}

// Enricher looks up order data. Implemented by commerce.Connector.
type Enricher interface {
	FindOrderByNumber(ctx context.Context, accountID string, cred *models.CommerceCredential, orderNumber string) *models.OrderRecord
}

// Generator drafts replies. Implemented by generate.Generator.
type Generator interface {
	Generate(ctx context.Context, in generate.Input, model string) (*models.GeneratedReply, error)
}

// QualityGate validates drafts. Implemented by quality.Gate.
type QualityGate interface {
	Check(text string, hadOrderData bool, intent models.Intent) quality.Result
}

// Escalations records review items and audit rows. Implemented by
// escalation.Store.
type Escalations interface {
	Enqueue(ctx context.Context, item models.ReviewQueueItem) error
	LogAudit(ctx context.Context, entry models.AuditEntry) error
}

// Deps are the collaborators of a Pipeline. All are required.
type Deps struct {
	Ledger      Ledger
	Limiter     RateLimiter
	Accounts    Accounts
	Mailbox     Mailbox
	Guard       InboxGuard
	Classifier  Classifier
	Enricher    Enricher
	Generator   Generator
	Quality     QualityGate
	Escalations Escalations
}

// Options tune the pipeline. Zero values fall back to defaults.
type Options struct {
	ThreadLimit  int
	ThreadWindow time.Duration
	DedupTTL     time.Duration
	// DraftLimit caps the draft stored on a review item, in characters.
	DraftLimit int

	PrimaryModel string
	StrongModel  string

	// Per-call timeouts for collaborators that do not carry their own.
	StoreTimeout   time.Duration
	MailboxTimeout time.Duration
	SendTimeout    time.Duration
}

// Defaults.
const (
	DefaultThreadLimit  = 3
	DefaultThreadWindow = time.Hour
	DefaultDraftLimit   = 2000
	QuotaWindow         = 24 * time.Hour

	defaultStoreTimeout   = 5 * time.Second
	defaultMailboxTimeout = 15 * time.Second
	defaultSendTimeout    = 20 * time.Second
)

// Pipeline runs the reply state machine.
type Pipeline struct {
	deps  Deps
	opts  Options
	steps map[State]stepFunc
	now   func() time.Time
}

type stepFunc func(r *run, ctx context.Context) (State, *models.ProcessingResult)

// New creates a pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if opts.ThreadLimit <= 0 {
		opts.ThreadLimit = DefaultThreadLimit
	}
	if opts.ThreadWindow <= 0 {
		opts.ThreadWindow = DefaultThreadWindow
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = dedup.DefaultTTL
	}
	if opts.DraftLimit <= 0 {
		opts.DraftLimit = DefaultDraftLimit
	}
	if opts.StrongModel == "" {
		opts.StrongModel = opts.PrimaryModel
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.MailboxTimeout <= 0 {
		opts.MailboxTimeout = defaultMailboxTimeout
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}

	return &Pipeline{
		deps: deps,
		opts: opts,
		now:  time.Now,
		steps: map[State]stepFunc{
			StateStart:         (*run).start,
			StateDedup:         (*run).dedup,
			StateAccountLoad:   (*run).loadAccount,
			StateFetch:         (*run).fetch,
			StateLoopCheck:     (*run).loopCheck,
			StateAckCheck:      (*run).ackCheck,
			StateThreadRate:    (*run).threadRate,
			StateGuardPre:      (*run).guardPre,
			StateClassify:      (*run).classify,
			StateEnrich:        (*run).enrich,
			StateQuotaCheck:    (*run).quotaCheck,
			StateLoadConfig:    (*run).loadConfig,
			StateGenerate:      (*run).generate,
			StateQualityGate:   (*run).qualityGate,
			StateRegenerate:    (*run).regenerate,
			StateGuardPost:     (*run).guardPost,
			StateAutoSendCheck: (*run).autoSendCheck,
			StateSend:          (*run).send,
			StateMarkReplied:   (*run).markReplied,
		},
	}
}

// Process runs one message through the pipeline. It never returns an
// error: every failure ends in a named result.
func (p *Pipeline) Process(ctx context.Context, ref models.InboundMessageRef) (result models.ProcessingResult) {
	r := &run{p: p, ref: ref, started: p.now(), state: StateStart}
	log := slog.With("account_id", ref.AccountID, "message_id", ref.MessageID, "thread_id", ref.ThreadID)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("pipeline panic",
				"state", r.state.String(),
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
			result = r.recovered(ctx)
		}
	}()

	for {
		step, ok := p.steps[r.state]
		if !ok {
			panic(fmt.Sprintf("no step for state %s", r.state))
		}
		next, res := step(r, ctx)
		if res != nil {
			r.finish(ctx, *res)
			log.Info("pipeline finished",
				"state", r.state.String(),
				"action", res.Action,
				"reason", res.Reason,
				"intent", r.class.Intent,
				"duration_ms", p.now().Sub(r.started).Milliseconds(),
			)
			return *res
		}
		log.Debug("pipeline transition", "from", r.state.String(), "to", next.String())
		r.state = next
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
