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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bcem/autoreply/internal/account"
	"github.com/bcem/autoreply/internal/dedup"
	"github.com/bcem/autoreply/internal/filter"
	"github.com/bcem/autoreply/internal/generate"
	"github.com/bcem/autoreply/internal/mailbox"
	"github.com/bcem/autoreply/internal/models"
	"github.com/bcem/autoreply/internal/quality"
	"github.com/bcem/autoreply/internal/ratelimit"
)

// run is the state of a single Process call. It is never shared.
type run struct {
	p       *Pipeline
	ref     models.InboundMessageRef
	started time.Time
	state   State

	acct    *models.AccountConfig
	msg     *models.MessageContent
	class   models.ClassificationResult
	order   *models.OrderRecord
	reply   *models.GeneratedReply
	gate    quality.Result
	replyID string

	quotaExceeded bool
	regenerated   bool
}

func (r *run) log() *slog.Logger {
	return slog.With("account_id", r.ref.AccountID, "message_id", r.ref.MessageID, "state", r.state.String())
}

func (r *run) end(action models.Action, reason string) (State, *models.ProcessingResult) {
	return stateTerminal, &models.ProcessingResult{Action: action, Reason: reason, ReplyID: r.replyID}
}

func (r *run) ignore(reason string) (State, *models.ProcessingResult) {
	return r.end(models.ActionIgnored, reason)
}

// escalate hands the thread to a human with an optional draft. The queue
// write is best effort; the result stands either way.
func (r *run) escalate(ctx context.Context, action models.Action, reason, draft string) (State, *models.ProcessingResult) {
	item := models.ReviewQueueItem{
		AccountID:        r.ref.AccountID,
		ThreadID:         r.ref.ThreadID,
		MessageID:        r.ref.MessageID,
		Intent:           r.class.Intent,
		EscalationReason: reason,
		DraftReply:       quality.Truncate(strings.TrimSpace(draft), r.p.opts.DraftLimit),
		Status:           models.ReviewPending,
		CreatedAt:        r.p.now().UTC(),
	}

	ctx, cancel := withTimeout(ctx, r.p.opts.StoreTimeout)
	defer cancel()
	if err := r.p.deps.Escalations.Enqueue(ctx, item); err != nil {
		r.log().Error("failed to enqueue review item", "reason", reason, "error", err)
	}
	return r.end(action, reason)
}

func (r *run) draft() string {
	if r.reply == nil {
		return ""
	}
	return r.reply.Text
}

func (r *run) start(_ context.Context) (State, *models.ProcessingResult) {
	if !r.ref.Valid() {
		return r.ignore(ReasonInvalidRef)
	}
	return StateDedup, nil
}

// dedup checks the reply key first so a replay after a completed send is
// reported as already_replied. Ledger errors let the run proceed: a
// possible duplicate is preferred over a lost customer email.
func (r *run) dedup(ctx context.Context) (State, *models.ProcessingResult) {
	ctx, cancel := withTimeout(ctx, r.p.opts.StoreTimeout)
	defer cancel()

	replied, err := r.p.deps.Ledger.Has(ctx, dedup.RepliedKey(r.ref.AccountID, r.ref.MessageID))
	if err != nil {
		r.log().Warn("ledger unavailable, proceeding", "error", err)
	} else if replied {
		return r.ignore(ReasonAlreadyReplied)
	}

	fresh, err := r.p.deps.Ledger.MarkIfNew(ctx, dedup.NotificationKey(r.ref.MessageID), r.p.opts.DedupTTL)
	if err != nil {
		r.log().Warn("ledger unavailable, proceeding", "error", err)
	} else if !fresh {
		return r.ignore(ReasonAlreadyProcessed)
	}
	return StateAccountLoad, nil
}

func (r *run) loadAccount(ctx context.Context) (State, *models.ProcessingResult) {
	ctx, cancel := withTimeout(ctx, r.p.opts.StoreTimeout)
	defer cancel()

	acct, err := r.p.deps.Accounts.Load(ctx, r.ref.AccountID)
	switch {
	case errors.Is(err, account.ErrNotFound):
		return r.ignore(ReasonAccountNotFound)
	case err != nil:
		r.log().Error("account load failed", "error", err)
		return r.ignore(ReasonAccountLoadFailed)
	case acct == nil:
		return r.ignore(ReasonAccountNotFound)
	case !acct.Operational():
		return r.ignore(ReasonAccountInactive)
	}
	r.acct = acct
	return StateFetch, nil
}

func (r *run) fetch(ctx context.Context) (State, *models.ProcessingResult) {
	ctx, cancel := withTimeout(ctx, r.p.opts.MailboxTimeout)
	defer cancel()

	msg, err := r.p.deps.Mailbox.FetchMessage(ctx, r.ref.GrantID, r.ref.MessageID)
	if err != nil {
		r.log().Error("message fetch failed", "error", err)
		return r.ignore(ReasonFetchFailed)
	}
	if msg == nil {
		return r.ignore(ReasonFetchFailed)
	}
	r.msg = msg
	return StateLoopCheck, nil
}

func (r *run) loopCheck(_ context.Context) (State, *models.ProcessingResult) {
	if v := filter.ShouldReply(*r.msg, r.acct.MailboxAddress); !v.Safe {
		return r.ignore(v.Reason)
	}
	return StateAckCheck, nil
}

func (r *run) ackCheck(_ context.Context) (State, *models.ProcessingResult) {
	if filter.IsAcknowledgment(r.msg.Body) {
		return r.ignore(ReasonAcknowledgment)
	}
	return StateThreadRate, nil
}

// threadRate blocks rather than escalates: a busy thread is most likely
// two automated systems talking to each other.
func (r *run) threadRate(ctx context.Context) (State, *models.ProcessingResult) {
	ctx, cancel := withTimeout(ctx, r.p.opts.StoreTimeout)
	defer cancel()

	exceeded, err := r.p.deps.Limiter.IncrementAndCheck(ctx, ratelimit.ThreadKey(r.ref.ThreadID), r.p.opts.ThreadWindow, r.p.opts.ThreadLimit)
	if err != nil {
		r.log().Warn("thread rate limiter unavailable, proceeding", "error", err)
		return StateGuardPre, nil
	}
	if exceeded {
		return r.end(models.ActionBlocked, ReasonThreadRateLimited)
	}
	return StateGuardPre, nil
}

func (r *run) humanReplied(ctx context.Context) bool {
	return r.p.deps.Guard.HumanAlreadyReplied(ctx, r.ref.GrantID, r.ref.ThreadID, r.msg.From, r.acct.MailboxAddress)
}

func (r *run) guardPre(ctx context.Context) (State, *models.ProcessingResult) {
	if r.humanReplied(ctx) {
		return r.ignore(ReasonHumanReplied)
	}
	return StateClassify, nil
}

func (r *run) classify(ctx context.Context) (State, *models.ProcessingResult) {
	r.class = r.p.deps.Classifier.Classify(ctx, r.msg.Subject, r.msg.Body)
	r.log().Info("message classified",
		"intent", r.class.Intent,
		"source", r.class.Source,
		"has_order_number", r.class.OrderNumber != "",
	)
	return StateEnrich, nil
}

func (r *run) enrich(ctx context.Context) (State, *models.ProcessingResult) {
	if r.class.Intent.IsOrderRelated() && r.class.OrderNumber != "" && r.acct.Commerce != nil {
		r.order = r.p.deps.Enricher.FindOrderByNumber(ctx, r.acct.ID, r.acct.Commerce, r.class.OrderNumber)
	}
	return StateQuotaCheck, nil
}

// quotaCheck only flags the run; the draft is still generated so the
// reviewer has something to send.
func (r *run) quotaCheck(ctx context.Context) (State, *models.ProcessingResult) {
	if r.acct.DailyQuota <= 0 {
		r.quotaExceeded = true
		return StateLoadConfig, nil
	}

	ctx, cancel := withTimeout(ctx, r.p.opts.StoreTimeout)
	defer cancel()

	exceeded, err := r.p.deps.Limiter.IncrementAndCheck(ctx, ratelimit.DailyKey(r.acct.ID), QuotaWindow, r.acct.DailyQuota)
	if err != nil {
		r.log().Warn("quota limiter unavailable, proceeding", "error", err)
		return StateLoadConfig, nil
	}
	r.quotaExceeded = exceeded
	return StateLoadConfig, nil
}

func (r *run) loadConfig(ctx context.Context) (State, *models.ProcessingResult) {
	ctx, cancel := withTimeout(ctx, r.p.opts.StoreTimeout)
	defer cancel()

	if err := r.p.deps.Accounts.LoadKnowledge(ctx, r.acct); err != nil {
		r.log().Warn("account knowledge unavailable, generating without it", "error", err)
	}
	return StateGenerate, nil
}

func (r *run) input() generate.Input {
	return generate.Input{
		Account:     r.acct,
		Intent:      r.class.Intent,
		OrderNumber: r.class.OrderNumber,
		Order:       r.order,
		SenderName:  r.msg.SenderName,
		Subject:     r.msg.Subject,
		Body:        r.msg.Body,
	}
}

func (r *run) generate(ctx context.Context) (State, *models.ProcessingResult) {
	reply, err := r.p.deps.Generator.Generate(ctx, r.input(), r.p.opts.PrimaryModel)
	if err != nil {
		r.log().Warn("generation failed", "model", r.p.opts.PrimaryModel, "error", err)
	} else {
		r.reply = reply
	}

	if r.quotaExceeded {
		return r.escalate(ctx, models.ActionEscalated, ReasonQuotaExceeded, r.draft())
	}
	if err != nil {
		// The strong model is the fallback; it counts as the one regeneration.
		return StateRegenerate, nil
	}
	return StateQualityGate, nil
}

func (r *run) qualityGate(ctx context.Context) (State, *models.ProcessingResult) {
	r.gate = r.p.deps.Quality.Check(r.reply.Text, r.order != nil, r.class.Intent)
	if r.gate.Pass {
		if len(r.gate.Warnings) > 0 {
			r.log().Info("reply passed with warnings", "warnings", r.gate.Warnings)
		}
		return StateGuardPost, nil
	}

	r.log().Info("quality gate failed", "reason", r.gate.Reason, "regenerated", r.regenerated)
	if r.regenerated {
		return r.escalate(ctx, models.ActionEscalated, QualityGateFailed(r.gate.Reason), r.draft())
	}
	return StateRegenerate, nil
}

func (r *run) regenerate(ctx context.Context) (State, *models.ProcessingResult) {
	r.regenerated = true

	reply, err := r.p.deps.Generator.Generate(ctx, r.input(), r.p.opts.StrongModel)
	if err != nil {
		r.log().Error("regeneration failed", "model", r.p.opts.StrongModel, "error", err)
		if r.reply != nil {
			return r.escalate(ctx, models.ActionEscalated, QualityGateFailed(r.gate.Reason), r.draft())
		}
		return r.escalate(ctx, models.ActionEscalated, ReasonGenerationFailed, "")
	}
	r.reply = reply
	return StateQualityGate, nil
}

// guardPost closes the window in which a human answered while the
// completion calls were in flight.
func (r *run) guardPost(ctx context.Context) (State, *models.ProcessingResult) {
	if r.humanReplied(ctx) {
		return r.ignore(ReasonHumanReplied)
	}
	return StateAutoSendCheck, nil
}

func (r *run) autoSendCheck(ctx context.Context) (State, *models.ProcessingResult) {
	if !r.acct.AutoSendEnabled {
		return r.escalate(ctx, models.ActionQueued, ReasonAutoSendDisabled, r.draft())
	}
	return StateSend, nil
}

// send makes exactly one attempt; redelivery is the event system's job.
func (r *run) send(ctx context.Context) (State, *models.ProcessingResult) {
	ctx, cancel := withTimeout(ctx, r.p.opts.SendTimeout)
	defer cancel()

	id, err := r.p.deps.Mailbox.SendReply(ctx, r.ref.GrantID, mailbox.Reply{
		ReplyToMessageID: r.ref.MessageID,
		To:               r.msg.From,
		Subject:          replySubject(r.msg.Subject),
		Body:             strings.TrimSpace(r.reply.Text),
	})
	if err != nil {
		r.log().Error("send failed", "error", err)
		return r.escalate(context.WithoutCancel(ctx), models.ActionEscalated, ReasonSendFailed, r.draft())
	}
	r.replyID = id
	return StateMarkReplied, nil
}

func (r *run) markReplied(ctx context.Context) (State, *models.ProcessingResult) {
	ctx, cancel := withTimeout(ctx, r.p.opts.StoreTimeout)
	defer cancel()

	if err := r.p.deps.Ledger.Mark(ctx, dedup.RepliedKey(r.ref.AccountID, r.ref.MessageID), r.p.opts.DedupTTL); err != nil {
		r.log().Error("failed to mark reply in ledger", "error", err)
	}
	if err := r.p.deps.Accounts.IncrementUsage(ctx, r.acct.ID); err != nil {
		r.log().Warn("failed to increment usage", "error", err)
	}
	return r.end(models.ActionReplied, ReasonSent)
}

// finish writes the audit row. Duplicate notifications are not audited;
// the first delivery already was.
func (r *run) finish(ctx context.Context, res models.ProcessingResult) {
	if res.Reason == ReasonAlreadyProcessed || res.Reason == ReasonInvalidRef {
		return
	}

	entry := models.AuditEntry{
		AccountID:    r.ref.AccountID,
		Intent:       r.class.Intent,
		OrderNumber:  r.class.OrderNumber,
		AutoSent:     res.Action == models.ActionReplied,
		Escalated:    res.Action == models.ActionEscalated || res.Action == models.ActionQueued,
		Action:       res.Action,
		ResponseTime: r.p.now().Sub(r.started),
	}
	if entry.Escalated {
		entry.EscalationReason = res.Reason
	}
	if r.reply != nil {
		entry.ModelUsed = r.reply.ModelUsed
	}
	if len(r.gate.Warnings) > 0 {
		entry.QualityWarning = strings.Join(r.gate.Warnings, ",")
	}

	ctx, cancel := withTimeout(context.WithoutCancel(ctx), r.p.opts.StoreTimeout)
	defer cancel()
	if err := r.p.deps.Escalations.LogAudit(ctx, entry); err != nil {
		r.log().Warn("failed to write audit log", "error", err)
	}
}

// recovered turns a panic into a result. A draft, if any, goes to review.
func (r *run) recovered(ctx context.Context) (res models.ProcessingResult) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic while recovering pipeline run", "message_id", r.ref.MessageID, "panic", fmt.Sprint(rec))
			res = models.ProcessingResult{Action: models.ActionIgnored, Reason: ReasonInternalError}
		}
	}()

	var out *models.ProcessingResult
	if r.reply != nil {
		_, out = r.escalate(ctx, models.ActionEscalated, ReasonInternalError, r.draft())
	} else {
		_, out = r.ignore(ReasonInternalError)
	}
	r.finish(ctx, *out)
	return *out
}

func replySubject(subject string) string {
	s := strings.TrimSpace(subject)
	if strings.HasPrefix(strings.ToLower(s), "re:") {
		return s
	}
	if s == "" {
		return "Re: your message"
	}
	return "Re: " + s
}
