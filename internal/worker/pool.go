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

// Package worker runs pipeline jobs from the queue on a fixed pool of
// goroutines, throttling each account so a webhook burst cannot run up
// unbounded third-party API cost.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bcem/autoreply/internal/models"
	"github.com/bcem/autoreply/internal/queue"
	"github.com/bcem/autoreply/internal/ratelimit"
)

// Defaults.
const (
	DefaultWorkers         = 4
	DefaultThrottle        = 10
	DefaultThrottleWindow  = time.Minute
	DefaultDeferDelay      = 15 * time.Second
	DefaultRunTimeout      = 2 * time.Minute
	DefaultPollTimeout     = 5 * time.Second
	DefaultPromoteInterval = time.Second
)

// JobQueue is the job source. Implemented by queue.Queue.
type JobQueue interface {
	Consume(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Defer(ctx context.Context, job *queue.Job, delay time.Duration) error
	PromoteDue(ctx context.Context) (int, error)
}

// Processor runs one message. Implemented by pipeline.Pipeline.
type Processor interface {
	Process(ctx context.Context, ref models.InboundMessageRef) models.ProcessingResult
}

// RateChecker is the shared counter store. Implemented by ratelimit.Limiter.
type RateChecker interface {
	IncrementAndCheck(ctx context.Context, key string, window time.Duration, max int) (bool, error)
}

// Config holds the pool configuration. Zero values fall back to defaults.
type Config struct {
	Queue     JobQueue
	Processor Processor
	Limiter   RateChecker

	Workers         int
	Throttle        int
	ThrottleWindow  time.Duration
	DeferDelay      time.Duration
	RunTimeout      time.Duration
	PollTimeout     time.Duration
	PromoteInterval time.Duration
}

// Pool consumes jobs until stopped.
type Pool struct {
	cfg Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool.
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Throttle <= 0 {
		cfg.Throttle = DefaultThrottle
	}
	if cfg.ThrottleWindow <= 0 {
		cfg.ThrottleWindow = DefaultThrottleWindow
	}
	if cfg.DeferDelay <= 0 {
		cfg.DeferDelay = DefaultDeferDelay
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.PromoteInterval <= 0 {
		cfg.PromoteInterval = DefaultPromoteInterval
	}
	return &Pool{cfg: cfg}
}

// Start launches the workers and the delayed-job promotion loop.
func (p *Pool) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(p.cfg.Workers + 1)
	for i := 0; i < p.cfg.Workers; i++ {
		go p.consumeLoop(loopCtx, i)
	}
	go p.promoteLoop(loopCtx)

	slog.Info("worker pool started",
		"workers", p.cfg.Workers,
		"throttle_per_window", p.cfg.Throttle,
		"throttle_window", p.cfg.ThrottleWindow,
	)
}

// Stop stops consuming and waits for in-flight runs to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	slog.Info("worker pool stopped")
}

func (p *Pool) consumeLoop(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.cfg.Queue.Consume(ctx, p.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, queue.ErrMalformedJob) {
				slog.Error("dropping malformed job", "worker", id, "error", err)
				continue
			}
			slog.Error("queue consume failed", "worker", id, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}

		// Runs finish even when the pool is stopping.
		p.handle(context.WithoutCancel(ctx), job)
	}
}

// handle runs one job, or defers it when the account is over its budget.
func (p *Pool) handle(ctx context.Context, job *queue.Job) {
	log := slog.With("job_id", job.ID, "account_id", job.Ref.AccountID, "message_id", job.Ref.MessageID)

	if p.cfg.Limiter != nil {
		exceeded, err := p.cfg.Limiter.IncrementAndCheck(ctx, ratelimit.InflightKey(job.Ref.AccountID), p.cfg.ThrottleWindow, p.cfg.Throttle)
		if err != nil {
			log.Warn("account throttle unavailable, running job", "error", err)
		} else if exceeded {
			if err := p.cfg.Queue.Defer(ctx, job, p.cfg.DeferDelay); err != nil {
				log.Error("failed to defer throttled job, running it", "error", err)
			} else {
				log.Info("account throttled, job deferred", "delay", p.cfg.DeferDelay, "attempt", job.Attempt)
				return
			}
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, p.cfg.RunTimeout)
	defer cancel()

	res := p.cfg.Processor.Process(runCtx, job.Ref)
	log.Debug("job done", "action", res.Action, "reason", res.Reason, "queued_for", time.Since(job.EnqueuedAt))
}

func (p *Pool) promoteLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PromoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.cfg.Queue.PromoteDue(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Warn("failed to promote delayed jobs", "error", err)
				}
				continue
			}
			if n > 0 {
				slog.Debug("promoted delayed jobs", "count", n)
			}
		}
	}
}
