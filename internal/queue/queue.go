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

// Package queue carries inbound message references from the webhook to
// the workers through Redis. Jobs are JSON on a list (LPUSH/BRPOP, FIFO);
// deferred jobs wait in a sorted set scored by due time.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/autoreply/internal/models"
)

// DefaultName is the Redis list used when none is configured.
const DefaultName = "autoreply:jobs"

// promoteBatch bounds how many delayed jobs one PromoteDue call moves.
const promoteBatch = 100

// ErrMalformedJob is returned by Consume for an entry that is not a job.
var ErrMalformedJob = errors.New("queue: malformed job")

// Job is one pipeline run waiting to happen.
type Job struct {
	ID         string                   `json:"id"`
	Ref        models.InboundMessageRef `json:"ref"`
	EnqueuedAt time.Time                `json:"enqueued_at"`
	Attempt    int                      `json:"attempt"`
}

// promoteScript moves due entries from the delayed set to the list.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, v in ipairs(due) do
	redis.call('ZREM', KEYS[1], v)
	redis.call('LPUSH', KEYS[2], v)
end
return #due
`)

// Queue is a Redis-backed job queue.
type Queue struct {
	rdb  redis.UniversalClient
	name string
	now  func() time.Time
}

// New creates a queue on the given Redis list.
func New(rdb redis.UniversalClient, name string) *Queue {
	if name == "" {
		name = DefaultName
	}
	return &Queue{rdb: rdb, name: name, now: time.Now}
}

// Name returns the Redis list name.
func (q *Queue) Name() string { return q.name }

func (q *Queue) delayedKey() string { return q.name + ":delayed" }

// Publish enqueues a new job for ref.
func (q *Queue) Publish(ctx context.Context, ref models.InboundMessageRef) (*Job, error) {
	job := &Job{
		ID:         uuid.NewString(),
		Ref:        ref,
		EnqueuedAt: q.now().UTC(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.name, data).Err(); err != nil {
		return nil, fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Debug("published job",
		"job_id", job.ID,
		"message_id", ref.MessageID,
		"queue", q.name,
	)
	return job, nil
}

// Consume blocks up to timeout for the next job. It returns nil, nil when
// the wait times out.
func (q *Queue) Consume(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis BRPOP: %w", err)
	}
	// BRPOP replies with [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("%w: unexpected BRPOP reply", ErrMalformedJob)
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	return &job, nil
}

// Defer schedules job to run again after delay.
func (q *Queue) Defer(ctx context.Context, job *Job, delay time.Duration) error {
	job.Attempt++
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	due := q.now().Add(delay).UnixMilli()
	if err := q.rdb.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(due), Member: data}).Err(); err != nil {
		return fmt.Errorf("redis ZADD: %w", err)
	}
	return nil
}

// PromoteDue moves delayed jobs whose time has come back onto the list
// and reports how many were moved.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	now := strconv.FormatInt(q.now().UnixMilli(), 10)
	n, err := promoteScript.Run(ctx, q.rdb, []string{q.delayedKey(), q.name}, now, promoteBatch).Int()
	if err != nil {
		return 0, fmt.Errorf("promote delayed jobs: %w", err)
	}
	return n, nil
}

// Len reports the number of ready and delayed jobs.
func (q *Queue) Len(ctx context.Context) (ready, delayed int64, err error) {
	ready, err = q.rdb.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, 0, err
	}
	delayed, err = q.rdb.ZCard(ctx, q.delayedKey()).Result()
	return ready, delayed, err
}

// Ping checks the Redis connection.
func (q *Queue) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return q.rdb.Ping(ctx).Err()
}
