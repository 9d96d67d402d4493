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

// Package ratelimit provides fixed-window counters stored in Redis. The
// counter is created with an expiry on its first hit, so the window starts
// at the first event and all worker processes share the same count.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript increments the counter and sets the expiry on the first hit
// in one atomic step. A counter left without a TTL (e.g. by a crash between
// INCR and PEXPIRE in a non-scripted client) is repaired on the next call.
var incrScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 or redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// ThreadKey is the counter key for auto-replies on a thread.
func ThreadKey(threadID string) string { return "ratelimit:thread:" + threadID }

// DailyKey is the counter key for an account's daily auto-send budget.
func DailyKey(accountID string) string { return "ratelimit:daily:" + accountID }

// CommerceKey is the counter key for an account's commerce API budget.
func CommerceKey(accountID string) string { return "ratelimit:commerce:" + accountID }

// InflightKey is the counter key for the per-account worker throttle.
func InflightKey(accountID string) string { return "ratelimit:inflight:" + accountID }

// Limiter counts events per key inside a window.
type Limiter struct {
	rdb redis.UniversalClient
}

// NewLimiter creates a Redis-backed limiter.
func NewLimiter(rdb redis.UniversalClient) *Limiter {
	return &Limiter{rdb: rdb}
}

// IncrementAndCheck records one event for key and reports whether the
// count now exceeds max within the current window.
func (l *Limiter) IncrementAndCheck(ctx context.Context, key string, window time.Duration, max int) (bool, error) {
	if window <= 0 {
		return false, fmt.Errorf("ratelimit %s: window must be positive", key)
	}
	n, err := incrScript.Run(ctx, l.rdb, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("ratelimit %s: %w", key, err)
	}
	return n > int64(max), nil
}

// Count returns the current count for key (zero when the window is closed).
func (l *Limiter) Count(ctx context.Context, key string) (int64, error) {
	n, err := l.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ratelimit GET %s: %w", key, err)
	}
	return n, nil
}

// Reset closes the current window for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("ratelimit DEL %s: %w", key, err)
	}
	return nil
}
