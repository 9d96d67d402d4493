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

// Package dedup provides the idempotency ledger: an atomic "seen before?"
// store backed by Redis keys with a TTL. Multiple worker processes may
// receive the same webhook event, so every test-and-set goes through a
// single SET NX round trip.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a notification or reply marker is remembered.
// Webhook relays stop redelivering well within a day.
const DefaultTTL = 24 * time.Hour

const (
	notificationPrefix = "dedup:notification:"
	repliedPrefix      = "dedup:replied:"
)

// NotificationKey is the ledger key for an inbound notification.
func NotificationKey(messageID string) string {
	return notificationPrefix + messageID
}

// RepliedKey is the ledger key recording that a reply was sent.
func RepliedKey(accountID, messageID string) string {
	return fmt.Sprintf("%s%s:%s", repliedPrefix, accountID, messageID)
}

// Ledger tracks which keys have already been recorded.
type Ledger struct {
	rdb redis.UniversalClient
}

// NewLedger creates a ledger backed by Redis.
func NewLedger(rdb redis.UniversalClient) *Ledger {
	return &Ledger{rdb: rdb}
}

// MarkIfNew returns true if the key had NOT been seen before. When true,
// the key is recorded atomically (SET NX) with the given TTL.
func (l *Ledger) MarkIfNew(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	set, err := l.rdb.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("ledger SETNX %s: %w", key, err)
	}
	return set, nil
}

// Has reports whether the key is present.
func (l *Ledger) Has(ctx context.Context, key string) (bool, error) {
	n, err := l.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("ledger EXISTS %s: %w", key, err)
	}
	return n > 0, nil
}

// Mark records the key unconditionally, refreshing its TTL.
func (l *Ledger) Mark(ctx context.Context, key string, ttl time.Duration) error {
	if err := l.rdb.Set(ctx, key, 1, ttl).Err(); err != nil {
		return fmt.Errorf("ledger SET %s: %w", key, err)
	}
	return nil
}
