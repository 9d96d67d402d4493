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

package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLedger(t *testing.T) (*Ledger, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewLedger(rdb), mr
}

// TestMarkIfNew_FirstTimeOnly verifies the atomic test-and-set.
func TestMarkIfNew_FirstTimeOnly(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	key := NotificationKey("msg-1")

	first, err := l.MarkIfNew(ctx, key, DefaultTTL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first {
		t.Error("first MarkIfNew should return true")
	}

	second, err := l.MarkIfNew(ctx, key, DefaultTTL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second {
		t.Error("second MarkIfNew should return false")
	}
}

// TestMarkIfNew_ExpiresAfterTTL verifies keys are forgotten after the TTL.
func TestMarkIfNew_ExpiresAfterTTL(t *testing.T) {
	l, mr := newTestLedger(t)
	ctx := context.Background()
	key := NotificationKey("msg-2")

	if _, err := l.MarkIfNew(ctx, key, time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mr.FastForward(time.Hour + time.Second)

	again, err := l.MarkIfNew(ctx, key, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !again {
		t.Error("key should be new again after TTL expiry")
	}
}

// TestHasAndMark verifies the reply-level keyspace.
func TestHasAndMark(t *testing.T) {
	l, mr := newTestLedger(t)
	ctx := context.Background()
	key := RepliedKey("acct-1", "msg-3")

	has, err := l.Has(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if has {
		t.Error("Has should be false before Mark")
	}

	if err := l.Mark(ctx, key, DefaultTTL); err != nil {
		t.Fatalf("Mark: %v", err)
	}

	has, err = l.Has(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !has {
		t.Error("Has should be true after Mark")
	}

	if ttl := mr.TTL(key); ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", ttl, DefaultTTL)
	}
}

// TestKeys verifies the two keyspaces do not collide.
func TestKeys(t *testing.T) {
	if got := NotificationKey("m1"); got != "dedup:notification:m1" {
		t.Errorf("NotificationKey = %q", got)
	}
	if got := RepliedKey("a1", "m1"); got != "dedup:replied:a1:m1" {
		t.Errorf("RepliedKey = %q", got)
	}
}

// TestLedger_Unavailable verifies errors surface when Redis is down.
func TestLedger_Unavailable(t *testing.T) {
	l, mr := newTestLedger(t)
	mr.Close()

	if _, err := l.MarkIfNew(context.Background(), NotificationKey("x"), DefaultTTL); err == nil {
		t.Error("expected error when Redis is unreachable")
	}
}
