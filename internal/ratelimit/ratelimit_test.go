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

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewLimiter(rdb), mr
}

// TestIncrementAndCheck_ThreadWindow verifies that the 4th hit inside the
// window exceeds a max of 3 and that the window reopens after expiry.
func TestIncrementAndCheck_ThreadWindow(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()
	key := ThreadKey("thread-1")

	for i := 1; i <= 3; i++ {
		exceeded, err := l.IncrementAndCheck(ctx, key, time.Hour, 3)
		if err != nil {
			t.Fatalf("hit %d: unexpected error: %v", i, err)
		}
		if exceeded {
			t.Fatalf("hit %d should not exceed", i)
		}
	}

	exceeded, err := l.IncrementAndCheck(ctx, key, time.Hour, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exceeded {
		t.Error("4th hit should exceed")
	}

	mr.FastForward(time.Hour + time.Second)

	exceeded, err = l.IncrementAndCheck(ctx, key, time.Hour, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exceeded {
		t.Error("first hit after window expiry should not exceed")
	}
}

// TestIncrementAndCheck_ExpirySetOnFirstHit verifies the window is anchored
// to the first event, not refreshed on later ones.
func TestIncrementAndCheck_ExpirySetOnFirstHit(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()
	key := DailyKey("acct-1")

	if _, err := l.IncrementAndCheck(ctx, key, 24*time.Hour, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mr.FastForward(time.Hour)
	if _, err := l.IncrementAndCheck(ctx, key, 24*time.Hour, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ttl := mr.TTL(key); ttl != 23*time.Hour {
		t.Errorf("ttl = %v, want 23h", ttl)
	}
}

// TestCountAndReset verifies Count and Reset.
func TestCountAndReset(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	key := CommerceKey("acct-2")

	n, err := l.Count(ctx, key)
	if err != nil || n != 0 {
		t.Fatalf("Count = %d, %v; want 0, nil", n, err)
	}

	for i := 0; i < 2; i++ {
		if _, err := l.IncrementAndCheck(ctx, key, time.Second, 2); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if n, _ := l.Count(ctx, key); n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}

	if err := l.Reset(ctx, key); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n, _ := l.Count(ctx, key); n != 0 {
		t.Errorf("Count after reset = %d, want 0", n)
	}
}

// TestIncrementAndCheck_InvalidWindow verifies a zero window is rejected.
func TestIncrementAndCheck_InvalidWindow(t *testing.T) {
	l, _ := newTestLimiter(t)
	if _, err := l.IncrementAndCheck(context.Background(), InflightKey("a"), 0, 1); err == nil {
		t.Error("expected error for zero window")
	}
}
