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

// Package guard detects that a human already answered a thread, so the
// engine never talks over a person working the same shared inbox.
package guard

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/bcem/autoreply/internal/filter"
	"github.com/bcem/autoreply/internal/models"
)

// DefaultThreadLimit is how many thread messages are inspected.
const DefaultThreadLimit = 20

// ThreadLister lists the messages of a thread. Implemented by mailbox.Client.
type ThreadLister interface {
	ListThread(ctx context.Context, grantID, threadID string, limit int) ([]models.ThreadMessage, error)
}

// Guard checks threads for replies sent by the account's own mailbox.
type Guard struct {
	lister  ThreadLister
	limit   int
	timeout time.Duration
}

// New creates a shared-inbox guard. A zero timeout means the caller's
// context alone bounds the thread fetch.
func New(lister ThreadLister, timeout time.Duration) *Guard {
	return &Guard{
		lister:  lister,
		limit:   DefaultThreadLimit,
		timeout: timeout,
	}
}

// HumanAlreadyReplied reports whether any message after the customer's
// last message came from the account mailbox. Fetch errors fail open.
func (g *Guard) HumanAlreadyReplied(ctx context.Context, grantID, threadID, customerEmail, accountEmail string) bool {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	msgs, err := g.lister.ListThread(ctx, grantID, threadID, g.limit)
	if err != nil {
		slog.Warn("shared-inbox guard: thread fetch failed, assuming no human reply",
			"thread_id", threadID,
			"error", err,
		)
		return false
	}

	return repliedAfterCustomer(msgs, filter.NormalizeAddress(customerEmail), filter.NormalizeAddress(accountEmail))
}

func repliedAfterCustomer(msgs []models.ThreadMessage, customer, account string) bool {
	if account == "" || len(msgs) == 0 {
		return false
	}

	sorted := make([]models.ThreadMessage, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	lastCustomer := -1
	for i, m := range sorted {
		if filter.NormalizeAddress(m.From) == customer {
			lastCustomer = i
		}
	}
	if lastCustomer < 0 {
		return false
	}

	for _, m := range sorted[lastCustomer+1:] {
		if filter.NormalizeAddress(m.From) == account {
			return true
		}
	}
	return false
}
