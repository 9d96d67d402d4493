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

package commerce

import (
	"context"
	"log/slog"
	"time"

	"github.com/bcem/autoreply/internal/models"
	"github.com/bcem/autoreply/internal/ratelimit"
)

// Shop API budget per account.
const (
	RequestsPerWindow = 2
	RequestWindow     = time.Second
)

// OrderFinder looks up one order. Implemented by Client.
type OrderFinder interface {
	FindOrder(ctx context.Context, cred models.CommerceCredential, orderNumber string) (*models.OrderRecord, error)
}

// RateChecker is the shared counter store. Implemented by ratelimit.Limiter.
type RateChecker interface {
	IncrementAndCheck(ctx context.Context, key string, window time.Duration, max int) (bool, error)
}

// Connector wraps the shop client with the per-account budget and turns
// every failure into "no order data".
type Connector struct {
	finder  OrderFinder
	limiter RateChecker
	timeout time.Duration
}

// NewConnector creates an enrichment connector.
func NewConnector(finder OrderFinder, limiter RateChecker, timeout time.Duration) *Connector {
	return &Connector{finder: finder, limiter: limiter, timeout: timeout}
}

// FindOrderByNumber returns the order snapshot or nil. It never fails the
// caller: errors, throttling and missing credentials all yield nil.
func (c *Connector) FindOrderByNumber(ctx context.Context, accountID string, cred *models.CommerceCredential, orderNumber string) *models.OrderRecord {
	if cred == nil || cred.ShopDomain == "" || orderNumber == "" {
		return nil
	}

	if c.limiter != nil {
		exceeded, err := c.limiter.IncrementAndCheck(ctx, ratelimit.CommerceKey(accountID), RequestWindow, RequestsPerWindow)
		if err != nil {
			slog.Warn("commerce rate limiter unavailable, proceeding", "account_id", accountID, "error", err)
		} else if exceeded {
			slog.Warn("commerce rate limit exceeded, skipping enrichment", "account_id", accountID)
			return nil
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	order, err := c.finder.FindOrder(ctx, *cred, orderNumber)
	if err != nil {
		slog.Warn("order lookup failed", "account_id", accountID, "order_number", orderNumber, "error", err)
		return nil
	}
	if order == nil {
		slog.Info("order not found", "account_id", accountID, "order_number", orderNumber)
	}
	return order
}
