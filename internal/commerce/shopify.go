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

// Package commerce looks up order snapshots in the account's connected
// shop so replies can quote real fulfilment and tracking data.
package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bcem/autoreply/internal/models"
)

// DefaultAPIVersion is the Shopify Admin REST version used when none is configured.
const DefaultAPIVersion = "2024-10"

// Client speaks the Shopify Admin REST orders endpoint.
type Client struct {
	httpClient *http.Client
	apiVersion string
}

// NewClient creates a shop client. Each request carries the shop's own
// access token, so one client serves every account.
func NewClient(httpClient *http.Client, apiVersion string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	return &Client{httpClient: httpClient, apiVersion: apiVersion}
}

type shopOrder struct {
	Name              string    `json:"name"`
	FinancialStatus   string    `json:"financial_status"`
	FulfillmentStatus *string   `json:"fulfillment_status"`
	CreatedAt         time.Time `json:"created_at"`
	LineItems         []struct {
		Title    string `json:"title"`
		Quantity int    `json:"quantity"`
		SKU      string `json:"sku"`
	} `json:"line_items"`
	Fulfillments []struct {
		TrackingCompany string   `json:"tracking_company"`
		TrackingNumber  string   `json:"tracking_number"`
		TrackingURL     string   `json:"tracking_url"`
		TrackingNumbers []string `json:"tracking_numbers"`
		TrackingURLs    []string `json:"tracking_urls"`
	} `json:"fulfillments"`
}

type ordersResponse struct {
	Orders []shopOrder `json:"orders"`
}

// FindOrder returns the order named "#<orderNumber>", or nil when the
// shop has no such order.
func (c *Client) FindOrder(ctx context.Context, cred models.CommerceCredential, orderNumber string) (*models.OrderRecord, error) {
	q := url.Values{}
	q.Set("name", "#"+orderNumber)
	q.Set("status", "any")
	u := fmt.Sprintf("%s/admin/api/%s/orders.json?%s", shopBaseURL(cred.ShopDomain), c.apiVersion, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", cred.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shop request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("shop API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out ordersResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}

	// The name filter is not strictly exact, so prefer the exact match.
	want := "#" + orderNumber
	for _, o := range out.Orders {
		if o.Name == want {
			return o.toRecord(), nil
		}
	}
	if len(out.Orders) > 0 {
		return out.Orders[0].toRecord(), nil
	}
	return nil, nil
}

func (o shopOrder) toRecord() *models.OrderRecord {
	rec := &models.OrderRecord{
		OrderName:         o.Name,
		FinancialStatus:   o.FinancialStatus,
		FulfillmentStatus: "unfulfilled",
		CreatedAt:         o.CreatedAt,
	}
	if o.FulfillmentStatus != nil && *o.FulfillmentStatus != "" {
		rec.FulfillmentStatus = *o.FulfillmentStatus
	}
	for _, li := range o.LineItems {
		rec.LineItems = append(rec.LineItems, models.LineItem{
			Title:    li.Title,
			Quantity: li.Quantity,
			SKU:      li.SKU,
		})
	}

	// Latest fulfilment with tracking wins.
	for i := len(o.Fulfillments) - 1; i >= 0; i-- {
		f := o.Fulfillments[i]
		number, link := f.TrackingNumber, f.TrackingURL
		if number == "" && len(f.TrackingNumbers) > 0 {
			number = f.TrackingNumbers[0]
		}
		if link == "" && len(f.TrackingURLs) > 0 {
			link = f.TrackingURLs[0]
		}
		if number == "" && link == "" {
			continue
		}
		rec.TrackingNumber = number
		rec.TrackingURL = link
		rec.Carrier = f.TrackingCompany
		break
	}
	return rec
}

// shopBaseURL accepts a bare myshopify domain or a full URL.
func shopBaseURL(shop string) string {
	shop = strings.TrimRight(strings.TrimSpace(shop), "/")
	if strings.HasPrefix(shop, "http://") || strings.HasPrefix(shop, "https://") {
		return shop
	}
	return "https://" + shop
}
