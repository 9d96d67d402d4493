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

// Package models defines the data structures shared across the reply engine.
package models

import (
	"net/textproto"
	"time"
)

// InboundMessageRef points at a message that has not been fetched yet.
// It is what the webhook relay delivers, at least once.
type InboundMessageRef struct {
	AccountID string `json:"accountId"`
	ThreadID  string `json:"threadId"`
	MessageID string `json:"messageId"`
	GrantID   string `json:"mailboxGrantId"`
}

// Valid reports whether all fields required to run the pipeline are set.
func (r InboundMessageRef) Valid() bool {
	return r.AccountID != "" && r.ThreadID != "" && r.MessageID != "" && r.GrantID != ""
}

// MessageContent is an email fetched from the mailbox provider for the
// duration of a single run. It is never persisted.
type MessageContent struct {
	ID         string
	ThreadID   string
	From       string
	SenderName string
	Subject    string
	Body       string
	Headers    map[string]string
	ReceivedAt time.Time
}

// Header returns a header value using case-insensitive lookup.
func (m MessageContent) Header(name string) string {
	if m.Headers == nil {
		return ""
	}
	if v, ok := m.Headers[textproto.CanonicalMIMEHeaderKey(name)]; ok {
		return v
	}
	for k, v := range m.Headers {
		if textproto.CanonicalMIMEHeaderKey(k) == textproto.CanonicalMIMEHeaderKey(name) {
			return v
		}
	}
	return ""
}

// ThreadMessage is a lightweight entry returned when listing a thread.
type ThreadMessage struct {
	ID   string
	From string
	Date time.Time
}

// FAQ is a question/answer pair configured by the account owner.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Rule is a do/don't instruction for the reply generator.
type Rule struct {
	Kind string `json:"kind"` // "do" or "dont"
	Text string `json:"text"`
}

// CommerceCredential identifies a connected shop.
type CommerceCredential struct {
	ShopDomain  string `json:"shop_domain"`
	AccessToken string `json:"access_token"`
}

// AccountConfig is the tenant's live operating configuration. It is read
// once per run and never written by the pipeline.
type AccountConfig struct {
	ID                   string
	IsLive               bool
	IsActive             bool
	AutoSendEnabled      bool
	DailyQuota           int
	EmailsUsedThisPeriod int
	MailboxAddress       string
	StoreName            string
	BrandVoice           string
	SignOff              string
	Policies             map[string]string
	FAQs                 []FAQ
	DoDontRules          []Rule
	Commerce             *CommerceCredential
}

// Operational reports whether the account may be processed at all.
func (a *AccountConfig) Operational() bool {
	return a != nil && a.IsLive && a.IsActive
}

// LineItem is a single product line of an order.
type LineItem struct {
	Title    string `json:"title"`
	Quantity int    `json:"quantity"`
	SKU      string `json:"sku,omitempty"`
}

// OrderRecord is a commerce order snapshot fetched for one run.
type OrderRecord struct {
	OrderName         string
	FinancialStatus   string
	FulfillmentStatus string
	TrackingNumber    string
	TrackingURL       string
	Carrier           string
	CreatedAt         time.Time
	LineItems         []LineItem
}

// EscalationSentinel is emitted by the generator instead of guessing.
const EscalationSentinel = "[ESCALATE]"

// GeneratedReply is a candidate reply produced by the generator.
type GeneratedReply struct {
	Text      string
	ModelUsed string
	Warnings  []string
}

// Review queue item statuses.
const (
	ReviewPending   = "pending"
	ReviewResolved  = "resolved"
	ReviewDismissed = "dismissed"
)

// ReviewQueueItem is a thread handed to a human reviewer.
type ReviewQueueItem struct {
	ID               string    `json:"id"`
	AccountID        string    `json:"account_id"`
	ThreadID         string    `json:"thread_id"`
	MessageID        string    `json:"message_id"`
	Intent           Intent    `json:"intent"`
	EscalationReason string    `json:"escalation_reason"`
	DraftReply       string    `json:"draft_reply,omitempty"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

// AuditEntry is one audit-log row. It carries metadata only: no message
// body and no sender identity.
type AuditEntry struct {
	AccountID        string
	Intent           Intent
	OrderNumber      string
	AutoSent         bool
	Escalated        bool
	EscalationReason string
	QualityWarning   string
	Action           Action
	ModelUsed        string
	ResponseTime     time.Duration
}
