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

// Package generate drafts customer replies from the account's
// configuration, the classified intent and any order data.
package generate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bcem/autoreply/internal/llm"
	"github.com/bcem/autoreply/internal/models"
)

const (
	// Temperature keeps replies close to the facts supplied.
	Temperature = 0.3

	maxTokens     = 800
	maxPromptBody = 6000
)

// Warning codes attached to a GeneratedReply.
const (
	WarnBodyTruncated = "body_truncated"
	WarnNoOrderData   = "no_order_data"
)

// ErrEmptyReply is returned when the model answers with nothing.
var ErrEmptyReply = errors.New("generate: empty completion")

// Completer is the completion service. Implemented by llm.Client.
type Completer interface {
	Complete(ctx context.Context, request llm.Request) (*llm.Response, error)
}

// Input is everything the generator may draw on for one reply.
type Input struct {
	Account     *models.AccountConfig
	Intent      models.Intent
	OrderNumber string
	Order       *models.OrderRecord
	SenderName  string
	Subject     string
	Body        string
}

// Generator calls the completion service with prompts built from Input.
type Generator struct {
	completer Completer
	timeout   time.Duration
}

// New creates a reply generator.
func New(completer Completer, timeout time.Duration) *Generator {
	return &Generator{completer: completer, timeout: timeout}
}

// Generate drafts a reply with the given model.
func (g *Generator) Generate(ctx context.Context, in Input, model string) (*models.GeneratedReply, error) {
	if in.Account == nil {
		return nil, errors.New("generate: account config required")
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	user, warnings := UserPrompt(in)
	resp, err := g.completer.Complete(ctx, llm.Request{
		Model:       model,
		System:      SystemPrompt(in.Account),
		User:        user,
		Temperature: Temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generate with %s: %w", model, err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return nil, ErrEmptyReply
	}

	used := resp.Model
	if used == "" {
		used = model
	}
	return &models.GeneratedReply{
		Text:      resp.Text,
		ModelUsed: used,
		Warnings:  warnings,
	}, nil
}

// SystemPrompt describes the store, its voice and rules, and the
// escalation contract.
func SystemPrompt(acct *models.AccountConfig) string {
	var sb strings.Builder

	store := acct.StoreName
	if store == "" {
		store = "the store"
	}
	fmt.Fprintf(&sb, "You are the customer service team of %s, answering customer emails.\n", store)
	sb.WriteString("Write as a member of the team. Reply in the language the customer wrote in.\n")
	sb.WriteString("Only state facts given to you below. Never invent order details, dates, tracking numbers or policies.\n")
	sb.WriteString("Write plain text without placeholders or template fields.\n")

	if acct.BrandVoice != "" {
		fmt.Fprintf(&sb, "\nBrand voice:\n%s\n", acct.BrandVoice)
	}

	var dos, donts []string
	for _, r := range acct.DoDontRules {
		switch strings.ToLower(r.Kind) {
		case "dont", "don't", "do_not":
			donts = append(donts, r.Text)
		default:
			dos = append(dos, r.Text)
		}
	}
	writeList(&sb, "Always", dos)
	writeList(&sb, "Never", donts)

	if len(acct.Policies) > 0 {
		sb.WriteString("\nStore policies:\n")
		names := make([]string, 0, len(acct.Policies))
		for name := range acct.Policies {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&sb, "- %s: %s\n", name, acct.Policies[name])
		}
	}

	if len(acct.FAQs) > 0 {
		sb.WriteString("\nFrequently asked questions:\n")
		for _, f := range acct.FAQs {
			fmt.Fprintf(&sb, "Q: %s\nA: %s\n", f.Question, f.Answer)
		}
	}

	if acct.SignOff != "" {
		fmt.Fprintf(&sb, "\nEnd the reply with this sign-off:\n%s\n", acct.SignOff)
	}

	fmt.Fprintf(&sb, "\nIf you cannot answer fully and correctly from the information above, "+
		"respond with exactly %s and nothing else. Do not guess.\n", models.EscalationSentinel)
	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(sb, "- %s\n", it)
	}
}

// UserPrompt renders the customer's message and the facts gathered for it.
func UserPrompt(in Input) (string, []string) {
	var sb strings.Builder
	var warnings []string

	fmt.Fprintf(&sb, "Intent: %s\n", in.Intent)
	if in.OrderNumber != "" {
		fmt.Fprintf(&sb, "Order number mentioned: %s\n", in.OrderNumber)
	}

	switch {
	case in.Order != nil:
		sb.WriteString("\nOrder data:\n")
		sb.WriteString(FormatOrder(in.Order))
	case in.Intent.IsOrderRelated():
		sb.WriteString("\nNo order data is available. Do not make up order details.\n")
		warnings = append(warnings, WarnNoOrderData)
	}

	body := in.Body
	if r := []rune(body); len(r) > maxPromptBody {
		body = string(r[:maxPromptBody])
		warnings = append(warnings, WarnBodyTruncated)
	}

	sb.WriteString("\nCustomer email:\n")
	if in.SenderName != "" {
		fmt.Fprintf(&sb, "From: %s\n", in.SenderName)
	}
	fmt.Fprintf(&sb, "Subject: %s\n\n%s\n", in.Subject, body)
	return sb.String(), warnings
}

// FormatOrder renders an order snapshot for the prompt.
func FormatOrder(o *models.OrderRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- Order: %s\n", o.OrderName)
	if !o.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "- Placed: %s\n", o.CreatedAt.Format("2006-01-02"))
	}
	fmt.Fprintf(&sb, "- Payment status: %s\n", o.FinancialStatus)
	fmt.Fprintf(&sb, "- Fulfillment status: %s\n", o.FulfillmentStatus)
	if o.Carrier != "" {
		fmt.Fprintf(&sb, "- Carrier: %s\n", o.Carrier)
	}
	if o.TrackingNumber != "" {
		fmt.Fprintf(&sb, "- Tracking number: %s\n", o.TrackingNumber)
	}
	if o.TrackingURL != "" {
		fmt.Fprintf(&sb, "- Tracking link: %s\n", o.TrackingURL)
	}
	for _, li := range o.LineItems {
		fmt.Fprintf(&sb, "- Item: %dx %s\n", li.Quantity, li.Title)
	}
	return sb.String()
}
