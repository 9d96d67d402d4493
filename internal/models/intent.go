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

package models

import "strings"

// Intent is the closed set of customer intents the classifier can return.
type Intent string

const (
	IntentOrderStatus     Intent = "order-status"
	IntentReturn          Intent = "return"
	IntentExchange        Intent = "exchange"
	IntentCancel          Intent = "cancel"
	IntentOrderProblem    Intent = "order-problem"
	IntentProductQuestion Intent = "product-question"
	IntentGeneral         Intent = "general"
)

// Intents lists every valid intent in classifier priority order.
var Intents = []Intent{
	IntentOrderStatus,
	IntentCancel,
	IntentExchange,
	IntentReturn,
	IntentOrderProblem,
	IntentProductQuestion,
	IntentGeneral,
}

// ParseIntent maps a raw string onto the closed intent set. Underscores
// and case are tolerated; anything unknown reports ok=false.
func ParseIntent(raw string) (Intent, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, " ", "-")
	for _, in := range Intents {
		if string(in) == s {
			return in, true
		}
	}
	return IntentGeneral, false
}

// IsOrderRelated reports whether answering needs order data.
func (i Intent) IsOrderRelated() bool {
	switch i {
	case IntentOrderStatus, IntentReturn, IntentExchange, IntentCancel, IntentOrderProblem:
		return true
	}
	return false
}

// Classification sources.
const (
	SourceLLM   = "llm"
	SourceRules = "rules"
)

// ClassificationResult is the output of the intent step. Both the LLM and
// the rule-based classifier produce exactly this shape.
type ClassificationResult struct {
	Intent      Intent
	OrderNumber string
	Source      string
}

// Action is the terminal outcome of a pipeline run.
type Action string

const (
	ActionReplied   Action = "replied"
	ActionQueued    Action = "queued"
	ActionEscalated Action = "escalated"
	ActionIgnored   Action = "ignored"
	ActionBlocked   Action = "blocked"
)

// ProcessingResult is the single terminal result of one run.
type ProcessingResult struct {
	Action  Action `json:"action"`
	Reason  string `json:"reason"`
	ReplyID string `json:"reply_id,omitempty"`
}
