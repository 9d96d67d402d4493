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

// Package classify maps an inbound email onto the closed intent set. The
// primary path asks the fast completion model for strict JSON; any failure
// falls back to locale-aware rules that return the same shape.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bcem/autoreply/internal/llm"
	"github.com/bcem/autoreply/internal/models"
)

// maxPromptBody bounds how much of the body is sent for classification.
const maxPromptBody = 4000

// Completer is the completion service. Implemented by llm.Client.
type Completer interface {
	Complete(ctx context.Context, request llm.Request) (*llm.Response, error)
}

// Classifier produces a ClassificationResult for an email.
type Classifier struct {
	completer Completer
	model     string
	timeout   time.Duration
}

// New creates a classifier. A nil completer makes it rules-only.
func New(completer Completer, model string, timeout time.Duration) *Classifier {
	return &Classifier{
		completer: completer,
		model:     model,
		timeout:   timeout,
	}
}

// Classify never fails: an unusable LLM answer degrades to the rules.
func (c *Classifier) Classify(ctx context.Context, subject, body string) models.ClassificationResult {
	if c.completer != nil {
		result, err := c.classifyLLM(ctx, subject, body)
		if err == nil {
			return result
		}
		slog.Warn("llm classification failed, using rules", "error", err)
	}
	return ClassifyRules(subject, body)
}

func (c *Classifier) classifyLLM(ctx context.Context, subject, body string) (models.ClassificationResult, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.completer.Complete(ctx, llm.Request{
		Model:       c.model,
		System:      systemPrompt(),
		User:        userPrompt(subject, body),
		Temperature: 0,
		MaxTokens:   100,
		JSON:        true,
	})
	if err != nil {
		return models.ClassificationResult{}, err
	}

	result, err := parseLLMOutput(resp.Text)
	if err != nil {
		return models.ClassificationResult{}, err
	}

	// The model sometimes drops the number; the extractor is cheap.
	if result.OrderNumber == "" {
		result.OrderNumber = ExtractOrderNumber(subject + "\n" + body)
	}
	return result, nil
}

func systemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You classify customer service emails for an online store.\n")
	sb.WriteString("Choose exactly one intent from this list:\n")
	for _, in := range models.Intents {
		sb.WriteString("- ")
		sb.WriteString(string(in))
		sb.WriteString("\n")
	}
	sb.WriteString("\nAlso extract the order number if the customer mentions one (digits only, no '#').\n")
	sb.WriteString(`Respond with a single JSON object and nothing else: {"intent": "<intent>", "order_number": "<digits or null>"}`)
	return sb.String()
}

func userPrompt(subject, body string) string {
	if r := []rune(body); len(r) > maxPromptBody {
		body = string(r[:maxPromptBody])
	}
	return fmt.Sprintf("Subject: %s\n\n%s", subject, body)
}

type llmOutput struct {
	Intent      string `json:"intent"`
	OrderNumber any    `json:"order_number"`
}

// parseLLMOutput validates the model's JSON against the closed intent set.
func parseLLMOutput(text string) (models.ClassificationResult, error) {
	raw := extractJSONObject(text)
	if raw == "" {
		return models.ClassificationResult{}, fmt.Errorf("no JSON object in classifier output")
	}

	var out llmOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return models.ClassificationResult{}, fmt.Errorf("decode classifier output: %w", err)
	}

	intent, ok := models.ParseIntent(out.Intent)
	if !ok {
		return models.ClassificationResult{}, fmt.Errorf("unknown intent %q", out.Intent)
	}

	return models.ClassificationResult{
		Intent:      intent,
		OrderNumber: normalizeOrderNumber(out.OrderNumber),
		Source:      models.SourceLLM,
	}, nil
}

// extractJSONObject returns the outermost {...} span, tolerating code
// fences or prose around it.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func normalizeOrderNumber(v any) string {
	var s string
	switch n := v.(type) {
	case string:
		s = n
	case float64:
		s = fmt.Sprintf("%.0f", n)
	default:
		return ""
	}
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "#"))
	if !orderDigits.MatchString(s) {
		return ""
	}
	return s
}
