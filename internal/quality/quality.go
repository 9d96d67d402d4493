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

// Package quality validates generated replies before they can be sent.
package quality

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bcem/autoreply/internal/models"
)

// Default length bounds, in characters.
const (
	DefaultMinLength = 20
	DefaultMaxLength = 2000
)

// Failure reasons and warning codes.
const (
	ReasonEscalationSentinel = "escalation_sentinel"
	ReasonAIDisclosure       = "ai_disclosure"
	ReasonUncertainty        = "uncertainty"
	ReasonPlaceholder        = "placeholder"
	ReasonTooShort           = "too_short"
	ReasonMultipleWarnings   = "multiple_warnings"

	WarnTooLong          = "too_long"
	WarnHedging          = "hedging"
	WarnMissingOrderData = "missing_order_data"
)

// Result is the gate verdict. Reason is set only when Pass is false.
type Result struct {
	Pass     bool
	Warnings []string
	Reason   string
}

// Options tune the gate. Zero values fall back to the defaults.
type Options struct {
	MinLength int
	MaxLength int
	// StrictOrderData makes an order intent without order data a hard
	// failure instead of a warning.
	StrictOrderData bool
}

// Gate checks reply text. It is pure and safe for concurrent use.
type Gate struct {
	opts Options
}

// New creates a quality gate.
func New(opts Options) *Gate {
	if opts.MinLength <= 0 {
		opts.MinLength = DefaultMinLength
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}
	return &Gate{opts: opts}
}

var (
	aiDisclosure = regexp.MustCompile(`(?i)` +
		`\bas an ai\b|\bi(?: am|['’]m) an ai\b|\b(?:ai|large) language model|\bartificial intelligence\b|\bi(?: am|['’]m) a (?:chat)?bot\b|\bvirtual assistant\b|` +
		`\bals (?:een )?ai\b|\bik ben een (?:ai|chatbot)\b|\btaalmodel|` +
		`\bals ki\b|\bich bin eine? (?:ki|chatbot)\b|\bsprachmodell|` +
		`en tant qu['’]ia\b|\bje suis une ia\b|mod[èe]le de langage|` +
		`\bcomo (?:una )?ia\b|\bsoy una ia\b|modelo de lenguaje`)

	uncertainty = regexp.MustCompile(`(?i)` +
		`\bi (?:don['’]t|do not|can['’]t|cannot) (?:have )?access\b|` +
		`\bi(?: am|['’]m)? (?:unable|not able) to (?:access|see|look up|check|find|verify)|` +
		`\bi (?:can['’]t|cannot) (?:see|look up|check|find|verify)\b|` +
		`\bi (?:don['’]t|do not) have (?:any )?(?:information|details|data|visibility)\b|` +
		`\bi(?: am|['’]m) not sure\b|\bi (?:don['’]t|do not) know\b|` +
		`ik heb geen toegang|ik weet het niet|` +
		`(?:ich habe|habe ich) keinen zugriff|ich wei(?:ß|ss) (?:es )?nicht|` +
		`je n['’]ai pas acc[èe]s|je ne sais pas|` +
		`no tengo acceso|no estoy seguro|no lo s[ée]`)

	placeholder = regexp.MustCompile(`(?i)` +
		`\[(?:your |customer(?:['’]s)? |store |company |the )?(?:name|first name|last name|order(?: number| id)?|tracking(?: number| link| url)?|date|email|link|url|address|product(?: name)?|store(?: name)?|company(?: name)?|signature|phone(?: number)?)\]|` +
		`\{\{[^{}]*\}\}|` +
		`<(?:insert|your|add|enter)\b[^>]*>`)

	hedging = regexp.MustCompile(`(?i)` +
		`\bi think\b|\bi believe\b|\bprobably\b|\bpossibly\b|\bperhaps\b|\bit seems\b|\bi guess\b|\bmight be\b|` +
		`\bik denk\b|\bwaarschijnlijk|\bmisschien\b|` +
		`\bich glaube\b|\bwahrscheinlich|\bvielleicht\b|` +
		`\bje pense\b|\bprobablement|\bpeut-[êe]tre|` +
		`\bcreo que\b|\bprobablemente|\bquiz[áa]s?|\btal vez\b`)
)

// Check validates a reply. Hard failures stop at the first match; soft
// warnings accumulate and two or more fail the reply.
func (g *Gate) Check(text string, hadOrderData bool, intent models.Intent) Result {
	trimmed := strings.TrimSpace(text)

	switch {
	case strings.Contains(trimmed, models.EscalationSentinel):
		return fail(ReasonEscalationSentinel, nil)
	case aiDisclosure.MatchString(trimmed):
		return fail(ReasonAIDisclosure, nil)
	case uncertainty.MatchString(trimmed):
		return fail(ReasonUncertainty, nil)
	case placeholder.MatchString(trimmed):
		return fail(ReasonPlaceholder, nil)
	case utf8.RuneCountInString(trimmed) < g.opts.MinLength:
		return fail(ReasonTooShort, nil)
	}

	var warnings []string
	if utf8.RuneCountInString(trimmed) > g.opts.MaxLength {
		warnings = append(warnings, WarnTooLong)
	}
	if hedging.MatchString(trimmed) {
		warnings = append(warnings, WarnHedging)
	}
	if intent.IsOrderRelated() && !hadOrderData {
		if g.opts.StrictOrderData {
			return fail(WarnMissingOrderData, warnings)
		}
		warnings = append(warnings, WarnMissingOrderData)
	}

	if len(warnings) >= 2 {
		return fail(ReasonMultipleWarnings, warnings)
	}
	return Result{Pass: true, Warnings: warnings}
}

func fail(reason string, warnings []string) Result {
	return Result{Pass: false, Reason: reason, Warnings: warnings}
}

// Truncate shortens a draft to at most n characters for the review queue.
func Truncate(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n])
}
