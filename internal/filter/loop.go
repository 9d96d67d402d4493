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

// Package filter holds the pure, synchronous gates that run before any
// paid call is made: the loop detector and the acknowledgment filter.
// Nothing in this package performs I/O.
package filter

import (
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/bcem/autoreply/internal/models"
)

// Loop reasons returned in Verdict.Reason.
const (
	ReasonAutoReplyHeader  = "auto_reply_header"
	ReasonAutoSubmitted    = "auto_submitted"
	ReasonBulkPrecedence   = "bulk_precedence"
	ReasonMailingList      = "mailing_list"
	ReasonSelfSend         = "self_send"
	ReasonNoReplySender    = "noreply_sender"
	ReasonAutoReplySubject = "auto_reply_subject"
	ReasonBounceSubject    = "bounce_subject"
	ReasonAutoReplyBody    = "auto_reply_body"
)

// bodyOpeningLimit bounds how much of the body the opening check reads.
const bodyOpeningLimit = 200

// Verdict is the loop detector's answer.
type Verdict struct {
	Safe   bool
	Reason string
}

type loopCheck func(msg models.MessageContent, accountEmail string) string

// checks run in order; the first non-empty reason wins.
var checks = []loopCheck{
	checkHeaders,
	checkSelfSend,
	checkNoReplySender,
	checkAutoReplySubject,
	checkBounceSubject,
	checkBodyOpening,
}

// ShouldReply decides whether msg may be answered at all.
func ShouldReply(msg models.MessageContent, accountEmail string) Verdict {
	for _, check := range checks {
		if reason := check(msg, accountEmail); reason != "" {
			return Verdict{Safe: false, Reason: reason}
		}
	}
	return Verdict{Safe: true}
}

var bulkPrecedence = map[string]bool{
	"bulk":       true,
	"list":       true,
	"junk":       true,
	"auto_reply": true,
	"auto-reply": true,
}

func checkHeaders(msg models.MessageContent, _ string) string {
	if msg.Header("X-Autoreply") != "" || msg.Header("X-Autorespond") != "" {
		return ReasonAutoReplyHeader
	}
	if v := strings.ToLower(msg.Header("X-Auto-Response-Suppress")); v != "" {
		if strings.Contains(v, "all") || strings.Contains(v, "oof") || strings.Contains(v, "autoreply") {
			return ReasonAutoReplyHeader
		}
	}
	if v := strings.ToLower(strings.TrimSpace(msg.Header("Auto-Submitted"))); v != "" && v != "no" {
		return ReasonAutoSubmitted
	}
	if v := strings.ToLower(strings.TrimSpace(msg.Header("Precedence"))); bulkPrecedence[v] {
		return ReasonBulkPrecedence
	}
	if msg.Header("List-Id") != "" || msg.Header("List-Unsubscribe") != "" {
		return ReasonMailingList
	}
	return ""
}

func checkSelfSend(msg models.MessageContent, accountEmail string) string {
	own := NormalizeAddress(accountEmail)
	if own == "" {
		return ""
	}
	if NormalizeAddress(msg.From) == own {
		return ReasonSelfSend
	}
	return ""
}

var (
	noReplyLocalPart = regexp.MustCompile(`^(?:no[-_.]?reply|do[-_.]?not[-_.]?reply|noreply[-_.+].*|.*[-_.+]no[-_.]?reply|mailer[-_.]?daemon|postmaster|bounces?(?:[-_.+].*)?|marketing|newsletters?|news|notifications?[-_.]?noreply)$`)

	systemDomains = []string{
		"amazonses.com",
		"bounce.",
		"sendgrid.net",
		"mcsv.net",
		"mailchimpapp.net",
		"facebookmail.com",
		"notifications.shopify.com",
		"shopifyemail.com",
		"mail.instagram.com",
	}
)

func checkNoReplySender(msg models.MessageContent, _ string) string {
	addr := NormalizeAddress(msg.From)
	if addr == "" {
		return ""
	}
	local, domain, ok := strings.Cut(addr, "@")
	if !ok {
		return ""
	}
	if noReplyLocalPart.MatchString(local) {
		return ReasonNoReplySender
	}
	for _, d := range systemDomains {
		if strings.HasSuffix(d, ".") {
			if strings.HasPrefix(domain, d) || strings.Contains(domain, "."+d) {
				return ReasonNoReplySender
			}
			continue
		}
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return ReasonNoReplySender
		}
	}
	return ""
}

var autoReplySubject = regexp.MustCompile(`(?i)` +
	// en
	`out[- ]of[- ](?:the[- ])?office|automatic reply|auto[- ]?reply|auto[- ]?response|autoresponder|away from (?:the )?office|on vacation|on leave|` +
	// nl
	`afwezigheid|afwezig|automatisch antwoord|buiten kantoor|niet aanwezig|` +
	// de
	`abwesenheitsnotiz|abwesenheit|automatische antwort|au(?:ß|ss)er haus|nicht im büro|` +
	// fr
	`réponse automatique|reponse automatique|absent du bureau|hors du bureau|en congé|` +
	// es
	`respuesta automática|respuesta automatica|fuera de (?:la )?oficina|ausente de la oficina`)

func checkAutoReplySubject(msg models.MessageContent, _ string) string {
	if autoReplySubject.MatchString(msg.Subject) {
		return ReasonAutoReplySubject
	}
	return ""
}

var bounceSubject = regexp.MustCompile(`(?i)` +
	`undeliverable|undelivered mail|delivery status notification|delivery failure|mail delivery failed|` +
	`delivery has failed|returned mail|failure notice|message not delivered|` +
	`onbestelbaar|niet afgeleverd|` +
	`unzustellbar|nicht zustellbar|` +
	`non distribuable|échec de (?:la )?remise|echec de (?:la )?remise|` +
	`no se puede entregar|no entregado|no se ha podido entregar`)

func checkBounceSubject(msg models.MessageContent, _ string) string {
	if bounceSubject.MatchString(msg.Subject) {
		return ReasonBounceSubject
	}
	return ""
}

var autoReplyOpening = regexp.MustCompile(`^(?:` +
	`i am (?:currently )?(?:out of (?:the )?office|away|on (?:vacation|holiday|leave))|` +
	`i'm (?:currently )?(?:out of (?:the )?office|away|on (?:vacation|holiday|leave))|` +
	`thank you for your (?:e-?mail|message)\.? i(?: am|'m) (?:currently )?(?:out|away)|` +
	`this is an automat(?:ed|ic)|this (?:message|email|e-mail) (?:was|is) (?:automatically generated|sent automatically)|` +
	`ik ben (?:momenteel |tijdelijk )?(?:afwezig|niet aanwezig|op vakantie)|dit is een automatisch|` +
	`ich bin (?:derzeit |zurzeit |momentan |bis \S+ )?(?:nicht im büro|nicht erreichbar|abwesend|im urlaub|au(?:ß|ss)er haus)|dies ist eine automatische|` +
	`je suis (?:actuellement )?absent|ceci est une? (?:réponse|reponse|message) automatique|` +
	`estoy (?:actualmente )?fuera de (?:la )?oficina|actualmente estoy fuera|este es un (?:mensaje|correo) automático|` +
	`este es un (?:mensaje|correo) automatico)`)

func checkBodyOpening(msg models.MessageContent, _ string) string {
	opening := strings.ToLower(strings.TrimSpace(truncateRunes(msg.Body, bodyOpeningLimit)))
	opening = strings.Join(strings.Fields(opening), " ")
	if autoReplyOpening.MatchString(opening) {
		return ReasonAutoReplyBody
	}
	return ""
}

// NormalizeAddress extracts the bare, lower-cased address from a From
// header value such as `"Jane" <Jane@Example.com>`.
func NormalizeAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(raw); err == nil {
		return strings.ToLower(addr.Address)
	}
	if i := strings.LastIndex(raw, "<"); i >= 0 {
		if j := strings.LastIndex(raw, ">"); j > i {
			raw = raw[i+1 : j]
		}
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
