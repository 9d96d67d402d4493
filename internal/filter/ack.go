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

package filter

import (
	"regexp"
	"strings"
)

// ackMaxLength is the longest body that can still be a bare acknowledgment.
const ackMaxLength = 200

var ackPhrases = []string{
	// en
	`thank you(?: so much| very much| again)?`, `thankyou`, `thanks(?: a lot| so much| again)?`, `many thanks`,
	`thx`, `ty`, `cheers`, `ok(?:ay)?`, `got it`, `great`, `perfect`, `noted`, `received`, `will do`,
	`sounds good`, `all good`, `awesome`, `(?:much )?appreciated`,
	// nl
	`bedankt`, `dank(?:je| je| u)(?: wel)?`, `dankjewel`, `top`, `prima`, `helemaal goed`, `oké`, `ontvangen`, `super`,
	// de
	`danke(?: sch(?:ö|o)n| sehr)?`, `vielen dank`, `alles klar`, `passt`, `erhalten`, `verstanden`,
	// fr
	`merci(?: beaucoup| bien)?`, `d'accord`, `parfait`, `bien reçu`, `reçu`,
	// es
	`(?:muchas )?gracias`, `vale`, `perfecto`, `de acuerdo`, `recibido`, `genial`, `entendido`,
}

// ackPattern matches a body made of one to four acknowledgment phrases and
// nothing else but punctuation and emoji. A question mark is deliberately
// not a separator: "ok?" asks for something.
var ackPattern = regexp.MustCompile(`^(?:(?:hi|hey|hello|hoi|hallo|bonjour|hola)[\s,!.]+)?(?:(?:` +
	strings.Join(ackPhrases, "|") +
	`)[\s,.!:;)(\-~\p{So}\p{Sk}]*){1,4}$`)

// IsAcknowledgment reports whether body is a closing confirmation that
// needs no reply. Quoted history and signatures are ignored.
func IsAcknowledgment(body string) bool {
	text := StripQuoted(body)
	if len([]rune(text)) > ackMaxLength {
		return false
	}
	text = strings.ToLower(strings.Join(strings.Fields(text), " "))
	if text == "" {
		return false
	}
	return ackPattern.MatchString(text)
}

var quoteHeader = regexp.MustCompile(`(?i)^(?:on .+ wrote:|op .+ schreef .+:|am .+ schrieb .+:|le .+ a écrit ?:|el .+ escribió:|-+ ?original message ?-+|-+ ?oorspronkelijk bericht ?-+|-+ ?ursprüngliche nachricht ?-+|from: .+)$`)

var mobileSignature = regexp.MustCompile(`(?i)^(?:sent from my .+|verzonden vanaf mijn .+|von meinem .+ gesendet|envoyé de mon .+|enviado desde mi .+)$`)

// StripQuoted returns the new text of a reply, dropping quoted history,
// signature separators and mobile signatures.
func StripQuoted(body string) string {
	var kept []string
	for _, line := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "--" || quoteHeader.MatchString(trimmed) {
			break
		}
		if strings.HasPrefix(trimmed, ">") || mobileSignature.MatchString(trimmed) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
