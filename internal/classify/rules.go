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

package classify

import (
	"regexp"

	"github.com/bcem/autoreply/internal/models"
)

type intentRule struct {
	intent  models.Intent
	pattern *regexp.Regexp
}

// rules are evaluated in order; the first match wins. Order status comes
// first because "where is my order" messages often also mention returns
// or problems in passing.
var rules = []intentRule{
	{models.IntentOrderStatus, regexp.MustCompile(`(?i)` +
		`where(?:'s| is) my (?:order|package|parcel|delivery)|track(?:ing)? (?:number|code|link|info)|` +
		`(?:has ?n[o']t|did ?n[o']t|not yet|never) (?:arrived|shipped|been shipped|been delivered|received)|` +
		`when will (?:my|it|the) .{0,20}(?:arrive|ship|be delivered)|(?:shipping|delivery|order) status|wismo|` +
		`waar is mijn (?:bestelling|pakket|order)|track ?(?:&|and) ?trace|nog (?:niet|steeds niet) (?:ontvangen|binnen|geleverd|verzonden)|wanneer (?:komt|wordt|word)|` +
		`wo (?:ist|bleibt) meine (?:bestellung|sendung|lieferung)|wo ist mein paket|sendungsverfolgung|noch nicht (?:angekommen|erhalten|geliefert|versendet)|wann kommt|` +
		`o[uù] (?:est|en est) ma commande|suivi de (?:ma )?commande|pas encore (?:re[çc]u|arriv[ée])|quand (?:vais-je recevoir|arrivera)|` +
		`d[oó]nde est[aá] mi (?:pedido|paquete)|seguimiento de(?:l| mi) pedido|(?:a[uú]n|todav[ií]a) no (?:he recibido|ha llegado|me ha llegado)|cu[aá]ndo llega`)},
	{models.IntentCancel, regexp.MustCompile(`(?i)` +
		`\bcancel|annuleren|annuleer|stornieren|storniere|stornierung|annuler|annulation|cancelar|anular`)},
	{models.IntentExchange, regexp.MustCompile(`(?i)` +
		`\bexchange|\bswap\b|(?:different|other|bigger|smaller|wrong) (?:size|colou?r)|` +
		`\bruilen|omruilen|andere (?:maat|kleur)|` +
		`umtausch|andere gr[öo](?:ß|ss)e|` +
		`[ée]changer|[ée]change|autre taille|` +
		`\bcambiar|\bcambio\b|otra talla`)},
	{models.IntentReturn, regexp.MustCompile(`(?i)` +
		`\breturn|refund|send (?:it|them) back|money back|` +
		`retour|terugsturen|geld terug|terugbetaling|` +
		`r[üu]cksendung|zur[üu]cksenden|r[üu]ckerstattung|erstattung|widerruf|` +
		`retourner|remboursement|renvoyer|` +
		`devolver|devoluci[oó]n|reembolso`)},
	{models.IntentOrderProblem, regexp.MustCompile(`(?i)` +
		`damaged|broken|defective|faulty|wrong (?:item|product|order|article)|missing (?:item|part|product)|incomplete|` +
		`beschadigd|kapot|defect|verkeerde (?:artikel|product|bestelling)|ontbreekt|` +
		`besch[äa]digt|kaputt|defekt|falsche[rns]? (?:artikel|produkt)|fehlt|` +
		`endommag[ée]|cass[ée]|ab[îi]m[ée]|manquant|mauvais (?:article|produit)|` +
		`da[ñn]ado|\broto\b|defectuoso|(?:art[ií]culo|producto) equivocado|falta`)},
	{models.IntentProductQuestion, regexp.MustCompile(`(?i)` +
		`do you (?:have|sell|stock|ship to)|in stock|back in stock|availab|size (?:guide|chart)|what size|which size|material|ingredient|` +
		`op voorraad|beschikbaar|welke maat|` +
		`auf lager|lieferbar|verf[üu]gbar|welche gr[öo](?:ß|ss)e|` +
		`en stock|disponible|quelle taille|` +
		`en existencias|qu[ée] talla|tienen`)},
}

var (
	orderDigits = regexp.MustCompile(`^\d{3,8}$`)

	orderNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`#\s?(\d{3,8})\b`),
		regexp.MustCompile(`(?i)(?:order|bestelling|bestelnummer|ordernummer|bestellung|bestellnummer|auftrag|commande|pedido)` +
			`(?:\s*(?:number|nummer|nr\.?|no\.?|num[ée]ro|n[°º]))?\s*[:#]?\s*(\d{3,8})\b`),
	}
)

// ClassifyRules is the deterministic classifier.
func ClassifyRules(subject, body string) models.ClassificationResult {
	text := subject + "\n" + body

	intent := models.IntentGeneral
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			intent = r.intent
			break
		}
	}

	return models.ClassificationResult{
		Intent:      intent,
		OrderNumber: ExtractOrderNumber(text),
		Source:      models.SourceRules,
	}
}

// ExtractOrderNumber finds the first order reference of 3 to 8 digits.
func ExtractOrderNumber(text string) string {
	for _, p := range orderNumberPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}
