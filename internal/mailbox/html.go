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

package mailbox

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	spaceRun     = regexp.MustCompile(`[^\S\n]+`)
	newlineRun   = regexp.MustCompile(`\n{3,}`)
	invisibleRun = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{034F}\x{2060}-\x{2064}]+`)
)

// HTMLToText flattens an HTML email body to plain text, keeping line
// structure for block elements and dropping quoted reply containers.
func HTMLToText(html string) (string, error) {
	if html == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, meta, link").Remove()
	// Quoted history from common clients.
	doc.Find("blockquote, .gmail_quote, #appendonsend, #divRplyFwdMsg").Remove()

	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	text := invisibleRun.ReplaceAllString(doc.Text(), "")
	text = spaceRun.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	clean := make([]string, 0, len(lines))
	for _, line := range lines {
		clean = append(clean, strings.TrimSpace(line))
	}
	text = strings.Join(clean, "\n")
	text = newlineRun.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text), nil
}
