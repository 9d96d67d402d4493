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
	"fmt"
	"net/textproto"
	"strings"
	"time"

	"github.com/bcem/autoreply/internal/models"
)

// wireAddress is a participant in the provider's message format.
type wireAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// wireMessage represents the relevant fields of a provider message.
type wireMessage struct {
	ID       string        `json:"id"`
	ThreadID string        `json:"thread_id"`
	Subject  string        `json:"subject"`
	From     []wireAddress `json:"from"`
	Body     string        `json:"body"`
	Date     int64         `json:"date"`
	Headers  []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
}

// sendRequest is the body of a send call.
type sendRequest struct {
	ReplyToMessageID string        `json:"reply_to_message_id"`
	To               []wireAddress `json:"to,omitempty"`
	Subject          string        `json:"subject,omitempty"`
	Body             string        `json:"body"`
}

func (w wireMessage) sender() wireAddress {
	if len(w.From) == 0 {
		return wireAddress{}
	}
	return w.From[0]
}

// toContent converts a provider message into MessageContent. HTML bodies
// are flattened to text so every downstream check sees plain text.
func (w wireMessage) toContent() (*models.MessageContent, error) {
	if w.ID == "" {
		return nil, fmt.Errorf("message has no id")
	}

	headers := make(map[string]string, len(w.Headers))
	for _, h := range w.Headers {
		key := textproto.CanonicalMIMEHeaderKey(h.Name)
		if _, seen := headers[key]; seen {
			continue
		}
		headers[key] = h.Value
	}

	body := w.Body
	if looksLikeHTML(body) {
		text, err := HTMLToText(body)
		if err != nil {
			return nil, fmt.Errorf("flatten html body: %w", err)
		}
		body = text
	}

	from := w.sender()
	return &models.MessageContent{
		ID:         w.ID,
		ThreadID:   w.ThreadID,
		From:       from.Email,
		SenderName: from.Name,
		Subject:    w.Subject,
		Body:       body,
		Headers:    headers,
		ReceivedAt: unixTime(w.Date),
	}, nil
}

func (w wireMessage) toThreadMessage() models.ThreadMessage {
	return models.ThreadMessage{
		ID:   w.ID,
		From: w.sender().Email,
		Date: unixTime(w.Date),
	}
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func looksLikeHTML(s string) bool {
	head := strings.ToLower(s)
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.Contains(head, "<html") ||
		strings.Contains(head, "<div") ||
		strings.Contains(head, "<p>") ||
		strings.Contains(head, "<p ") ||
		strings.Contains(head, "<br") ||
		strings.Contains(head, "<body") ||
		strings.Contains(head, "<table")
}
