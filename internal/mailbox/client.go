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

// Package mailbox is the client for the mailbox provider's grant API. A
// grant is an OAuth-authorised connection to one account's inbox; every
// call is scoped to it. Message content fetched here lives only for the
// duration of a pipeline run.
package mailbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/bcem/autoreply/internal/models"
)

// ErrNotFound is returned when the provider no longer has the message.
var ErrNotFound = errors.New("mailbox: message not found")

// APIError is returned for non-2xx provider responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mailbox API returned HTTP %d: %s", e.StatusCode, e.Message)
}

// Client calls the mailbox provider. The http.Client must already carry
// authentication (see httpauth.NewHTTPClient).
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a mailbox provider client.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// Reply is an outbound answer to an existing message.
type Reply struct {
	ReplyToMessageID string
	To               string
	Subject          string
	Body             string
}

// FetchMessage retrieves a single message with headers.
func (c *Client) FetchMessage(ctx context.Context, grantID, messageID string) (*models.MessageContent, error) {
	u := fmt.Sprintf("%s/grants/%s/messages/%s?fields=include_headers",
		c.baseURL, url.PathEscape(grantID), url.PathEscape(messageID))

	var env struct {
		Data wireMessage `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, u, nil, &env); err != nil {
		return nil, fmt.Errorf("fetch message %s: %w", messageID, err)
	}

	msg, err := env.Data.toContent()
	if err != nil {
		return nil, fmt.Errorf("parse message %s: %w", messageID, err)
	}
	return msg, nil
}

// ListThread returns up to limit messages of a thread, oldest first.
func (c *Client) ListThread(ctx context.Context, grantID, threadID string, limit int) ([]models.ThreadMessage, error) {
	params := url.Values{}
	params.Set("thread_id", threadID)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("select", "id,thread_id,from,date")

	u := fmt.Sprintf("%s/grants/%s/messages?%s", c.baseURL, url.PathEscape(grantID), params.Encode())

	var env struct {
		Data []wireMessage `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, u, nil, &env); err != nil {
		return nil, fmt.Errorf("list thread %s: %w", threadID, err)
	}

	msgs := make([]models.ThreadMessage, 0, len(env.Data))
	for _, w := range env.Data {
		if w.ID == "" {
			slog.Warn("skipping thread message without id", "thread_id", threadID)
			continue
		}
		msgs = append(msgs, w.toThreadMessage())
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Date.Before(msgs[j].Date) })
	return msgs, nil
}

// SendReply sends a reply in the thread of ReplyToMessageID and returns the
// provider's ID for the sent message.
func (c *Client) SendReply(ctx context.Context, grantID string, r Reply) (string, error) {
	payload := sendRequest{
		ReplyToMessageID: r.ReplyToMessageID,
		Subject:          r.Subject,
		Body:             r.Body,
	}
	if r.To != "" {
		payload.To = []wireAddress{{Email: r.To}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal send request: %w", err)
	}

	u := fmt.Sprintf("%s/grants/%s/messages/send", c.baseURL, url.PathEscape(grantID))

	var env struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, u, body, &env); err != nil {
		return "", fmt.Errorf("send reply to %s: %w", r.ReplyToMessageID, err)
	}
	if env.Data.ID == "" {
		return "", fmt.Errorf("send reply to %s: provider returned no message id", r.ReplyToMessageID)
	}
	return env.Data.ID, nil
}

// do performs a request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, u string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{StatusCode: resp.StatusCode, Message: string(msg)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
