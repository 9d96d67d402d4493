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

package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bcem/autoreply/internal/models"
)

type mockLister struct {
	msgs  []models.ThreadMessage
	err   error
	calls int
}

func (m *mockLister) ListThread(_ context.Context, _, _ string, _ int) ([]models.ThreadMessage, error) {
	m.calls++
	return m.msgs, m.err
}

func at(min int) time.Time {
	return time.Date(2026, 1, 1, 10, min, 0, 0, time.UTC)
}

// TestHumanAlreadyReplied verifies the ordering logic.
func TestHumanAlreadyReplied(t *testing.T) {
	const customer = "customer@example.com"
	const account = "support@shop.example"

	tests := []struct {
		name string
		msgs []models.ThreadMessage
		want bool
	}{
		{
			name: "only customer message",
			msgs: []models.ThreadMessage{{ID: "1", From: customer, Date: at(0)}},
			want: false,
		},
		{
			name: "agent answered after customer",
			msgs: []models.ThreadMessage{
				{ID: "1", From: customer, Date: at(0)},
				{ID: "2", From: "Support <Support@Shop.Example>", Date: at(5)},
			},
			want: true,
		},
		{
			name: "agent answered before the latest customer message",
			msgs: []models.ThreadMessage{
				{ID: "1", From: customer, Date: at(0)},
				{ID: "2", From: account, Date: at(5)},
				{ID: "3", From: customer, Date: at(10)},
			},
			want: false,
		},
		{
			name: "unsorted input is sorted first",
			msgs: []models.ThreadMessage{
				{ID: "2", From: account, Date: at(5)},
				{ID: "1", From: customer, Date: at(0)},
			},
			want: true,
		},
		{
			name: "third party after customer is not a reply",
			msgs: []models.ThreadMessage{
				{ID: "1", From: customer, Date: at(0)},
				{ID: "2", From: "colleague@other.example", Date: at(5)},
			},
			want: false,
		},
		{
			name: "no customer message in thread",
			msgs: []models.ThreadMessage{{ID: "2", From: account, Date: at(5)}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(&mockLister{msgs: tt.msgs}, time.Second)
			got := g.HumanAlreadyReplied(context.Background(), "grant", "thread", customer, account)
			if got != tt.want {
				t.Errorf("HumanAlreadyReplied = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestHumanAlreadyReplied_FailsOpen verifies fetch errors return false.
func TestHumanAlreadyReplied_FailsOpen(t *testing.T) {
	lister := &mockLister{err: errors.New("provider down")}
	g := New(lister, 0)
	if g.HumanAlreadyReplied(context.Background(), "grant", "thread", "c@example.com", "s@example.com") {
		t.Error("expected false on fetch error")
	}
	if lister.calls != 1 {
		t.Errorf("calls = %d, want 1", lister.calls)
	}
}
