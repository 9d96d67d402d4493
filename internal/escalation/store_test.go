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

package escalation

import (
	"context"
	"errors"
	"testing"

	"github.com/bcem/autoreply/internal/models"
)

// Validation happens before any query, so a zero Store is enough here.
func TestResolve_Validation(t *testing.T) {
	s := &Store{}

	if err := s.Resolve(context.Background(), "5f0c7a57-7a1e-4f5e-9d43-0c5c1c3a0b11", models.ReviewPending); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("err = %v, want ErrInvalidStatus", err)
	}
	if err := s.Resolve(context.Background(), "not-a-uuid", models.ReviewResolved); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestNullable(t *testing.T) {
	if nullable("") != nil {
		t.Error("empty string should map to NULL")
	}
	if p := nullable("4821"); p == nil || *p != "4821" {
		t.Errorf("nullable(4821) = %v", p)
	}
}
