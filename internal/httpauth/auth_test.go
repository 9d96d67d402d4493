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

package httpauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestNewHTTPClient_Modes verifies auth configuration validation.
func TestNewHTTPClient_Modes(t *testing.T) {
	ctx := context.Background()
	if _, err := NewHTTPClient(ctx, AuthConfig{Mode: AuthAPIKey, APIKey: "k"}); err != nil {
		t.Errorf("api_key: unexpected error: %v", err)
	}
	if _, err := NewHTTPClient(ctx, AuthConfig{Mode: AuthAPIKey}); err == nil {
		t.Error("api_key without key should fail")
	}
	if _, err := NewHTTPClient(ctx, AuthConfig{Mode: AuthClientCredentials, ClientID: "id"}); err == nil {
		t.Error("client_credentials without secret should fail")
	}
	if _, err := NewHTTPClient(ctx, AuthConfig{Mode: "bogus"}); err == nil {
		t.Error("unknown mode should fail")
	}
}

// TestNewHTTPClient_BearerToken verifies the API key reaches the provider.
func TestNewHTTPClient_BearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	hc, err := NewHTTPClient(context.Background(), AuthConfig{Mode: AuthAPIKey, APIKey: "secret-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := hc.Get(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
}
