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

// Package httpauth builds authenticated HTTP clients for the external
// providers. Bearer tokens are attached by the oauth2 transport.
package httpauth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Auth modes for the provider API.
const (
	AuthClientCredentials = "client_credentials"
	AuthAPIKey            = "api_key"
)

// AuthConfig describes how to authenticate against the provider.
type AuthConfig struct {
	Mode         string
	APIKey       string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// NewHTTPClient returns an http.Client that attaches a bearer token to
// every request. Client-credential tokens are cached and refreshed by the
// oauth2 transport.
func NewHTTPClient(ctx context.Context, cfg AuthConfig) (*http.Client, error) {
	switch cfg.Mode {
	case AuthClientCredentials:
		if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.TokenURL == "" {
			return nil, fmt.Errorf("httpauth: client_credentials needs client_id, client_secret and token_url")
		}
		creds := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		return creds.Client(ctx), nil
	case AuthAPIKey, "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("httpauth: api_key is required")
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"})
		return oauth2.NewClient(ctx, ts), nil
	default:
		return nil, fmt.Errorf("httpauth: unknown mode %q", cfg.Mode)
	}
}
