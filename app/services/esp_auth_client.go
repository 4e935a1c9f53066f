// Package services provides external service integrations and technical concerns like ESP clients and tokens
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/amirphl/Kusanagi/config"
)

// TokenPair is the credential pair returned by the ESP's authorization server
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// RefreshError carries the authorization server's non-2xx response so callers
// can decide between falling back to a stale token and aborting
type RefreshError struct {
	StatusCode int
	Body       string
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token endpoint returned %d: %s", e.StatusCode, e.Body)
}

// IsRefreshError reports whether err wraps a RefreshError
func IsRefreshError(err error) bool {
	var re *RefreshError
	return errors.As(err, &re)
}

// ESPAuthClient exchanges grants with the ESP's authorization server
type ESPAuthClient interface {
	// RefreshAccessToken exchanges a refresh token for a fresh pair. ESPs
	// rotate the refresh token, so the returned pair replaces both stored
	// values.
	RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenPair, error)

	// ExchangeAuthorizationCode exchanges an OAuth authorization code for the
	// initial token pair during connect
	ExchangeAuthorizationCode(ctx context.Context, code string) (*TokenPair, error)
}

// ESPAuthClientImpl implements ESPAuthClient over HTTP
type ESPAuthClientImpl struct {
	config *config.ESPConfig
	client *http.Client
}

// NewESPAuthClient creates a new ESP auth client
func NewESPAuthClient(cfg *config.ESPConfig) ESPAuthClient {
	return &ESPAuthClientImpl{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// RefreshAccessToken performs the refresh_token grant
func (c *ESPAuthClientImpl) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	return c.exchange(ctx, form)
}

// ExchangeAuthorizationCode performs the authorization_code grant
func (c *ESPAuthClientImpl) ExchangeAuthorizationCode(ctx context.Context, code string) (*TokenPair, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	if c.config.RedirectURI != "" {
		form.Set("redirect_uri", c.config.RedirectURI)
	}

	return c.exchange(ctx, form)
}

func (c *ESPAuthClientImpl) exchange(ctx context.Context, form url.Values) (*TokenPair, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.config.ClientID, c.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &RefreshError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(bodyBytes)),
		}
	}

	var pair TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if pair.AccessToken == "" {
		return nil, fmt.Errorf("empty access_token in token response")
	}

	return &pair, nil
}

// MockESPAuthClient implements ESPAuthClient for testing
type MockESPAuthClient struct {
	Pair          *TokenPair
	Err           error
	RefreshCalls  int
	ExchangeCalls int
}

// NewMockESPAuthClient creates a new mock auth client returning the given pair
func NewMockESPAuthClient(pair *TokenPair) *MockESPAuthClient {
	return &MockESPAuthClient{Pair: pair}
}

func (m *MockESPAuthClient) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	m.RefreshCalls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Pair, nil
}

func (m *MockESPAuthClient) ExchangeAuthorizationCode(ctx context.Context, code string) (*TokenPair, error) {
	m.ExchangeCalls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Pair, nil
}
