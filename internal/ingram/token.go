package ingram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aera-procure/apollobot/internal/models"
)

// tokenExpiryMargin refreshes the token this long before its stated expiry so
// an in-flight catalog call cannot straddle expiry.
const tokenExpiryMargin = 60 * time.Second

// TokenSource yields a bearer token for catalog API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenManager obtains and caches an access token for the catalog API via the
// client-credentials grant. Safe for concurrent use; concurrent callers share
// a single refresh.
type TokenManager struct {
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string

	mu     sync.Mutex
	token  string
	expiry time.Time
	now    func() time.Time
}

// NewTokenManager creates a token manager from the given options.
func NewTokenManager(opts ...Option) *TokenManager {
	cfg := applyOpts(opts)
	slog.Debug("TokenManager.NewTokenManager: created", "token_url", cfg.TokenURL, "client_id_set", cfg.ClientID != "")
	return &TokenManager{
		httpClient:   cfg.HTTPClient,
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		now:          time.Now,
	}
}

// tokenResponse is the token endpoint's JSON shape. expires_in arrives as a
// string of seconds.
type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
	TokenType   string      `json:"token_type"`
}

// Token returns the cached token, refreshing it when missing or within the
// expiry margin. The cached token is replaced, never mutated.
func (tm *TokenManager) Token(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token != "" && tm.now().Before(tm.expiry.Add(-tokenExpiryMargin)) {
		slog.Debug("TokenManager.Token: reusing cached token", "expires_at", tm.expiry)
		return tm.token, nil
	}

	token, ttl, err := tm.exchange(ctx)
	if err != nil {
		// One retry on transport failure only; an upstream rejection is final.
		var se *StatusError
		if !errors.As(err, &se) {
			slog.Warn("TokenManager.Token: token exchange transport error, retrying once", "error", err)
			token, ttl, err = tm.exchange(ctx)
		}
	}
	if err != nil {
		slog.Error("TokenManager.Token: token exchange failed", "error", err)
		return "", fmt.Errorf("%w: %v", models.ErrAuthFailed, err)
	}

	tm.token = token
	tm.expiry = tm.now().Add(ttl)
	slog.Debug("TokenManager.Token: new access token obtained", "expires_at", tm.expiry)
	return tm.token, nil
}

// exchange performs one client-credentials exchange against the token endpoint.
func (tm *TokenManager) exchange(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", tm.clientID)
	form.Set("client_secret", tm.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := tm.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", 0, &StatusError{StatusCode: res.StatusCode, URL: tm.tokenURL, Body: string(buf)}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("read token response: %w", err)
	}
	var payload tokenResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", 0, fmt.Errorf("token response missing access_token")
	}
	seconds, err := payload.ExpiresIn.Int64()
	if err != nil {
		return "", 0, fmt.Errorf("token response has invalid expires_in %q: %w", payload.ExpiresIn, err)
	}
	return payload.AccessToken, time.Duration(seconds) * time.Second, nil
}
