// Package connector sends outbound activities to the Bot Framework connector
// service, the messaging channel Apollobot replies through.
package connector

import (
	"bytes"
	"context"
	"encoding/json"
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

// Defaults for the connector's token exchange.
const (
	// DefaultTokenURL is the Bot Framework app token endpoint.
	DefaultTokenURL = "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"
	// DefaultScope is the connector API scope.
	DefaultScope = "https://api.botframework.com/.default"
	// DefaultHTTPTimeout bounds every connector call.
	DefaultHTTPTimeout = 10 * time.Second
	// tokenExpiryMargin refreshes the app token before its stated expiry.
	tokenExpiryMargin = 60 * time.Second
)

// Opts holds configuration options for the connector client.
type Opts struct {
	AppID       string
	AppPassword string
	TokenURL    string
	Scope       string
	HTTPClient  *http.Client
}

// Option configures the connector client.
type Option func(*Opts)

// WithCredentials sets the Bot Framework app id and password. With no app id
// the client runs unauthenticated, which the emulator accepts for local work.
func WithCredentials(appID, appPassword string) Option {
	return func(o *Opts) {
		o.AppID = appID
		o.AppPassword = appPassword
	}
}

// WithTokenEndpoint overrides the token URL and scope, used in tests.
func WithTokenEndpoint(tokenURL, scope string) Option {
	return func(o *Opts) {
		o.TokenURL = tokenURL
		o.Scope = scope
	}
}

// WithHTTPClient overrides the HTTP client used for all connector calls.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = client }
}

// Client delivers outbound activities. Safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	appID       string
	appPassword string
	tokenURL    string
	scope       string

	mu     sync.Mutex
	token  string
	expiry time.Time
	now    func() time.Time
}

// NewClient creates a connector client from the given options.
func NewClient(opts ...Option) *Client {
	cfg := Opts{TokenURL: DefaultTokenURL, Scope: DefaultScope}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	slog.Debug("connector.NewClient: created", "app_id_set", cfg.AppID != "", "app_password_set", cfg.AppPassword != "")
	return &Client{
		httpClient:  cfg.HTTPClient,
		appID:       cfg.AppID,
		appPassword: cfg.AppPassword,
		tokenURL:    cfg.TokenURL,
		scope:       cfg.Scope,
		now:         time.Now,
	}
}

// ReplyToActivity posts a text reply into the conversation an inbound
// activity came from, addressed back to its sender.
func (c *Client) ReplyToActivity(ctx context.Context, incoming *models.Activity, text string) error {
	if incoming.ServiceURL == "" || incoming.ConversationID() == "" {
		return fmt.Errorf("%w: activity missing serviceUrl or conversation", models.ErrInvalidActivity)
	}

	reply := models.Activity{
		Type:         models.ActivityTypeMessage,
		ChannelID:    incoming.ChannelID,
		From:         incoming.Recipient,
		Recipient:    incoming.From,
		Conversation: incoming.Conversation,
		ReplyToID:    incoming.ID,
		Text:         text,
	}

	endpoint := strings.TrimRight(incoming.ServiceURL, "/") + "/v3/conversations/" + url.PathEscape(incoming.ConversationID()) + "/activities"
	if incoming.ID != "" {
		endpoint += "/" + url.PathEscape(incoming.ID)
	}

	body, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("marshal reply activity: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.appID != "" {
		token, err := c.accessToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: send reply: %v", models.ErrUpstream, err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("%w: connector returned %d: %s", models.ErrUpstream, res.StatusCode, string(buf))
	}
	slog.Debug("connector.ReplyToActivity: reply delivered", "conversation_id", incoming.ConversationID(), "chars", len(text))
	return nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// accessToken returns a cached connector token, refreshing it near expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiry.Add(-tokenExpiryMargin)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.appID)
	form.Set("client_secret", c.appPassword)
	form.Set("scope", c.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: create connector token request: %v", models.ErrAuthFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: connector token request: %v", models.ErrAuthFailed, err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", fmt.Errorf("%w: connector token exchange returned %d: %s", models.ErrAuthFailed, res.StatusCode, string(buf))
	}

	var payload tokenResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: decode connector token response: %v", models.ErrAuthFailed, err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("%w: connector token response missing access_token", models.ErrAuthFailed)
	}
	c.token = payload.AccessToken
	c.expiry = c.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	slog.Debug("connector.accessToken: new app token obtained", "expires_at", c.expiry)
	return c.token, nil
}
