// Package msgraph downloads the product workbook from SharePoint through the
// Microsoft Graph API using an app-only client-credentials token.
package msgraph

import (
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

// Defaults for the Graph and identity endpoints.
const (
	DefaultAuthHost  = "https://login.microsoftonline.com"
	DefaultGraphHost = "https://graph.microsoft.com"
	// DefaultHTTPTimeout bounds every Graph call; workbook downloads get a
	// little more room than the metadata calls need.
	DefaultHTTPTimeout = 30 * time.Second
	// tokenExpiryMargin refreshes the Graph token before its stated expiry.
	tokenExpiryMargin = 60 * time.Second
	// maxWorkbookBytes caps the workbook download size.
	maxWorkbookBytes = 32 << 20
)

// Opts holds configuration options for the Graph client.
type Opts struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	SiteURL      string
	FilePath     string
	AuthHost     string
	GraphHost    string
	HTTPClient   *http.Client
}

// Option configures the Graph client.
type Option func(*Opts)

// WithCredentials sets the Azure AD tenant and app credentials.
func WithCredentials(tenantID, clientID, clientSecret string) Option {
	return func(o *Opts) {
		o.TenantID = tenantID
		o.ClientID = clientID
		o.ClientSecret = clientSecret
	}
}

// WithSite sets the SharePoint site URL and the drive-relative workbook path.
func WithSite(siteURL, filePath string) Option {
	return func(o *Opts) {
		o.SiteURL = siteURL
		o.FilePath = strings.TrimLeft(filePath, "/")
	}
}

// WithEndpoints overrides the identity and Graph hosts, used in tests.
func WithEndpoints(authHost, graphHost string) Option {
	return func(o *Opts) {
		o.AuthHost = strings.TrimRight(authHost, "/")
		o.GraphHost = strings.TrimRight(graphHost, "/")
	}
}

// WithHTTPClient overrides the HTTP client used for all Graph calls.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = client }
}

// Client fetches workbook bytes from SharePoint. Safe for concurrent use.
type Client struct {
	httpClient   *http.Client
	tenantID     string
	clientID     string
	clientSecret string
	siteURL      string
	filePath     string
	authHost     string
	graphHost    string

	mu     sync.Mutex
	token  string
	expiry time.Time
	now    func() time.Time
}

// NewClient creates a Graph client from the given options.
func NewClient(opts ...Option) *Client {
	cfg := Opts{AuthHost: DefaultAuthHost, GraphHost: DefaultGraphHost}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	slog.Debug("msgraph.NewClient: created", "tenant_set", cfg.TenantID != "", "site_url", cfg.SiteURL, "file_path", cfg.FilePath)
	return &Client{
		httpClient:   cfg.HTTPClient,
		tenantID:     cfg.TenantID,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		siteURL:      cfg.SiteURL,
		filePath:     cfg.FilePath,
		authHost:     cfg.AuthHost,
		graphHost:    cfg.GraphHost,
		now:          time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// accessToken returns a cached app-only token, refreshing it near expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiry.Add(-tokenExpiryMargin)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("scope", c.graphHost+"/.default")

	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token", c.authHost, c.tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: create graph token request: %v", models.ErrAuthFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: graph token request: %v", models.ErrAuthFailed, err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", fmt.Errorf("%w: graph token exchange returned %d: %s", models.ErrAuthFailed, res.StatusCode, string(buf))
	}

	var payload tokenResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: decode graph token response: %v", models.ErrAuthFailed, err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("%w: graph token response missing access_token", models.ErrAuthFailed)
	}
	c.token = payload.AccessToken
	c.expiry = c.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	slog.Debug("msgraph.accessToken: new graph token obtained", "expires_at", c.expiry)
	return c.token, nil
}

type siteResponse struct {
	ID string `json:"id"`
}

type drivesResponse struct {
	Value []struct {
		ID string `json:"id"`
	} `json:"value"`
}

// FetchWorkbook resolves the configured site, picks its first drive, and
// downloads the workbook content as raw bytes.
func (c *Client) FetchWorkbook(ctx context.Context) ([]byte, error) {
	siteID, err := c.resolveSite(ctx)
	if err != nil {
		return nil, err
	}

	var drives drivesResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/v1.0/sites/%s/drives", c.graphHost, siteID), &drives); err != nil {
		return nil, fmt.Errorf("%w: list site drives: %v", models.ErrUpstream, err)
	}
	if len(drives.Value) == 0 {
		return nil, fmt.Errorf("%w: no drives found in site %s", models.ErrUpstream, siteID)
	}
	driveID := drives.Value[0].ID

	contentURL := fmt.Sprintf("%s/v1.0/drives/%s/root:/%s:/content", c.graphHost, driveID, c.filePath)
	raw, err := c.get(ctx, contentURL, maxWorkbookBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: download workbook: %v", models.ErrUpstream, err)
	}
	slog.Info("msgraph.FetchWorkbook: workbook downloaded", "bytes", len(raw), "file_path", c.filePath)
	return raw, nil
}

// resolveSite turns the configured site URL into a Graph site id using the
// hostname:/server-relative-path addressing form.
func (c *Client) resolveSite(ctx context.Context) (string, error) {
	u, err := url.Parse(c.siteURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: invalid site URL %q", models.ErrUpstream, c.siteURL)
	}
	sitePath := strings.TrimRight(u.Path, "/")
	var site siteResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/v1.0/sites/%s:%s", c.graphHost, u.Host, sitePath), &site); err != nil {
		return "", fmt.Errorf("%w: resolve site: %v", models.ErrUpstream, err)
	}
	if site.ID == "" {
		return "", fmt.Errorf("%w: site resolution returned no id", models.ErrUpstream)
	}
	return site.ID, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	raw, err := c.get(ctx, rawURL, 1<<20)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) get(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create graph request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d from %s: %s", res.StatusCode, rawURL, string(buf))
	}
	return io.ReadAll(io.LimitReader(res.Body, limit))
}
