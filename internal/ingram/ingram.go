// Package ingram provides a client for the Ingram Micro reseller catalog API.
//
// It covers the three operations the bot needs: client-credentials token
// exchange, keyword product search, and batched price/availability lookup.
// The batch response pairs positionally with the requested part numbers; the
// client preserves that order end to end.
package ingram

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Default configuration for the catalog API.
const (
	// DefaultBaseURL is the sandbox catalog host used unless overridden.
	DefaultBaseURL = "https://api.ingrammicro.com:443/sandbox"
	// DefaultCustomerNumber is the sandbox reseller customer number.
	DefaultCustomerNumber = "20-222222"
	// DefaultCountryCode is the country header sent on every catalog call.
	DefaultCountryCode = "US"
	// SearchPageSize is the fixed page size for catalog keyword searches.
	SearchPageSize = 10
	// DefaultHTTPTimeout bounds every catalog API call.
	DefaultHTTPTimeout = 10 * time.Second
)

// DefaultSynonyms maps casual search words to the catalog's canonical terms.
// Extensible through WithSynonyms / the PRODUCT_SYNONYMS environment variable.
var DefaultSynonyms = map[string]string{
	"laptop": "Notebook",
}

// Opts holds configuration options for the catalog client and token manager.
type Opts struct {
	BaseURL        string
	TokenURL       string
	ClientID       string
	ClientSecret   string
	CustomerNumber string
	CountryCode    string
	HTTPClient     *http.Client
	Synonyms       map[string]string
}

// Option configures the catalog client.
type Option func(*Opts)

// WithBaseURL overrides the catalog API base URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = strings.TrimRight(url, "/") }
}

// WithTokenURL overrides the token endpoint URL. By default the token
// endpoint is derived from the base URL with any /sandbox suffix stripped,
// since the token service lives on the production host.
func WithTokenURL(url string) Option {
	return func(o *Opts) { o.TokenURL = url }
}

// WithCredentials sets the client id and secret for the token exchange.
func WithCredentials(clientID, clientSecret string) Option {
	return func(o *Opts) {
		o.ClientID = clientID
		o.ClientSecret = clientSecret
	}
}

// WithCustomerNumber sets the IM-CustomerNumber header value.
func WithCustomerNumber(customerNumber string) Option {
	return func(o *Opts) { o.CustomerNumber = customerNumber }
}

// WithCountryCode sets the IM-CountryCode header value.
func WithCountryCode(countryCode string) Option {
	return func(o *Opts) { o.CountryCode = countryCode }
}

// WithHTTPClient overrides the HTTP client used for all catalog calls.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = client }
}

// WithSynonyms replaces the search-term synonym table.
func WithSynonyms(synonyms map[string]string) Option {
	return func(o *Opts) { o.Synonyms = synonyms }
}

// StatusError captures non-2xx upstream responses with status-aware context.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ingram: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// applyOpts resolves options over defaults.
func applyOpts(opts []Option) Opts {
	cfg := Opts{
		BaseURL:        DefaultBaseURL,
		CustomerNumber: DefaultCustomerNumber,
		CountryCode:    DefaultCountryCode,
		Synonyms:       DefaultSynonyms,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if cfg.TokenURL == "" {
		host := strings.TrimSuffix(cfg.BaseURL, "/sandbox")
		cfg.TokenURL = host + "/oauth/oauth20/token"
	}
	return cfg
}
