package ingram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/aera-procure/apollobot/internal/models"
	"github.com/aera-procure/apollobot/internal/util"
)

// Client queries the catalog API. It never mutates result order: the entries
// returned by PriceAndAvailability line up index-for-index with the part
// numbers they were requested for.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	customerNumber string
	countryCode    string
	tokens         TokenSource
	synonyms       map[string]string
}

// NewClient creates a catalog client. When no token source is supplied via
// NewClientWithTokenSource, a TokenManager is built from the same options.
func NewClient(opts ...Option) *Client {
	return NewClientWithTokenSource(NewTokenManager(opts...), opts...)
}

// NewClientWithTokenSource creates a catalog client with an explicit token
// source, which tests use to avoid a live token exchange.
func NewClientWithTokenSource(tokens TokenSource, opts ...Option) *Client {
	cfg := applyOpts(opts)
	slog.Debug("Client.NewClient: created", "base_url", cfg.BaseURL, "customer_number", cfg.CustomerNumber, "country_code", cfg.CountryCode, "synonyms", len(cfg.Synonyms))
	return &Client{
		httpClient:     cfg.HTTPClient,
		baseURL:        cfg.BaseURL,
		customerNumber: cfg.CustomerNumber,
		countryCode:    cfg.CountryCode,
		tokens:         tokens,
		synonyms:       cfg.Synonyms,
	}
}

// NormalizeTerm applies the synonym table to a search term. Substitution is a
// plain substring replacement, matching the upstream behavior.
func (c *Client) NormalizeTerm(term string) string {
	for from, to := range c.synonyms {
		term = strings.ReplaceAll(term, from, to)
	}
	return term
}

// searchResponse is the catalog keyword search JSON shape.
type searchResponse struct {
	RecordsFound int                  `json:"recordsFound"`
	PageNumber   int                  `json:"pageNumber"`
	Catalog      []models.CatalogItem `json:"catalog"`
}

// Search runs a keyword search for one page of up to SearchPageSize items.
func (c *Client) Search(ctx context.Context, term string, page int) ([]models.CatalogItem, error) {
	q := url.Values{}
	q.Set("pageNumber", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(SearchPageSize))
	q.Set("keyword", term)
	searchURL := c.baseURL + "/resellers/v6/catalog?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	raw, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog search: %w", err)
	}

	var payload searchResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode catalog search response: %v", models.ErrUpstream, err)
	}
	slog.Debug("Client.Search: search completed", "term", term, "page", page, "records_found", payload.RecordsFound, "returned", len(payload.Catalog))
	return payload.Catalog, nil
}

// paRequest is the batched price/availability request body.
type paRequest struct {
	Products []paProduct `json:"products"`
}

type paProduct struct {
	IngramPartNumber string `json:"ingramPartNumber"`
}

// PriceAndAvailability fetches price and stock data for the given part
// numbers in one batch call. The response preserves request order.
func (c *Client) PriceAndAvailability(ctx context.Context, partNumbers []string) ([]models.PriceAndAvailabilityEntry, error) {
	products := make([]paProduct, 0, len(partNumbers))
	for _, pn := range partNumbers {
		products = append(products, paProduct{IngramPartNumber: pn})
	}
	body, err := json.Marshal(paRequest{Products: products})
	if err != nil {
		return nil, fmt.Errorf("marshal price and availability request: %w", err)
	}

	paURL := c.baseURL + "/resellers/v6/catalog/priceandavailability?includeAvailability=true&includePricing=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, paURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create price and availability request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	raw, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("price and availability: %w", err)
	}

	var entries []models.PriceAndAvailabilityEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: decode price and availability response: %v", models.ErrUpstream, err)
	}
	if len(entries) != len(partNumbers) {
		slog.Warn("Client.PriceAndAvailability: response length differs from request", "requested", len(partNumbers), "returned", len(entries))
	}
	slog.Debug("Client.PriceAndAvailability: batch completed", "requested", len(partNumbers), "returned", len(entries))
	return entries, nil
}

// SearchWithAvailability runs the two-stage search-then-enrich protocol:
// keyword search, then one batched price/availability call for the top hits,
// zipped positionally. When onlyAvailable is set, offers with no stock are
// dropped. The second return value is the raw search hit count for the page,
// which callers use to distinguish "no search hits" from "all filtered out".
func (c *Client) SearchWithAvailability(ctx context.Context, term string, page int, onlyAvailable bool) ([]models.ProductOffer, int, error) {
	term = c.NormalizeTerm(term)
	slog.Debug("Client.SearchWithAvailability: searching", "term", term, "page", page, "only_available", onlyAvailable)

	items, err := c.Search(ctx, term, page)
	if err != nil {
		return nil, 0, err
	}
	if len(items) == 0 {
		return nil, 0, nil
	}
	if len(items) > SearchPageSize {
		items = items[:SearchPageSize]
	}

	partNumbers := make([]string, len(items))
	for i, item := range items {
		partNumbers[i] = item.IngramPartNumber
	}
	entries, err := c.PriceAndAvailability(ctx, partNumbers)
	if err != nil {
		return nil, len(items), err
	}

	// Zip positionally; entries pair with items by index. A short response
	// truncates the pairing rather than shifting it.
	n := len(items)
	if len(entries) < n {
		n = len(entries)
	}
	offers := make([]models.ProductOffer, 0, n)
	for i := 0; i < n; i++ {
		if onlyAvailable && !entries[i].Availability.Available() {
			continue
		}
		offers = append(offers, models.ProductOffer{Item: items[i], Info: entries[i]})
	}
	slog.Debug("Client.SearchWithAvailability: completed", "term", term, "page", page, "hits", len(items), "offers", len(offers))
	return offers, len(items), nil
}

// Lookup fetches price and availability for a single part number. Returns
// models.ErrNotFound when the batch response is empty.
func (c *Client) Lookup(ctx context.Context, partNumber string) (*models.PriceAndAvailabilityEntry, error) {
	entries, err := c.PriceAndAvailability(ctx, []string{partNumber})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, models.ErrNotFound
	}
	return &entries[0], nil
}

// do attaches auth and correlation headers, executes the request, and returns
// the response body. Token failures keep the models.ErrAuthFailed sentinel the
// token source attached; transport and status failures carry models.ErrUpstream.
func (c *Client) do(req *http.Request) ([]byte, error) {
	token, err := c.tokens.Token(req.Context())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("IM-CustomerNumber", c.customerNumber)
	req.Header.Set("IM-CorrelationID", util.CorrelationID())
	req.Header.Set("IM-CountryCode", c.countryCode)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrUpstream, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("%w: %w", models.ErrUpstream, &StatusError{StatusCode: res.StatusCode, URL: req.URL.String(), Body: string(buf)})
	}
	return io.ReadAll(io.LimitReader(res.Body, 1<<20))
}
