package ingram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aera-procure/apollobot/internal/models"
)

// staticTokens satisfies TokenSource without a network exchange.
type staticTokens struct{}

func (staticTokens) Token(ctx context.Context) (string, error) { return "test-token", nil }

// newCatalogServer serves a fixed page of catalog items and answers batch
// price/availability requests by echoing the requested part numbers in order.
func newCatalogServer(t *testing.T, items []models.CatalogItem, availability map[string]int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("expected bearer token header, got %q", got)
		}
		if corr := r.Header.Get("IM-CorrelationID"); corr == "" || len(corr) > 32 {
			t.Errorf("correlation id missing or too long: %q", corr)
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet:
			resp := searchResponse{RecordsFound: len(items), Catalog: items}
			if err := json.NewEncoder(w).Encode(resp); err != nil {
				t.Errorf("encode search response: %v", err)
			}
		case r.Method == http.MethodPost:
			var req paRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode p&a request: %v", err)
			}
			entries := make([]models.PriceAndAvailabilityEntry, 0, len(req.Products))
			for _, p := range req.Products {
				entries = append(entries, models.PriceAndAvailabilityEntry{
					IngramPartNumber: p.IngramPartNumber,
					Availability:     &models.AvailabilityInfo{TotalAvailability: availability[p.IngramPartNumber]},
				})
			}
			if err := json.NewEncoder(w).Encode(entries); err != nil {
				t.Errorf("encode p&a response: %v", err)
			}
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
}

func testItems(n int) []models.CatalogItem {
	items := make([]models.CatalogItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, models.CatalogItem{
			Description:      fmt.Sprintf("Product %d", i),
			IngramPartNumber: fmt.Sprintf("PN-%d", i),
			VendorName:       "Acme",
		})
	}
	return items
}

func TestSearchWithAvailabilityPairingByIdentity(t *testing.T) {
	items := testItems(3)
	srv := newCatalogServer(t, items, map[string]int{"PN-0": 5, "PN-1": 0, "PN-2": 7})
	defer srv.Close()

	c := NewClientWithTokenSource(staticTokens{}, WithBaseURL(srv.URL))
	offers, hits, err := c.SearchWithAvailability(context.Background(), "widget", 1, false)
	if err != nil {
		t.Fatalf("SearchWithAvailability failed: %v", err)
	}
	if hits != 3 || len(offers) != 3 {
		t.Fatalf("expected 3 hits and 3 offers, got %d hits, %d offers", hits, len(offers))
	}
	// Pairing must hold by identity, not just by position.
	for i, offer := range offers {
		if offer.Item.IngramPartNumber != offer.Info.IngramPartNumber {
			t.Errorf("offer %d pairs item %q with entry %q", i, offer.Item.IngramPartNumber, offer.Info.IngramPartNumber)
		}
	}
	if got := offers[1].Info.Availability.TotalAvailability; got != 0 {
		t.Errorf("expected PN-1 availability 0, got %d", got)
	}
}

func TestSearchWithAvailabilityFiltersUnavailable(t *testing.T) {
	items := testItems(3)
	srv := newCatalogServer(t, items, map[string]int{"PN-0": 5, "PN-1": 0, "PN-2": 7})
	defer srv.Close()

	c := NewClientWithTokenSource(staticTokens{}, WithBaseURL(srv.URL))
	offers, hits, err := c.SearchWithAvailability(context.Background(), "widget", 1, true)
	if err != nil {
		t.Fatalf("SearchWithAvailability failed: %v", err)
	}
	if hits != 3 {
		t.Errorf("expected 3 raw hits, got %d", hits)
	}
	if len(offers) != 2 {
		t.Fatalf("expected 2 available offers, got %d", len(offers))
	}
	for _, offer := range offers {
		if !offer.Info.Availability.Available() {
			t.Errorf("unavailable offer %q survived the filter", offer.Item.IngramPartNumber)
		}
	}
}

func TestSearchWithAvailabilityCapsAtPageSize(t *testing.T) {
	items := testItems(14)
	availability := make(map[string]int)
	for _, it := range items {
		availability[it.IngramPartNumber] = 1
	}
	srv := newCatalogServer(t, items, availability)
	defer srv.Close()

	c := NewClientWithTokenSource(staticTokens{}, WithBaseURL(srv.URL))
	offers, _, err := c.SearchWithAvailability(context.Background(), "widget", 1, false)
	if err != nil {
		t.Fatalf("SearchWithAvailability failed: %v", err)
	}
	if len(offers) > SearchPageSize {
		t.Errorf("expected at most %d offers, got %d", SearchPageSize, len(offers))
	}
}

func TestSearchWithAvailabilityEmptyCatalog(t *testing.T) {
	srv := newCatalogServer(t, nil, nil)
	defer srv.Close()

	c := NewClientWithTokenSource(staticTokens{}, WithBaseURL(srv.URL))
	offers, hits, err := c.SearchWithAvailability(context.Background(), "nothing", 1, false)
	if err != nil {
		t.Fatalf("SearchWithAvailability failed: %v", err)
	}
	if hits != 0 || len(offers) != 0 {
		t.Errorf("expected no hits and no offers, got %d hits, %d offers", hits, len(offers))
	}
}

func TestNormalizeTermSynonyms(t *testing.T) {
	c := NewClientWithTokenSource(staticTokens{})
	if got := c.NormalizeTerm("gaming laptop"); got != "gaming Notebook" {
		t.Errorf("expected synonym substitution, got %q", got)
	}
	custom := NewClientWithTokenSource(staticTokens{}, WithSynonyms(map[string]string{"telly": "Television"}))
	if got := custom.NormalizeTerm("smart telly"); got != "smart Television" {
		t.Errorf("expected custom synonym substitution, got %q", got)
	}
	if got := custom.NormalizeTerm("laptop"); got != "laptop" {
		t.Errorf("custom table must replace the default one, got %q", got)
	}
}

func TestLookupNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`[]`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer srv.Close()

	c := NewClientWithTokenSource(staticTokens{}, WithBaseURL(srv.URL))
	_, err := c.Lookup(context.Background(), "ABC123")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty batch response, got %v", err)
	}
}

func TestSearchUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClientWithTokenSource(staticTokens{}, WithBaseURL(srv.URL))
	_, err := c.Search(context.Background(), "widget", 1)
	if !errors.Is(err, models.ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected StatusError with code 500 in chain, got %v", err)
	}
}

// failingTokens satisfies TokenSource with a fixed auth failure.
type failingTokens struct{}

func (failingTokens) Token(ctx context.Context) (string, error) {
	return "", fmt.Errorf("%w: token exchange rejected", models.ErrAuthFailed)
}

func TestSearchKeepsAuthSentinel(t *testing.T) {
	c := NewClientWithTokenSource(failingTokens{}, WithBaseURL("http://127.0.0.1:0"))
	_, err := c.Search(context.Background(), "widget", 1)
	if !errors.Is(err, models.ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed to survive wrapping, got %v", err)
	}
	if errors.Is(err, models.ErrUpstream) {
		t.Errorf("auth failure must not be reclassified as upstream, got %v", err)
	}

	_, _, err = c.SearchWithAvailability(context.Background(), "widget", 1, false)
	if !errors.Is(err, models.ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed through the two-stage path, got %v", err)
	}
}
