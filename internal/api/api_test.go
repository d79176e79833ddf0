package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aera-procure/apollobot/internal/bot"
	"github.com/aera-procure/apollobot/internal/models"
	"github.com/aera-procure/apollobot/internal/store"
)

// stubCatalog serves empty results so router dispatch succeeds.
type stubCatalog struct{}

func (stubCatalog) SearchWithAvailability(ctx context.Context, term string, page int, onlyAvailable bool) ([]models.ProductOffer, int, error) {
	return nil, 0, nil
}

func (stubCatalog) Lookup(ctx context.Context, partNumber string) (*models.PriceAndAvailabilityEntry, error) {
	return nil, models.ErrNotFound
}

// captureSender records outbound replies from the router.
type captureSender struct {
	mu      sync.Mutex
	replies []string
}

func (c *captureSender) ReplyToActivity(ctx context.Context, incoming *models.Activity, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, text)
	return nil
}

func newTestServer(t *testing.T) (*Server, *captureSender) {
	t.Helper()
	sender := &captureSender{}
	st := store.NewInMemoryStore()
	router := bot.NewRouter(stubCatalog{}, nil, nil, nil, sender, st)
	return NewServer(router, st), sender
}

func postActivity(t *testing.T, srv *Server, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewBufferString(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

const validActivityJSON = `{
	"type": "message",
	"id": "act-1",
	"from": {"id": "user-1"},
	"recipient": {"id": "bot-1"},
	"conversation": {"id": "conv-1"},
	"text": "search for product monitor"
}`

func TestMessagesHandlerProcessesActivity(t *testing.T) {
	srv, sender := newTestServer(t)

	rr := postActivity(t, srv, "application/json", validActivityJSON)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp.Status != models.StatusOK {
		t.Errorf("unexpected status %q", resp.Status)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.replies) != 1 || sender.replies[0] != "No products found matching your search term on page 1." {
		t.Errorf("unexpected replies: %v", sender.replies)
	}
}

func TestMessagesHandlerAcceptsCharsetParameter(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := postActivity(t, srv, "application/json; charset=utf-8", validActivityJSON)
	if rr.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rr.Code)
	}
}

func TestMessagesHandlerRejectsWrongContentType(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := postActivity(t, srv, "text/plain", validActivityJSON)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d", rr.Code)
	}
}

func TestMessagesHandlerRejectsBadJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := postActivity(t, srv, "application/json", `{"type": "message",`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestMessagesHandlerRejectsMissingConversation(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := postActivity(t, srv, "application/json", `{"type": "message", "text": "hello"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "invalid activity payload") {
		t.Errorf("expected validation detail in body: %s", rr.Body.String())
	}
}

func TestMessagesHandlerRejectsGet(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
	if allow := rr.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("expected Allow: POST, got %q", allow)
	}
}

func TestHealthHandler(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("health response is not valid JSON: %v", err)
	}
	if resp.Status != models.StatusOK {
		t.Errorf("unexpected status %q", resp.Status)
	}
	if resp.Message != bot.Greeting() {
		t.Errorf("expected the greeting as health message, got %q", resp.Message)
	}
}

func TestMessagesHandlerAuthValidator(t *testing.T) {
	sender := &captureSender{}
	st := store.NewInMemoryStore()
	router := bot.NewRouter(stubCatalog{}, nil, nil, nil, sender, st)

	var seen string
	srv := NewServer(router, st, WithAuthValidator(func(authorization string) error {
		seen = authorization
		if authorization != "Bearer inbound-token" {
			return errors.New("unexpected authorization")
		}
		return nil
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewBufferString(validActivityJSON))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer inbound-token")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 for accepted authorization, got %d", rr.Code)
	}
	if seen != "Bearer inbound-token" {
		t.Errorf("validator must receive the raw header, got %q", seen)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewBufferString(validActivityJSON))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer wrong")
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for rejected authorization, got %d", rr.Code)
	}
}

func TestUnknownPathIs404(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}
