package ingram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aera-procure/apollobot/internal/models"
)

// newTokenServer returns a token endpoint that counts exchanges and hands out
// sequentially numbered tokens with the given TTL.
func newTokenServer(t *testing.T, ttlSeconds string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST token exchange, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse token form: %v", err)
		}
		if got := r.PostFormValue("grant_type"); got != "client_credentials" {
			t.Errorf("expected grant_type client_credentials, got %q", got)
		}
		n := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		body := fmt.Sprintf(`{"access_token":"token-%d","expires_in":"%s","token_type":"Bearer"}`, n, ttlSeconds)
		if _, err := w.Write([]byte(body)); err != nil {
			t.Errorf("write token response: %v", err)
		}
	}))
	return srv, &calls
}

func TestTokenReusedWithinTTL(t *testing.T) {
	srv, calls := newTokenServer(t, "3600")
	defer srv.Close()

	tm := NewTokenManager(WithTokenURL(srv.URL), WithCredentials("id", "secret"))
	first, err := tm.Token(context.Background())
	if err != nil {
		t.Fatalf("first Token call failed: %v", err)
	}
	second, err := tm.Token(context.Background())
	if err != nil {
		t.Fatalf("second Token call failed: %v", err)
	}
	if first != second {
		t.Errorf("expected identical token within TTL, got %q then %q", first, second)
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Errorf("expected exactly 1 token exchange, got %d", got)
	}
}

func TestTokenRefreshedAfterExpiry(t *testing.T) {
	srv, calls := newTokenServer(t, "3600")
	defer srv.Close()

	tm := NewTokenManager(WithTokenURL(srv.URL), WithCredentials("id", "secret"))
	now := time.Now()
	tm.now = func() time.Time { return now }

	first, err := tm.Token(context.Background())
	if err != nil {
		t.Fatalf("first Token call failed: %v", err)
	}

	// Jump past the stated expiry.
	now = now.Add(3601 * time.Second)
	second, err := tm.Token(context.Background())
	if err != nil {
		t.Fatalf("Token call after expiry failed: %v", err)
	}
	if first == second {
		t.Errorf("expected a fresh token after expiry, got the same value %q", first)
	}
	if got := atomic.LoadInt32(calls); got != 2 {
		t.Errorf("expected exactly 2 token exchanges, got %d", got)
	}
}

func TestTokenRefreshedWithinExpiryMargin(t *testing.T) {
	srv, calls := newTokenServer(t, "3600")
	defer srv.Close()

	tm := NewTokenManager(WithTokenURL(srv.URL), WithCredentials("id", "secret"))
	now := time.Now()
	tm.now = func() time.Time { return now }

	if _, err := tm.Token(context.Background()); err != nil {
		t.Fatalf("first Token call failed: %v", err)
	}

	// 30s before expiry is inside the 60s margin: must refresh.
	now = now.Add(3600*time.Second - 30*time.Second)
	if _, err := tm.Token(context.Background()); err != nil {
		t.Fatalf("Token call inside margin failed: %v", err)
	}
	if got := atomic.LoadInt32(calls); got != 2 {
		t.Errorf("expected refresh inside expiry margin, got %d exchanges", got)
	}
}

func TestTokenExchangeRejectionIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	tm := NewTokenManager(WithTokenURL(srv.URL), WithCredentials("id", "wrong"))
	_, err := tm.Token(context.Background())
	if err == nil {
		t.Fatal("expected token exchange failure, got nil")
	}
	if !errors.Is(err, models.ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed, got %v", err)
	}
}
