package util

import (
	"strings"
	"testing"
)

func TestCorrelationIDLength(t *testing.T) {
	id := CorrelationID()
	if len(id) != CorrelationIDMaxLength {
		t.Errorf("expected correlation id of length %d, got %d (%q)", CorrelationIDMaxLength, len(id), id)
	}
}

func TestCorrelationIDCharset(t *testing.T) {
	id := CorrelationID()
	for _, r := range id {
		if !strings.ContainsRune("0123456789abcdef-", r) {
			t.Errorf("unexpected character %q in correlation id %q", r, id)
		}
	}
}

func TestCorrelationIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := CorrelationID()
		if seen[id] {
			t.Fatalf("duplicate correlation id generated: %q", id)
		}
		seen[id] = true
	}
}
