// Package store provides storage backends for Apollobot.
//
// It persists per-conversation session state and a log of chat turns. An
// in-memory store is the default; SQLite and PostgreSQL backends are selected
// by DSN when durability across restarts is wanted.
package store

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/aera-procure/apollobot/internal/models"
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". Postgres DSNs use
// URL or key=value form; anything else is treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Store persists sessions and turn logs.
type Store interface {
	// GetSession returns the session for a conversation, or nil when none exists.
	GetSession(conversationID string) (*models.Session, error)

	// SaveSession inserts or replaces a conversation's session.
	SaveSession(s models.Session) error

	// AddTurn appends one inbound/outbound exchange to the turn log.
	AddTurn(t models.Turn) error

	// ListTurns returns the logged turns for a conversation in order.
	ListTurns(conversationID string) ([]models.Turn, error)

	// Close releases backend resources.
	Close() error
}

// InMemoryStore is the default, non-durable store.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	turns    []models.Turn
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	slog.Debug("NewInMemoryStore: created")
	return &InMemoryStore{sessions: make(map[string]models.Session)}
}

func (s *InMemoryStore) GetSession(conversationID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[conversationID]
	if !ok {
		return nil, nil
	}
	copied := sess
	return &copied, nil
}

func (s *InMemoryStore) SaveSession(sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ConversationID] = sess
	return nil
}

func (s *InMemoryStore) AddTurn(t models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
	return nil
}

func (s *InMemoryStore) ListTurns(conversationID string) ([]models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Turn
	for _, t := range s.turns {
		if t.ConversationID == conversationID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
