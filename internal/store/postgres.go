// Package store provides storage backends for Apollobot.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/aera-procure/apollobot/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetSession(conversationID string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT conversation_id, search_term, page, only_available, updated_at FROM sessions WHERE conversation_id = $1`, conversationID)
	var sess models.Session
	err := row.Scan(&sess.ConversationID, &sess.SearchTerm, &sess.Page, &sess.OnlyAvailable, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "conversation_id", conversationID)
		return nil, fmt.Errorf("failed to get session for %s: %w", conversationID, err)
	}
	return &sess, nil
}

func (s *PostgresStore) SaveSession(sess models.Session) error {
	_, err := s.db.Exec(`INSERT INTO sessions (conversation_id, search_term, page, only_available, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (conversation_id) DO UPDATE SET search_term = EXCLUDED.search_term, page = EXCLUDED.page, only_available = EXCLUDED.only_available, updated_at = EXCLUDED.updated_at`,
		sess.ConversationID, sess.SearchTerm, sess.Page, sess.OnlyAvailable, sess.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "conversation_id", sess.ConversationID)
		return fmt.Errorf("failed to save session for %s: %w", sess.ConversationID, err)
	}
	return nil
}

func (s *PostgresStore) AddTurn(t models.Turn) error {
	_, err := s.db.Exec(`INSERT INTO turns (conversation_id, user_id, inbound, outbound, time) VALUES ($1, $2, $3, $4, $5)`,
		t.ConversationID, nilIfEmpty(t.UserID), t.Inbound, t.Outbound, t.Time)
	if err != nil {
		slog.Error("PostgresStore AddTurn failed", "error", err, "conversation_id", t.ConversationID)
		return fmt.Errorf("failed to insert turn for %s: %w", t.ConversationID, err)
	}
	return nil
}

func (s *PostgresStore) ListTurns(conversationID string) ([]models.Turn, error) {
	rows, err := s.db.Query(`SELECT conversation_id, user_id, inbound, outbound, time FROM turns WHERE conversation_id = $1 ORDER BY id`, conversationID)
	if err != nil {
		slog.Error("PostgresStore ListTurns query failed", "error", err)
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
