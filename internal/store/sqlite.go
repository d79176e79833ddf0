// Package store provides storage backends for Apollobot.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/aera-procure/apollobot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite store at the DSN file path, creating the
// parent directory and running migrations as needed.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetSession(conversationID string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT conversation_id, search_term, page, only_available, updated_at FROM sessions WHERE conversation_id = ?`, conversationID)
	var sess models.Session
	err := row.Scan(&sess.ConversationID, &sess.SearchTerm, &sess.Page, &sess.OnlyAvailable, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "conversation_id", conversationID)
		return nil, fmt.Errorf("failed to get session for %s: %w", conversationID, err)
	}
	return &sess, nil
}

func (s *SQLiteStore) SaveSession(sess models.Session) error {
	_, err := s.db.Exec(`INSERT INTO sessions (conversation_id, search_term, page, only_available, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET search_term = excluded.search_term, page = excluded.page, only_available = excluded.only_available, updated_at = excluded.updated_at`,
		sess.ConversationID, sess.SearchTerm, sess.Page, sess.OnlyAvailable, sess.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "conversation_id", sess.ConversationID)
		return fmt.Errorf("failed to save session for %s: %w", sess.ConversationID, err)
	}
	return nil
}

func (s *SQLiteStore) AddTurn(t models.Turn) error {
	_, err := s.db.Exec(`INSERT INTO turns (conversation_id, user_id, inbound, outbound, time) VALUES (?, ?, ?, ?, ?)`,
		t.ConversationID, nilIfEmpty(t.UserID), t.Inbound, t.Outbound, t.Time)
	if err != nil {
		slog.Error("SQLiteStore AddTurn failed", "error", err, "conversation_id", t.ConversationID)
		return fmt.Errorf("failed to insert turn for %s: %w", t.ConversationID, err)
	}
	return nil
}

func (s *SQLiteStore) ListTurns(conversationID string) ([]models.Turn, error) {
	rows, err := s.db.Query(`SELECT conversation_id, user_id, inbound, outbound, time FROM turns WHERE conversation_id = ? ORDER BY id`, conversationID)
	if err != nil {
		slog.Error("SQLiteStore ListTurns query failed", "error", err)
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
