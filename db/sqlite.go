package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultGameName is recorded when a client does not name the game.
const DefaultGameName = "Quick Reflexes"

var ErrClosed = errors.New("database not initialized")

const schema = `
    CREATE TABLE IF NOT EXISTS session_metrics (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id INTEGER NOT NULL,
        appointment_id INTEGER,
        game_name VARCHAR(100) NOT NULL,
        accuracy REAL NOT NULL,
        avg_time REAL NOT NULL,
        prediction INTEGER NOT NULL,
        confidence REAL DEFAULT 0,
        model_id TEXT DEFAULT '',
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_session_metrics_user ON session_metrics(user_id, created_at);
    CREATE INDEX IF NOT EXISTS idx_session_metrics_created ON session_metrics(created_at);
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_id TEXT NOT NULL,
        model_name VARCHAR(50) NOT NULL,
        accuracy REAL,
        samples INTEGER,
        seed INTEGER,
        duration_ms INTEGER,
        trained_at DATETIME NOT NULL
    );
    `

// Store persists play-session metrics and the model training history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	database, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		database.SetMaxOpenConns(1)
	}
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}
