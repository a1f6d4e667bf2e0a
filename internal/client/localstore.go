package client

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ValuesJournalStorageKey is where the anonymous values journal is kept.
const ValuesJournalStorageKey = "river.valuesJournal.v1"

const kvSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// StorageKey returns the local key for a journal slug.
func StorageKey(journal string) string {
	if journal == "values-journal" {
		return ValuesJournalStorageKey
	}
	return "river.journal." + journal + ".v1"
}

// LocalStore is a small key/value table in a client-side SQLite file.
type LocalStore struct {
	db *sql.DB
}

// OpenLocalStore creates or opens the SQLite file at path.
func OpenLocalStore(path string) (*LocalStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(kvSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &LocalStore{db: db}, nil
}

func (s *LocalStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the raw value under key and whether it exists.
func (s *LocalStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *LocalStore) Put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

// LoadState reads the state under key laid over defaults. Stored fields
// win, response keys missing from storage keep their default, and a value
// that cannot be parsed yields defaults.
func (s *LocalStore) LoadState(ctx context.Context, key string, defaults State) (State, error) {
	result := defaults.Clone()

	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		return result, err
	}
	if !ok || raw == "" {
		return result, nil
	}

	var parsed struct {
		Responses   map[string]string `json:"responses"`
		ActiveStep  json.RawMessage   `json:"activeStep"`
		Todo        interface{}       `json:"todo"`
		SkippedAt   *string           `json:"skippedAt"`
		LastUpdated *string           `json:"lastUpdated"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		log.Printf("WARN [client.LoadState] failed to parse %s, using defaults: %v", key, err)
		return result, nil
	}

	for k, v := range parsed.Responses {
		result.Responses[k] = v
	}
	var step float64
	if len(parsed.ActiveStep) > 0 && json.Unmarshal(parsed.ActiveStep, &step) == nil {
		result.ActiveStep = int(step)
	}
	result.Todo = truthy(parsed.Todo)
	if parsed.SkippedAt != nil {
		result.SkippedAt = parsed.SkippedAt
	}
	if parsed.LastUpdated != nil {
		result.LastUpdated = parsed.LastUpdated
	}
	return result, nil
}

func (s *LocalStore) SaveState(ctx context.Context, key string, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.Put(ctx, key, string(data))
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
