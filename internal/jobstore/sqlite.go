package jobstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"cronbot/pkg/logx"
)

// sqliteBackend stores the job container as a single row in a kv table.
// Saves are single statements, so SQLite's own journaling provides the
// atomicity the file backend gets from tmp+rename.
type sqliteBackend struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (*sqliteBackend, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite store requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS containers (k TEXT PRIMARY KEY, v TEXT NOT NULL)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &sqliteBackend{db: db, log: log}, nil
}

const containerKey = "jobs"

func (b *sqliteBackend) Load() (document, error) {
	var raw string
	err := b.db.QueryRow(`SELECT v FROM containers WHERE k = ?`, containerKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		b.log.Debug("job container row missing; starting empty")
		return document{Version: FormatVersion}, nil
	}
	if err != nil {
		return document{}, err
	}

	var doc document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return document{}, fmt.Errorf("parse container row: %w", err)
	}
	return doc, nil
}

func (b *sqliteBackend) Save(doc document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = b.db.Exec(
		`INSERT INTO containers(k, v) VALUES(?, ?)
		 ON CONFLICT(k) DO UPDATE SET v = excluded.v`,
		containerKey, string(data),
	)
	return err
}

func (b *sqliteBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
