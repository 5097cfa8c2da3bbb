package jobstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"cronbot/pkg/logx"
)

// fileBackend persists the job container as one JSON file.
//
// Writes go to a sibling .tmp file followed by an atomic rename, so a crash
// mid-write (or a concurrent reader) never observes a partial file. After a
// successful write the file is copied to a .bak sibling, best-effort.
type fileBackend struct {
	path string
	log  logx.Logger
}

func openFile(cfg Config, log logx.Logger) (*fileBackend, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &fileBackend{path: path, log: log}, nil
}

func (b *fileBackend) Path() string { return b.path }

func (b *fileBackend) Load() (document, error) {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		b.log.Debug("job file missing; starting empty", logx.String("path", b.path))
		return document{Version: FormatVersion}, nil
	}
	if err != nil {
		return document{}, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("parse %s: %w", b.path, err)
	}
	return doc, nil
}

func (b *fileBackend) Save(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, b.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	// Backup is convenience, not correctness; never fail the save for it.
	if err := os.WriteFile(b.path+".bak", data, 0o600); err != nil {
		b.log.Debug("job file backup failed", logx.Err(err))
	}
	return nil
}

func (b *fileBackend) Close() error { return nil }
