package jobstore

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cronbot/pkg/logx"
)

// backend is a durable home for the job container. Implementations must make
// Save atomic at the storage level; the Store never calls Save concurrently
// (single-writer assumption, the scheduler serializes all mutation).
type backend interface {
	Load() (document, error)
	Save(document) error
	Close() error
}

// Store is the in-memory index over all jobs, backed by a single serialized
// container. Mutations only mark the store dirty; nothing touches disk until
// Persist.
type Store struct {
	log logx.Logger

	mu      sync.Mutex
	be      backend
	jobs    map[string]*Job
	dirty   bool
	savedAt time.Time

	now func() time.Time
}

// Open initializes the configured driver and loads the container.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	var (
		be  backend
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		be, err = openFile(cfg, log)
	case "sqlite", "sqlite3":
		be, err = openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	s := &Store{log: log, be: be, now: time.Now}
	s.mu.Lock()
	s.loadLocked()
	s.mu.Unlock()
	return s, nil
}

// FilePath returns the backing file path for the file driver, or "" when the
// driver has no single watchable file.
func (s *Store) FilePath() string {
	if fb, ok := s.be.(*fileBackend); ok {
		return fb.Path()
	}
	return ""
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.be.Close()
}

// Reload re-reads the container from durable storage, replacing the index.
// Unpersisted in-memory changes are discarded; that is the point (the caller
// wants whatever is on disk, e.g. after an external edit).
func (s *Store) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
}

// loadLocked is self-healing: a missing, malformed, or wrong-version
// container resets to empty instead of failing. This scheduler is
// best-effort background machinery, not a ledger; the trade-off is that
// unreadable state is silently discarded (a .bak sibling survives for the
// file driver).
func (s *Store) loadLocked() {
	doc, err := s.be.Load()
	if err != nil {
		s.log.Warn("job container unreadable; resetting to empty", logx.Err(err))
		doc = document{Version: FormatVersion}
	}
	if doc.Version != FormatVersion {
		if doc.Version != 0 || len(doc.Jobs) > 0 {
			s.log.Warn("job container has unknown version; resetting to empty",
				logx.Int("version", doc.Version))
		}
		doc = document{Version: FormatVersion}
	}

	s.jobs = make(map[string]*Job, len(doc.Jobs))
	for _, j := range doc.Jobs {
		if j == nil || j.ID == "" {
			continue
		}
		s.jobs[j.ID] = j
	}
	s.dirty = false
}

// All returns clones of every job, ordered by creation time then id so
// iteration order is stable for a given set.
func (s *Store) All() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

func (s *Store) sortedLocked() []*Job {
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt != out[k].CreatedAt {
			return out[i].CreatedAt < out[k].CreatedAt
		}
		return out[i].ID < out[k].ID
	})
	return out
}

func (s *Store) ByID(id string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j.Clone(), ok
}

// ByName returns the first job with the given name in All() order. Names
// need not be unique; this is a lookup convenience, not an index.
func (s *Store) ByName(name string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.sortedLocked() {
		if j.Name == name {
			return j, true
		}
	}
	return nil, false
}

func (s *Store) Enabled() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sortedLocked()
	out := all[:0]
	for _, j := range all {
		if j.Enabled {
			out = append(out, j)
		}
	}
	return out
}

func (s *Store) Add(job *Job) error {
	if job == nil || job.ID == "" {
		return errors.New("job requires an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	s.dirty = true
	return nil
}

// Update applies mutate to the stored job, stamps UpdatedAt, marks the store
// dirty, and returns a clone of the result.
func (s *Store) Update(id string, mutate func(*Job)) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	mutate(j)
	j.UpdatedAt = s.now().UnixMilli()
	s.dirty = true
	return j.Clone(), nil
}

func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.jobs, id)
	s.dirty = true
	return nil
}

// Persist writes the container iff something changed since the last write.
// On failure the dirty flag stays set, so the next Persist retries.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	return s.persistLocked()
}

// ForcePersist writes unconditionally (explicit cache invalidation).
func (s *Store) ForcePersist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	doc := document{Version: FormatVersion, Jobs: s.sortedLocked()}
	if err := s.be.Save(doc); err != nil {
		return fmt.Errorf("persist jobs: %w", err)
	}
	s.dirty = false
	s.savedAt = time.Now()
	return nil
}

// LastSavedAt returns the wall-clock time of the last successful Persist.
// File watchers use it to tell our own writes apart from external edits.
func (s *Store) LastSavedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savedAt
}

// Dirty reports whether unpersisted changes exist.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// SetClock overrides the UpdatedAt clock. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}
