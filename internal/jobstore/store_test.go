package jobstore

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"cronbot/internal/schedule"
	"cronbot/pkg/logx"
)

func openTestStore(t *testing.T, driver string) *Store {
	t.Helper()
	name := "jobs.json"
	if driver == "sqlite" {
		name = "jobs.db"
	}
	s, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), name)}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testJob(id, name string) *Job {
	return &Job{
		ID:        id,
		Name:      name,
		Enabled:   true,
		Schedule:  schedule.Every(time.Minute),
		Payload:   Payload{Kind: PayloadSystemEvent, Text: "ping"},
		CreatedAt: time.Now().UnixMilli(),
	}
}

func TestPersistRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")

	s, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	a := testJob("a", "alpha")
	a.State = RunState{NextRunAt: 123, LastStatus: StatusOK, RunCount: 7}
	b := testJob("b", "beta")
	b.CreatedAt = a.CreatedAt + 1
	for _, j := range []*Job{a, b} {
		if err := s.Add(j); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	// A fresh store over the same file sees the identical job set.
	s2, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got := s2.All()
	if len(got) != 2 {
		t.Fatalf("got %d jobs, want 2", len(got))
	}
	if !reflect.DeepEqual(got[0], a) || !reflect.DeepEqual(got[1], b) {
		t.Fatalf("round-trip mismatch:\n got %+v\nwant %+v", got, []*Job{a, b})
	}
}

func TestPersistIsDirtyGated(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")
	s, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Nothing changed: Persist must not create the file.
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("clean Persist wrote the file")
	}

	if err := s.Add(testJob("a", "alpha")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !s.Dirty() {
		t.Fatal("Add did not mark store dirty")
	}
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if s.Dirty() {
		t.Fatal("Persist did not clear dirty flag")
	}

	// ForcePersist writes even when clean.
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.ForcePersist(); err != nil {
		t.Fatalf("ForcePersist: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("ForcePersist did not write: %v", err)
	}
}

func TestPersistWritesBackup(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")
	s, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Add(testJob("a", "alpha")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Fatalf("no .bak sibling: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("tmp file left behind")
	}
}

func TestCorruptFileResetsEmpty(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	s, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open over corrupt file: %v", err)
	}
	if got := s.All(); len(got) != 0 {
		t.Fatalf("corrupt file yielded %d jobs, want 0", len(got))
	}
}

func TestUnknownVersionResetsEmpty(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")
	if err := os.WriteFile(path, []byte(`{"version":99,"jobs":[{"id":"a","name":"x"}]}`), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	s, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := s.All(); len(got) != 0 {
		t.Fatalf("unknown version yielded %d jobs, want 0", len(got))
	}
}

func TestByNameFirstMatch(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, "")
	a := testJob("a", "dup")
	a.CreatedAt = 100
	b := testJob("b", "dup")
	b.CreatedAt = 200
	if err := s.Add(b); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(a); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, ok := s.ByName("dup")
	if !ok || got.ID != "a" {
		t.Fatalf("ByName = %+v, want the earliest-created match", got)
	}
	if _, ok := s.ByName("nope"); ok {
		t.Fatal("ByName matched a missing name")
	}
}

func TestUpdateStampsAndClones(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, "")
	fixed := time.UnixMilli(42_000)
	s.SetClock(func() time.Time { return fixed })

	if err := s.Add(testJob("a", "alpha")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, err := s.Update("a", func(j *Job) { j.Name = "renamed" })
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Name != "renamed" || got.UpdatedAt != fixed.UnixMilli() {
		t.Fatalf("Update result = %+v", got)
	}

	// The returned clone must not alias store state.
	got.Name = "mutated-outside"
	again, _ := s.ByID("a")
	if again.Name != "renamed" {
		t.Fatal("external mutation leaked into the store")
	}

	if _, err := s.Update("missing", func(*Job) {}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update missing = %v, want ErrNotFound", err)
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, "")
	if err := s.Add(testJob("a", "alpha")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Remove("a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove("a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double Remove = %v, want ErrNotFound", err)
	}
}

func TestAddDuplicate(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, "")
	if err := s.Add(testJob("a", "alpha")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(testJob("a", "other")); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate Add = %v, want ErrDuplicate", err)
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.db")

	s, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	want := testJob("a", "alpha")
	if err := s.Add(want); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer s2.Close()
	got, ok := s2.ByID("a")
	if !ok || !reflect.DeepEqual(got, want) {
		t.Fatalf("sqlite round-trip = %+v, want %+v", got, want)
	}
}

func TestMergePayload(t *testing.T) {
	t.Parallel()
	old := Payload{Kind: PayloadAgentTurn, Message: "hello", Channel: "ops", Meta: map[string]any{"k": "v"}}

	// Same kind: shallow merge, non-zero fields win.
	merged := MergePayload(old, Payload{Kind: PayloadAgentTurn, Message: "patched"})
	if merged.Message != "patched" || merged.Channel != "ops" || merged.Meta == nil {
		t.Fatalf("same-kind merge = %+v", merged)
	}

	// Different kind: wholesale replacement, nothing survives.
	replaced := MergePayload(old, Payload{Kind: PayloadSystemEvent, Text: "boom"})
	if replaced.Kind != PayloadSystemEvent || replaced.Message != "" || replaced.Meta != nil {
		t.Fatalf("cross-kind merge = %+v", replaced)
	}
}
