package core

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"cronbot/internal/jobstore"
	"cronbot/internal/scheduler"
	"cronbot/pkg/logx"
)

// selfWriteWindow is how long after our own Persist a change event on the job
// file is attributed to us rather than an external editor.
const selfWriteWindow = 2 * time.Second

// watchStore tails the job file for external edits and reloads the scheduler
// when one lands. Only the file driver is watchable; for other drivers this
// returns immediately.
//
// The scheduler's own persists also touch the file, so events arriving shortly
// after a Persist are ignored. Reload is idempotent, so a suppression miss
// costs a redundant reconcile, not correctness.
func watchStore(ctx context.Context, store *jobstore.Store, sched *scheduler.Service, log logx.Logger) error {
	path := store.FilePath()
	if path == "" {
		log.Debug("job store has no watchable file; external edit detection off")
		return nil
	}
	dir := filepath.Dir(path)
	file := filepath.Base(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	log.Debug("job store watcher started", logx.String("path", path))

	// debounce so editors that write in several syscalls trigger one reload
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(500*time.Millisecond, func() {
			if ctx.Err() != nil {
				return
			}
			if time.Since(store.LastSavedAt()) < selfWriteWindow {
				log.Debug("job file change was our own write; skipping reload")
				return
			}
			log.Info("job file changed externally; reloading", logx.String("path", path))
			sched.Reload()
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				log.Warn("job store watch error", logx.Err(err))
			}
		}
	}
}
