package conf

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
)

// reloadDebounce absorbs the burst of events editors emit for one save
const reloadDebounce = 200 * time.Millisecond

// PolicyStore hands out immutable policy snapshots.
// Callers take one snapshot per event and never mutate it.
type PolicyStore struct {
	path    string
	current atomic.Pointer[domain.PolicyConfig]
}

// NewPolicyStore creates a store seeded with cfg
func NewPolicyStore(path string, cfg *domain.PolicyConfig) *PolicyStore {
	s := &PolicyStore{path: path}
	if cfg == nil {
		cfg = DefaultPolicy()
	}
	s.current.Store(cfg)
	return s
}

// Snapshot returns the current policy
func (s *PolicyStore) Snapshot() *domain.PolicyConfig {
	return s.current.Load()
}

// Reload re-reads the file. On error the previous snapshot stays active.
func (s *PolicyStore) Reload() error {
	cfg, err := LoadPolicy(s.path)
	if err != nil {
		return err
	}
	s.current.Store(cfg)
	return nil
}

// Path returns the watched file
func (s *PolicyStore) Path() string {
	return s.path
}

// Watcher reloads a PolicyStore when its file changes
type Watcher struct {
	store  *PolicyStore
	logger *slog.Logger
}

// NewWatcher creates a policy file watcher
func NewWatcher(store *PolicyStore, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{store: store, logger: logger.With("component", "policy_watcher")}
}

// Run blocks until ctx is done. The parent directory is watched so that
// atomic rename-on-save and late file creation are both seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.store.Path())
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(w.store.Path())
	w.logger.Info("watching policy file", "path", target)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := w.store.Reload(); err != nil {
				w.logger.Warn("policy reload failed, keeping previous policy", "error", err)
				continue
			}
			snap := w.store.Snapshot()
			w.logger.Info("policy reloaded",
				"dm_policy", snap.DMPolicy,
				"group_policy", snap.GroupPolicy,
				"groups", len(snap.Groups))
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("policy watcher error", "error", err)
		}
	}
}
