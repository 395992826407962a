package archival

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/dealerops/taskboard/pkg/panicerr"
)

// Settings are the sweep triggers for one dealership. Zero fields fall back
// to the global defaults.
type Settings struct {
	CompletedSweepAt    string `yaml:"completed_sweep_at"`
	OverdueSweepDay     string `yaml:"overdue_sweep_day"`
	OverdueSweepAt      string `yaml:"overdue_sweep_at"`
	PostShiftDelayHours int    `yaml:"post_shift_delay_hours"`
}

type settingsFile struct {
	Dealerships map[string]Settings `yaml:"dealerships"`
}

// SettingsStore serves per-dealership archival settings from a yaml file and
// hot-reloads it on change. Dealerships without an entry, and the file being
// absent entirely, resolve to the fallback.
type SettingsStore struct {
	path     string
	fallback Settings

	mu           sync.RWMutex
	byDealership map[string]Settings
}

func NewSettingsStore(path string, fallback Settings) *SettingsStore {
	s := &SettingsStore{
		path:         path,
		fallback:     fallback,
		byDealership: map[string]Settings{},
	}
	if err := s.load(); err != nil {
		slog.Warn("failed to load archival settings, using fallback", slog.String("path", path), slog.Any("error", err))
	}
	return s
}

// For resolves the effective settings for a dealership. The empty id is the
// global scope and always resolves to the fallback.
func (s *SettingsStore) For(dealershipID string) Settings {
	s.mu.RLock()
	cfg, ok := s.byDealership[dealershipID]
	s.mu.RUnlock()
	if !ok {
		return s.fallback
	}
	if cfg.CompletedSweepAt == "" {
		cfg.CompletedSweepAt = s.fallback.CompletedSweepAt
	}
	if cfg.OverdueSweepDay == "" {
		cfg.OverdueSweepDay = s.fallback.OverdueSweepDay
	}
	if cfg.OverdueSweepAt == "" {
		cfg.OverdueSweepAt = s.fallback.OverdueSweepAt
	}
	if cfg.PostShiftDelayHours == 0 {
		cfg.PostShiftDelayHours = s.fallback.PostShiftDelayHours
	}
	return cfg
}

func (s *SettingsStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.byDealership = map[string]Settings{}
			s.mu.Unlock()
			return nil
		}
		return err
	}
	var file settingsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.Dealerships == nil {
		file.Dealerships = map[string]Settings{}
	}
	s.mu.Lock()
	s.byDealership = file.Dealerships
	s.mu.Unlock()
	return nil
}

// Watch reloads the settings file whenever it changes. The parent directory
// is watched rather than the file itself so editors that replace the file
// atomically still trigger a reload. Blocks until ctx is done.
func (s *SettingsStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	reload := panicerr.Safe(s.load)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := reload(); err != nil {
				slog.WarnContext(ctx, "failed to reload archival settings", slog.Any("error", err))
				continue
			}
			slog.InfoContext(ctx, "archival settings reloaded", slog.String("path", s.path))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "settings watcher error", slog.Any("error", err))
		}
	}
}
