package db

import (
	"context"
	"time"

	"github.com/banshee-data/presence-piano/internal/config"
	"github.com/banshee-data/presence-piano/internal/monitoring"
	"github.com/banshee-data/presence-piano/internal/timeutil"
)

// DefaultWatchInterval is how often the watcher checks for saved settings.
const DefaultWatchInterval = time.Second

// SettingsWatcher publishes the resolved settings whenever another process
// (the settings subcommand, or a SQL edit) saves them. Only the newest value
// is kept if the consumer falls behind.
type SettingsWatcher struct {
	db       *DB
	clock    timeutil.Clock
	interval time.Duration
	updates  chan config.Settings
	revision int64
}

// NewSettingsWatcher creates a watcher starting from the current revision.
func NewSettingsWatcher(db *DB, clock timeutil.Clock, interval time.Duration) (*SettingsWatcher, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	rev, err := db.SettingsRevision()
	if err != nil {
		return nil, err
	}
	return &SettingsWatcher{
		db:       db,
		clock:    clock,
		interval: interval,
		updates:  make(chan config.Settings, 1),
		revision: rev,
	}, nil
}

// Updates delivers newly saved settings.
func (w *SettingsWatcher) Updates() <-chan config.Settings { return w.updates }

// Run polls until ctx is done.
func (w *SettingsWatcher) Run(ctx context.Context) error {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if _, err := w.Check(); err != nil {
				monitoring.Logf("settings watcher: %v", err)
			}
		}
	}
}

// Check publishes the settings if the revision moved since the last check.
// It reports whether an update was published.
func (w *SettingsWatcher) Check() (bool, error) {
	rev, err := w.db.SettingsRevision()
	if err != nil {
		return false, err
	}
	if rev == w.revision {
		return false, nil
	}

	cfg, err := w.db.LoadSettings()
	if err != nil {
		return false, err
	}
	if err := cfg.Validate(); err != nil {
		// Leave the revision alone so a corrected save is picked up.
		return false, err
	}
	w.revision = rev

	s := cfg.Resolve()
	// Replace a pending value rather than block the watcher.
	select {
	case <-w.updates:
	default:
	}
	w.updates <- s
	monitoring.Logf("settings: revision %d loaded", rev)
	return true, nil
}
