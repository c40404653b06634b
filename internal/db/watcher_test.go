package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/presence-piano/internal/config"
	"github.com/banshee-data/presence-piano/internal/timeutil"
)

var testTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func TestSettingsWatcher_CheckPublishesOnSave(t *testing.T) {
	db := newTestDB(t)
	w, err := NewSettingsWatcher(db, timeutil.NewMockClock(testTime), time.Second)
	require.NoError(t, err)

	changed, err := w.Check()
	require.NoError(t, err)
	assert.False(t, changed)

	cfg := &config.PianoConfig{}
	require.NoError(t, cfg.Set(config.KeyVolume, "0.25"))
	require.NoError(t, db.SaveSettings(cfg))

	changed, err = w.Check()
	require.NoError(t, err)
	assert.True(t, changed)

	select {
	case s := <-w.Updates():
		assert.Equal(t, 0.25, s.Volume)
		assert.Equal(t, config.DefaultTriggerMm, s.TriggerMm)
	default:
		t.Fatal("expected an update")
	}

	changed, err = w.Check()
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSettingsWatcher_KeepsNewestOnly(t *testing.T) {
	db := newTestDB(t)
	w, err := NewSettingsWatcher(db, timeutil.NewMockClock(testTime), time.Second)
	require.NoError(t, err)

	for _, v := range []string{"0.1", "0.2", "0.3"} {
		cfg := &config.PianoConfig{}
		require.NoError(t, cfg.Set(config.KeyVolume, v))
		require.NoError(t, db.SaveSettings(cfg))
		_, err := w.Check()
		require.NoError(t, err)
	}

	s := <-w.Updates()
	assert.Equal(t, 0.3, s.Volume)
	select {
	case extra := <-w.Updates():
		t.Fatalf("unexpected extra update %+v", extra)
	default:
	}
}

func TestSettingsWatcher_InvalidStoredValueRetried(t *testing.T) {
	db := newTestDB(t)
	w, err := NewSettingsWatcher(db, timeutil.NewMockClock(testTime), time.Second)
	require.NoError(t, err)

	// Bypass SaveSettings validation, as a manual SQL edit would.
	_, err = db.Exec(`INSERT INTO settings (key, value, updated_at) VALUES ('hysteresis_mm', '-1', 0)`)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE settings_revision SET revision = revision + 1 WHERE id = 1`)
	require.NoError(t, err)

	_, err = w.Check()
	assert.Error(t, err)

	_, err = db.Exec(`UPDATE settings SET value = '40' WHERE key = 'hysteresis_mm'`)
	require.NoError(t, err)
	changed, err := w.Check()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 40, (<-w.Updates()).HysteresisMm)
}

func TestSettingsWatcher_Run(t *testing.T) {
	db := newTestDB(t)
	clock := timeutil.NewMockClock(testTime)
	w, err := NewSettingsWatcher(db, clock, time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cfg := &config.PianoConfig{}
	require.NoError(t, cfg.Set(config.KeyLoop, "true"))
	require.NoError(t, db.SaveSettings(cfg))

	var got config.Settings
	require.Eventually(t, func() bool {
		clock.Advance(time.Second)
		select {
		case got = <-w.Updates():
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, got.Loop)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
