package db

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/presence-piano/internal/config"
	"github.com/banshee-data/presence-piano/internal/notes"
)

func TestLoadSettings_EmptyResolvesToDefaults(t *testing.T) {
	db := newTestDB(t)

	cfg, err := db.LoadSettings()
	require.NoError(t, err)
	assert.Empty(t, cfg.Values())
	if diff := cmp.Diff(config.DefaultSettings(), cfg.Resolve()); diff != "" {
		t.Errorf("resolved settings mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveSettings_RoundTrip(t *testing.T) {
	db := newTestDB(t)

	cfg := &config.PianoConfig{}
	require.NoError(t, cfg.Set(config.KeyTriggerMm, "650"))
	require.NoError(t, cfg.Set(config.KeyVolume, "0.5"))
	require.NoError(t, cfg.Set(config.KeyMultiTone, "true"))
	require.NoError(t, cfg.Set(config.KeyActiveNote, "g"))
	require.NoError(t, db.SaveSettings(cfg))

	loaded, err := db.LoadSettings()
	require.NoError(t, err)
	if diff := cmp.Diff(cfg.Values(), loaded.Values()); diff != "" {
		t.Errorf("stored values mismatch (-want +got):\n%s", diff)
	}

	s := loaded.Resolve()
	assert.Equal(t, 650, s.TriggerMm)
	assert.Equal(t, 0.5, s.Volume)
	assert.True(t, s.MultiTone)
	assert.Equal(t, notes.G, s.ActiveNote)
	assert.Equal(t, config.DefaultHysteresisMm, s.HysteresisMm)
}

func TestSaveSettings_Overwrites(t *testing.T) {
	db := newTestDB(t)

	first := &config.PianoConfig{}
	require.NoError(t, first.Set(config.KeyTriggerMm, "650"))
	require.NoError(t, db.SaveSettings(first))

	second := &config.PianoConfig{}
	require.NoError(t, second.Set(config.KeyTriggerMm, "900"))
	require.NoError(t, db.SaveSettings(second))

	loaded, err := db.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, 900, loaded.GetTriggerMm())
}

func TestSaveSettings_RejectsInvalid(t *testing.T) {
	db := newTestDB(t)
	before, err := db.SettingsRevision()
	require.NoError(t, err)

	hyst := -5
	err = db.SaveSettings(&config.PianoConfig{HysteresisMm: &hyst})
	assert.Error(t, err)

	after, err := db.SettingsRevision()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSettingsRevision_Bumps(t *testing.T) {
	db := newTestDB(t)

	rev, err := db.SettingsRevision()
	require.NoError(t, err)
	assert.Equal(t, int64(0), rev)

	require.NoError(t, db.SaveSettings(config.DefaultPianoConfig()))
	rev, err = db.SettingsRevision()
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev)

	require.NoError(t, db.ResetSettings())
	rev, err = db.SettingsRevision()
	require.NoError(t, err)
	assert.Equal(t, int64(2), rev)

	cfg, err := db.LoadSettings()
	require.NoError(t, err)
	assert.Empty(t, cfg.Values())
}

func TestLoadSettings_IgnoresUnknownKeys(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Exec(`INSERT INTO settings (key, value, updated_at) VALUES ('wifi_ssid', 'piano', 0), ('loop', 'true', 0)`)
	require.NoError(t, err)

	cfg, err := db.LoadSettings()
	require.NoError(t, err)
	assert.True(t, cfg.GetLoop())
}

func TestLoadSettings_BadValue(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Exec(`INSERT INTO settings (key, value, updated_at) VALUES ('trigger_mm', 'far', 0)`)
	require.NoError(t, err)

	_, err = db.LoadSettings()
	assert.Error(t, err)
}
