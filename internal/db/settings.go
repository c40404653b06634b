package db

import (
	"errors"
	"fmt"

	"github.com/banshee-data/presence-piano/internal/config"
	"github.com/banshee-data/presence-piano/internal/monitoring"
)

// LoadSettings reads the stored settings. Keys that were never saved stay
// nil and resolve to their defaults.
func (db *DB) LoadSettings() (*config.PianoConfig, error) {
	rows, err := db.Query(`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	cfg := &config.PianoConfig{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		if err := cfg.Set(key, value); err != nil {
			if errors.Is(err, config.ErrUnknownSetting) {
				monitoring.Logf("ignoring stored setting %q", key)
				continue
			}
			return nil, fmt.Errorf("stored setting %s: %w", key, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveSettings validates cfg and writes every set field, bumping the
// settings revision so running watchers reload.
func (db *DB) SaveSettings(cfg *config.PianoConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for key, value := range cfg.Values() {
		_, err := tx.Exec(`
			INSERT INTO settings (key, value, updated_at)
			VALUES (?, ?, CAST(strftime('%s', 'now') AS INTEGER))
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value)
		if err != nil {
			return fmt.Errorf("failed to save setting %s: %w", key, err)
		}
	}
	if _, err := tx.Exec(`UPDATE settings_revision SET revision = revision + 1 WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to bump settings revision: %w", err)
	}
	return tx.Commit()
}

// ResetSettings deletes every stored setting so all keys fall back to
// their defaults.
func (db *DB) ResetSettings() error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM settings`); err != nil {
		return fmt.Errorf("failed to delete settings: %w", err)
	}
	if _, err := tx.Exec(`UPDATE settings_revision SET revision = revision + 1 WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to bump settings revision: %w", err)
	}
	return tx.Commit()
}

// SettingsRevision returns a counter that changes on every save.
func (db *DB) SettingsRevision() (int64, error) {
	var rev int64
	if err := db.QueryRow(`SELECT revision FROM settings_revision WHERE id = 1`).Scan(&rev); err != nil {
		return 0, fmt.Errorf("failed to read settings revision: %w", err)
	}
	return rev, nil
}
