package db

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/banshee-data/presence-piano/internal/monitoring"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrationsFS returns the schema migrations built into the binary.
func MigrationsFS() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migrator moves one database between schema versions. It is never closed:
// closing the migrate instance would close the shared *sql.DB as well.
type Migrator struct {
	db   *DB
	fsys fs.FS
	m    *migrate.Migrate
}

// Migrator prepares migrations from fsys against db.
func (db *DB) Migrator(fsys fs.FS) (*Migrator, error) {
	src, err := iofs.New(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLog{}
	return &Migrator{db: db, fsys: fsys, m: m}, nil
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// Up applies every pending migration.
func (mg *Migrator) Up() error {
	if err := ignoreNoChange(mg.m.Up()); err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Down rolls back the newest applied migration.
func (mg *Migrator) Down() error {
	if err := ignoreNoChange(mg.m.Steps(-1)); err != nil {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// To migrates up or down to version.
func (mg *Migrator) To(version uint) error {
	if err := ignoreNoChange(mg.m.Migrate(version)); err != nil {
		return fmt.Errorf("migration to version %d failed: %w", version, err)
	}
	return nil
}

// Force records version as applied without running anything. It is the
// way out of a dirty state after a failed migration.
func (mg *Migrator) Force(version int) error {
	if err := mg.m.Force(version); err != nil {
		return fmt.Errorf("force migration to version %d failed: %w", version, err)
	}
	return nil
}

// Version reports the applied version, 0 when nothing has run yet.
func (mg *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// MigrationStatus summarises where the database stands.
type MigrationStatus struct {
	CurrentVersion uint
	LatestVersion  uint
	Dirty          bool
}

// Pending returns the number of migrations not yet applied.
func (s MigrationStatus) Pending() uint {
	if s.CurrentVersion >= s.LatestVersion {
		return 0
	}
	return s.LatestVersion - s.CurrentVersion
}

// Status reports the applied and latest versions. A database that has never
// been migrated reports version 0 with every migration pending.
func (mg *Migrator) Status() (MigrationStatus, error) {
	var st MigrationStatus
	var err error
	if st.CurrentVersion, st.Dirty, err = mg.Version(); err != nil {
		return st, fmt.Errorf("failed to read migration version: %w", err)
	}
	if st.LatestVersion, err = LatestVersion(mg.fsys); err != nil {
		return st, err
	}
	return st, nil
}

// LatestVersion returns the highest NNNNNN prefix among the up migrations.
func LatestVersion(fsys fs.FS) (uint, error) {
	names, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return 0, fmt.Errorf("failed to list migrations: %w", err)
	}
	var latest uint
	for _, name := range names {
		prefix, _, ok := strings.Cut(path.Base(name), "_")
		if !ok {
			continue
		}
		if v, err := strconv.ParseUint(prefix, 10, 32); err == nil && uint(v) > latest {
			latest = uint(v)
		}
	}
	if latest == 0 {
		return 0, errors.New("no numbered migration files found")
	}
	return latest, nil
}

type migrateLog struct{}

func (migrateLog) Printf(format string, v ...any) { monitoring.Logf("[migrate] "+format, v...) }
func (migrateLog) Verbose() bool                  { return false }
