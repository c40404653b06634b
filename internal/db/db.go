// Package db stores the appliance's persisted settings and its presence
// episode history in sqlite.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/presence-piano/internal/httputil"
	"github.com/banshee-data/presence-piano/internal/monitoring"
	"github.com/banshee-data/presence-piano/internal/security"
)

// DefaultPath is where the database lives when -db is not given.
const DefaultPath = "piano.db"

// pragmas are applied to every pooled connection.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
	"foreign_keys(ON)",
}

type DB struct {
	*sql.DB
	path string
}

// NewDB opens the database at path and applies any pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	mg, err := db.Migrator(MigrationsFS())
	if err == nil {
		err = mg.Up()
	}
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenDB opens the database without touching its schema. The migrate
// subcommand uses it so it can inspect and repair any state.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", path, err)
	}
	return &DB{DB: db, path: path}, nil
}

func dsn(path string) string {
	params := make([]string, 0, len(pragmas))
	for _, p := range pragmas {
		params = append(params, "_pragma="+p)
	}
	return "file:" + path + "?" + strings.Join(params, "&")
}

// Path returns the file the database was opened from.
func (db *DB) Path() string { return db.path }

// AttachAdminRoutes mounts tailsql over the live database and a backup
// download on the tsweb debug page.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	tsql, err := tailsql.NewServer(tailsql.Options{RoutePrefix: "/debug/tailsql/"})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{Label: "Piano settings and episodes"})

	debug := tsweb.Debugger(mux)
	debug.Handle("tailsql/", "SQL over settings and episode history", tsql.NewMux())
	debug.Handle("backup", "Download a gzipped snapshot of the database", http.HandlerFunc(db.serveBackup))
	return nil
}

// serveBackup snapshots the database with VACUUM INTO, which needs a path
// that does not exist yet, and streams the snapshot gzipped.
func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	dir, err := os.MkdirTemp("", "piano-backup-")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to create backup dir: %v", err))
		return
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			monitoring.Logf("failed to remove backup dir: %v", err)
		}
	}()

	name := security.SanitizeFilename(fmt.Sprintf("piano-backup-%d.db", time.Now().Unix()))
	snapshot := filepath.Join(dir, name)
	if _, err := db.Exec("VACUUM INTO ?", snapshot); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to create backup: %v", err))
		return
	}
	f, err := os.Open(snapshot)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to open backup: %v", err))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")
	zw := gzip.NewWriter(w)
	if _, err := io.Copy(zw, f); err != nil {
		monitoring.Logf("failed to stream backup: %v", err)
	}
	if err := zw.Close(); err != nil {
		monitoring.Logf("failed to finish backup: %v", err)
	}
}
