package db

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/banshee-data/presence-piano/internal/monitoring"
)

const migrateUsage = `Usage: piano [-db path] migrate <action>

Actions:
  up           apply all pending migrations
  down         roll back the newest migration
  status       show the applied and latest versions
  version <N>  migrate up or down to version N
  force <N>    mark version N as applied without running it (recovery only)
  help         show this message
`

// RunMigrateCommand runs `piano migrate`. The database is opened without
// migrating so a dirty or half-migrated file can still be inspected.
func RunMigrateCommand(w io.Writer, args []string, dbPath string) error {
	if len(args) == 0 {
		fmt.Fprint(w, migrateUsage)
		return fmt.Errorf("missing migrate action")
	}
	action := args[0]
	switch action {
	case "help":
		fmt.Fprint(w, migrateUsage)
		return nil
	case "up", "down", "status", "version", "force":
	default:
		fmt.Fprintf(w, "Unknown migrate action: %s\n\n%s", action, migrateUsage)
		return fmt.Errorf("unknown migrate action %q", action)
	}

	var target int
	if action == "version" || action == "force" {
		if len(args) < 2 {
			return fmt.Errorf("usage: piano migrate %s <N>", action)
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 {
			return fmt.Errorf("invalid version number %q", args[1])
		}
		target = v
	}

	database, err := OpenDB(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()
	mg, err := database.Migrator(MigrationsFS())
	if err != nil {
		return err
	}

	switch action {
	case "up":
		err = mg.Up()
	case "down":
		err = mg.Down()
	case "version":
		err = mg.To(uint(target))
	case "force":
		err = mg.Force(target)
	}
	if err != nil {
		return err
	}
	if action != "status" {
		monitoring.Logf("migrate %s: done", action)
	}
	return printMigrateStatus(w, mg)
}

func printMigrateStatus(w io.Writer, mg *Migrator) error {
	st, err := mg.Status()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Current version:\t%d\n", st.CurrentVersion)
	fmt.Fprintf(tw, "Latest available:\t%d\n", st.LatestVersion)
	fmt.Fprintf(tw, "Dirty:\t%v\n", st.Dirty)
	if err := tw.Flush(); err != nil {
		return err
	}

	switch {
	case st.Dirty:
		fmt.Fprintln(w, "\nA migration failed part way. Inspect the database, then run 'piano migrate force <N>'.")
	case st.Pending() > 0:
		fmt.Fprintf(w, "\n%d migration(s) pending. Run 'piano migrate up' to apply.\n", st.Pending())
	default:
		fmt.Fprintln(w, "Database is up to date.")
	}
	return nil
}
