package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/presence-piano/internal/config"
	"github.com/banshee-data/presence-piano/internal/db"
	"github.com/banshee-data/presence-piano/internal/fsutil"
	"github.com/banshee-data/presence-piano/internal/monitor"
	"github.com/banshee-data/presence-piano/internal/notes"
	"github.com/banshee-data/presence-piano/internal/samples"
	"github.com/banshee-data/presence-piano/internal/scheduler"
	"github.com/banshee-data/presence-piano/internal/security"
	"github.com/banshee-data/presence-piano/internal/sensor"
	"github.com/banshee-data/presence-piano/internal/timeutil"
)

// settingsCommand implements `piano settings show|set|reset`.
func settingsCommand(w io.Writer, dbPath string, args []string) error {
	if len(args) == 0 {
		args = []string{"show"}
	}

	database, err := db.NewDB(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	switch args[0] {
	case "show":
		cfg, err := database.LoadSettings()
		if err != nil {
			return err
		}
		printSettings(w, cfg)
		return nil

	case "set":
		if len(args) < 2 {
			return fmt.Errorf("usage: piano settings set key=value ...")
		}
		cfg, err := database.LoadSettings()
		if err != nil {
			return err
		}
		for _, kv := range args[1:] {
			key, value, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("expected key=value, got %q", kv)
			}
			if err := cfg.Set(strings.TrimSpace(key), value); err != nil {
				return err
			}
		}
		if err := database.SaveSettings(cfg); err != nil {
			return err
		}
		printSettings(w, cfg)
		return nil

	case "reset":
		if err := database.ResetSettings(); err != nil {
			return err
		}
		fmt.Fprintln(w, "settings reset to defaults")
		return nil

	default:
		return fmt.Errorf("unknown settings action %q (want show, set or reset)", args[0])
	}
}

func printSettings(w io.Writer, cfg *config.PianoConfig) {
	stored := cfg.Values()
	effective := config.DefaultPianoConfig()
	effective.Merge(cfg)
	values := effective.Values()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tVALUE\tSOURCE")
	for _, key := range config.Keys() {
		source := "default"
		if _, ok := stored[key]; ok {
			source = "stored"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", key, values[key], source)
	}
	tw.Flush()
}

// samplesCommand prints the state of every note's sample.
func samplesCommand(w io.Writer, dir string) error {
	return printSampleStatus(w, samples.NewStore(fsutil.OSFileSystem{}, dir))
}

func printSampleStatus(w io.Writer, store *samples.Store) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NOTE\tSTATUS\tFORMAT\tDURATION\tPATH")
	missing := 0
	for _, st := range store.Status() {
		status, format, duration := "OK", "", ""
		switch {
		case !st.Present:
			status = "Missing"
			missing++
		case st.Err != nil:
			status = "Invalid: " + st.Err.Error()
			missing++
		default:
			format = fmt.Sprintf("%dHz/%dch/%dbit", st.SampleRate, st.Channels, st.BitDepth)
			duration = st.Duration.Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", st.Note, status, format, duration, st.Path)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if missing > 0 {
		fmt.Fprintf(w, "\n%d of %d notes will be silent.\n", missing, notes.Count)
	}
	return nil
}

// episodesCommand lists recent presence episodes.
func episodesCommand(w io.Writer, dbPath string, args []string) error {
	fs := flag.NewFlagSet("episodes", flag.ContinueOnError)
	fs.SetOutput(w)
	n := fs.Int("n", 20, "Number of episodes to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	database, err := db.NewDB(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	episodes, err := database.RecentEpisodes(*n)
	if err != nil {
		return err
	}
	printEpisodes(w, episodes)
	return nil
}

func printEpisodes(w io.Writer, episodes []db.Episode) {
	if len(episodes) == 0 {
		fmt.Fprintln(w, "no episodes recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDURATION\tENTER\tEXIT\tNOTES")
	for _, ep := range episodes {
		duration, exit := "active", "-"
		if ep.EndedAt != nil {
			duration = ep.EndedAt.Sub(ep.StartedAt).Round(100 * time.Millisecond).String()
		}
		if ep.ExitMm != nil {
			exit = fmt.Sprintf("%dmm", *ep.ExitMm)
		}
		names := make([]string, 0, len(ep.Notes))
		for _, n := range ep.Notes {
			names = append(names, n.Note.String())
		}
		fmt.Fprintf(tw, "%s\t%s\t%dmm\t%s\t%s\n",
			ep.StartedAt.Local().Format("2006-01-02 15:04:05"), duration, ep.EnterMm, exit, strings.Join(names, " "))
	}
	tw.Flush()
}

// calibrateCommand samples the sensor against a still scene and suggests a
// hysteresis band.
func calibrateCommand(ctx context.Context, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("calibrate", flag.ContinueOnError)
	fs.SetOutput(w)
	n := fs.Int("n", 200, "Number of readings to take")
	plotPath := fs.String("plot", "", "Write a PNG trace of the readings to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *n <= 0 {
		return fmt.Errorf("-n must be positive")
	}
	if *plotPath != "" {
		if err := security.ValidateOutputPath(*plotPath); err != nil {
			return err
		}
	}

	bridge, err := openSensorBridge()
	if err != nil {
		return err
	}
	defer bridge.Close()
	if err := bridge.Initialize(sensor.InitCommands...); err != nil {
		return fmt.Errorf("failed to initialise sensor: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := bridge.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("sensor bridge monitor stopped: %v", err)
		}
	}()

	source := sensor.NewSerialSource(nil, sensor.DefaultReadTimeout)
	go func() { _ = source.Run(ctx, bridge) }()

	fmt.Fprintf(w, "Taking %d readings; keep the sensor's field of view still...\n", *n)
	readings, err := collectReadings(ctx, source, timeutil.RealClock{}, *n)
	if err != nil {
		return err
	}
	return reportCalibration(w, readings, *plotPath)
}

// collectReadings polls src at the sensor cadence and runs the readings
// through the distance filter.
func collectReadings(ctx context.Context, src sensor.Source, clock timeutil.Clock, n int) ([]scheduler.Reading, error) {
	ticker := clock.NewTicker(scheduler.SensorInterval)
	defer ticker.Stop()

	filter := sensor.NewFilter()
	out := make([]scheduler.Reading, 0, n)
	for len(out) < n {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case now := <-ticker.C():
			raw := src.Poll()
			out = append(out, scheduler.Reading{At: now, Raw: raw, DistanceMm: filter.Update(raw)})
		}
	}
	return out, nil
}

func reportCalibration(w io.Writer, readings []scheduler.Reading, plotPath string) error {
	raw := make([]sensor.Sample, len(readings))
	for i, r := range readings {
		raw[i] = r.Raw
	}
	stats := sensor.Summarise(raw)

	fmt.Fprintf(w, "readings:   %d (%d errors)\n", stats.Count, stats.Errors)
	if stats.Count > stats.Errors {
		fmt.Fprintf(w, "range:      %.0f - %.0f mm\n", stats.MinMm, stats.MaxMm)
		fmt.Fprintf(w, "mean:       %.1f mm (stddev %.1f)\n", stats.MeanMm, stats.StdDevMm)
		fmt.Fprintf(w, "median:     %.0f mm\n", stats.MedianMm)
		fmt.Fprintf(w, "p05-p95:    %.0f - %.0f mm (spread %.0f)\n", stats.P05Mm, stats.P95Mm, stats.SpreadMm)
	}
	fmt.Fprintf(w, "suggested:  %s=%d\n", config.KeyHysteresisMm, stats.Suggested)

	if plotPath == "" {
		return nil
	}
	if err := monitor.WriteDistancePlot(plotPath, readings); err != nil {
		return err
	}
	fmt.Fprintf(w, "plot written to %s\n", plotPath)
	return nil
}
