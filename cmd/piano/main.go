package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/presence-piano/internal/db"
	"github.com/banshee-data/presence-piano/internal/monitoring"
	"github.com/banshee-data/presence-piano/internal/playback"
	"github.com/banshee-data/presence-piano/internal/serialmux"
	"github.com/banshee-data/presence-piano/internal/version"
)

var (
	dbPath        = flag.String("db", db.DefaultPath, "Path to the settings and history database")
	samplesDir    = flag.String("samples", "samples", "Directory holding the note samples (C.wav .. H.wav)")
	port          = flag.String("port", "/dev/ttyUSB0", "Serial port of the sensor bridge (ignored in dev mode)")
	baudRate      = flag.Int("baud", serialmux.DefaultBaudRate, "Baud rate of the sensor bridge")
	framing       = flag.String("framing", serialmux.DefaultFraming, "Serial framing of the sensor bridge (data bits, parity, stop bits)")
	devMode       = flag.Bool("dev", false, "Replay fixture distances instead of opening the serial port")
	fixturesPath  = flag.String("fixtures", "fixtures.txt", "Fixture lines replayed in dev mode")
	disableSensor = flag.Bool("disable-sensor", false, "Run without a sensor (always far)")
	audioBackend  = flag.String("audio", "oto", "Audio output: oto or none")
	audioRate     = flag.Int("audio-rate", playback.DefaultFormat.SampleRate, "Output sample rate in Hz")
	audioBuffer   = flag.Duration("audio-buffer", playback.DefaultQueue, "Decoded audio queued ahead of the device")
	debugListen   = flag.String("debug-listen", "localhost:8080", "Listen address for the debug server (empty disables it)")
	midiOut       = flag.String("midi-out", "", "Mirror played notes to the MIDI output whose name contains this")
	settingsJSON  = flag.String("settings-json", "", "Use settings from this JSON file instead of the database")
	debug         = flag.Bool("debug", false, "Verbose logging")
	versionFlag   = flag.Bool("version", false, "Print version information and exit")
)

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [flags] [command]\n\n", os.Args[0])
	fmt.Fprintln(out, "Without a command the appliance runs until interrupted.")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  settings show|set k=v...|reset   Inspect or change stored settings")
	fmt.Fprintln(out, "  samples                          Check the sample directory")
	fmt.Fprintln(out, "  episodes [-n N]                  List recent presence episodes")
	fmt.Fprintln(out, "  calibrate [-n N] [-plot file]    Measure sensor noise and suggest a hysteresis")
	fmt.Fprintln(out, "  migrate up|down|status|...       Manage the database schema")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Flags:")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *versionFlag {
		fmt.Println("piano", version.String())
		return
	}
	monitoring.SetDebug(*debug)

	if flag.NArg() > 0 {
		if err := runCommand(flag.Arg(0), flag.Args()[1:]); err != nil {
			log.Fatalf("%s: %v", flag.Arg(0), err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runAppliance(ctx); err != nil {
		log.Fatalf("piano: %v", err)
	}
	log.Printf("shut down cleanly")
}

func runCommand(name string, args []string) error {
	switch name {
	case "settings":
		return settingsCommand(os.Stdout, *dbPath, args)
	case "samples":
		return samplesCommand(os.Stdout, *samplesDir)
	case "episodes":
		return episodesCommand(os.Stdout, *dbPath, args)
	case "calibrate":
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return calibrateCommand(ctx, os.Stdout, args)
	case "migrate":
		return db.RunMigrateCommand(os.Stdout, args, *dbPath)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", name)
	}
}

// openSensorBridge returns the serial line source selected by the flags.
func openSensorBridge() (serialmux.SerialMuxInterface, error) {
	switch {
	case *disableSensor:
		return serialmux.NewDisabledSerialMux(), nil
	case *devMode:
		lines, err := readFixtures(*fixturesPath)
		if err != nil {
			return nil, err
		}
		return serialmux.NewMockSerialMux(lines, serialmux.DefaultReplayInterval), nil
	default:
		m, err := serialmux.NewRealSerialMux(*port, serialmux.PortOptions{BaudRate: *baudRate, Framing: *framing})
		if err != nil {
			return nil, fmt.Errorf("failed to open sensor bridge: %w", err)
		}
		return m, nil
	}
}

// readFixtures loads the lines replayed by the dev-mode bridge. Blank lines
// and lines starting with '#' are skipped.
func readFixtures(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("no fixture lines in %s", path)
	}
	return lines, nil
}

// drainInterval paces the silent sink used by -audio=none.
const drainInterval = 5 * time.Millisecond
