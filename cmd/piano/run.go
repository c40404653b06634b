package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/presence-piano/internal/config"
	"github.com/banshee-data/presence-piano/internal/db"
	"github.com/banshee-data/presence-piano/internal/fsutil"
	"github.com/banshee-data/presence-piano/internal/midiout"
	"github.com/banshee-data/presence-piano/internal/monitor"
	"github.com/banshee-data/presence-piano/internal/playback"
	"github.com/banshee-data/presence-piano/internal/samples"
	"github.com/banshee-data/presence-piano/internal/scheduler"
	"github.com/banshee-data/presence-piano/internal/sensor"
	"github.com/banshee-data/presence-piano/internal/timeutil"
	"github.com/banshee-data/presence-piano/internal/trigger"
	"github.com/banshee-data/presence-piano/internal/version"
)

func openSink(ctx context.Context, wg *sync.WaitGroup) (playback.Sink, error) {
	format := playback.Format{SampleRate: *audioRate, Channels: playback.DefaultFormat.Channels}
	switch *audioBackend {
	case "oto":
		return playback.NewOtoSink(playback.OtoOptions{Format: format, Queue: *audioBuffer})
	case "none":
		sink := playback.NewMemorySink(format, format.BytesFor(*audioBuffer))
		wg.Add(1)
		go func() {
			defer wg.Done()
			drainSink(ctx, sink, timeutil.RealClock{}, drainInterval)
		}()
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q (want oto or none)", *audioBackend)
	}
}

// drainSink consumes audio from sink at the rate a device would.
func drainSink(ctx context.Context, sink *playback.MemorySink, clock timeutil.Clock, every time.Duration) {
	chunk := sink.Format().BytesFor(every)
	ticker := clock.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			sink.Pull(chunk)
		}
	}
}

// loadSettings returns the starting settings and the provider that will
// deliver later changes.
func loadSettings(database *db.DB) (config.Settings, scheduler.ConfigProvider, *db.SettingsWatcher, error) {
	if *settingsJSON != "" {
		cfg, err := config.LoadPianoConfig(*settingsJSON)
		if err != nil {
			return config.Settings{}, nil, nil, err
		}
		p := config.NewStaticProvider(cfg.Resolve())
		log.Printf("using settings from %s", *settingsJSON)
		return p.Current(), p, nil, nil
	}

	cfg, err := database.LoadSettings()
	if err != nil {
		return config.Settings{}, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("stored settings invalid, using defaults: %v", err)
		cfg = &config.PianoConfig{}
	}
	w, err := db.NewSettingsWatcher(database, nil, db.DefaultWatchInterval)
	if err != nil {
		return config.Settings{}, nil, nil, err
	}
	return cfg.Resolve(), w, w, nil
}

func runAppliance(ctx context.Context) error {
	database, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	settings, provider, watcher, err := loadSettings(database)
	if err != nil {
		return err
	}
	log.Printf("settings: trigger=%dmm hysteresis=%dmm multi=%t spacing=%dmm loop=%t note=%s volume=%.2f",
		settings.TriggerMm, settings.HysteresisMm, settings.MultiTone, settings.NoteSpacingMm,
		settings.Loop, settings.ActiveNote, settings.Volume)

	store := samples.NewStore(fsutil.OSFileSystem{}, *samplesDir)
	for _, st := range store.Status() {
		switch {
		case !st.Present:
			log.Printf("sample %s: missing (%s)", st.Note, st.Path)
		case st.Err != nil:
			log.Printf("sample %s: unusable: %v", st.Note, st.Err)
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

	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink, err := openSink(ctx, &wg)
	if err != nil {
		return err
	}
	defer sink.Close()

	manager := playback.NewManager(store, sink)
	defer manager.Close()
	machine := trigger.NewMachine(manager)

	recorder := db.NewEpisodeRecorder(database, nil)
	machine.AddListener(recorder)
	manager.AddListener(recorder)

	if *midiOut != "" {
		mirror, err := midiout.Open(*midiOut, midiout.Options{})
		if err != nil {
			log.Printf("midi mirror disabled: %v", err)
			if errors.Is(err, midiout.ErrNoPort) {
				if ports, err := midiout.ListPorts(); err == nil {
					log.Printf("available midi outputs: %s", strings.Join(ports, ", "))
				}
			}
		} else {
			defer mirror.Close()
			manager.AddListener(mirror)
		}
	}

	source := sensor.NewSerialSource(nil, sensor.DefaultReadTimeout)
	history := monitor.NewHistory(monitor.DefaultHistory)

	sched := scheduler.New(scheduler.Config{
		Source:   source,
		Machine:  machine,
		Manager:  manager,
		Provider: provider,
		Settings: settings,
	})
	sched.AddTelemetry(history)

	// serial monitor: reads lines from the bridge and fans them out
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := bridge.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("sensor bridge monitor stopped: %v", err)
			cancel()
		}
		log.Print("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := source.Run(ctx, bridge); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("sensor source stopped: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = recorder.Run(ctx)
	}()

	if watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = watcher.Run(ctx)
		}()
	}

	if *debugListen != "" {
		mux := http.NewServeMux()
		tsweb.Debugger(mux)
		bridge.AttachAdminRoutes(mux)
		if err := database.AttachAdminRoutes(mux); err != nil {
			return err
		}
		history.AttachAdminRoutes(mux)

		server := &http.Server{Addr: *debugListen, Handler: mux}
		wg.Add(1)
		go func() {
			defer wg.Done()
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Printf("debug server failed: %v", err)
				}
			}()
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("debug server shutdown: %v", err)
			}
		}()
		log.Printf("debug server on http://%s/debug/", *debugListen)
	}

	log.Printf("piano %s running: samples=%s audio=%s", version.String(), store.Dir(), *audioBackend)
	err = sched.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
