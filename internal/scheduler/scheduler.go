// Package scheduler runs the control loop: a fast loop that keeps the
// decoder fed, with a sensor check folded in whenever more than
// SensorInterval has elapsed since the last one.
package scheduler

import (
	"context"
	"time"

	"github.com/banshee-data/presence-piano/internal/config"
	"github.com/banshee-data/presence-piano/internal/monitoring"
	"github.com/banshee-data/presence-piano/internal/notes"
	"github.com/banshee-data/presence-piano/internal/playback"
	"github.com/banshee-data/presence-piano/internal/sensor"
	"github.com/banshee-data/presence-piano/internal/timeutil"
	"github.com/banshee-data/presence-piano/internal/trigger"
)

const (
	// DefaultLoopInterval is how often Step runs.
	DefaultLoopInterval = 5 * time.Millisecond
	// SensorInterval is the minimum time between sensor checks.
	SensorInterval = 50 * time.Millisecond
)

// ConfigProvider publishes settings saved while the loop is running.
type ConfigProvider interface {
	Updates() <-chan config.Settings
}

// Reading is the telemetry emitted after each sensor check.
type Reading struct {
	At         time.Time
	Raw        sensor.Sample
	DistanceMm int
	Presence   trigger.Presence
	Note       notes.Note
	Playing    bool
	// TriggerMm and ReleaseMm are the thresholds in force for this reading.
	TriggerMm int
	ReleaseMm int
}

// Telemetry consumers must not block.
type Telemetry interface {
	Record(r Reading)
}

// Config wires a Scheduler.
type Config struct {
	Clock    timeutil.Clock
	Source   sensor.Source
	Machine  *trigger.Machine
	Manager  *playback.Manager
	Provider ConfigProvider
	Settings config.Settings
	// LoopInterval defaults to DefaultLoopInterval.
	LoopInterval time.Duration
}

// Scheduler owns the filter, the trigger machine and the playback manager
// and drives them from a single goroutine.
type Scheduler struct {
	clock     timeutil.Clock
	source    sensor.Source
	filter    sensor.Filter
	machine   *trigger.Machine
	manager   *playback.Manager
	provider  ConfigProvider
	telemetry []Telemetry

	settings        config.Settings
	interval        time.Duration
	lastSensorCheck time.Time
}

// New creates a Scheduler and pushes the initial volume to the sink.
func New(cfg Config) *Scheduler {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	interval := cfg.LoopInterval
	if interval <= 0 {
		interval = DefaultLoopInterval
	}
	s := &Scheduler{
		clock:    clock,
		source:   cfg.Source,
		filter:   sensor.NewFilter(),
		machine:  cfg.Machine,
		manager:  cfg.Manager,
		provider: cfg.Provider,
		settings: cfg.Settings,
		interval: interval,
	}
	s.manager.SetGain(s.settings.Volume)
	return s
}

// AddTelemetry registers t to receive a Reading after every sensor check.
func (s *Scheduler) AddTelemetry(t Telemetry) {
	s.telemetry = append(s.telemetry, t)
}

// Settings returns the settings currently in force.
func (s *Scheduler) Settings() config.Settings { return s.settings }

// DistanceMm returns the current filtered distance.
func (s *Scheduler) DistanceMm() int { return s.filter.ValueMm }

// Step runs one loop iteration at now.
func (s *Scheduler) Step(now time.Time) {
	s.applyUpdates()

	s.manager.Tick(s.machine.Episode(), s.settings)

	if now.Sub(s.lastSensorCheck) > SensorInterval {
		s.lastSensorCheck = now
		s.checkSensor(now)
	}
}

// Run calls Step on every loop tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	monitoring.Logf("scheduler: loop every %s, sensor every %s", s.interval, SensorInterval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C():
			s.Step(now)
		}
	}
}

func (s *Scheduler) applyUpdates() {
	if s.provider == nil {
		return
	}
	for {
		select {
		case next, ok := <-s.provider.Updates():
			if !ok {
				s.provider = nil
				return
			}
			if next.Volume != s.settings.Volume {
				s.manager.SetGain(next.Volume)
			}
			monitoring.Logf("scheduler: settings updated (trigger=%dmm hysteresis=%dmm multi=%t loop=%t note=%s volume=%.2f)",
				next.TriggerMm, next.HysteresisMm, next.MultiTone, next.Loop, next.ActiveNote, next.Volume)
			s.settings = next
		default:
			return
		}
	}
}

func (s *Scheduler) checkSensor(now time.Time) {
	raw := s.source.Poll()
	distance := s.filter.Update(raw)
	s.machine.Step(distance, s.settings)

	if len(s.telemetry) == 0 {
		return
	}
	session := s.manager.Session()
	r := Reading{
		At:         now,
		Raw:        raw,
		DistanceMm: distance,
		Presence:   s.machine.Presence(),
		Note:       session.Note,
		Playing:    session.Running,
		TriggerMm:  s.settings.TriggerMm,
		ReleaseMm:  s.settings.ReleaseMm(),
	}
	for _, t := range s.telemetry {
		t.Record(r)
	}
}
