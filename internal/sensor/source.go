package sensor

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/presence-piano/internal/monitoring"
	"github.com/banshee-data/presence-piano/internal/timeutil"
)

// DefaultReadTimeout matches the range timeout configured on the sensor.
const DefaultReadTimeout = 500 * time.Millisecond

// Source is polled once per sensor tick.
type Source interface {
	// Poll returns the most recent reading without blocking.
	Poll() Sample
	// HasTimedOut reports whether the last Poll was a timeout.
	HasTimedOut() bool
}

// LineSubscriber delivers raw lines from the sensor bridge.
type LineSubscriber interface {
	Subscribe() (string, chan string)
	Unsubscribe(string)
}

// SerialSource is a Source fed by lines from the serial sensor bridge. A
// background goroutine (Run) stores the latest reading; Poll only reads it.
// If no reading arrives for longer than the read timeout, Poll reports a
// timeout just like the sensor would.
type SerialSource struct {
	clock   timeutil.Clock
	timeout time.Duration

	mu       sync.Mutex
	latest   Sample
	latestAt time.Time
	fresh    bool
	timedOut bool
	badLines int
}

// NewSerialSource creates a SerialSource. A zero timeout selects DefaultReadTimeout.
func NewSerialSource(clock timeutil.Clock, timeout time.Duration) *SerialSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	return &SerialSource{clock: clock, timeout: timeout}
}

// Run consumes lines from sub until ctx is cancelled or the subscription closes.
func (s *SerialSource) Run(ctx context.Context, sub LineSubscriber) error {
	id, lines := sub.Subscribe()
	defer sub.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			s.HandleLine(line)
		}
	}
}

// HandleLine parses one line from the bridge and records it as the latest
// reading. Lines that are not readings are ignored.
func (s *SerialSource) HandleLine(line string) {
	sample, err := ParseReading(line)
	if err != nil {
		s.mu.Lock()
		s.badLines++
		s.mu.Unlock()
		monitoring.Debugf("sensor: ignoring line %q: %v", line, err)
		return
	}

	s.mu.Lock()
	s.latest = sample
	s.latestAt = s.clock.Now()
	s.fresh = true
	s.mu.Unlock()
}

// Poll implements Source.
func (s *SerialSource) Poll() Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out Sample
	switch {
	case s.fresh:
		out = s.latest
		s.fresh = false
	case s.latestAt.IsZero() || s.clock.Since(s.latestAt) > s.timeout:
		out = Sample{RawMm: TimeoutRawMm, TimedOut: true}
	default:
		out = s.latest
	}
	s.timedOut = out.TimedOut
	return out
}

// HasTimedOut implements Source.
func (s *SerialSource) HasTimedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timedOut
}

// BadLines returns how many lines could not be parsed.
func (s *SerialSource) BadLines() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.badLines
}
