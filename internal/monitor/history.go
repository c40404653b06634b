// Package monitor keeps a window of recent control-loop readings and renders
// it for the debug server and the calibrate command.
package monitor

import (
	"sync"

	"github.com/banshee-data/presence-piano/internal/scheduler"
)

// DefaultHistory holds one minute of readings at the sensor cadence.
const DefaultHistory = 1200

// History is a fixed-size ring of scheduler readings. Record is called from
// the control loop; Snapshot from HTTP handlers.
type History struct {
	mu    sync.Mutex
	buf   []scheduler.Reading
	next  int
	full  bool
	total uint64
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistory
	}
	return &History{buf: make([]scheduler.Reading, capacity)}
}

// Record implements scheduler.Telemetry.
func (h *History) Record(r scheduler.Reading) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[h.next] = r
	h.next++
	h.total++
	if h.next == len(h.buf) {
		h.next = 0
		h.full = true
	}
}

// Snapshot returns the stored readings, oldest first.
func (h *History) Snapshot() []scheduler.Reading {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.full {
		return append([]scheduler.Reading(nil), h.buf[:h.next]...)
	}
	out := make([]scheduler.Reading, 0, len(h.buf))
	out = append(out, h.buf[h.next:]...)
	out = append(out, h.buf[:h.next]...)
	return out
}

// Latest returns the most recent reading.
func (h *History) Latest() (scheduler.Reading, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.total == 0 {
		return scheduler.Reading{}, false
	}
	i := h.next - 1
	if i < 0 {
		i = len(h.buf) - 1
	}
	return h.buf[i], true
}

// Total is the number of readings ever recorded.
func (h *History) Total() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}
