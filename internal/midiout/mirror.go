// Package midiout mirrors the notes the appliance plays onto a MIDI output
// port, so an external synth or DAW can follow along.
package midiout

import (
	"fmt"
	"sync"

	"gitlab.com/gomidi/midi/v2"

	"github.com/banshee-data/presence-piano/internal/monitoring"
	"github.com/banshee-data/presence-piano/internal/notes"
)

// Middle C. The scale C..H maps onto the white keys of the octave above.
const DefaultBaseKey uint8 = 60

const DefaultVelocity uint8 = 100

var keyOffsets = [notes.Count]uint8{0, 2, 4, 5, 7, 9, 11}

// Options configures a Mirror.
type Options struct {
	Channel  uint8 // 0-15
	BaseKey  uint8
	Velocity uint8
}

func (o Options) normalize() Options {
	if o.Channel > 15 {
		o.Channel = 15
	}
	if o.BaseKey == 0 || o.BaseKey > 127-11 {
		o.BaseKey = DefaultBaseKey
	}
	if o.Velocity == 0 || o.Velocity > 127 {
		o.Velocity = DefaultVelocity
	}
	return o
}

// Mirror sends NoteOn/NoteOff for every playback start and stop. It
// implements playback.Listener.
type Mirror struct {
	mu       sync.Mutex
	send     func(midi.Message) error
	closeFn  func() error
	opts     Options
	sounding map[uint8]bool
}

// NewMirror creates a Mirror that writes through send. closeFn, if not nil,
// is called by Close after all sounding notes are released.
func NewMirror(send func(midi.Message) error, closeFn func() error, opts Options) *Mirror {
	return &Mirror{
		send:     send,
		closeFn:  closeFn,
		opts:     opts.normalize(),
		sounding: make(map[uint8]bool),
	}
}

// Key returns the MIDI key number for n.
func (m *Mirror) Key(n notes.Note) (uint8, bool) {
	if !n.Valid() {
		return 0, false
	}
	return m.opts.BaseKey + keyOffsets[n], true
}

func (m *Mirror) NoteStarted(episodeID string, n notes.Note) {
	key, ok := m.Key(n)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sounding[key] {
		// Retrigger: release first so receivers see a fresh attack.
		m.sendLocked(midi.NoteOff(m.opts.Channel, key))
	}
	if m.sendLocked(midi.NoteOn(m.opts.Channel, key, m.opts.Velocity)) {
		m.sounding[key] = true
	}
}

func (m *Mirror) NoteStopped(episodeID string, n notes.Note) {
	key, ok := m.Key(n)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.sounding[key] {
		return
	}
	m.sendLocked(midi.NoteOff(m.opts.Channel, key))
	delete(m.sounding, key)
}

// AllOff releases every sounding note.
func (m *Mirror) AllOff() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allOffLocked()
}

func (m *Mirror) allOffLocked() {
	for key := range m.sounding {
		m.sendLocked(midi.NoteOff(m.opts.Channel, key))
		delete(m.sounding, key)
	}
}

func (m *Mirror) sendLocked(msg midi.Message) bool {
	if m.send == nil {
		return false
	}
	if err := m.send(msg); err != nil {
		monitoring.Logf("midi out: send %s: %v", msg, err)
		return false
	}
	return true
}

// Close releases sounding notes and closes the port.
func (m *Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.allOffLocked()
	m.send = nil
	if m.closeFn != nil {
		err := m.closeFn()
		m.closeFn = nil
		if err != nil {
			return fmt.Errorf("failed to close midi port: %w", err)
		}
	}
	return nil
}
