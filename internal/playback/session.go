package playback

import (
	"io"

	"github.com/banshee-data/presence-piano/internal/config"
	"github.com/banshee-data/presence-piano/internal/monitoring"
	"github.com/banshee-data/presence-piano/internal/notes"
)

// Episode is the memory of one presence episode, from the moment someone
// enters the trigger zone until they leave past the hysteresis band. The
// trigger machine owns it; the manager reads and updates it on every call.
type Episode struct {
	// Active mirrors the trigger machine's presence state.
	Active bool
	// HasPlayedOnce is set when a non-looping sample finished naturally and
	// blocks re-triggering until the note changes or presence is re-entered.
	HasPlayedOnce bool
	// LastNote is the last note started in multi-tone mode, or notes.None.
	LastNote notes.Note
	// ID identifies the episode in logs and history. Empty while idle.
	ID string
}

// NewEpisode returns an idle episode.
func NewEpisode() *Episode {
	return &Episode{LastNote: notes.None}
}

// SampleStore is where note samples come from.
type SampleStore interface {
	Exists(n notes.Note) bool
	Open(n notes.Note) (io.ReadSeekCloser, error)
}

// Session is a snapshot of the playback slot.
type Session struct {
	Note    notes.Note
	Running bool
}

// Listener is told about every effective start and every stop of a sounding
// note. Calls happen on the scheduler goroutine and must not block.
type Listener interface {
	NoteStarted(episodeID string, n notes.Note)
	NoteStopped(episodeID string, n notes.Note)
}

// Manager holds at most one live decoder in front of the persistent sink.
// It is not safe for concurrent use; the scheduler goroutine owns it.
type Manager struct {
	store       SampleStore
	sink        Sink
	chunkFrames int
	listeners   []Listener

	cur       *decoder
	note      notes.Note
	episodeID string
	starts    int
	// tail is set while a naturally finished sample may still be queued in
	// the sink.
	tail bool
}

// NewManager creates a Manager that decodes samples from store into sink.
func NewManager(store SampleStore, sink Sink) *Manager {
	return &Manager{
		store:       store,
		sink:        sink,
		chunkFrames: DefaultChunkFrames,
		note:        notes.None,
	}
}

// SetChunkFrames sets how many source frames each Tick decodes.
func (m *Manager) SetChunkFrames(n int) {
	if n > 0 {
		m.chunkFrames = n
	}
}

// AddListener registers l for start and stop notifications.
func (m *Manager) AddListener(l Listener) {
	m.listeners = append(m.listeners, l)
}

// Start begins playing n unless that would restart a note that is already
// sustaining. It returns true when a new decoder was attached. A missing
// sample is a silent no-op; an unreadable one is logged and counts as
// played for this episode.
func (m *Manager) Start(ep *Episode, n notes.Note, s config.Settings) bool {
	return m.start(ep, n, s, true)
}

// start attaches a decoder for n. With fade unset, audio still queued from
// the previous pass is left to play out ahead of the new one.
func (m *Manager) start(ep *Episode, n notes.Note, s config.Settings, fade bool) bool {
	if m.cur != nil {
		if !s.MultiTone && n == s.ActiveNote {
			return false
		}
		if s.MultiTone && n == ep.LastNote {
			return false
		}
	}

	if s.MultiTone {
		ep.LastNote = n
	}

	if !m.store.Exists(n) {
		monitoring.Debugf("no sample for note %s", n)
		return false
	}

	m.release(fade)

	src, err := m.store.Open(n)
	if err != nil {
		monitoring.Logf("playback: failed to open sample %s: %v", n, err)
		ep.HasPlayedOnce = true
		return false
	}
	dec, err := newDecoder(src, m.sink.Format(), m.chunkFrames)
	if err != nil {
		src.Close()
		monitoring.Logf("playback: failed to read sample %s: %v", n, err)
		ep.HasPlayedOnce = true
		return false
	}

	m.cur = dec
	m.note = n
	m.episodeID = ep.ID
	m.starts++
	for _, l := range m.listeners {
		l.NoteStarted(ep.ID, n)
	}
	return true
}

// Stop halts and releases the current decoder, if any. The sink keeps
// running. When the episode is no longer active its note memory is cleared.
func (m *Manager) Stop(ep *Episode) {
	m.release(true)
	if !ep.Active {
		ep.LastNote = notes.None
	}
}

// Tick advances the running decoder by one chunk and reports whether the
// sample finished during this call. A finished sample restarts when loop is
// on and presence is still active; otherwise playback stops and the episode
// is marked as played. A sample that failed to decode, or produced no audio
// at all, never loops.
func (m *Manager) Tick(ep *Episode, s config.Settings) bool {
	if m.cur == nil {
		return false
	}

	done, err := m.cur.step(m.sink)
	if err != nil {
		monitoring.Logf("playback: note %s: %v", m.note, err)
	}
	if !done {
		return false
	}
	played := err == nil && m.cur.frames > 0

	// The tail is still queued in the sink; let it play out.
	m.release(false)

	if played && s.Loop && ep.Active {
		n := s.ActiveNote
		if s.MultiTone {
			n = ep.LastNote
		}
		if n.Valid() && m.start(ep, n, s, false) {
			return true
		}
	}

	if !ep.Active {
		ep.LastNote = notes.None
	}
	ep.HasPlayedOnce = true
	return true
}

// Session returns a snapshot of the playback slot.
func (m *Manager) Session() Session {
	if m.cur == nil {
		return Session{Note: notes.None}
	}
	return Session{Note: m.note, Running: true}
}

// Starts returns the number of decoders attached since the manager was
// created.
func (m *Manager) Starts() int { return m.starts }

// SetGain forwards a new output gain to the sink.
func (m *Manager) SetGain(gain float64) { m.sink.SetGain(gain) }

// Close releases the current decoder. The sink is left to its owner.
func (m *Manager) Close() {
	m.release(true)
}

// release detaches the current decoder and closes its source. With fade set
// the sink drops its queue after a short ramp, including the tail of a
// sample that already finished; without it queued audio plays to the end.
func (m *Manager) release(fade bool) {
	if fade && (m.cur != nil || m.tail) {
		m.sink.Clear()
		m.tail = false
	}
	if m.cur == nil {
		return
	}
	if err := m.cur.close(); err != nil {
		monitoring.Debugf("playback: closing sample %s: %v", m.note, err)
	}
	if !fade {
		m.tail = true
	}

	n, id := m.note, m.episodeID
	m.cur = nil
	m.note = notes.None
	m.episodeID = ""
	for _, l := range m.listeners {
		l.NoteStopped(id, n)
	}
}
