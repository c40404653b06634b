package playback

import "sync"

// MemorySink is a Sink with no device behind it. Audio is consumed only when
// Pull is called, so tests can inspect exactly what would have been played.
// With -audio=none the appliance pulls from one at the device rate and
// discards the audio.
type MemorySink struct {
	q      *pcmQueue
	format Format

	mu     sync.Mutex
	clears int
	closed bool
}

// NewMemorySink creates a sink holding at most limit bytes.
func NewMemorySink(format Format, limit int) *MemorySink {
	return &MemorySink{q: newPCMQueue(limit, format.FrameSize()), format: format}
}

func (s *MemorySink) Format() Format { return s.format }

func (s *MemorySink) SetGain(gain float64) { s.q.SetGain(gain) }

// Gain returns the current gain.
func (s *MemorySink) Gain() float64 { return s.q.Gain() }

func (s *MemorySink) Write(p []byte) int { return s.q.Write(p) }

func (s *MemorySink) Clear() {
	s.mu.Lock()
	s.clears++
	s.mu.Unlock()
	s.q.Clear(s.format.BytesFor(DefaultFade))
}

// Clears returns how many times Clear was called.
func (s *MemorySink) Clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

// Buffered returns the number of queued bytes.
func (s *MemorySink) Buffered() int { return s.q.Buffered() }

// Pull plays n bytes the way the device would and returns them.
func (s *MemorySink) Pull(n int) []byte {
	p := make([]byte, n)
	_, _ = s.q.Read(p)
	return p
}

func (s *MemorySink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (s *MemorySink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
