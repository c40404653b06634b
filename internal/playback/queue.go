package playback

import (
	"encoding/binary"
	"math"
	"sync"
)

// pcmQueue buffers s16le PCM between the decoder (producer, scheduler
// goroutine) and the output device (consumer, audio goroutine). Reads never
// block and never run dry: when nothing is queued the reader gets silence,
// which keeps the output stream and its DC level steady between notes.
type pcmQueue struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	frameSize int
	gain      float64

	// The first fadeLeft bytes of buf are ramping down to silence after a
	// Clear; fadeLen is the ramp length they started from.
	fadeLeft int
	fadeLen  int
}

func newPCMQueue(limit, frameSize int) *pcmQueue {
	limit -= limit % frameSize
	return &pcmQueue{limit: limit, frameSize: frameSize, gain: 1}
}

// Write appends whole frames from p, up to the queue limit.
func (q *pcmQueue) Write(p []byte) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.limit - len(q.buf)
	if n > len(p) {
		n = len(p)
	}
	n -= n % q.frameSize
	if n <= 0 {
		return 0
	}
	q.buf = append(q.buf, p[:n]...)
	return n
}

// Read fills p with queued audio, gain applied, followed by silence.
func (q *pcmQueue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(p)
	if n > len(q.buf) {
		n = len(q.buf)
	}
	n -= n % 2

	for i := 0; i < n; i += 2 {
		v := float64(int16(binary.LittleEndian.Uint16(q.buf[i:])))
		v *= q.gain
		if q.fadeLeft > 0 {
			v *= float64(q.fadeLeft) / float64(q.fadeLen)
			q.fadeLeft -= 2
		}
		binary.LittleEndian.PutUint16(p[i:], uint16(clip16(v)))
	}
	for i := n; i < len(p); i++ {
		p[i] = 0
	}

	q.buf = append(q.buf[:0], q.buf[n:]...)
	return len(p), nil
}

// Clear keeps at most fadeBytes of queued audio, ramped down to zero, and
// drops the rest.
func (q *pcmQueue) Clear(fadeBytes int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	fadeBytes -= fadeBytes % q.frameSize
	if fadeBytes > len(q.buf) {
		fadeBytes = len(q.buf)
	}
	q.buf = q.buf[:fadeBytes]
	q.fadeLeft = fadeBytes
	q.fadeLen = fadeBytes
}

func (q *pcmQueue) SetGain(g float64) {
	q.mu.Lock()
	q.gain = g
	q.mu.Unlock()
}

func (q *pcmQueue) Gain() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.gain
}

// Buffered returns the number of queued bytes.
func (q *pcmQueue) Buffered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

func clip16(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
