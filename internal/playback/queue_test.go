package playback

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcm16(vs ...int16) []byte {
	out := make([]byte, len(vs)*2)
	for i, v := range vs {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func samples16(p []byte) []int16 {
	out := make([]int16, len(p)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(p[i*2:]))
	}
	return out
}

func TestQueueReadPadsWithSilence(t *testing.T) {
	q := newPCMQueue(64, 2)
	require.Equal(t, 4, q.Write(pcm16(100, -100)))

	p := make([]byte, 8)
	n, err := q.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, []int16{100, -100, 0, 0}, samples16(p))
	assert.Zero(t, q.Buffered())
}

func TestQueueWriteIsBoundedAndFrameAligned(t *testing.T) {
	q := newPCMQueue(10, 4) // rounds down to 8 bytes, two stereo frames
	assert.Equal(t, 8, q.Write(pcm16(1, 2, 3, 4, 5, 6)))
	assert.Equal(t, 0, q.Write(pcm16(7, 8)))
	assert.Equal(t, 8, q.Buffered())
}

func TestQueueGainClips(t *testing.T) {
	q := newPCMQueue(64, 2)
	q.SetGain(4)
	q.Write(pcm16(1000, 20000, -20000))

	p := make([]byte, 6)
	_, _ = q.Read(p)
	assert.Equal(t, []int16{4000, 32767, -32768}, samples16(p))
}

func TestQueueClearFadesOut(t *testing.T) {
	q := newPCMQueue(64, 2)
	q.Write(pcm16(1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000))

	q.Clear(8) // keep four samples
	assert.Equal(t, 8, q.Buffered())

	p := make([]byte, 12)
	_, _ = q.Read(p)
	assert.Equal(t, []int16{1000, 750, 500, 250, 0, 0}, samples16(p))

	// After the fade, new audio plays at full level.
	q.Write(pcm16(1000))
	p = make([]byte, 2)
	_, _ = q.Read(p)
	assert.Equal(t, []int16{1000}, samples16(p))
}

func TestQueueClearEmpty(t *testing.T) {
	q := newPCMQueue(64, 2)
	q.Clear(32)
	assert.Zero(t, q.Buffered())
}

func TestFormatBytesFor(t *testing.T) {
	f := Format{SampleRate: 44100, Channels: 2}
	assert.Equal(t, 4, f.FrameSize())
	assert.Equal(t, 220*4, f.BytesFor(5*time.Millisecond))
	assert.Equal(t, 44100*4, f.BytesFor(time.Second))
}

func TestMemorySinkClearCounts(t *testing.T) {
	s := NewMemorySink(Format{SampleRate: 8000, Channels: 1}, 1024)
	s.Write(pcm16(1, 2, 3))
	s.Clear()
	assert.Equal(t, 1, s.Clears())
	// 5ms at 8 kHz is 40 frames, more than queued, so everything fades.
	assert.Equal(t, 6, s.Buffered())
	require.NoError(t, s.Close())
	assert.True(t, s.Closed())
}
