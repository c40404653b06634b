// Package playback owns the single sounding note: it opens the note's
// sample, decodes it a chunk at a time into a persistent audio sink, and
// decides what happens when the sample runs out.
package playback

import (
	"time"
)

// Format describes the PCM stream a sink consumes. Samples are always
// signed 16-bit little endian, interleaved.
type Format struct {
	SampleRate int
	Channels   int
}

// FrameSize is the size in bytes of one frame.
func (f Format) FrameSize() int { return f.Channels * 2 }

// BytesFor returns the byte length of d worth of frames.
func (f Format) BytesFor(d time.Duration) int {
	frames := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	return frames * f.FrameSize()
}

// DefaultFormat is used when no output rate is configured.
var DefaultFormat = Format{SampleRate: 44100, Channels: 2}

// Sink is the process-lifetime audio output. It is created once and never
// torn down between notes; decoders come and go in front of it.
type Sink interface {
	// Format reports the stream format the sink expects.
	Format() Format
	// SetGain sets the output gain applied to everything the sink plays.
	SetGain(gain float64)
	// Write queues PCM without blocking and returns how many bytes were
	// accepted. A short count means the queue is full.
	Write(p []byte) int
	// Clear drops queued audio after a short fade so the cut is silent.
	// The output stream keeps running.
	Clear()
	// Close releases the output device.
	Close() error
}

// DefaultFade is how long Clear ramps queued audio down to silence.
const DefaultFade = 5 * time.Millisecond
