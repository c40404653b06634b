package playback

import (
	"fmt"
	"time"

	"github.com/hajimehoshi/oto/v2"
)

// OtoOptions configures the audio device.
type OtoOptions struct {
	Format Format
	// Queue is how much decoded audio may wait in front of the device.
	Queue time.Duration
	// DeviceBuffer sets the player's internal buffer when non-zero.
	DeviceBuffer time.Duration
}

// DefaultQueue bounds decoder run-ahead.
const DefaultQueue = 250 * time.Millisecond

// OtoSink plays the queue through the system audio device with oto. The
// player is started once and keeps pulling (silence when idle) for the life
// of the process.
type OtoSink struct {
	ctx    *oto.Context
	player oto.Player
	q      *pcmQueue
	format Format
}

// NewOtoSink opens the default audio device and starts the output stream.
func NewOtoSink(opts OtoOptions) (*OtoSink, error) {
	format := opts.Format
	if format.SampleRate <= 0 || format.Channels <= 0 {
		format = DefaultFormat
	}
	queue := opts.Queue
	if queue <= 0 {
		queue = DefaultQueue
	}

	ctx, ready, err := oto.NewContext(format.SampleRate, format.Channels, oto.FormatSignedInt16LE)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio device: %w", err)
	}
	<-ready

	q := newPCMQueue(format.BytesFor(queue), format.FrameSize())
	player := ctx.NewPlayer(q)
	if opts.DeviceBuffer > 0 {
		if bs, ok := player.(interface{ SetBufferSize(int) }); ok {
			bs.SetBufferSize(format.BytesFor(opts.DeviceBuffer))
		}
	}
	player.Play()

	return &OtoSink{ctx: ctx, player: player, q: q, format: format}, nil
}

func (s *OtoSink) Format() Format { return s.format }

func (s *OtoSink) SetGain(gain float64) { s.q.SetGain(gain) }

func (s *OtoSink) Write(p []byte) int { return s.q.Write(p) }

func (s *OtoSink) Clear() { s.q.Clear(s.format.BytesFor(DefaultFade)) }

// Err reports an asynchronous device error, if any.
func (s *OtoSink) Err() error { return s.player.Err() }

func (s *OtoSink) Close() error {
	return s.player.Close()
}
