package playback

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gopxl/beep/v2"
)

// DefaultChunkFrames is how many frames one Tick hands to the sink.
const DefaultChunkFrames = 1024

// resampleQuality is the beep interpolation window used when a sample's
// rate differs from the output rate.
const resampleQuality = 4

var errNotPCM = errors.New("not a PCM WAV file")

// decoder streams one WAV source into a sink, converting to the sink's
// format on the way. It owns the source and closes it on release.
type decoder struct {
	src    io.ReadSeekCloser
	stream beep.Streamer
	chunk  [][2]float64
	out    Format

	// pending holds converted audio the sink had no room for yet.
	pending []byte
	eof     bool
	// frames counts output frames produced so far.
	frames int
}

func newDecoder(src io.ReadSeekCloser, out Format, chunkFrames int) (*decoder, error) {
	if chunkFrames <= 0 {
		chunkFrames = DefaultChunkFrames
	}
	if out.SampleRate <= 0 || out.Channels <= 0 {
		return nil, fmt.Errorf("invalid output format %+v", out)
	}
	d := wav.NewDecoder(src)
	if !d.IsValidFile() {
		return nil, errNotPCM
	}
	if d.WavAudioFormat != 1 {
		return nil, fmt.Errorf("%w: format tag %d", errNotPCM, d.WavAudioFormat)
	}
	switch d.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", d.BitDepth)
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("failed to find PCM data: %w", err)
	}

	inCh := int(d.NumChans)
	pcm := &pcmStreamer{
		wav:      d,
		buf:      &audio.IntBuffer{},
		data:     make([]int, chunkFrames*inCh),
		channels: inCh,
		bitDepth: int(d.BitDepth),
	}
	var stream beep.Streamer = pcm
	if rate := int(d.SampleRate); rate != out.SampleRate {
		stream = beep.Resample(resampleQuality, beep.SampleRate(rate), beep.SampleRate(out.SampleRate), pcm)
	}
	return &decoder{
		src:    src,
		stream: stream,
		chunk:  make([][2]float64, chunkFrames),
		out:    out,
	}, nil
}

// step hands at most one chunk to the sink. It returns done once the whole
// sample has been accepted by the sink.
func (d *decoder) step(sink Sink) (done bool, err error) {
	if len(d.pending) > 0 {
		n := sink.Write(d.pending)
		d.pending = d.pending[n:]
		return d.eof && len(d.pending) == 0, nil
	}
	if d.eof {
		return true, nil
	}

	n, ok := d.stream.Stream(d.chunk)
	if !ok || n == 0 {
		d.eof = true
		if err := d.stream.Err(); err != nil {
			return true, fmt.Errorf("failed to decode sample: %w", err)
		}
		return true, nil
	}
	d.frames += n

	pcm := encodeFrames(d.chunk[:n], d.out.Channels)
	written := sink.Write(pcm)
	d.pending = pcm[written:]
	return false, nil
}

func (d *decoder) close() error {
	return d.src.Close()
}

// encodeFrames writes stereo frames as interleaved signed 16-bit PCM.
// Mono output averages both sides; channels past the second repeat the
// right side.
func encodeFrames(frames [][2]float64, channels int) []byte {
	pcm := make([]byte, len(frames)*channels*2)
	i := 0
	for _, f := range frames {
		for c := 0; c < channels; c++ {
			var v float64
			switch {
			case channels == 1:
				v = (f[0] + f[1]) / 2
			case c == 0:
				v = f[0]
			default:
				v = f[1]
			}
			binary.LittleEndian.PutUint16(pcm[i:], uint16(toInt16(v)))
			i += 2
		}
	}
	return pcm
}

// toInt16 maps [-1, 1] onto the full 16-bit range, rounding to nearest so
// 16-bit sources pass through unchanged.
func toInt16(v float64) int16 {
	s := math.Round(v * 32768)
	switch {
	case s > math.MaxInt16:
		return math.MaxInt16
	case s < math.MinInt16:
		return math.MinInt16
	}
	return int16(s)
}

// pcmStreamer adapts a go-audio WAV decoder to beep. Every bit depth is
// scaled to [-1, 1]; mono is spread across both sides and channels past the
// second are dropped.
type pcmStreamer struct {
	wav      *wav.Decoder
	buf      *audio.IntBuffer
	data     []int
	channels int
	bitDepth int
	err      error
}

func (s *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.err != nil {
		return 0, false
	}
	for n < len(samples) {
		want := min(len(samples)-n, len(s.data)/s.channels)
		s.buf.Data = s.data[:want*s.channels]
		read, err := s.wav.PCMBuffer(s.buf)
		if err != nil {
			s.err = err
			break
		}
		// Drop a trailing partial frame.
		read -= read % s.channels
		if read == 0 {
			break
		}
		for i := 0; i < read; i += s.channels {
			l := s.scale(s.buf.Data[i])
			r := l
			if s.channels > 1 {
				r = s.scale(s.buf.Data[i+1])
			}
			samples[n] = [2]float64{l, r}
			n++
		}
	}
	return n, n > 0
}

func (s *pcmStreamer) Err() error { return s.err }

// scale normalises one decoded sample. 8-bit WAV is unsigned.
func (s *pcmStreamer) scale(v int) float64 {
	if s.bitDepth == 8 {
		return float64(v-128) / 128
	}
	return float64(v) / float64(int64(1)<<(s.bitDepth-1))
}
