// Package testutil provides shared test utilities and fixtures.
//
// Most of the audio tests need small WAV files; the builders here produce
// them with the same encoder real sample files are checked against.
package testutil

import (
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request that passes the loopback check
// on the /debug/ routes.
func NewTestRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// WAVSpec describes a PCM WAV fixture.
type WAVSpec struct {
	SampleRate int
	Channels   int
	BitDepth   int
	// Samples are interleaved and already scaled to BitDepth.
	Samples []int
}

// WAV encodes spec as a PCM WAV file and returns its bytes.
func WAV(t testing.TB, spec WAVSpec) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	AssertNoError(t, err)

	enc := wav.NewEncoder(f, spec.SampleRate, spec.BitDepth, spec.Channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: spec.Channels, SampleRate: spec.SampleRate},
		Data:           spec.Samples,
		SourceBitDepth: spec.BitDepth,
	}
	AssertNoError(t, enc.Write(buf))
	AssertNoError(t, enc.Close())
	AssertNoError(t, f.Close())

	data, err := os.ReadFile(path)
	AssertNoError(t, err)
	return data
}

// Sine returns frames of a 16-bit sine wave at freq Hz, duplicated across
// channels.
func Sine(sampleRate, channels, frames int, freq, amplitude float64) []int {
	out := make([]int, 0, frames*channels)
	for i := 0; i < frames; i++ {
		v := int(math.Round(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))))
		for c := 0; c < channels; c++ {
			out = append(out, v)
		}
	}
	return out
}

// Constant returns n copies of v.
func Constant(n, v int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}
