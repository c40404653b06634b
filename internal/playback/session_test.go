package playback

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/presence-piano/internal/config"
	"github.com/banshee-data/presence-piano/internal/notes"
	"github.com/banshee-data/presence-piano/internal/testutil"
)

var testFormat = Format{SampleRate: 8000, Channels: 1}

// fakeStore serves in-memory files and counts opens.
type fakeStore struct {
	files  map[notes.Note][]byte
	opens  int
	closes int
}

func newFakeStore() *fakeStore {
	return &fakeStore{files: make(map[notes.Note][]byte)}
}

func (s *fakeStore) Exists(n notes.Note) bool {
	_, ok := s.files[n]
	return ok
}

func (s *fakeStore) Open(n notes.Note) (io.ReadSeekCloser, error) {
	data, ok := s.files[n]
	if !ok {
		return nil, fmt.Errorf("no sample for %s", n)
	}
	s.opens++
	return &closeCounter{Reader: bytes.NewReader(data), closes: &s.closes}, nil
}

type closeCounter struct {
	*bytes.Reader
	closes *int
}

func (c *closeCounter) Close() error {
	*c.closes++
	return nil
}

type event struct {
	kind    string
	episode string
	note    notes.Note
}

type recorder struct{ events []event }

func (r *recorder) NoteStarted(id string, n notes.Note) {
	r.events = append(r.events, event{"start", id, n})
}

func (r *recorder) NoteStopped(id string, n notes.Note) {
	r.events = append(r.events, event{"stop", id, n})
}

// sample returns a mono 8 kHz 16-bit WAV of frames frames, all value v.
func sample(t *testing.T, frames, v int) []byte {
	return testutil.WAV(t, testutil.WAVSpec{SampleRate: 8000, Channels: 1, BitDepth: 16, Samples: testutil.Constant(frames, v)})
}

func newTestManager(t *testing.T, store *fakeStore) (*Manager, *MemorySink, *recorder) {
	t.Helper()
	sink := NewMemorySink(testFormat, 1<<20)
	m := NewManager(store, sink)
	m.SetChunkFrames(32)
	rec := &recorder{}
	m.AddListener(rec)
	return m, sink, rec
}

func single(note notes.Note) config.Settings {
	s := config.DefaultSettings()
	s.ActiveNote = note
	return s
}

func multi() config.Settings {
	s := config.DefaultSettings()
	s.MultiTone = true
	return s
}

func activeEpisode() *Episode {
	ep := NewEpisode()
	ep.Active = true
	ep.ID = "ep-1"
	return ep
}

// tickUntilDone ticks until the sample finishes and returns how many ticks
// that took.
func tickUntilDone(t *testing.T, m *Manager, ep *Episode, s config.Settings) int {
	t.Helper()
	for i := 1; i <= 1000; i++ {
		if m.Tick(ep, s) {
			return i
		}
	}
	t.Fatal("sample never finished")
	return 0
}

func TestStartMissingSampleIsSilentNoOp(t *testing.T) {
	store := newFakeStore()
	m, sink, rec := newTestManager(t, store)
	ep := activeEpisode()

	started := m.Start(ep, notes.F, single(notes.F))

	assert.False(t, started)
	assert.Equal(t, Session{Note: notes.None, Running: false}, m.Session())
	assert.Zero(t, m.Starts())
	assert.Zero(t, store.opens)
	assert.Zero(t, sink.Clears())
	assert.Empty(t, rec.events)
	assert.False(t, ep.HasPlayedOnce)
}

func TestStartSingleToneGuard(t *testing.T) {
	store := newFakeStore()
	store.files[notes.C] = sample(t, 100, 1000)
	m, _, rec := newTestManager(t, store)
	ep := activeEpisode()
	s := single(notes.C)

	require.True(t, m.Start(ep, notes.C, s))
	assert.False(t, m.Start(ep, notes.C, s), "sustaining note must not restart")
	assert.Equal(t, 1, m.Starts())
	assert.Equal(t, 1, store.opens)
	assert.Equal(t, Session{Note: notes.C, Running: true}, m.Session())
	assert.Equal(t, []event{{"start", "ep-1", notes.C}}, rec.events)

	// Single-tone never records LastNote.
	assert.Equal(t, notes.None, ep.LastNote)
}

func TestStartMultiToneSwitchesNotes(t *testing.T) {
	store := newFakeStore()
	store.files[notes.D] = sample(t, 100, 1000)
	store.files[notes.E] = sample(t, 100, 2000)
	m, sink, rec := newTestManager(t, store)
	ep := activeEpisode()
	s := multi()

	require.True(t, m.Start(ep, notes.D, s))
	assert.Equal(t, notes.D, ep.LastNote)
	assert.False(t, m.Start(ep, notes.D, s))

	require.True(t, m.Start(ep, notes.E, s))
	assert.Equal(t, notes.E, ep.LastNote)
	assert.Equal(t, Session{Note: notes.E, Running: true}, m.Session())
	assert.Equal(t, 1, sink.Clears(), "switching notes fades out the old one")
	assert.Equal(t, 1, store.closes, "old source released")

	assert.Equal(t, []event{
		{"start", "ep-1", notes.D},
		{"stop", "ep-1", notes.D},
		{"start", "ep-1", notes.E},
	}, rec.events)
}

func TestStartMultiToneRecordsNoteEvenWhenMissing(t *testing.T) {
	store := newFakeStore()
	store.files[notes.D] = sample(t, 100, 1000)
	m, _, _ := newTestManager(t, store)
	ep := activeEpisode()
	s := multi()

	require.True(t, m.Start(ep, notes.D, s))
	assert.False(t, m.Start(ep, notes.F, s))

	assert.Equal(t, notes.F, ep.LastNote)
	assert.Equal(t, Session{Note: notes.D, Running: true}, m.Session(), "old note keeps playing")
}

func TestTickFinishesAndMarksPlayed(t *testing.T) {
	store := newFakeStore()
	store.files[notes.C] = sample(t, 100, 1000)
	m, sink, rec := newTestManager(t, store)
	ep := activeEpisode()
	s := single(notes.C)

	assert.False(t, m.Tick(ep, s), "nothing to tick")
	require.True(t, m.Start(ep, notes.C, s))

	// 100 frames in chunks of 32: four chunks, then end of data.
	assert.Equal(t, 5, tickUntilDone(t, m, ep, s))
	assert.True(t, ep.HasPlayedOnce)
	assert.Equal(t, Session{Note: notes.None}, m.Session())
	assert.Equal(t, 1, store.closes)
	assert.Equal(t, 200, sink.Buffered(), "the tail is left to play out")
	assert.Zero(t, sink.Clears())
	assert.Equal(t, []event{{"start", "ep-1", notes.C}, {"stop", "ep-1", notes.C}}, rec.events)
}

func TestTickLoopRestartsSeamlessly(t *testing.T) {
	store := newFakeStore()
	store.files[notes.C] = sample(t, 64, 1000)
	m, sink, _ := newTestManager(t, store)
	ep := activeEpisode()
	s := single(notes.C)
	s.Loop = true

	require.True(t, m.Start(ep, notes.C, s))
	for loop := 0; loop < 5; loop++ {
		tickUntilDone(t, m, ep, s)
		// Restarted within the same tick.
		assert.Equal(t, Session{Note: notes.C, Running: true}, m.Session())
	}

	assert.Equal(t, 6, m.Starts())
	assert.False(t, ep.HasPlayedOnce)
	assert.Zero(t, sink.Clears(), "loop restart must not cut queued audio")

	// Every queued frame is sample data; there is no silent gap at the seams.
	pcm := sink.Pull(sink.Buffered())
	for i := 0; i+1 < len(pcm); i += 2 {
		require.Equal(t, int16(1000), int16(uint16(pcm[i])|uint16(pcm[i+1])<<8), "frame %d", i/2)
	}
}

func TestTickLoopMultiToneReplaysLastNote(t *testing.T) {
	store := newFakeStore()
	store.files[notes.G] = sample(t, 32, 1000)
	m, _, rec := newTestManager(t, store)
	ep := activeEpisode()
	s := multi()
	s.Loop = true

	require.True(t, m.Start(ep, notes.G, s))
	tickUntilDone(t, m, ep, s)

	assert.Equal(t, Session{Note: notes.G, Running: true}, m.Session())
	assert.Equal(t, notes.G, ep.LastNote)
	assert.Len(t, rec.events, 3)
}

func TestTickLoopStopsWhenIdle(t *testing.T) {
	store := newFakeStore()
	store.files[notes.C] = sample(t, 32, 1000)
	m, _, _ := newTestManager(t, store)
	ep := activeEpisode()
	s := single(notes.C)
	s.Loop = true

	require.True(t, m.Start(ep, notes.C, s))
	ep.Active = false
	tickUntilDone(t, m, ep, s)

	assert.False(t, m.Session().Running)
	assert.True(t, ep.HasPlayedOnce)
	assert.Equal(t, 1, m.Starts())
}

func TestTickLoopWithDeletedSampleStops(t *testing.T) {
	store := newFakeStore()
	store.files[notes.C] = sample(t, 32, 1000)
	m, _, _ := newTestManager(t, store)
	ep := activeEpisode()
	s := single(notes.C)
	s.Loop = true

	require.True(t, m.Start(ep, notes.C, s))
	delete(store.files, notes.C)
	tickUntilDone(t, m, ep, s)

	assert.False(t, m.Session().Running)
	assert.True(t, ep.HasPlayedOnce)
}

func TestTickLoopWithTruncatedSampleStops(t *testing.T) {
	store := newFakeStore()
	data := sample(t, 64, 1000)
	// The header survives but every PCM byte is gone.
	store.files[notes.C] = data[:len(data)-128]
	m, sink, rec := newTestManager(t, store)
	ep := activeEpisode()
	s := single(notes.C)
	s.Loop = true

	require.True(t, m.Start(ep, notes.C, s))
	for i := 0; i < 200; i++ {
		m.Tick(ep, s)
	}

	assert.Equal(t, 1, store.opens, "a sample with no audio must not be reopened")
	assert.Equal(t, 1, m.Starts())
	assert.True(t, ep.HasPlayedOnce)
	assert.False(t, m.Session().Running)
	assert.Zero(t, sink.Buffered())
	assert.Equal(t, []event{{"start", "ep-1", notes.C}, {"stop", "ep-1", notes.C}}, rec.events)

	// The trigger machine sees a played episode and does not start again.
	assert.False(t, m.Tick(ep, s))
	assert.Equal(t, 1, store.opens)
}

func TestStartNewNoteCutsFinishedTail(t *testing.T) {
	store := newFakeStore()
	store.files[notes.D] = sample(t, 100, 1000)
	store.files[notes.E] = sample(t, 100, 2000)
	m, sink, _ := newTestManager(t, store)
	ep := activeEpisode()
	s := multi()

	require.True(t, m.Start(ep, notes.D, s))
	tickUntilDone(t, m, ep, s)
	require.Equal(t, 200, sink.Buffered(), "D's tail is queued")
	assert.Zero(t, sink.Clears())

	require.True(t, m.Start(ep, notes.E, s))
	assert.Equal(t, 1, sink.Clears(), "D's tail is faded out before E")
	fade := testFormat.BytesFor(DefaultFade)
	assert.Equal(t, fade, sink.Buffered(), "only the fade of D is left")

	// Right after the fade, E plays.
	m.Tick(ep, s)
	sink.Pull(fade)
	pcm := sink.Pull(2)
	assert.Equal(t, int16(2000), int16(uint16(pcm[0])|uint16(pcm[1])<<8))
}

func TestStopOnExitCutsFinishedTail(t *testing.T) {
	store := newFakeStore()
	store.files[notes.C] = sample(t, 100, 1000)
	m, sink, _ := newTestManager(t, store)
	ep := activeEpisode()
	s := single(notes.C)

	require.True(t, m.Start(ep, notes.C, s))
	tickUntilDone(t, m, ep, s)
	require.NotZero(t, sink.Buffered())

	ep.Active = false
	m.Stop(ep)
	assert.Equal(t, 1, sink.Clears())
	assert.Equal(t, testFormat.BytesFor(DefaultFade), sink.Buffered(), "only the fade is left")

	m.Stop(ep)
	assert.Equal(t, 1, sink.Clears(), "the tail is only cut once")
}

func TestStopPreservesLastNoteWhileActive(t *testing.T) {
	store := newFakeStore()
	store.files[notes.A] = sample(t, 100, 1000)
	m, sink, _ := newTestManager(t, store)
	ep := activeEpisode()

	require.True(t, m.Start(ep, notes.A, multi()))
	m.Stop(ep)
	assert.Equal(t, notes.A, ep.LastNote)
	assert.False(t, m.Session().Running)
	assert.Equal(t, 1, sink.Clears())
	assert.False(t, sink.Closed(), "the sink outlives every note")

	ep.Active = false
	m.Stop(ep)
	assert.Equal(t, notes.None, ep.LastNote)
	assert.Equal(t, 1, sink.Clears(), "nothing left to fade")
}

func TestStartCorruptSampleIsAbsorbed(t *testing.T) {
	store := newFakeStore()
	store.files[notes.C] = []byte("RIFF but not really a wave file")
	m, _, rec := newTestManager(t, store)
	ep := activeEpisode()

	assert.False(t, m.Start(ep, notes.C, single(notes.C)))
	assert.True(t, ep.HasPlayedOnce, "a broken sample is not retried this episode")
	assert.Equal(t, 1, store.closes)
	assert.False(t, m.Session().Running)
	assert.Empty(t, rec.events)
}

func TestManagerSetGainReachesSink(t *testing.T) {
	m, sink, _ := newTestManager(t, newFakeStore())
	m.SetGain(2.5)
	assert.Equal(t, 2.5, sink.Gain())
}
