// Package samples locates the pre-rendered note files, one WAV per note
// named after it (C.wav .. H.wav), in a single directory.
package samples

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/go-audio/wav"

	"github.com/banshee-data/presence-piano/internal/fsutil"
	"github.com/banshee-data/presence-piano/internal/notes"
)

// Store serves sample files from a directory.
type Store struct {
	fs  fsutil.FileSystem
	dir string
}

// NewStore creates a Store rooted at dir. A nil fsys uses the OS filesystem.
func NewStore(fsys fsutil.FileSystem, dir string) *Store {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &Store{fs: fsys, dir: dir}
}

// Dir returns the directory the store reads from.
func (s *Store) Dir() string { return s.dir }

// Path returns the file path for n.
func (s *Store) Path(n notes.Note) string {
	return filepath.Join(s.dir, n.String()+".wav")
}

// Exists reports whether a sample file is present for n.
func (s *Store) Exists(n notes.Note) bool {
	if !n.Valid() {
		return false
	}
	return s.fs.Exists(s.Path(n))
}

// Open opens the sample for n.
func (s *Store) Open(n notes.Note) (io.ReadSeekCloser, error) {
	if !n.Valid() {
		return nil, fmt.Errorf("open sample: %w: %d", notes.ErrUnknownNote, n)
	}
	f, err := s.fs.Open(s.Path(n))
	if err != nil {
		return nil, fmt.Errorf("open sample %s: %w", n, err)
	}
	return f, nil
}

// Status describes one note's sample file.
type Status struct {
	Note       notes.Note
	Path       string
	Present    bool
	Size       int64
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
	// Err is set when the file exists but is not playable PCM.
	Err error
}

// OK reports whether the sample is present and playable.
func (st Status) OK() bool { return st.Present && st.Err == nil }

// Status inspects every note's sample in scale order.
func (s *Store) Status() []Status {
	out := make([]Status, 0, notes.Count)
	for _, n := range notes.All {
		out = append(out, s.inspect(n))
	}
	return out
}

func (s *Store) inspect(n notes.Note) Status {
	st := Status{Note: n, Path: s.Path(n)}
	if !s.Exists(n) {
		return st
	}
	st.Present = true

	if info, err := s.fs.Stat(st.Path); err == nil {
		st.Size = info.Size()
	}

	f, err := s.fs.Open(st.Path)
	if err != nil {
		st.Err = err
		return st
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		st.Err = fmt.Errorf("%s: not a valid WAV file", filepath.Base(st.Path))
		return st
	}
	st.SampleRate = int(dec.SampleRate)
	st.Channels = int(dec.NumChans)
	st.BitDepth = int(dec.BitDepth)
	if dec.WavAudioFormat != wavFormatPCM {
		st.Err = fmt.Errorf("%s: unsupported WAV encoding %d, want PCM", filepath.Base(st.Path), dec.WavAudioFormat)
		return st
	}
	if err := dec.FwdToPCM(); err != nil {
		st.Err = fmt.Errorf("%s: no PCM data: %w", filepath.Base(st.Path), err)
		return st
	}
	st.Duration = pcmDuration(dec.PCMSize, st.SampleRate, st.Channels, st.BitDepth)
	return st
}

// pcmDuration is the play time of size bytes of PCM data. Header and
// trailing chunks are not counted.
func pcmDuration(size, sampleRate, channels, bitDepth int) time.Duration {
	bytesPerSecond := sampleRate * channels * bitDepth / 8
	if size <= 0 || bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(int64(size) * int64(time.Second) / int64(bytesPerSecond))
}

const wavFormatPCM = 1
