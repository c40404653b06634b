// Package fsutil abstracts the read-only view of the sample directory so
// the store can be tested without touching disk.
package fsutil

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// File is an open sample file. WAV decoding seeks back to the data chunk
// after parsing the header, so fs.File alone is not enough.
type File interface {
	fs.File
	io.Seeker
}

// FileSystem is the subset of file operations the sample store performs.
type FileSystem interface {
	Open(name string) (File, error)
	Stat(name string) (fs.FileInfo, error)
	// Exists reports whether name is a regular file.
	Exists(name string) bool
}

// OSFileSystem reads from the real filesystem.
type OSFileSystem struct{}

func (OSFileSystem) Open(name string) (File, error)        { return os.Open(name) }
func (OSFileSystem) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

func (OSFileSystem) Exists(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.Mode().IsRegular()
}

// MemoryFileSystem holds files in memory. Paths are cleaned, so "a//b.wav"
// and "a/b.wav" name the same file.
type MemoryFileSystem struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{files: make(map[string][]byte)}
}

// WriteFile stores a copy of data under name. perm is ignored.
func (m *MemoryFileSystem) WriteFile(name string, data []byte, _ os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filepath.Clean(name)] = bytes.Clone(data)
	return nil
}

// Remove deletes name; removing a missing file is an error like os.Remove.
func (m *MemoryFileSystem) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = filepath.Clean(name)
	if _, ok := m.files[name]; !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	delete(m.files, name)
	return nil
}

func (m *MemoryFileSystem) lookup(op, name string) (string, []byte, error) {
	name = filepath.Clean(name)
	m.mu.RLock()
	data, ok := m.files[name]
	m.mu.RUnlock()
	if !ok {
		return name, nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
	}
	return name, data, nil
}

// Open returns a reader over the contents as they were at the time of the
// call; later writes do not affect it.
func (m *MemoryFileSystem) Open(name string) (File, error) {
	name, data, err := m.lookup("open", name)
	if err != nil {
		return nil, err
	}
	return &memFile{Reader: bytes.NewReader(data), info: memInfo{name: filepath.Base(name), size: int64(len(data))}}, nil
}

func (m *MemoryFileSystem) Stat(name string) (fs.FileInfo, error) {
	name, data, err := m.lookup("stat", name)
	if err != nil {
		return nil, err
	}
	return memInfo{name: filepath.Base(name), size: int64(len(data))}, nil
}

func (m *MemoryFileSystem) Exists(name string) bool {
	_, _, err := m.lookup("stat", name)
	return err == nil
}

type memFile struct {
	*bytes.Reader
	info memInfo
}

func (f *memFile) Close() error               { return nil }
func (f *memFile) Stat() (fs.FileInfo, error) { return f.info, nil }

type memInfo struct {
	name string
	size int64
}

func (i memInfo) Name() string       { return i.name }
func (i memInfo) Size() int64        { return i.size }
func (i memInfo) Mode() fs.FileMode  { return 0o644 }
func (i memInfo) ModTime() time.Time { return time.Time{} }
func (i memInfo) IsDir() bool        { return false }
func (i memInfo) Sys() any           { return nil }
