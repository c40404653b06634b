package fsutil

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFileSystem(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "C.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFFdata"), 0o644))

	var fsys FileSystem = OSFileSystem{}
	assert.True(t, fsys.Exists(path))
	assert.False(t, fsys.Exists(filepath.Join(dir, "D.wav")))
	assert.False(t, fsys.Exists(dir), "directories are not samples")

	info, err := fsys.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 8, info.Size())

	f, err := fsys.Open(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Seek(4, io.SeekStart)
	require.NoError(t, err)
	rest, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "data", string(rest))
}

func TestMemoryFileSystem(t *testing.T) {
	m := NewMemoryFileSystem()
	require.NoError(t, m.WriteFile("/samples//E.wav", []byte("RIFFwave"), 0o644))

	assert.True(t, m.Exists("/samples/E.wav"))
	assert.False(t, m.Exists("/samples/F.wav"))

	info, err := m.Stat("/samples/E.wav")
	require.NoError(t, err)
	assert.Equal(t, "E.wav", info.Name())
	assert.EqualValues(t, 8, info.Size())

	f, err := m.Open("/samples/E.wav")
	require.NoError(t, err)

	// The open reader keeps its snapshot across overwrite and removal.
	require.NoError(t, m.WriteFile("/samples/E.wav", []byte("changed"), 0o644))
	require.NoError(t, m.Remove("/samples/E.wav"))
	_, err = f.Seek(4, io.SeekStart)
	require.NoError(t, err)
	rest, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "wave", string(rest))
	require.NoError(t, f.Close())

	assert.False(t, m.Exists("/samples/E.wav"))
	_, err = m.Open("/samples/E.wav")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = m.Stat("/samples/E.wav")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.ErrorIs(t, m.Remove("/samples/E.wav"), fs.ErrNotExist)
}

func TestMemoryFileSystemWriteCopiesData(t *testing.T) {
	m := NewMemoryFileSystem()
	data := []byte("RIFF")
	require.NoError(t, m.WriteFile("a.wav", data, 0o644))
	data[0] = 'X'

	f, err := m.Open("a.wav")
	require.NoError(t, err)
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(got))
}
