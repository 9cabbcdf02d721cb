package objwriter

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/oneconcern/ostree-go/internal/content"
	"github.com/oneconcern/ostree-go/internal/errors"
	"github.com/oneconcern/ostree-go/internal/objpath"
	"github.com/oneconcern/ostree-go/internal/stats"
)

func newHarness(t *testing.T, mode objpath.Mode) (*Writer, string) {
	t.Helper()
	objectsDir := t.TempDir()
	tmpDir := t.TempDir()
	objectsFd, err := unix.Open(objectsDir, unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	tmpFd, err := unix.Open(tmpDir, unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Close(objectsFd); _ = unix.Close(tmpFd) })
	return New(objectsFd, objectsDir, tmpFd, tmpDir, mode, nil, stats.New(), nil), objectsDir
}

func encodeRegularFile(t *testing.T, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	fi := content.FileInfo{Type: content.TypeRegular, UID: 1000, GID: 1000, Mode: 0644}
	_, err := content.EncodeContentStream(&buf, fi, nil, bytes.NewReader(payload))
	require.NoError(t, err)
	return buf.Bytes()
}

func TestWriteObjectMetadataInstallsOnce(t *testing.T) {
	w, objectsDir := newHarness(t, objpath.ModeBare)
	data := []byte("dirtree bytes")

	cs1, err := w.WriteObject(context.Background(), objpath.DirTree, nil, bytes.NewReader(data), int64(len(data)), false)
	require.NoError(t, err)

	rel := objpath.Rel(cs1, objpath.DirTree, objpath.ModeBare)
	_, err = os.Stat(filepath.Join(objectsDir, rel))
	require.NoError(t, err)

	cs2, err := w.WriteObject(context.Background(), objpath.DirTree, nil, bytes.NewReader(data), int64(len(data)), false)
	require.NoError(t, err)
	assert.Equal(t, cs1, cs2)

	snap := w.Stats.Snapshot()
	assert.EqualValues(t, 2, snap.MetadataObjectsTotal)
	assert.EqualValues(t, 1, snap.MetadataObjectsWritten)
}

func TestWriteObjectTrustedFastPathSkipsRead(t *testing.T) {
	w, _ := newHarness(t, objpath.ModeBare)
	data := []byte("dirmeta bytes")
	cs, err := w.WriteObject(context.Background(), objpath.DirMeta, nil, bytes.NewReader(data), int64(len(data)), false)
	require.NoError(t, err)

	poison := &explodingReader{}
	got, err := w.WriteObject(context.Background(), objpath.DirMeta, &cs, poison, int64(len(data)), false)
	require.NoError(t, err)
	assert.Equal(t, cs, got)
	assert.False(t, poison.wasRead, "an already-installed object must never be re-read on the trusted path")
}

type explodingReader struct{ wasRead bool }

func (e *explodingReader) Read([]byte) (int, error) {
	e.wasRead = true
	panic("should not be read")
}

func TestWriteObjectRejectsCorruptedExpectedChecksum(t *testing.T) {
	w, _ := newHarness(t, objpath.ModeBare)
	data := []byte("actual bytes")
	wrong := objpath.Sum([]byte("something else"))

	_, err := w.WriteObject(context.Background(), objpath.DirMeta, &wrong, bytes.NewReader(data), int64(len(data)), false)
	assert.True(t, errors.Is(err, errors.CorruptedObject))
}

func TestWriteObjectRegularFileBareMode(t *testing.T) {
	w, objectsDir := newHarness(t, objpath.ModeBare)
	stream := encodeRegularFile(t, []byte("file payload"))

	cs, err := w.WriteObject(context.Background(), objpath.File, nil, bytes.NewReader(stream), int64(len(stream)), false)
	require.NoError(t, err)

	rel := objpath.Rel(cs, objpath.File, objpath.ModeBare)
	got, err := os.ReadFile(filepath.Join(objectsDir, rel))
	require.NoError(t, err)
	assert.Equal(t, "file payload", string(got), "BARE FILE objects store payload-only bytes on disk")
}

func TestWriteObjectRegularFileArchiveZ2(t *testing.T) {
	w, objectsDir := newHarness(t, objpath.ModeArchiveZ2)
	stream := encodeRegularFile(t, []byte("compress me"))

	cs, err := w.WriteObject(context.Background(), objpath.File, nil, bytes.NewReader(stream), int64(len(stream)), false)
	require.NoError(t, err)

	rel := objpath.Rel(cs, objpath.File, objpath.ModeArchiveZ2)
	assert.Contains(t, rel, ".filez")
	_, err = os.Stat(filepath.Join(objectsDir, rel))
	require.NoError(t, err)
}

func TestWriteObjectRespectsCancellation(t *testing.T) {
	w, _ := newHarness(t, objpath.ModeBare)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.WriteObject(ctx, objpath.DirMeta, nil, bytes.NewReader([]byte("x")), 1, false)
	assert.True(t, errors.Is(err, errors.Cancelled))
}
