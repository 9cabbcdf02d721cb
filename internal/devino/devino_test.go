package devino

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneconcern/ostree-go/internal/objpath"
)

func writeLooseFile(t *testing.T, objectsDir string, cs objpath.Checksum, suffix string) {
	t.Helper()
	rel := cs.String()
	dir := filepath.Join(objectsDir, rel[:2])
	require.NoError(t, os.MkdirAll(dir, 0777))
	require.NoError(t, os.WriteFile(filepath.Join(dir, rel[2:]+suffix), []byte("payload"), 0644))
}

func TestScanObjectsDirFindsFileObjects(t *testing.T) {
	dir := t.TempDir()
	cs := objpath.Sum([]byte("some content"))
	writeLooseFile(t, dir, cs, ".file")

	cache, err := ScanObjectsDir(dir, objpath.ModeBare)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	info, err := os.Lstat(filepath.Join(dir, cs.String()[:2], cs.String()[2:]+".file"))
	require.NoError(t, err)
	key := keyFromInfo(t, info)
	got, ok := cache.Lookup(key)
	assert.True(t, ok)
	assert.Equal(t, cs, got)
}

func TestScanObjectsDirIgnoresNonFileSuffixes(t *testing.T) {
	dir := t.TempDir()
	cs := objpath.Sum([]byte("a commit"))
	writeLooseFile(t, dir, cs, ".commit")

	cache, err := ScanObjectsDir(dir, objpath.ModeBare)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.Len())
}

func TestScanObjectsDirMissingDirIsNotAnError(t *testing.T) {
	cache, err := ScanObjectsDir(filepath.Join(t.TempDir(), "does-not-exist"), objpath.ModeBare)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.Len())
}

func TestArchiveZ2NeverPopulatesFromFileEntries(t *testing.T) {
	dir := t.TempDir()
	cs := objpath.Sum([]byte("archived"))
	writeLooseFile(t, dir, cs, ".file")

	cache, err := ScanObjectsDir(dir, objpath.ModeArchiveZ2)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.Len(), "ARCHIVE_Z2 repos have no .file entries to reuse, by design")
}

func TestMergeChildWinsOverParent(t *testing.T) {
	parent := New()
	child := New()
	key := Key{Dev: 1, Ino: 1}
	parentCS := objpath.Sum([]byte("parent"))
	childCS := objpath.Sum([]byte("child"))
	parent.insert(key, parentCS)
	child.insert(key, childCS)

	merged := New()
	merged.Merge(parent)
	merged.Merge(child)

	got, ok := merged.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, childCS, got)
}

func TestMemoSkipsUnchangedBuckets(t *testing.T) {
	dir := t.TempDir()
	cs := objpath.Sum([]byte("memo me"))
	writeLooseFile(t, dir, cs, ".file")

	m := NewMemo()
	cache, err := m.Scan(dir, objpath.ModeBare)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	cache2, err := m.Scan(dir, objpath.ModeBare)
	require.NoError(t, err)
	assert.Same(t, cache, cache2, "Memo must return its cumulative cache across calls")
	assert.Equal(t, 1, cache2.Len())
}

func keyFromInfo(t *testing.T, info os.FileInfo) Key {
	t.Helper()
	stat, ok := info.Sys().(*syscall.Stat_t)
	require.True(t, ok)
	return Key{Dev: uint64(stat.Dev), Ino: uint64(stat.Ino)}
}
