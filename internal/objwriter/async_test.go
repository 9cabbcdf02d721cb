package objwriter

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneconcern/ostree-go/internal/objpath"
)

func TestWriteObjectAsyncEachRequestGetsAResult(t *testing.T) {
	w, _ := newHarness(t, objpath.ModeBare)

	requests := make([]AsyncRequest, 8)
	for i := range requests {
		data := bytes.Repeat([]byte{byte('a' + i)}, 16)
		requests[i] = AsyncRequest{ObjType: objpath.DirMeta, Input: bytes.NewReader(data), DeclaredLength: int64(len(data))}
	}

	results := w.WriteObjectAsync(context.Background(), requests, 4)
	require.Len(t, results, len(requests))
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.NoError(t, r.Err)
		assert.False(t, r.Checksum.IsZero())
	}
}

func TestWriteObjectAsyncOneFailureDoesNotAbortSiblings(t *testing.T) {
	w, _ := newHarness(t, objpath.ModeBare)

	badExpected := objpath.Sum([]byte("mismatched"))
	requests := []AsyncRequest{
		{ObjType: objpath.DirMeta, Expected: &badExpected, Input: bytes.NewReader([]byte("real bytes")), DeclaredLength: 10},
		{ObjType: objpath.DirMeta, Input: bytes.NewReader([]byte("fine bytes")), DeclaredLength: 10},
	}

	results := w.WriteObjectAsync(context.Background(), requests, 4)
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
}

func TestVerifyLooseObjectMetadata(t *testing.T) {
	w, _ := newHarness(t, objpath.ModeBare)
	data := []byte("dirtree payload")
	cs, err := w.WriteObject(context.Background(), objpath.DirTree, nil, bytes.NewReader(data), int64(len(data)), false)
	require.NoError(t, err)

	assert.NoError(t, w.VerifyLooseObject(cs, objpath.DirTree))
}

func TestVerifyLooseObjectMissingIsNotFound(t *testing.T) {
	w, _ := newHarness(t, objpath.ModeBare)
	missing := objpath.Sum([]byte("never written"))
	err := w.VerifyLooseObject(missing, objpath.DirTree)
	assert.Error(t, err)
}

func TestVerifyLooseObjectDetectsBareFileTamper(t *testing.T) {
	w, objectsDir := newHarness(t, objpath.ModeBare)
	stream := encodeRegularFile(t, []byte("original payload"))
	cs, err := w.WriteObject(context.Background(), objpath.File, nil, bytes.NewReader(stream), int64(len(stream)), false)
	require.NoError(t, err)

	require.NoError(t, w.VerifyLooseObject(cs, objpath.File))

	rel := objpath.Rel(cs, objpath.File, objpath.ModeBare)
	require.NoError(t, os.WriteFile(filepath.Join(objectsDir, rel), []byte("tampered payload"), 0644))

	err = w.VerifyLooseObject(cs, objpath.File)
	assert.Error(t, err)
}
