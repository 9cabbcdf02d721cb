package content

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeParseContentStreamRegularFile(t *testing.T) {
	fi := FileInfo{Type: TypeRegular, UID: 1000, GID: 1000, Mode: 0644}
	xattrs := []XAttr{{Name: "user.foo", Value: []byte("bar")}}
	payload := []byte("hello, content stream")

	var buf bytes.Buffer
	n, err := EncodeContentStream(&buf, fi, xattrs, bytes.NewReader(payload))
	require.NoError(t, err)
	assert.EqualValues(t, buf.Len(), n)

	gotFI, gotXAttrs, gotPayload, err := ParseContentStream(&buf)
	require.NoError(t, err)
	assert.Equal(t, fi, gotFI)
	assert.Equal(t, xattrs, gotXAttrs)

	gotBytes, err := io.ReadAll(gotPayload)
	require.NoError(t, err)
	assert.Equal(t, payload, gotBytes)
}

func TestEncodeContentStreamSymlinkHasNoPayload(t *testing.T) {
	fi := FileInfo{Type: TypeSymlink, SymlinkTarget: "../elsewhere"}

	var buf bytes.Buffer
	_, err := EncodeContentStream(&buf, fi, nil, nil)
	require.NoError(t, err)

	gotFI, _, gotPayload, err := ParseContentStream(&buf)
	require.NoError(t, err)
	assert.Equal(t, fi, gotFI)
	rest, err := io.ReadAll(gotPayload)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestEncodeContentStreamRejectsUnsupportedType(t *testing.T) {
	fi := FileInfo{Type: FileType(99)}
	var buf bytes.Buffer
	_, err := EncodeContentStream(&buf, fi, nil, nil)
	assert.Error(t, err)
}

func TestContentStreamIsDeterministic(t *testing.T) {
	fi := FileInfo{Type: TypeRegular, UID: 1, GID: 2, Mode: 0600}
	xattrs := []XAttr{{Name: "user.a", Value: []byte("1")}}
	payload := []byte("same bytes twice")

	var a, b bytes.Buffer
	_, err := EncodeContentStream(&a, fi, xattrs, bytes.NewReader(payload))
	require.NoError(t, err)
	_, err = EncodeContentStream(&b, fi, xattrs, bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestZlibFileHeaderIsSizePrefixed(t *testing.T) {
	fi := FileInfo{Type: TypeRegular, Mode: 0644}
	header := ZlibFileHeader(fi, nil)
	assert.NotEmpty(t, header)
	require.GreaterOrEqual(t, len(header), 4)
	assert.EqualValues(t, len(header)-4, binary.BigEndian.Uint32(header[:4]))
}
