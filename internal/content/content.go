// Package content implements the canonical content-stream codec for
// FILE objects: the (file_info, xattrs, payload) encoding whose
// SHA-256 is the content object's identifier (spec §3, §4.1). This
// stands in for the "raw_file_to_content_stream" / "content_stream_
// parse" collaborators spec.md lists as external, giving them a
// concrete shape so the object writer has something to parse.
package content

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/oneconcern/ostree-go/internal/errors"
	"github.com/oneconcern/ostree-go/internal/xattr"
)

// FileType distinguishes the two supported content object shapes.
type FileType uint8

const (
	// TypeRegular is a plain file with a byte payload.
	TypeRegular FileType = iota
	// TypeSymlink carries a target string instead of a payload.
	TypeSymlink
)

// XAttr is a single extended attribute name/value pair.
type XAttr = xattr.Pair

// FileInfo is the metadata half of a content object.
type FileInfo struct {
	Type          FileType
	UID           uint32
	GID           uint32
	Mode          uint32 // permission bits; ingest and verification record only the 0o777 bits
	SymlinkTarget string // only meaningful when Type == TypeSymlink
}

// encodeMeta writes the canonical (file_info, xattrs) encoding to buf.
// Layout: 1 byte type, uid/gid/mode as big-endian uint32, a
// length-prefixed symlink target, the xattr count as a big-endian
// uint32, then each xattr as length-prefixed name/value.
func encodeMeta(buf *bytes.Buffer, fi FileInfo, xattrs []XAttr) {
	buf.WriteByte(byte(fi.Type))
	writeU32(buf, fi.UID)
	writeU32(buf, fi.GID)
	writeU32(buf, fi.Mode)
	writeString(buf, fi.SymlinkTarget)
	writeU32(buf, uint32(len(xattrs)))
	for _, x := range xattrs {
		writeString(buf, x.Name)
		writeBytes(buf, x.Value)
	}
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeU32(buf, uint32(len(b)))
	buf.Write(b)
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func decodeMeta(r *bytes.Reader) (FileInfo, []XAttr, error) {
	var fi FileInfo
	typeByte, err := r.ReadByte()
	if err != nil {
		return fi, nil, err
	}
	fi.Type = FileType(typeByte)
	if fi.UID, err = readU32(r); err != nil {
		return fi, nil, err
	}
	if fi.GID, err = readU32(r); err != nil {
		return fi, nil, err
	}
	if fi.Mode, err = readU32(r); err != nil {
		return fi, nil, err
	}
	target, err := readBytes(r)
	if err != nil {
		return fi, nil, err
	}
	fi.SymlinkTarget = string(target)
	count, err := readU32(r)
	if err != nil {
		return fi, nil, err
	}
	xattrs := make([]XAttr, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := readBytes(r)
		if err != nil {
			return fi, nil, err
		}
		value, err := readBytes(r)
		if err != nil {
			return fi, nil, err
		}
		xattrs = append(xattrs, XAttr{Name: string(name), Value: value})
	}
	return fi, xattrs, nil
}

// EncodeContentStream writes the canonical content-stream encoding of
// a FILE object: a length-prefixed meta block followed by the raw
// payload (regular files only; symlinks carry their target in the
// meta block and have no payload). This is the stream C7 hashes
// through the object writer.
func EncodeContentStream(w io.Writer, fi FileInfo, xattrs []XAttr, payload io.Reader) (int64, error) {
	if fi.Type != TypeRegular && fi.Type != TypeSymlink {
		return 0, errors.UnsupportedFileType
	}
	var meta bytes.Buffer
	encodeMeta(&meta, fi, xattrs)

	var header bytes.Buffer
	writeBytes(&header, meta.Bytes())
	n, err := w.Write(header.Bytes())
	if err != nil {
		return int64(n), err
	}
	total := int64(n)
	if fi.Type == TypeRegular && payload != nil {
		copied, err := io.Copy(w, payload)
		total += copied
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ParseContentStream reads back a content-stream encoding, splitting
// it into metadata and a payload reader positioned at the remaining
// bytes of r.
func ParseContentStream(r io.Reader) (FileInfo, []XAttr, io.Reader, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return FileInfo{}, nil, nil, fmt.Errorf("content: reading meta length: %w", err)
	}
	metaLen := binary.BigEndian.Uint32(lenBuf[:])
	metaBytes := make([]byte, metaLen)
	if _, err := io.ReadFull(r, metaBytes); err != nil {
		return FileInfo{}, nil, nil, fmt.Errorf("content: reading meta: %w", err)
	}
	fi, xattrs, err := decodeMeta(bytes.NewReader(metaBytes))
	if err != nil {
		return FileInfo{}, nil, nil, fmt.Errorf("content: decoding meta: %w", err)
	}
	return fi, xattrs, r, nil
}

// ZlibFileHeader builds the ARCHIVE_Z2 header variant: a size-prefixed
// (file_info, xattrs) block written verbatim ahead of the zlib-RAW
// compressed payload (spec §4.1, §6).
func ZlibFileHeader(fi FileInfo, xattrs []XAttr) []byte {
	var meta bytes.Buffer
	encodeMeta(&meta, fi, xattrs)

	var out bytes.Buffer
	writeU32(&out, uint32(meta.Len()))
	out.Write(meta.Bytes())
	return out.Bytes()
}
