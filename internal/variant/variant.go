// Package variant implements the canonical binary encodings for the
// three metadata object kinds (COMMIT, DIR_TREE, DIR_META), matching
// the GVariant tuple signatures documented in spec.md §6. Sorting and
// byte layout here are load-bearing: spec §8's determinism property
// requires identical logical content to produce byte-identical
// encodings on every platform, so nothing here may depend on map
// iteration order or platform-specific integer width.
package variant

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/oneconcern/ostree-go/internal/content"
	"github.com/oneconcern/ostree-go/internal/objpath"
)

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeU32(buf, uint32(len(b)))
	buf.Write(b)
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func writeChecksum(buf *bytes.Buffer, cs objpath.Checksum) {
	buf.Write(cs[:])
}

// RelatedCommit is one entry of a commit's "related objects" array
// (spec §7 supplemented feature; always empty unless a caller opts
// in).
type RelatedCommit struct {
	Name     string
	Checksum objpath.Checksum
}

// Commit is the logical content of a COMMIT metadata object:
// (metadata_dict, parent, related, subject, body, timestamp, root_
// contents, root_meta).
type Commit struct {
	Parent        objpath.Checksum // zero value means "no parent"
	HasParent     bool
	Related       []RelatedCommit
	Subject       string
	Body          string
	TimestampUnix uint64 // UTC seconds, big-endian on the wire
	RootContents  objpath.Checksum
	RootMeta      objpath.Checksum
}

// Encode writes the canonical byte encoding of c to w.
func (c Commit) Encode(w io.Writer) (int64, error) {
	var buf bytes.Buffer

	// metadata_dict: a{sv}, always empty for this engine.
	writeU32(&buf, 0)

	if c.HasParent {
		writeBytes(&buf, c.Parent[:])
	} else {
		writeBytes(&buf, nil)
	}

	writeU32(&buf, uint32(len(c.Related)))
	for _, rel := range c.Related {
		writeString(&buf, rel.Name)
		writeChecksum(&buf, rel.Checksum)
	}

	writeString(&buf, c.Subject)
	writeString(&buf, c.Body)
	writeU64(&buf, c.TimestampUnix)
	writeChecksum(&buf, c.RootContents)
	writeChecksum(&buf, c.RootMeta)

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// FileEntry is one (name, checksum) leaf of a DIR_TREE object.
type FileEntry struct {
	Name     string
	Checksum objpath.Checksum
}

// SubdirEntry is one (name, contents, metadata) branch of a DIR_TREE
// object.
type SubdirEntry struct {
	Name             string
	ContentsChecksum objpath.Checksum
	MetadataChecksum objpath.Checksum
}

// DirTree is the logical content of a DIR_TREE metadata object:
// (files_sorted, subdirs_sorted).
type DirTree struct {
	Files   []FileEntry
	Subdirs []SubdirEntry
}

// Sort orders Files and Subdirs ascending by name, the byte-wise
// equivalent of strcmp for the path components ingest produces (spec
// §4.7's correctness requirement).
func (t *DirTree) Sort() {
	sort.Slice(t.Files, func(i, j int) bool { return t.Files[i].Name < t.Files[j].Name })
	sort.Slice(t.Subdirs, func(i, j int) bool { return t.Subdirs[i].Name < t.Subdirs[j].Name })
}

// Encode writes the canonical byte encoding of t to w. Callers must
// call Sort first; Encode does not sort implicitly so that callers
// who already maintain sorted order (e.g. a cached mtree) don't pay
// twice.
func (t DirTree) Encode(w io.Writer) (int64, error) {
	var buf bytes.Buffer

	writeU32(&buf, uint32(len(t.Files)))
	for _, f := range t.Files {
		writeString(&buf, f.Name)
		writeChecksum(&buf, f.Checksum)
	}

	writeU32(&buf, uint32(len(t.Subdirs)))
	for _, s := range t.Subdirs {
		writeString(&buf, s.Name)
		writeChecksum(&buf, s.ContentsChecksum)
		writeChecksum(&buf, s.MetadataChecksum)
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// DirMeta is the logical content of a DIR_META metadata object:
// ownership, mode and extended attributes for one directory. Produced
// here as a concrete stand-in for the "external dirmeta encoder"
// spec.md references by contract.
type DirMeta struct {
	UID    uint32
	GID    uint32
	Mode   uint32
	XAttrs []content.XAttr
}

// Encode writes the canonical byte encoding of m to w.
func (m DirMeta) Encode(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	writeU32(&buf, m.UID)
	writeU32(&buf, m.GID)
	writeU32(&buf, m.Mode)
	writeU32(&buf, uint32(len(m.XAttrs)))
	for _, x := range m.XAttrs {
		writeString(&buf, x.Name)
		writeBytes(&buf, x.Value)
	}
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// EncodeToBytes is a convenience used by tests and by callers that
// need the raw bytes to hash rather than to stream.
func EncodeToBytes(enc interface {
	Encode(io.Writer) (int64, error)
}) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := enc.Encode(&buf); err != nil {
		return nil, fmt.Errorf("variant: encoding: %w", err)
	}
	return buf.Bytes(), nil
}
