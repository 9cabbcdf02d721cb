// Package objpath implements the object identifier, the fanout path
// policy, and the loose-object existence probe (spec §4.1 C1, §4.2
// C2).
package objpath

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/sys/unix"
)

// Size is the length in bytes of a checksum (SHA-256).
const Size = sha256.Size

// Checksum is a content identifier: the SHA-256 of an object's
// canonical serialization.
type Checksum [Size]byte

// Sum computes the checksum of data.
func Sum(data []byte) Checksum {
	return Checksum(sha256.Sum256(data))
}

// String renders the checksum as lowercase hex.
func (c Checksum) String() string {
	return hex.EncodeToString(c[:])
}

// IsZero reports whether c is the zero checksum (used to signal "no
// parent" / "not set").
func (c Checksum) IsZero() bool {
	return c == Checksum{}
}

// FromHex parses a 64-character hex string into a Checksum.
func FromHex(s string) (Checksum, error) {
	var c Checksum
	if len(s) != Size*2 {
		return c, fmt.Errorf("objpath: checksum %q has length %d, want %d", s, len(s), Size*2)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("objpath: decoding checksum %q: %w", s, err)
	}
	copy(c[:], b)
	return c, nil
}

// Type is one of the four persisted object kinds.
type Type int

const (
	// Commit objects hold the root pointer, timestamp, subject and
	// parent link.
	Commit Type = iota
	// DirTree objects hold the recursive directory manifest.
	DirTree
	// DirMeta objects hold per-directory ownership/mode/xattrs.
	DirMeta
	// File objects hold regular file and symlink content plus
	// metadata.
	File
)

// IsMeta reports whether t is one of the metadata object kinds
// (everything but File), matching OSTREE_OBJECT_TYPE_IS_META.
func (t Type) IsMeta() bool {
	return t != File
}

func (t Type) String() string {
	switch t {
	case Commit:
		return "commit"
	case DirTree:
		return "dirtree"
	case DirMeta:
		return "dirmeta"
	case File:
		return "file"
	default:
		return "unknown"
	}
}

// Mode selects how File objects are stored on disk.
type Mode int

const (
	// ModeBare stores files verbatim, with their real uid/gid/mode/
	// xattrs applied to the filesystem entry itself.
	ModeBare Mode = iota
	// ModeArchiveZ2 stores files as a header variant followed by a
	// zlib-RAW compressed payload.
	ModeArchiveZ2
)

func (m Mode) String() string {
	if m == ModeArchiveZ2 {
		return "archive-z2"
	}
	return "bare"
}

// suffix returns the on-disk filename suffix for an object of type t
// stored under mode.
func suffix(t Type, mode Mode) string {
	switch t {
	case Commit:
		return "commit"
	case DirTree:
		return "dirtree"
	case DirMeta:
		return "dirmeta"
	case File:
		if mode == ModeArchiveZ2 {
			return "filez"
		}
		return "file"
	default:
		return "file"
	}
}

// Rel returns the object's path relative to the objects/ directory:
// "<xx>/<rest>.<suffix>", exactly two hex fanout characters followed
// by the remaining 62.
func Rel(cs Checksum, t Type, mode Mode) string {
	hexs := cs.String()
	return hexs[0:2] + "/" + hexs[2:] + "." + suffix(t, mode)
}

// Probe answers "does the store already hold object X?" by
// faccessat-ing its relative path under the open objects directory
// fd, per spec §4.2. On miss, it recurses into parent, when supplied.
//
// It returns the relative path regardless of existence, since callers
// need it either way to install or read the object.
func Probe(objectsFd int, cs Checksum, t Type, mode Mode, parent ProbeFunc) (bool, string, error) {
	rel := Rel(cs, t, mode)
	err := unix.Faccessat(objectsFd, rel, unix.F_OK, 0)
	if err == nil {
		return true, rel, nil
	}
	if err != unix.ENOENT {
		return false, rel, fmt.Errorf("objpath: probing %s: %w", rel, err)
	}
	if parent != nil {
		if ok, _, perr := parent(cs, t, mode); perr == nil && ok {
			return true, rel, nil
		}
	}
	return false, rel, nil
}

// ProbeFunc is the shape of Probe, used to chain into a parent repo.
type ProbeFunc func(cs Checksum, t Type, mode Mode) (bool, string, error)
