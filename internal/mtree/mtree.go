// Package mtree implements the in-memory staging structure that
// accumulates a directory's file checksums and child subtrees before
// serialization into DIR_TREE objects (spec §4.5, C6).
package mtree

import (
	"fmt"
	"strings"

	"github.com/oneconcern/ostree-go/internal/objpath"
)

// Tree is one node of the mutable staging tree: a directory's
// name→file-checksum and name→subtree maps, plus a cache of its own
// metadata and (once computed) contents checksums.
//
// Setting Files or Subdirs invalidates the cached contents checksum:
// callers must go through ReplaceFile/EnsureDir rather than mutating
// the maps directly, or the cache becomes a stale mirror instead of a
// derived value.
type Tree struct {
	files   map[string]objpath.Checksum
	subdirs map[string]*Tree

	metadataChecksum *objpath.Checksum
	contentsChecksum *objpath.Checksum
}

// New returns an empty staging node.
func New() *Tree {
	return &Tree{
		files:   make(map[string]objpath.Checksum),
		subdirs: make(map[string]*Tree),
	}
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("mtree: invalid name %q", name)
	}
	if strings.ContainsRune(name, '/') {
		return fmt.Errorf("mtree: name %q is not a single path component", name)
	}
	return nil
}

// EnsureDir returns the existing subdir named name, creating it if
// absent. It fails if name already names a file.
func (t *Tree) EnsureDir(name string) (*Tree, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if _, isFile := t.files[name]; isFile {
		return nil, fmt.Errorf("mtree: %q already names a file", name)
	}
	if sub, ok := t.subdirs[name]; ok {
		return sub, nil
	}
	sub := New()
	t.subdirs[name] = sub
	t.contentsChecksum = nil
	return sub, nil
}

// ReplaceFile sets the checksum for the file named name. It fails if
// name already names a subdirectory.
func (t *Tree) ReplaceFile(name string, checksum objpath.Checksum) error {
	if err := validateName(name); err != nil {
		return err
	}
	if _, isDir := t.subdirs[name]; isDir {
		return fmt.Errorf("mtree: %q already names a subdirectory", name)
	}
	t.files[name] = checksum
	t.contentsChecksum = nil
	return nil
}

// SetMetadataChecksum records the DIR_META checksum for this node.
func (t *Tree) SetMetadataChecksum(cs objpath.Checksum) {
	c := cs
	t.metadataChecksum = &c
}

// MetadataChecksum returns the recorded DIR_META checksum, if any.
func (t *Tree) MetadataChecksum() (objpath.Checksum, bool) {
	if t.metadataChecksum == nil {
		return objpath.Checksum{}, false
	}
	return *t.metadataChecksum, true
}

// SetContentsChecksum records a known DIR_TREE checksum for this node,
// short-circuiting a future WriteMtree call (the reuse path of spec
// §4.6/§4.7).
func (t *Tree) SetContentsChecksum(cs objpath.Checksum) {
	c := cs
	t.contentsChecksum = &c
}

// ContentsChecksum returns the recorded DIR_TREE checksum, if any.
func (t *Tree) ContentsChecksum() (objpath.Checksum, bool) {
	if t.contentsChecksum == nil {
		return objpath.Checksum{}, false
	}
	return *t.contentsChecksum, true
}

// Files returns the node's name→checksum file map. Callers must treat
// it as read-only.
func (t *Tree) Files() map[string]objpath.Checksum {
	return t.files
}

// Subdirs returns the node's name→subtree map. Callers must treat it
// as read-only.
func (t *Tree) Subdirs() map[string]*Tree {
	return t.subdirs
}

// IsEmpty reports whether the node has neither files nor subdirs
// staged yet, used by the ingest reuse shortcut (spec §4.6).
func (t *Tree) IsEmpty() bool {
	return len(t.files) == 0 && len(t.subdirs) == 0
}
