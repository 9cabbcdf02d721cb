// Package modifier implements the per-path commit filter callback
// (spec §4.8, C11): a filter that ALLOWs or SKIPs a path during
// ingest, and may edit a mutable copy of the path's metadata.
package modifier

import (
	"strings"

	"github.com/oneconcern/ostree-go/internal/content"
)

// Result is the verdict returned by a Filter for a given path.
type Result int

const (
	// Allow means ingest should include this path.
	Allow Result = iota
	// Skip means ingest should omit this path and its subtree.
	Skip
)

// Flags carries per-commit ingest flags.
type Flags uint32

const (
	// SkipXAttrs disables extended-attribute capture during ingest.
	SkipXAttrs Flags = 1 << iota
)

// FilterFunc is invoked once per logical path visited during ingest.
// It receives a mutable copy of the path's FileInfo that it may edit
// (uid/gid/mode); the original passed to Filter is never mutated.
type FilterFunc func(path string, info content.FileInfo, userData interface{}) (Result, content.FileInfo)

// Modifier bundles ingest flags with an optional filter callback and
// its user data. The C ABI this mirrors uses reference counting with
// an explicit destructor; Go's GC removes the need for that, so New
// and Close exist only to keep the public surface aligned with
// spec.md §6's commit_modifier_new/ref/unref — Close is a no-op
// unless a Destroy func was supplied.
type Modifier struct {
	Flags    Flags
	Filter   FilterFunc
	UserData interface{}
	destroy  func(interface{})
	closed   bool
}

// New builds a Modifier. destroy, if non-nil, runs exactly once when
// Close is called (even if Close is called more than once), the Go
// analog of a GDestroyNotify running on last unref.
func New(flags Flags, filter FilterFunc, userData interface{}, destroy func(interface{})) *Modifier {
	return &Modifier{Flags: flags, Filter: filter, UserData: userData, destroy: destroy}
}

// Close runs the destroy notifier exactly once.
func (m *Modifier) Close() {
	if m == nil || m.closed {
		return
	}
	m.closed = true
	if m.destroy != nil {
		m.destroy(m.UserData)
	}
}

// Apply implements spec §4.8: with no modifier or no filter attached,
// every path is ALLOWed and info is returned unchanged (no copy). With
// a filter, path is rendered as "/a/b/c" (root is "/"), and the
// callback receives a copy of info.
func Apply(m *Modifier, pathStack []string, info content.FileInfo) (Result, content.FileInfo) {
	if m == nil || m.Filter == nil {
		return Allow, info
	}
	pathStr := "/" + strings.Join(pathStack, "/")
	return m.Filter(pathStr, info, m.UserData)
}

// HasFlag reports whether m carries flag, tolerating a nil Modifier.
func HasFlag(m *Modifier, flag Flags) bool {
	if m == nil {
		return false
	}
	return m.Flags&flag != 0
}
