// Package errors augments the standard errors package with a Wrap
// method, and defines the sentinel error kinds surfaced by the commit
// engine.
package errors

import (
	stderr "errors"
	"fmt"
)

var _ error = New("")

// New builds an Error carrying msg. The returned value is also its own
// sentinel identity: Wrap()ing it preserves that identity so Is()
// checks keep working after the message has been wrapped with a
// cause.
func New(msg string) *Error {
	e := &Error{msg: msg}
	e.kind = e
	return e
}

// Error augments the standard error interface with a Wrap method.
//
// The difference with github.com/pkg/errors is that we wrap errors
// from errors, not from text.
type Error struct {
	msg  string
	err  error
	kind *Error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

// Unwrap returns the nested error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Wrap returns a copy of e carrying err as its nested cause. Sentinel
// kinds like Cancelled are shared package-level values that many
// goroutines wrap concurrently, so Wrap must not mutate the receiver;
// the copy keeps e's sentinel identity for Is().
func (e *Error) Wrap(err error) *Error {
	return &Error{msg: e.msg, err: err, kind: e.kind}
}

// Is reports whether target shares e's sentinel identity, so a wrapped
// error still matches the sentinel it was built from.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == t.kind
}

// As is a shortcut to the standard library's errors.As.
func As(err error, target interface{}) bool {
	return stderr.As(err, target)
}

// Is is a shortcut to the standard library's errors.Is.
func Is(err, target error) bool {
	return stderr.Is(err, target)
}

// Sentinel error kinds from spec §7. Operations return or Wrap one of
// these for cancellation, checksum mismatch, unsupported file types,
// temp-name exhaustion, and (IO) ref publication failures at commit, so
// callers can Is()-check the kind while still seeing the underlying
// error in the message. Other filesystem failures are returned wrapped
// with fmt.Errorf and carry no sentinel kind.
var (
	// Cancelled is returned when a cancellation check fails at an
	// entry point or I/O boundary.
	Cancelled = New("cancelled")

	// NotFound is returned when a referenced object does not exist.
	NotFound = New("not found")

	// UnsupportedFileType is returned for device, fifo, or socket
	// entries encountered during ingest.
	UnsupportedFileType = New("unsupported file type")

	// CorruptedObject is returned when a supplied expected checksum
	// does not match the computed one.
	CorruptedObject = New("corrupted object")

	// Exhausted is returned when temp-name generation exceeds its
	// retry budget.
	Exhausted = New("exhausted attempts to create temporary name")

	// IO wraps an underlying OS/syscall error.
	IO = New("io error")
)
