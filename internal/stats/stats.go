// Package stats implements the transaction statistics block from
// spec §3: counters that only ever advance, guarded by their own
// mutex so object-writer worker goroutines can update them
// concurrently (spec §5).
package stats

import "sync"

// Counters is a point-in-time snapshot of a transaction's write
// activity. The _total counters advance on every WriteObject call
// regardless of whether an install happened; the ratio of written to
// total measures dedup effectiveness within the transaction.
type Counters struct {
	MetadataObjectsWritten uint64
	MetadataObjectsTotal   uint64
	ContentObjectsWritten  uint64
	ContentObjectsTotal    uint64
	ContentBytesWritten    uint64
}

// Stats is the mutex-guarded live counter block owned by a
// transaction.
type Stats struct {
	mu sync.Mutex
	c  Counters
}

// New returns a zeroed Stats block.
func New() *Stats {
	return &Stats{}
}

// Reset zeroes all counters, called at the start of a transaction
// (spec §4.10).
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c = Counters{}
}

// RecordMetadata bumps the metadata counters: total always, written
// only if installed is true.
func (s *Stats) RecordMetadata(installed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.MetadataObjectsTotal++
	if installed {
		s.c.MetadataObjectsWritten++
	}
}

// RecordContent bumps the content counters: total always, written and
// content-bytes only if installed is true. declaredLength is the
// caller-declared object length, not necessarily the number of bytes
// physically written (spec §4.1).
func (s *Stats) RecordContent(installed bool, declaredLength int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.ContentObjectsTotal++
	if installed {
		s.c.ContentObjectsWritten++
		if declaredLength > 0 {
			s.c.ContentBytesWritten += uint64(declaredLength)
		}
	}
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c
}
