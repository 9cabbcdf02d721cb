// Package txn implements the transaction lifecycle (spec §4.10, C10):
// the prepare/commit/abort state machine that owns a repository's
// devino cache, pending ref updates, and per-transaction stats for the
// duration of one write session.
package txn

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/oneconcern/ostree-go/internal/devino"
	"github.com/oneconcern/ostree-go/internal/errors"
	"github.com/oneconcern/ostree-go/internal/objpath"
	"github.com/oneconcern/ostree-go/internal/refs"
	"github.com/oneconcern/ostree-go/internal/stats"
)

// lockName is the advisory lock symlink's basename under a repo's
// state directory, matching the original source's transaction file.
const lockName = "transaction"

// State is the transaction's lifecycle phase.
type State int

const (
	// Idle means no transaction is open.
	Idle State = iota
	// Open means Prepare has succeeded and writes are permitted.
	Open
)

// Txn tracks one open write session against a repository.
//
// It does not itself perform object I/O — that is objwriter's job —
// it owns the state an open transaction accumulates: the devino cache
// built for hardlink reuse, the set of ref updates queued for publish
// at Commit time, and the stats block object writers report into.
type Txn struct {
	stateDir string
	refsRoot string
	tmpDir   string
	mode     objpath.Mode

	log *zap.Logger

	state   State
	lockRel string

	devino  *devino.Cache
	stats   *stats.Stats
	pending []refs.Update
}

// New returns a Txn scoped to a repository's state directory (holds
// the lock symlink), tmp directory (wiped at commit/abort), and refs
// directory.
func New(stateDir, refsRoot, tmpDir string, mode objpath.Mode, log *zap.Logger) *Txn {
	if log == nil {
		log = zap.NewNop()
	}
	return &Txn{
		stateDir: stateDir,
		refsRoot: refsRoot,
		tmpDir:   tmpDir,
		mode:     mode,
		log:      log,
		stats:    stats.New(),
	}
}

// Stats returns the live stats block, valid for the duration of an
// open transaction.
func (t *Txn) Stats() *stats.Stats { return t.stats }

// Devino returns the transaction's hardlink-reuse cache, nil until a
// caller installs one via SetDevinoCache (Prepare does not build it).
func (t *Txn) Devino() *devino.Cache { return t.devino }

// SetDevinoCache installs a devino cache built by the caller (spec
// §4.4 step 1's "at most once per transaction" scan happens above this
// package, in the repo façade, which knows about parent repos).
func (t *Txn) SetDevinoCache(c *devino.Cache) { t.devino = c }

// IsOpen reports whether a transaction is currently open.
func (t *Txn) IsOpen() bool { return t.state == Open }

// Prepare acquires the advisory transaction lock and resets
// per-transaction state (spec §4.10 step 1). The lock is a crash
// marker, not mutual exclusion between processes — there is no flock
// here — so a pre-existing lock symlink is always unlinked and
// reclaimed unconditionally, regardless of whether the pid it names is
// still alive. resume reports whether a prior lock was found, i.e.
// whether this Prepare is resuming after an unclean exit (spec
// §4.10's prepare_transaction() → resume?).
func (t *Txn) Prepare() (resume bool, err error) {
	if t.state == Open {
		return false, fmt.Errorf("txn: already open")
	}
	if err := os.MkdirAll(t.stateDir, 0777); err != nil {
		return false, fmt.Errorf("txn: creating state dir: %w", err)
	}
	lockPath := filepath.Join(t.stateDir, lockName)

	_, err = os.Readlink(lockPath)
	switch {
	case err == nil:
		resume = true
		if rmErr := os.Remove(lockPath); rmErr != nil && !os.IsNotExist(rmErr) {
			return false, fmt.Errorf("txn: clearing existing lock: %w", rmErr)
		}
	case !os.IsNotExist(err):
		return false, fmt.Errorf("txn: reading lock: %w", err)
	}

	if err := os.Symlink(fmt.Sprintf("pid=%d", os.Getpid()), lockPath); err != nil {
		return false, fmt.Errorf("txn: acquiring lock: %w", err)
	}

	t.stats.Reset()
	t.pending = nil
	t.state = Open
	t.log.Debug("transaction prepared", zap.String("lock", lockPath), zap.Bool("resume", resume))
	return resume, nil
}

// SetRef queues a ref update to publish at Commit time (spec §4.10's
// "transaction_set_ref" collaborator). A nil checksum queues a
// deletion.
func (t *Txn) SetRef(ref refs.Refspec, checksum *objpath.Checksum) error {
	if t.state != Open {
		return fmt.Errorf("txn: no open transaction")
	}
	t.pending = append(t.pending, refs.Update{Ref: ref, Checksum: checksum})
	return nil
}

// Commit wipes tmp/, publishes every queued ref update, and releases
// the transaction lock (spec §4.10 step 3, in order: cleanup_tmpdir,
// clear devino, apply refs, unlock). The devino cache and pending ref
// list are cleared; stats survive Commit so callers can inspect the
// just-finished transaction's totals.
func (t *Txn) Commit() (stats.Counters, error) {
	if t.state != Open {
		return stats.Counters{}, fmt.Errorf("txn: no open transaction")
	}
	if err := wipeDir(t.tmpDir); err != nil {
		return stats.Counters{}, err
	}
	t.devino = nil
	store := refs.New(t.refsRoot)
	if err := store.ApplyAll(t.pending); err != nil {
		return stats.Counters{}, errors.IO.Wrap(err)
	}
	snapshot := t.stats.Snapshot()
	t.pending = nil
	if err := t.releaseLock(); err != nil {
		return snapshot, err
	}
	t.state = Idle
	t.log.Debug("transaction committed",
		zap.Uint64("content_written", snapshot.ContentObjectsWritten),
		zap.Uint64("metadata_written", snapshot.MetadataObjectsWritten))
	return snapshot, nil
}

// Abort wipes tmp/, discards queued ref updates, and releases the
// transaction lock without touching any already-installed loose
// object (spec §4.10 step 4 and §1's Non-goals: object installs are
// not undone by Abort, only pending ref publication is). Abort with no
// open transaction is a no-op.
func (t *Txn) Abort() error {
	if t.state != Open {
		return nil
	}
	if err := wipeDir(t.tmpDir); err != nil {
		return err
	}
	t.pending = nil
	t.devino = nil
	if err := t.releaseLock(); err != nil {
		return err
	}
	t.state = Idle
	t.log.Debug("transaction aborted")
	return nil
}

func (t *Txn) releaseLock() error {
	lockPath := filepath.Join(t.stateDir, lockName)
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("txn: releasing lock: %w", err)
	}
	return nil
}

// wipeDir removes every entry under dir without removing dir itself —
// callers keep an open directory fd across transactions (spec §4.10's
// cleanup_tmpdir step), so the directory inode must survive.
func wipeDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("txn: reading tmp dir: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("txn: wiping tmp dir: %w", err)
		}
	}
	return nil
}
