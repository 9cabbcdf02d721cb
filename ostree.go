// Package ostree is the public façade over the commit engine: it ties
// together the object writer, transaction lifecycle, directory
// ingest, and commit builder behind one repository handle, the way
// datamon's pkg/cafs exposes a single Fs interface over its private
// writer/reader/hasher collaborators.
package ostree

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/oneconcern/ostree-go/internal/commit"
	"github.com/oneconcern/ostree-go/internal/devino"
	"github.com/oneconcern/ostree-go/internal/dlog"
	"github.com/oneconcern/ostree-go/internal/ingest"
	"github.com/oneconcern/ostree-go/internal/modifier"
	"github.com/oneconcern/ostree-go/internal/mtree"
	"github.com/oneconcern/ostree-go/internal/objpath"
	"github.com/oneconcern/ostree-go/internal/objwriter"
	"github.com/oneconcern/ostree-go/internal/refs"
	"github.com/oneconcern/ostree-go/internal/repoconfig"
	"github.com/oneconcern/ostree-go/internal/stats"
	"github.com/oneconcern/ostree-go/internal/txn"
	"github.com/oneconcern/ostree-go/internal/variant"
)

// Mode re-exports the storage mode enum at the package root, so
// callers never need to import internal/objpath directly.
type Mode = objpath.Mode

const (
	ModeBare      = objpath.ModeBare
	ModeArchiveZ2 = objpath.ModeArchiveZ2
)

// Checksum re-exports the object identifier type.
type Checksum = objpath.Checksum

// Repo is a repository handle: an open objects/ and tmp/ directory,
// a storage mode, an optional parent repository for the devino/probe
// chain, and the transaction state for the write session currently in
// progress (spec §3's Repository handle / Transaction state).
type Repo struct {
	path       string
	mode       Mode
	log        *zap.Logger
	objectsDir string
	tmpDir     string
	refsDir    string
	stateDir   string

	objectsFd int
	tmpDirFd  int

	parent *Repo

	txn    *txn.Txn
	writer *objwriter.Writer
}

// Create lays out a new repository at path: objects/, tmp/, refs/,
// and state/ directories plus a config file recording mode.
func Create(path string, mode Mode, log *zap.Logger) (*Repo, error) {
	for _, sub := range []string{"objects", "tmp", "refs/heads", "refs/remotes", "state"} {
		if err := os.MkdirAll(filepath.Join(path, sub), 0777); err != nil {
			return nil, fmt.Errorf("ostree: creating %s: %w", sub, err)
		}
	}
	modeName := "bare"
	if mode == ModeArchiveZ2 {
		modeName = "archive-z2"
	}
	if err := repoconfig.Write(path, repoconfig.Config{Mode: modeName, LogLevel: dlog.LevelInfo}); err != nil {
		return nil, err
	}
	return Open(path, log)
}

// Open opens an existing repository, reading its stored mode from
// config.
func Open(path string, log *zap.Logger) (*Repo, error) {
	cfg, err := repoconfig.Load(path)
	if err != nil {
		return nil, err
	}
	mode, err := cfg.StorageMode()
	if err != nil {
		return nil, err
	}
	return OpenWithMode(path, mode, log)
}

// OpenWithMode opens a repository at path, overriding whatever mode
// its config records — used to open a bare working checkout without
// requiring a config file, and by tests.
func OpenWithMode(path string, mode Mode, log *zap.Logger) (*Repo, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Repo{
		path:       path,
		mode:       mode,
		log:        log,
		objectsDir: filepath.Join(path, "objects"),
		tmpDir:     filepath.Join(path, "tmp"),
		refsDir:    filepath.Join(path, "refs"),
		stateDir:   filepath.Join(path, "state"),
	}

	objectsFd, err := unix.Open(r.objectsDir, unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("ostree: opening %s: %w", r.objectsDir, err)
	}
	tmpDirFd, err := unix.Open(r.tmpDir, unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		_ = unix.Close(objectsFd)
		return nil, fmt.Errorf("ostree: opening %s: %w", r.tmpDir, err)
	}
	r.objectsFd = objectsFd
	r.tmpDirFd = tmpDirFd
	r.txn = txn.New(r.stateDir, r.refsDir, r.tmpDir, mode, log)
	r.writer = objwriter.New(objectsFd, r.objectsDir, tmpDirFd, r.tmpDir, mode, r.probeParent, r.txn.Stats(), log)
	return r, nil
}

// SetParent chains this repository onto a parent for loose-object
// probing and devino cache layering (spec §4.2, §4.4 step 2).
func (r *Repo) SetParent(parent *Repo) { r.parent = parent }

func (r *Repo) probeParent(cs objpath.Checksum, t objpath.Type, mode objpath.Mode) (bool, string, error) {
	if r.parent == nil {
		return false, "", nil
	}
	return objpath.Probe(r.parent.objectsFd, cs, t, mode, r.parent.probeParent)
}

// Close releases the repository's open directory file descriptors.
func (r *Repo) Close() error {
	err1 := unix.Close(r.objectsFd)
	err2 := unix.Close(r.tmpDirFd)
	if err1 != nil {
		return err1
	}
	return err2
}

// Mode reports the repository's storage mode.
func (r *Repo) Mode() Mode { return r.mode }

// PrepareTransaction implements spec §4.10 step 1, additionally
// building this repository's devino cache (spec §4.4 step 1's "at
// most once per transaction" rule lives here, above txn, since only
// the façade knows about a parent repository to layer over it).
// resume reports whether a lock left behind by a prior unclean exit
// was found and reclaimed; the lock is advisory only, so this never
// blocks a fresh Prepare.
func (r *Repo) PrepareTransaction() (resume bool, err error) {
	resume, err = r.txn.Prepare()
	if err != nil {
		return false, err
	}
	cache, err := devino.ScanObjectsDir(r.objectsDir, r.mode)
	if err != nil {
		return resume, fmt.Errorf("ostree: scanning devino cache: %w", err)
	}
	if r.parent != nil {
		parentCache, err := devino.ScanObjectsDir(r.parent.objectsDir, r.parent.mode)
		if err != nil {
			return resume, fmt.Errorf("ostree: scanning parent devino cache: %w", err)
		}
		merged := devino.New()
		merged.Merge(parentCache)
		merged.Merge(cache)
		cache = merged
	}
	r.txn.SetDevinoCache(cache)
	return resume, nil
}

// CommitTransaction implements spec §4.10 step 3.
func (r *Repo) CommitTransaction() (stats.Counters, error) {
	return r.txn.Commit()
}

// AbortTransaction implements spec §4.10 step 4.
func (r *Repo) AbortTransaction() error {
	return r.txn.Abort()
}

// Stats returns a snapshot of the current transaction's counters.
func (r *Repo) Stats() stats.Counters {
	return r.txn.Stats().Snapshot()
}

// TransactionSetRef queues a ref update, publishing it at
// CommitTransaction time.
func (r *Repo) TransactionSetRef(name string, checksum *Checksum) error {
	return r.txn.SetRef(refs.Refspec{Name: name}, checksum)
}

// TransactionSetRefspec queues a remote-scoped ref update (spec §7's
// supplemented feature).
func (r *Repo) TransactionSetRefspec(refspec string, checksum *Checksum) error {
	return r.txn.SetRef(refs.ParseRefspec(refspec), checksum)
}

// ResolveRef reads the checksum a ref currently points at.
func (r *Repo) ResolveRef(name string) (Checksum, bool, error) {
	return refs.New(r.refsDir).Resolve(refs.Refspec{Name: name})
}

// ListRefs returns every ref currently published in the repository,
// local and remote-scoped, for the "refs" CLI subcommand.
func (r *Repo) ListRefs() ([]refs.Update, error) {
	return refs.New(r.refsDir).List()
}

// VerifyObject re-derives an already-installed object's checksum and
// reports whether it matches cs, the fsck-lite single-object check
// from spec §7's supplemented features.
func (r *Repo) VerifyObject(cs Checksum, objType objpath.Type) error {
	return r.writer.VerifyLooseObject(cs, objType)
}

// ObjectPath returns an object's path relative to objects/, without
// checking whether it exists.
func (r *Repo) ObjectPath(cs Checksum, objType objpath.Type) string {
	return objpath.Rel(cs, objType, r.mode)
}

// ObjectsDir returns the repository's objects/ directory path.
func (r *Repo) ObjectsDir() string { return r.objectsDir }

// WriteMetadata implements the untrusted metadata-object write path
// (spec §4.1) for DIR_TREE/DIR_META/COMMIT bytes a caller already has
// in hand — most callers instead go through WriteDirectoryToMtree/
// WriteMtree/WriteCommit, which build these objects internally.
func (r *Repo) WriteMetadata(ctx context.Context, objType objpath.Type, data []byte) (Checksum, error) {
	return r.writer.WriteObject(ctx, objType, nil, bytes.NewReader(data), int64(len(data)), false)
}

// WriteMetadataTrusted implements the trusted fast path: if expected
// is already installed, its bytes are never re-read (spec §4.1's
// idempotent short-circuit).
func (r *Repo) WriteMetadataTrusted(ctx context.Context, objType objpath.Type, expected Checksum, data []byte) (Checksum, error) {
	return r.writer.WriteObject(ctx, objType, &expected, bytes.NewReader(data), int64(len(data)), false)
}

// NewCommitModifier constructs a commit filter/flags bundle for
// ingest (spec §4.8, C11).
func (r *Repo) NewCommitModifier(flags modifier.Flags, filter modifier.FilterFunc, userData interface{}) *modifier.Modifier {
	return modifier.New(flags, filter, userData, nil)
}

// WriteDirectoryToMtree ingests a real (or afero-backed) directory
// tree into mt, per spec §4.6.
func (r *Repo) WriteDirectoryToMtree(ctx context.Context, src ingest.Source, dirPath string, mt *mtree.Tree, mod *modifier.Modifier) error {
	return ingest.WriteDirectoryToMtree(ctx, r.writer, r.txn.Devino(), src, dirPath, mt, mod)
}

// WriteMtree serializes mt (and its descendants) into DIR_TREE
// objects, per spec §4.7.
func (r *Repo) WriteMtree(ctx context.Context, mt *mtree.Tree) (rootContents, rootMeta Checksum, err error) {
	return ingest.WriteMtree(ctx, r.writer, mt)
}

// WriteCommit builds and writes a COMMIT object, per spec §4.9. branch
// is validated non-empty (spec's precondition list) but is not part of
// the commit's wire bytes; TransactionSetRef records it separately.
func (r *Repo) WriteCommit(ctx context.Context, branch string, parent *Checksum, subject, body string, rootContents, rootMeta Checksum, related []variant.RelatedCommit, now func() time.Time) (Checksum, error) {
	p := commit.Params{
		Branch:       branch,
		Subject:      subject,
		Body:         body,
		RootContents: rootContents,
		RootMeta:     rootMeta,
		Related:      related,
		Now:          now,
	}
	if parent != nil {
		p.Parent = *parent
		p.HasParent = true
	}
	return commit.Write(ctx, r.writer, p)
}
