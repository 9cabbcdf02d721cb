// Package objwriter implements the object writer (spec §4.1, C4): the
// canonical ingest → SHA-256 → install pipeline shared by every
// object kind, including the mode-specific handling of ownership,
// mode bits, extended attributes and fsync a bare repository needs.
package objwriter

import (
	"context"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/klauspost/compress/flate"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/oneconcern/ostree-go/internal/content"
	"github.com/oneconcern/ostree-go/internal/errors"
	"github.com/oneconcern/ostree-go/internal/objpath"
	"github.com/oneconcern/ostree-go/internal/stats"
	"github.com/oneconcern/ostree-go/internal/tmpstage"
	"github.com/oneconcern/ostree-go/internal/xattr"
)

const regularFileTempMode = 0o644

// Writer computes identifiers and installs objects for one open
// transaction. It holds no transaction state itself beyond the stats
// block it was handed — Prepare/Commit/Abort live in package txn.
type Writer struct {
	ObjectsFd      int
	ObjectsDirPath string
	TmpDirFd       int
	TmpDirPath     string
	Mode           objpath.Mode
	ParentProbe    objpath.ProbeFunc
	Stats          *stats.Stats
	Log            *zap.Logger
}

// New builds a Writer. log may be nil, in which case a no-op logger
// is used.
func New(objectsFd int, objectsDirPath string, tmpDirFd int, tmpDirPath string, mode objpath.Mode, parentProbe objpath.ProbeFunc, st *stats.Stats, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		ObjectsFd:      objectsFd,
		ObjectsDirPath: objectsDirPath,
		TmpDirFd:       tmpDirFd,
		TmpDirPath:     tmpDirPath,
		Mode:           mode,
		ParentProbe:    parentProbe,
		Stats:          st,
		Log:            log,
	}
}

func (w *Writer) probe(cs objpath.Checksum, t objpath.Type) (bool, string, error) {
	return objpath.Probe(w.ObjectsFd, cs, t, w.Mode, w.ParentProbe)
}

// hashingReader tees every Read through a running hash, so the
// object's identifier falls out of the same pass that stages the
// tempfile (the Go analog of OstreeChecksumInputStream).
type hashingReader struct {
	r io.Reader
	h hash.Hash
}

func (hr *hashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		hr.h.Write(p[:n])
	}
	return n, err
}

// ctxReader aborts a Read once ctx is done, giving cancellation a
// checkpoint at each I/O boundary (spec §5).
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, errors.Cancelled.Wrap(err)
	}
	return cr.r.Read(p)
}

// WriteObject implements spec §4.1. objType selects the object kind;
// for objType == objpath.File, input must be the canonical
// content-stream encoding produced by content.EncodeContentStream, from
// which the entry's file info and xattrs are parsed. For metadata
// kinds, input is the raw serialized variant.
func (w *Writer) WriteObject(
	ctx context.Context,
	objType objpath.Type,
	expected *objpath.Checksum,
	input io.Reader,
	declaredLength int64,
	skipXattrs bool,
) (objpath.Checksum, error) {
	if err := ctx.Err(); err != nil {
		return objpath.Checksum{}, errors.Cancelled.Wrap(err)
	}

	if expected != nil {
		found, _, err := w.probe(*expected, objType)
		if err != nil {
			return objpath.Checksum{}, err
		}
		if found {
			w.recordTotal(objType, false, declaredLength)
			return *expected, nil
		}
	}

	hr := &hashingReader{r: ctxReader{ctx: ctx, r: input}, h: sha256.New()}

	var (
		guard      *tmpstage.Guard
		fi         content.FileInfo
		xattrs     []content.XAttr
		isSymlink  bool
		isRegular  bool
		tempFile   *os.File
		writeErr   error
	)

	cleanup := func() {
		if tempFile != nil {
			_ = tempFile.Close()
		}
		if guard != nil {
			_ = guard.Close()
		}
	}

	switch objType {
	case objpath.File:
		var payload io.Reader
		var err error
		fi, xattrs, payload, err = content.ParseContentStream(hr)
		if err != nil {
			return objpath.Checksum{}, fmt.Errorf("objwriter: %w", err)
		}
		isRegular = fi.Type == content.TypeRegular
		isSymlink = fi.Type == content.TypeSymlink
		if !isRegular && !isSymlink {
			return objpath.Checksum{}, errors.UnsupportedFileType
		}

		switch {
		case w.Mode == objpath.ModeBare && isRegular:
			guard, tempFile, writeErr = tmpstage.CreateFile(w.TmpDirFd, w.TmpDirPath, regularFileTempMode)
			if writeErr == nil {
				_, writeErr = io.Copy(tempFile, payload)
			}
		case w.Mode == objpath.ModeBare && isSymlink:
			guard, writeErr = tmpstage.CreateSymlink(w.TmpDirFd, fi.SymlinkTarget)
		case w.Mode == objpath.ModeArchiveZ2:
			guard, tempFile, writeErr = tmpstage.CreateFile(w.TmpDirFd, w.TmpDirPath, regularFileTempMode)
			if writeErr == nil {
				header := content.ZlibFileHeader(fi, xattrs)
				if _, writeErr = tempFile.Write(header); writeErr == nil && isRegular {
					var fw *flate.Writer
					if fw, writeErr = flate.NewWriter(tempFile, flate.BestCompression); writeErr == nil {
						if _, writeErr = io.Copy(fw, payload); writeErr == nil {
							writeErr = fw.Close()
						}
					}
				}
			}
		default:
			writeErr = fmt.Errorf("objwriter: unreachable mode/type combination")
		}
	default:
		guard, tempFile, writeErr = tmpstage.CreateFile(w.TmpDirFd, w.TmpDirPath, regularFileTempMode)
		if writeErr == nil {
			_, writeErr = io.Copy(tempFile, hr)
		}
	}

	if writeErr != nil {
		cleanup()
		return objpath.Checksum{}, fmt.Errorf("objwriter: staging object: %w", writeErr)
	}

	var actual objpath.Checksum
	copy(actual[:], hr.h.Sum(nil))

	if expected != nil && actual != *expected {
		cleanup()
		return objpath.Checksum{}, errors.CorruptedObject.Wrap(
			fmt.Errorf("expected %s, got %s", expected, actual))
	}

	if tempFile != nil {
		if err := tempFile.Sync(); err != nil && objType != objpath.File {
			cleanup()
			return objpath.Checksum{}, fmt.Errorf("objwriter: fsync: %w", err)
		}
	}

	found, relPath, err := w.probe(actual, objType)
	if err != nil {
		cleanup()
		return objpath.Checksum{}, err
	}
	if found {
		cleanup()
		w.recordTotal(objType, false, declaredLength)
		return actual, nil
	}

	if objType == objpath.File && w.Mode == objpath.ModeBare {
		if err := w.applyBareAttributes(guard, tempFile, isSymlink, fi, xattrs, skipXattrs); err != nil {
			cleanup()
			return objpath.Checksum{}, err
		}
	}
	if tempFile != nil {
		if err := tempFile.Close(); err != nil {
			_ = guard.Close()
			return objpath.Checksum{}, fmt.Errorf("objwriter: closing tempfile: %w", err)
		}
		tempFile = nil
	}

	installed, err := tmpstage.Install(w.ObjectsFd, w.TmpDirFd, guard, relPath)
	if err != nil {
		return objpath.Checksum{}, err
	}

	w.recordTotal(objType, installed, declaredLength)
	return actual, nil
}

// applyBareAttributes implements the ownership/xattr/mode/fsync
// sequencing spec §4.1 requires for BARE regular files and symlinks,
// applied only after the checksum has been validated (never before —
// see spec §4.1's rationale about a transiently setuid tempfile).
func (w *Writer) applyBareAttributes(guard *tmpstage.Guard, tempFile *os.File, isSymlink bool, fi content.FileInfo, xattrs []content.XAttr, skipXattrs bool) error {
	tmpPath := w.TmpDirPath + "/" + guard.Name()

	if isSymlink {
		if err := unix.Fchownat(w.TmpDirFd, guard.Name(), int(fi.UID), int(fi.GID), unix.AT_SYMLINK_NOFOLLOW); err != nil {
			return fmt.Errorf("objwriter: fchownat: %w", err)
		}
		if !skipXattrs && len(xattrs) > 0 {
			if err := xattr.SetPath(tmpPath, xattrs); err != nil {
				return fmt.Errorf("objwriter: %w", err)
			}
		}
		// Symlinks are always 0777 and have no fsync-able fd.
		return nil
	}

	fd := int(tempFile.Fd())
	if err := unix.Fchown(fd, int(fi.UID), int(fi.GID)); err != nil {
		return fmt.Errorf("objwriter: fchown: %w", err)
	}
	if !skipXattrs && len(xattrs) > 0 {
		if err := xattr.SetFd(fd, xattrs); err != nil {
			return fmt.Errorf("objwriter: %w", err)
		}
	}
	if err := unix.Fchmod(fd, fi.Mode&0o7777); err != nil {
		return fmt.Errorf("objwriter: fchmod: %w", err)
	}
	if err := unix.Fsync(fd); err != nil {
		return fmt.Errorf("objwriter: fsync: %w", err)
	}
	return nil
}

func (w *Writer) recordTotal(objType objpath.Type, installed bool, declaredLength int64) {
	if w.Stats == nil {
		return
	}
	if objType.IsMeta() {
		w.Stats.RecordMetadata(installed)
	} else {
		w.Stats.RecordContent(installed, declaredLength)
	}
}
