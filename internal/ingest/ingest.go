// Package ingest implements the directory-walk-to-mtree pipeline and
// the mtree-to-DIR_TREE serializer (spec §4.6/§4.7, C7/C8): the two
// operations that turn a real directory tree into a chain of
// content-addressed metadata objects.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/afero"

	"github.com/oneconcern/ostree-go/internal/content"
	"github.com/oneconcern/ostree-go/internal/devino"
	"github.com/oneconcern/ostree-go/internal/errors"
	"github.com/oneconcern/ostree-go/internal/modifier"
	"github.com/oneconcern/ostree-go/internal/mtree"
	"github.com/oneconcern/ostree-go/internal/objpath"
	"github.com/oneconcern/ostree-go/internal/objwriter"
	"github.com/oneconcern/ostree-go/internal/variant"
	"github.com/oneconcern/ostree-go/internal/xattr"
)

// Source is the filesystem an ingest walk reads from. afero.Fs is the
// pack's filesystem abstraction (datamon uses it for both real and
// in-memory stores); reusing it here lets WriteDirectoryToMtree be
// exercised against afero.NewMemMapFs in tests without inventing a
// second abstraction.
type Source = afero.Fs

// RepoSubtreeChecksums bundles the metadata and contents checksums a
// RepoSubtree source already knows about a directory.
type RepoSubtreeChecksums struct {
	Metadata objpath.Checksum
	Contents objpath.Checksum
}

// RepoSubtree is optionally implemented by a Source whose directories
// may themselves resolve to a subtree already committed to the repo —
// the Go analog of ostree's OstreeRepoFile. WriteDirectoryToMtree
// probes for it on every directory it visits (spec §4.6's "reuse
// shortcut") and, when it reports ok and no modifier is attached at
// all (matching the original source's `modifier == NULL` check, not
// merely an absent Filter — a Modifier carrying only flags such as
// SkipXAttrs still disables the shortcut), binds the known checksums
// onto the mtree node instead of re-deriving them from a full walk.
type RepoSubtree interface {
	RepoSubtree(path string) (RepoSubtreeChecksums, bool)
}

func repoSubtreeOf(src Source, mod *modifier.Modifier, path string) (RepoSubtreeChecksums, bool) {
	if mod != nil {
		return RepoSubtreeChecksums{}, false
	}
	rs, ok := src.(RepoSubtree)
	if !ok {
		return RepoSubtreeChecksums{}, false
	}
	return rs.RepoSubtree(path)
}

// realPath resolves name to an absolute OS path when src is backed by
// the real filesystem, for the syscalls (xattr, dev/ino) that have no
// afero equivalent. A synthetic Source (afero.NewMemMapFs) simply
// yields no real path, and callers degrade gracefully rather than
// failing — the teacher's own tests run ingest against MemMapFs, which
// has neither xattrs nor inodes to reuse.
func realPath(src Source, rootPath, name string) (string, bool) {
	if _, ok := src.(*afero.OsFs); ok {
		return name, true
	}
	_ = rootPath
	return "", false
}

func statAttrs(info fs.FileInfo) (uid, gid uint32, dev, ino uint64, ok bool) {
	stat, isStat := info.Sys().(*syscall.Stat_t)
	if !isStat {
		return 0, 0, 0, 0, false
	}
	return uint32(stat.Uid), uint32(stat.Gid), uint64(stat.Dev), uint64(stat.Ino), true
}

func lstat(src Source, path string) (fs.FileInfo, error) {
	if ls, ok := src.(afero.Lstater); ok {
		info, _, err := ls.LstatIfPossible(path)
		return info, err
	}
	return src.Stat(path)
}

func readlink(src Source, path string) (string, error) {
	if sym, ok := src.(afero.LinkReader); ok {
		return sym.ReadlinkIfPossible(path)
	}
	return os.Readlink(path)
}

func fileInfoFrom(src Source, path string, info fs.FileInfo) (content.FileInfo, error) {
	fi := content.FileInfo{Mode: uint32(info.Mode().Perm())}
	if info.Mode()&fs.ModeSymlink != 0 {
		target, err := readlink(src, path)
		if err != nil {
			return fi, fmt.Errorf("ingest: reading symlink %s: %w", path, err)
		}
		fi.Type = content.TypeSymlink
		fi.SymlinkTarget = target
		return fi, nil
	}
	if info.Mode().IsRegular() {
		fi.Type = content.TypeRegular
		return fi, nil
	}
	return fi, errors.UnsupportedFileType
}

// WriteDirectoryToMtree walks a real (or afero-backed) directory tree
// rooted at rootPath and stages every file and subdirectory into tree,
// writing a FILE object for each regular file or symlink not already
// resolved via the devino cache, and a DIR_META object for every
// directory (spec §4.6). ctx is checked between filesystem entries so
// a long walk can be cancelled promptly.
func WriteDirectoryToMtree(
	ctx context.Context,
	w *objwriter.Writer,
	cache *devino.Cache,
	src Source,
	rootPath string,
	tree *mtree.Tree,
	mod *modifier.Modifier,
) error {
	return walkDir(ctx, w, cache, src, rootPath, rootPath, nil, tree, mod)
}

func walkDir(
	ctx context.Context,
	w *objwriter.Writer,
	cache *devino.Cache,
	src Source,
	rootPath, dirPath string,
	pathStack []string,
	tree *mtree.Tree,
	mod *modifier.Modifier,
) error {
	if err := ctx.Err(); err != nil {
		return errors.Cancelled.Wrap(err)
	}

	reuse, reused := repoSubtreeOf(src, mod, dirPath)
	wasEmpty := tree.IsEmpty()

	if reused {
		tree.SetMetadataChecksum(reuse.Metadata)
	} else {
		dirInfo, err := lstat(src, dirPath)
		if err != nil {
			return fmt.Errorf("ingest: stat %s: %w", dirPath, err)
		}
		dirFI := content.FileInfo{Type: content.TypeRegular, Mode: uint32(dirInfo.Mode().Perm())}
		if uid, gid, _, _, ok := statAttrs(dirInfo); ok {
			dirFI.UID, dirFI.GID = uid, gid
		}
		verdict, dirFI := modifier.Apply(mod, pathStack, dirFI)
		if verdict == modifier.Skip {
			return nil
		}

		var dirXAttrs []content.XAttr
		if !modifier.HasFlag(mod, modifier.SkipXAttrs) {
			if rp, ok := realPath(src, rootPath, dirPath); ok {
				dirXAttrs, _ = xattr.ListPath(rp)
			}
		}
		dirMetaBytes, err := variant.EncodeToBytes(variant.DirMeta{
			UID:    dirFI.UID,
			GID:    dirFI.GID,
			Mode:   dirFI.Mode,
			XAttrs: dirXAttrs,
		})
		if err != nil {
			return err
		}
		metaChecksum, err := w.WriteObject(ctx, objpath.DirMeta, nil, bytes.NewReader(dirMetaBytes), int64(len(dirMetaBytes)), modifier.HasFlag(mod, modifier.SkipXAttrs))
		if err != nil {
			return fmt.Errorf("ingest: writing dirmeta for %s: %w", dirPath, err)
		}
		tree.SetMetadataChecksum(metaChecksum)
	}

	entries, err := afero.ReadDir(src, dirPath)
	if err != nil {
		return fmt.Errorf("ingest: reading %s: %w", dirPath, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return errors.Cancelled.Wrap(err)
		}
		childPath := filepath.Join(dirPath, entry.Name())
		childStack := append(append([]string{}, pathStack...), entry.Name())

		if entry.IsDir() {
			sub, err := tree.EnsureDir(entry.Name())
			if err != nil {
				return fmt.Errorf("ingest: %s: %w", childPath, err)
			}
			if childReuse, ok := repoSubtreeOf(src, mod, childPath); ok {
				// Subdirectory-from-repo (reuse path): the child's
				// checksums are already known, so bind them directly
				// instead of recursing into a subtree we'd only
				// re-derive byte for byte.
				sub.SetMetadataChecksum(childReuse.Metadata)
				sub.SetContentsChecksum(childReuse.Contents)
				continue
			}
			if err := walkDir(ctx, w, cache, src, rootPath, childPath, childStack, sub, mod); err != nil {
				return err
			}
			continue
		}

		if err := writeFileEntry(ctx, w, cache, src, rootPath, childPath, childStack, entry.Name(), tree, mod); err != nil {
			return err
		}
	}

	if reused && wasEmpty {
		tree.SetContentsChecksum(reuse.Contents)
	}
	return nil
}

func writeFileEntry(
	ctx context.Context,
	w *objwriter.Writer,
	cache *devino.Cache,
	src Source,
	rootPath, childPath string,
	pathStack []string,
	name string,
	tree *mtree.Tree,
	mod *modifier.Modifier,
) error {
	info, err := lstat(src, childPath)
	if err != nil {
		return fmt.Errorf("ingest: stat %s: %w", childPath, err)
	}

	fi, err := fileInfoFrom(src, childPath, info)
	if err != nil {
		return err
	}

	uid, gid, dev, ino, hasStat := statAttrs(info)
	if hasStat {
		fi.UID, fi.GID = uid, gid
	}

	verdict, fi := modifier.Apply(mod, pathStack, fi)
	if verdict == modifier.Skip {
		return nil
	}

	if hasStat && cache != nil && fi.Type == content.TypeRegular {
		if cs, hit := cache.Lookup(devino.Key{Dev: dev, Ino: ino}); hit {
			return tree.ReplaceFile(name, cs)
		}
	}

	var xattrs []content.XAttr
	if !modifier.HasFlag(mod, modifier.SkipXAttrs) {
		if rp, ok := realPath(src, rootPath, childPath); ok {
			xattrs, _ = xattr.ListPath(rp)
		}
	}

	var payload io.Reader
	if fi.Type == content.TypeRegular {
		f, err := src.Open(childPath)
		if err != nil {
			return fmt.Errorf("ingest: opening %s: %w", childPath, err)
		}
		defer func() { _ = f.Close() }()
		payload = f
	}

	pipeR, pipeW := io.Pipe()
	go func() {
		_, encErr := content.EncodeContentStream(pipeW, fi, xattrs, payload)
		_ = pipeW.CloseWithError(encErr)
	}()

	checksum, err := w.WriteObject(ctx, objpath.File, nil, pipeR, info.Size(), modifier.HasFlag(mod, modifier.SkipXAttrs))
	if err != nil {
		return fmt.Errorf("ingest: writing content for %s: %w", childPath, err)
	}
	return tree.ReplaceFile(name, checksum)
}

// WriteMtree implements spec §4.7: it serializes tree and every
// descendant bottom-up into DIR_TREE objects, returning the root
// node's (contents, metadata) checksum pair. A node whose contents
// checksum was already cached (e.g. an unmodified subtree copied from
// a parent commit) is not re-encoded.
func WriteMtree(ctx context.Context, w *objwriter.Writer, tree *mtree.Tree) (objpath.Checksum, objpath.Checksum, error) {
	if err := ctx.Err(); err != nil {
		return objpath.Checksum{}, objpath.Checksum{}, errors.Cancelled.Wrap(err)
	}
	metaChecksum, ok := tree.MetadataChecksum()
	if !ok {
		return objpath.Checksum{}, objpath.Checksum{}, fmt.Errorf("ingest: mtree node missing metadata checksum")
	}
	if cached, ok := tree.ContentsChecksum(); ok {
		return cached, metaChecksum, nil
	}

	dt := variant.DirTree{}
	for name, cs := range tree.Files() {
		dt.Files = append(dt.Files, variant.FileEntry{Name: name, Checksum: cs})
	}
	for name, sub := range tree.Subdirs() {
		contentsCS, subMetaCS, err := WriteMtree(ctx, w, sub)
		if err != nil {
			return objpath.Checksum{}, objpath.Checksum{}, err
		}
		dt.Subdirs = append(dt.Subdirs, variant.SubdirEntry{
			Name:             name,
			ContentsChecksum: contentsCS,
			MetadataChecksum: subMetaCS,
		})
	}
	dt.Sort()

	encoded, err := variant.EncodeToBytes(dt)
	if err != nil {
		return objpath.Checksum{}, objpath.Checksum{}, err
	}
	contentsChecksum, err := w.WriteObject(ctx, objpath.DirTree, nil, bytes.NewReader(encoded), int64(len(encoded)), false)
	if err != nil {
		return objpath.Checksum{}, objpath.Checksum{}, fmt.Errorf("ingest: writing dirtree: %w", err)
	}
	tree.SetContentsChecksum(contentsChecksum)
	return contentsChecksum, metaChecksum, nil
}
