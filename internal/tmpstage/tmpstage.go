// Package tmpstage implements temp-file staging and the tempfile→
// rename install protocol (spec §4.3, C3): unique names under a
// per-repo tmp directory, safe unlink-on-failure, and the two-step
// mkdirat/renameat dance that installs a staged object into the
// fanout tree.
package tmpstage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path"

	"golang.org/x/sys/unix"

	"github.com/oneconcern/ostree-go/internal/errors"
)

const maxTempNameAttempts = 128

// GenName returns a random temp-file basename, in the style of
// gsystem_fileutil_gen_tmp_name.
func GenName() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return "tmp-" + hex.EncodeToString(b[:])
}

// Guard ties a staged tempfile's lifetime to a scope: Close unlinks it
// unless it has been Adopt()ed by a successful install. This is the
// Go rendering of the C source's "goto out: unlinkat" cleanup (spec
// §9): every guard defaults to cleanup, and only a completed rename
// opts out.
type Guard struct {
	tmpDirFd int
	name     string
	adopted  bool
}

// NewGuard wraps a tempfile already created under tmpDirFd with name.
func NewGuard(tmpDirFd int, name string) *Guard {
	return &Guard{tmpDirFd: tmpDirFd, name: name}
}

// Name returns the tempfile's basename.
func (g *Guard) Name() string { return g.name }

// Adopt marks the tempfile as successfully installed, so Close no
// longer unlinks it.
func (g *Guard) Adopt() { g.adopted = true }

// Close unlinks the tempfile if it was never adopted. Safe to call
// more than once.
func (g *Guard) Close() error {
	if g.adopted || g.name == "" {
		return nil
	}
	name := g.name
	g.name = ""
	if err := unix.Unlinkat(g.tmpDirFd, name, 0); err != nil && err != unix.ENOENT {
		return fmt.Errorf("tmpstage: unlinking %s: %w", name, err)
	}
	return nil
}

// CreateFile creates a new regular tempfile under tmpDirFd with mode
// perm, returning it wrapped in a Guard along with the open *os.File
// for writing.
func CreateFile(tmpDirFd int, tmpDirPath string, perm os.FileMode) (*Guard, *os.File, error) {
	name := GenName()
	fd, err := unix.Openat(tmpDirFd, name, unix.O_CREAT|unix.O_EXCL|unix.O_WRONLY|unix.O_CLOEXEC, uint32(perm))
	if err != nil {
		return nil, nil, fmt.Errorf("tmpstage: creating tempfile: %w", err)
	}
	f := os.NewFile(uintptr(fd), path.Join(tmpDirPath, name))
	return NewGuard(tmpDirFd, name), f, nil
}

// CreateSymlink creates a randomly-named symlink pointing at target
// under tmpDirFd, retrying on name collisions up to 128 times before
// failing with errors.Exhausted (spec §4.1's bare+symlink path).
func CreateSymlink(tmpDirFd int, target string) (*Guard, error) {
	for i := 0; i < maxTempNameAttempts; i++ {
		name := GenName()
		err := unix.Symlinkat(target, tmpDirFd, name)
		if err == nil {
			return NewGuard(tmpDirFd, name), nil
		}
		if err != unix.EEXIST {
			return nil, fmt.Errorf("tmpstage: creating temp symlink: %w", err)
		}
	}
	return nil, errors.Exhausted
}

// Install performs the mkdirat + renameat dance from spec §4.3: it
// ensures the two-character fanout directory exists, then renames the
// staged tempfile into its final relative path. A rename landing on
// an existing name is treated as a benign race (the loser cleans up
// its own tempfile; by content-addressing, either object is
// equivalent) and reported as installed=false rather than an error.
func Install(objectsFd, tmpDirFd int, guard *Guard, relPath string) (installed bool, err error) {
	fanout := relPath[:2]
	if mkErr := unix.Mkdirat(objectsFd, fanout, 0777); mkErr != nil && mkErr != unix.EEXIST {
		return false, fmt.Errorf("tmpstage: mkdirat %s: %w", fanout, mkErr)
	}

	// RENAME_NOREPLACE turns a landed-on-existing-name race into
	// EEXIST instead of silently clobbering the winner's object —
	// plain renameat(2) has no such guarantee.
	renErr := unix.Renameat2(tmpDirFd, guard.Name(), objectsFd, relPath, unix.RENAME_NOREPLACE)
	if renErr == nil {
		guard.Adopt()
		return true, nil
	}
	if renErr == unix.EEXIST {
		if cerr := guard.Close(); cerr != nil {
			return false, cerr
		}
		return false, nil
	}
	return false, fmt.Errorf("tmpstage: renameat %s: %w", relPath, renErr)
}
