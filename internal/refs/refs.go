// Package refs implements the ref store collaborator spec.md lists as
// external ("update_refs"): a flat namespace of refspec → checksum
// files under a repo's refs/ directory, plus refspec parsing for
// transaction_set_ref / transaction_set_refspec.
package refs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oneconcern/ostree-go/internal/objpath"
	"github.com/oneconcern/ostree-go/internal/tmpstage"
)

// Refspec names a ref, optionally scoped to a remote: "[remote:]name".
type Refspec struct {
	Remote string
	Name   string
}

// ParseRefspec splits "remote:name" into its parts; a refspec with no
// colon has an empty Remote.
func ParseRefspec(s string) Refspec {
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		return Refspec{Remote: s[:idx], Name: s[idx+1:]}
	}
	return Refspec{Name: s}
}

// String renders the refspec back to "[remote:]name" form.
func (r Refspec) String() string {
	if r.Remote == "" {
		return r.Name
	}
	return r.Remote + ":" + r.Name
}

// relPath maps a refspec to its on-disk location under refs/.
func (r Refspec) relPath() string {
	if r.Remote == "" {
		return filepath.Join("heads", r.Name)
	}
	return filepath.Join("remotes", r.Remote, r.Name)
}

// Store is a directory of ref files rooted at <repo>/refs.
type Store struct {
	root string
}

// New returns a Store rooted at root (a repo's "refs" directory).
func New(root string) *Store {
	return &Store{root: root}
}

// Resolve reads the checksum currently published under ref, if any.
func (s *Store) Resolve(ref Refspec) (objpath.Checksum, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.root, ref.relPath()))
	if err != nil {
		if os.IsNotExist(err) {
			return objpath.Checksum{}, false, nil
		}
		return objpath.Checksum{}, false, fmt.Errorf("refs: reading %s: %w", ref, err)
	}
	cs, err := objpath.FromHex(strings.TrimSpace(string(data)))
	if err != nil {
		return objpath.Checksum{}, false, fmt.Errorf("refs: parsing %s: %w", ref, err)
	}
	return cs, true, nil
}

// List walks refs/heads and refs/remotes, returning every published
// ref and the checksum it currently resolves to.
func (s *Store) List() ([]Update, error) {
	var out []Update
	walkRoot := func(base string, remote string) error {
		root := filepath.Join(s.root, base)
		return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("refs: reading %s: %w", path, err)
			}
			cs, err := objpath.FromHex(strings.TrimSpace(string(data)))
			if err != nil {
				return fmt.Errorf("refs: parsing %s: %w", path, err)
			}
			name := filepath.ToSlash(rel)
			var ref Refspec
			if remote == "" {
				ref = Refspec{Name: name}
			} else {
				parts := strings.SplitN(name, "/", 2)
				if len(parts) != 2 {
					return nil
				}
				ref = Refspec{Remote: parts[0], Name: parts[1]}
			}
			cs2 := cs
			out = append(out, Update{Ref: ref, Checksum: &cs2})
			return nil
		})
	}
	if err := walkRoot("heads", ""); err != nil {
		return nil, err
	}
	if err := walkRoot("remotes", "remote"); err != nil {
		return nil, err
	}
	return out, nil
}

// Update is one pending change to a ref: a nil Checksum deletes it.
type Update struct {
	Ref      Refspec
	Checksum *objpath.Checksum
}

// ApplyAll installs every update via a tempfile-then-rename write (or
// a plain remove for deletions), matching the tempfile install
// discipline the rest of the engine uses (spec §4.10 step 3: refs are
// applied atomically at commit time). It stops at the first failure,
// leaving prior updates in this call already applied — the same
// "not crash-atomic across objects" posture spec §1's Non-goals
// describe for the object store applies here too.
func (s *Store) ApplyAll(updates []Update) error {
	for _, u := range updates {
		relPath := u.Ref.relPath()
		fullPath := filepath.Join(s.root, relPath)
		if u.Checksum == nil {
			if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("refs: removing %s: %w", u.Ref, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(fullPath), 0777); err != nil {
			return fmt.Errorf("refs: creating parent for %s: %w", u.Ref, err)
		}
		tmpName := tmpstage.GenName()
		tmpPath := filepath.Join(s.root, tmpName)
		if err := os.WriteFile(tmpPath, []byte(u.Checksum.String()+"\n"), 0666); err != nil {
			return fmt.Errorf("refs: staging %s: %w", u.Ref, err)
		}
		if err := os.Rename(tmpPath, fullPath); err != nil {
			_ = os.Remove(tmpPath)
			return fmt.Errorf("refs: publishing %s: %w", u.Ref, err)
		}
	}
	return nil
}
