// Package commit implements the commit builder (spec §4.9, C9): the
// last step of a write that ties a root DIR_TREE/DIR_META pair, an
// optional parent, and free-text subject/body into one COMMIT object.
package commit

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/oneconcern/ostree-go/internal/errors"
	"github.com/oneconcern/ostree-go/internal/objpath"
	"github.com/oneconcern/ostree-go/internal/objwriter"
	"github.com/oneconcern/ostree-go/internal/variant"
)

// Params gathers the inputs to a single commit write. Now defaults to
// time.Now when nil, injected so tests can pin a timestamp and the
// engine's determinism property (spec §8) has something to hold
// constant.
type Params struct {
	Branch        string
	Parent        objpath.Checksum
	HasParent     bool
	Related       []variant.RelatedCommit
	Subject       string
	Body          string
	RootContents  objpath.Checksum
	RootMeta      objpath.Checksum
	Now           func() time.Time
}

// Write implements spec §4.9: it encodes the commit body, writes it as
// a COMMIT object, and returns its checksum. Branch is validated
// non-empty per spec's precondition list but, matching the original
// source (ostree-repo-commit.c), never becomes part of the encoded
// commit bytes — the caller records it separately by staging a ref
// update against it (transaction_set_ref, §4.10) after Write returns.
func Write(ctx context.Context, w *objwriter.Writer, p Params) (objpath.Checksum, error) {
	if err := ctx.Err(); err != nil {
		return objpath.Checksum{}, errors.Cancelled.Wrap(err)
	}
	if p.Branch == "" {
		return objpath.Checksum{}, fmt.Errorf("commit: branch must be set")
	}
	if p.RootContents.IsZero() || p.RootMeta.IsZero() {
		return objpath.Checksum{}, fmt.Errorf("commit: root checksums must be set")
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}

	c := variant.Commit{
		Parent:        p.Parent,
		HasParent:     p.HasParent,
		Related:       p.Related,
		Subject:       p.Subject,
		Body:          p.Body,
		TimestampUnix: uint64(now().UTC().Unix()),
		RootContents:  p.RootContents,
		RootMeta:      p.RootMeta,
	}

	encoded, err := variant.EncodeToBytes(c)
	if err != nil {
		return objpath.Checksum{}, fmt.Errorf("commit: encoding: %w", err)
	}

	checksum, err := w.WriteObject(ctx, objpath.Commit, nil, bytes.NewReader(encoded), int64(len(encoded)), false)
	if err != nil {
		return objpath.Checksum{}, fmt.Errorf("commit: writing: %w", err)
	}
	return checksum, nil
}
