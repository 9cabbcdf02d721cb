package txn

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneconcern/ostree-go/internal/devino"
	"github.com/oneconcern/ostree-go/internal/objpath"
	"github.com/oneconcern/ostree-go/internal/refs"
)

func newTxn(t *testing.T) *Txn {
	t.Helper()
	dir := t.TempDir()
	return New(filepath.Join(dir, "state"), filepath.Join(dir, "refs"), filepath.Join(dir, "tmp"), objpath.ModeBare, nil)
}

func TestPrepareCommitLifecycle(t *testing.T) {
	tr := newTxn(t)
	resume, err := tr.Prepare()
	require.NoError(t, err)
	assert.False(t, resume, "a fresh state dir has nothing to resume")
	assert.True(t, tr.IsOpen())

	cs := objpath.Sum([]byte("root"))
	require.NoError(t, tr.SetRef(refs.Refspec{Name: "main"}, &cs))

	counters, err := tr.Commit()
	require.NoError(t, err)
	assert.False(t, tr.IsOpen())
	assert.Equal(t, uint64(0), counters.ContentObjectsTotal)
}

func TestAbortDropsPendingRefs(t *testing.T) {
	tr := newTxn(t)
	_, err := tr.Prepare()
	require.NoError(t, err)
	cs := objpath.Sum([]byte("root"))
	require.NoError(t, tr.SetRef(refs.Refspec{Name: "main"}, &cs))
	require.NoError(t, tr.Abort())
	assert.False(t, tr.IsOpen())

	got, ok, err := refs.New(tr.refsRoot).Resolve(refs.Refspec{Name: "main"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, got)
}

func TestSetRefRequiresOpenTransaction(t *testing.T) {
	tr := newTxn(t)
	cs := objpath.Sum([]byte("x"))
	err := tr.SetRef(refs.Refspec{Name: "main"}, &cs)
	assert.Error(t, err)
}

// TestPrepareReclaimsLiveLock exercises spec §4.10's advisory-only
// contract: the lock symlink is a crash marker, not mutual exclusion
// between processes, so a second Prepare against a lock naming this
// very (live) process's own pid must still succeed, unlinking and
// reclaiming the lock and reporting resume.
func TestPrepareReclaimsLiveLock(t *testing.T) {
	tr := newTxn(t)
	resume, err := tr.Prepare()
	require.NoError(t, err)
	assert.False(t, resume)

	tr2 := New(tr.stateDir, tr.refsRoot, tr.tmpDir, objpath.ModeBare, nil)
	resume2, err := tr2.Prepare()
	require.NoError(t, err, "the lock is advisory only; a second Prepare must never block on it")
	assert.True(t, resume2, "a pre-existing lock means this Prepare is resuming")
}

func TestPrepareReclaimsStaleLock(t *testing.T) {
	tr := newTxn(t)
	require.NoError(t, os.MkdirAll(tr.stateDir, 0777))
	// simulate a lock left behind by a crashed (or long-dead) process.
	require.NoError(t, os.Symlink("pid=999999", filepath.Join(tr.stateDir, lockName)))

	resume, err := tr.Prepare()
	require.NoError(t, err)
	assert.True(t, resume)
	assert.True(t, tr.IsOpen())
}

func TestCommitWipesTmpDir(t *testing.T) {
	tr := newTxn(t)
	require.NoError(t, os.MkdirAll(tr.tmpDir, 0777))
	require.NoError(t, os.WriteFile(filepath.Join(tr.tmpDir, "orphan"), []byte("x"), 0644))

	_, err := tr.Prepare()
	require.NoError(t, err)
	_, err = tr.Commit()
	require.NoError(t, err)

	entries, err := os.ReadDir(tr.tmpDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "tmp/ must be empty at transaction end (spec §8)")
}

func TestAbortWipesTmpDir(t *testing.T) {
	tr := newTxn(t)
	require.NoError(t, os.MkdirAll(tr.tmpDir, 0777))
	require.NoError(t, os.WriteFile(filepath.Join(tr.tmpDir, "orphan"), []byte("x"), 0644))

	_, err := tr.Prepare()
	require.NoError(t, err)
	require.NoError(t, tr.Abort())

	entries, err := os.ReadDir(tr.tmpDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "tmp/ must be empty after abort_transaction (spec §8)")
}

func TestDevinoCacheClearedAfterCommit(t *testing.T) {
	tr := newTxn(t)
	_, err := tr.Prepare()
	require.NoError(t, err)
	tr.SetDevinoCache(devino.New())
	require.NotNil(t, tr.Devino())
	_, err = tr.Commit()
	require.NoError(t, err)
	assert.Nil(t, tr.Devino())
}
