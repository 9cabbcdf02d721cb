package refs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneconcern/ostree-go/internal/objpath"
)

func TestParseRefspecWithAndWithoutRemote(t *testing.T) {
	assert.Equal(t, Refspec{Name: "main"}, ParseRefspec("main"))
	assert.Equal(t, Refspec{Remote: "origin", Name: "main"}, ParseRefspec("origin:main"))
	assert.Equal(t, "origin:main", ParseRefspec("origin:main").String())
	assert.Equal(t, "main", ParseRefspec("main").String())
}

func TestResolveMissingRefIsNotAnError(t *testing.T) {
	s := New(t.TempDir())
	_, ok, err := s.Resolve(Refspec{Name: "nope"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplyAllThenResolve(t *testing.T) {
	s := New(t.TempDir())
	cs := objpath.Sum([]byte("commit body"))
	err := s.ApplyAll([]Update{{Ref: Refspec{Name: "main"}, Checksum: &cs}})
	require.NoError(t, err)

	got, ok, err := s.Resolve(Refspec{Name: "main"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cs, got)
}

func TestApplyAllDeletesOnNilChecksum(t *testing.T) {
	s := New(t.TempDir())
	cs := objpath.Sum([]byte("x"))
	require.NoError(t, s.ApplyAll([]Update{{Ref: Refspec{Name: "main"}, Checksum: &cs}}))
	require.NoError(t, s.ApplyAll([]Update{{Ref: Refspec{Name: "main"}, Checksum: nil}}))

	_, ok, err := s.Resolve(Refspec{Name: "main"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplyAllRemoteScoped(t *testing.T) {
	s := New(t.TempDir())
	cs := objpath.Sum([]byte("remote commit"))
	require.NoError(t, s.ApplyAll([]Update{{Ref: Refspec{Remote: "origin", Name: "main"}, Checksum: &cs}}))

	got, ok, err := s.Resolve(Refspec{Remote: "origin", Name: "main"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cs, got)
}

func TestListReturnsPublishedRefs(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	head := objpath.Sum([]byte("head"))
	remoteHead := objpath.Sum([]byte("remote-head"))
	require.NoError(t, s.ApplyAll([]Update{
		{Ref: Refspec{Name: "main"}, Checksum: &head},
		{Ref: Refspec{Remote: "origin", Name: "main"}, Checksum: &remoteHead},
	}))

	updates, err := s.List()
	require.NoError(t, err)
	assert.Len(t, updates, 2)
}
