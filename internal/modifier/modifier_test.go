package modifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oneconcern/ostree-go/internal/content"
)

func TestApplyNilModifierAllowsUnchanged(t *testing.T) {
	info := content.FileInfo{Mode: 0644}
	verdict, out := Apply(nil, []string{"a", "b"}, info)
	assert.Equal(t, Allow, verdict)
	assert.Equal(t, info, out)
}

func TestApplyPassesRootedPath(t *testing.T) {
	var gotPath string
	m := New(0, func(path string, info content.FileInfo, userData interface{}) (Result, content.FileInfo) {
		gotPath = path
		return Allow, info
	}, nil, nil)

	_, _ = Apply(m, []string{"a", "b"}, content.FileInfo{})
	assert.Equal(t, "/a/b", gotPath)

	_, _ = Apply(m, nil, content.FileInfo{})
	assert.Equal(t, "/", gotPath)
}

func TestApplySkipStopsIngest(t *testing.T) {
	m := New(0, func(path string, info content.FileInfo, userData interface{}) (Result, content.FileInfo) {
		return Skip, info
	}, nil, nil)
	verdict, _ := Apply(m, []string{"secret"}, content.FileInfo{})
	assert.Equal(t, Skip, verdict)
}

func TestHasFlagToleratesNil(t *testing.T) {
	assert.False(t, HasFlag(nil, SkipXAttrs))
}

func TestHasFlagChecksBit(t *testing.T) {
	m := New(SkipXAttrs, nil, nil, nil)
	assert.True(t, HasFlag(m, SkipXAttrs))
}

func TestCloseRunsDestroyExactlyOnce(t *testing.T) {
	calls := 0
	m := New(0, nil, "userdata", func(interface{}) { calls++ })
	m.Close()
	m.Close()
	assert.Equal(t, 1, calls)
}
