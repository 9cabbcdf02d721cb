package dlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLoggerNoneIsNop(t *testing.T) {
	l, err := GetLogger(LevelNone)
	require.NoError(t, err)
	require.NotNil(t, l)
}

func TestGetLoggerRejectsBadLevel(t *testing.T) {
	_, err := GetLogger("not-a-level")
	assert.Error(t, err)
}

func TestMustGetLoggerPanicsOnBadLevel(t *testing.T) {
	assert.Panics(t, func() { MustGetLogger("not-a-level") })
}

func TestMustGetLoggerAcceptsKnownLevels(t *testing.T) {
	assert.NotPanics(t, func() { MustGetLogger(LevelInfo) })
	assert.NotPanics(t, func() { MustGetLogger(LevelDebug) })
}
