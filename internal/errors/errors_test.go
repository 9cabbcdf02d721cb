package errors

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesSentinelIdentity(t *testing.T) {
	wrapped := Cancelled.Wrap(fmt.Errorf("underlying"))
	assert.True(t, Is(wrapped, Cancelled))
	assert.False(t, Is(wrapped, NotFound))
	assert.Contains(t, wrapped.Error(), "cancelled")
	assert.Contains(t, wrapped.Error(), "underlying")
}

func TestWrapDoesNotMutateSentinel(t *testing.T) {
	before := Cancelled.Error()
	_ = Cancelled.Wrap(fmt.Errorf("some cause"))
	assert.Equal(t, before, Cancelled.Error())
}

func TestConcurrentWrapIsRaceFree(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := Cancelled.Wrap(fmt.Errorf("goroutine %d", i))
			if !Is(err, Cancelled) {
				t.Errorf("goroutine %d: lost sentinel identity", i)
			}
		}(i)
	}
	wg.Wait()
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	wrapped := NotFound.Wrap(cause)
	assert.Equal(t, cause, wrapped.Unwrap())
}
