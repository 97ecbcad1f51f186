package process

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLister_ListIncludesSelf(t *testing.T) {
	l := NewLister()

	procs, err := l.List(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, procs)

	self := int32(os.Getpid())
	var found bool
	for _, p := range procs {
		assert.NotEmpty(t, p.Name)
		if p.PID == self {
			found = true
		}
	}
	assert.True(t, found, "own process should be listed")
}

func TestLister_GetSelf(t *testing.T) {
	l := NewLister()

	info, err := l.Get(context.Background(), int32(os.Getpid()))
	require.NoError(t, err)
	assert.Equal(t, int32(os.Getpid()), info.PID)
	assert.NotEmpty(t, info.Name)
	// our own executable is always readable without elevation
	assert.NotEmpty(t, info.Exe)
}

func TestLister_GetMissing(t *testing.T) {
	l := NewLister()

	// PIDs are capped well below this on every supported platform
	_, err := l.Get(context.Background(), 1<<30)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLister_ListCancelled(t *testing.T) {
	l := NewLister()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.List(ctx)
	assert.Error(t, err)
}
