package binscope

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoisonLock_ReadWrite(t *testing.T) {
	t.Parallel()
	var l poisonLock
	n := 0
	require.NoError(t, l.write(func() error { n++; return nil }))
	require.NoError(t, l.read(func() error { assert.Equal(t, 1, n); return nil }))

	boom := errors.New("boom")
	assert.ErrorIs(t, l.write(func() error { return boom }), boom)
	assert.NoError(t, l.read(func() error { return nil }), "plain errors do not poison")
}

func TestPoisonLock_PanicPoisons(t *testing.T) {
	t.Parallel()
	var l poisonLock

	err := l.write(func() error { panic("half-written") })
	require.ErrorIs(t, err, ErrLockPoisoned)
	assert.Contains(t, err.Error(), "half-written")

	assert.ErrorIs(t, l.read(func() error { return nil }), ErrLockPoisoned)
	assert.ErrorIs(t, l.write(func() error { return nil }), ErrLockPoisoned)
}
