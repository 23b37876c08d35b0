package shmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChannelBitmapOnly(t *testing.T) {
	ch, err := NewChannel(65536, 1<<20, false)
	require.NoError(t, err)
	defer ch.Close()

	assert.Len(t, ch.Bitmap(), 65536)
	assert.False(t, ch.HasInput())
	assert.Equal(t, -1, ch.InputFD())
}

func TestChannelWriteInput(t *testing.T) {
	ch, err := NewChannel(1024, 64, true)
	require.NoError(t, err)
	defer ch.Close()

	require.True(t, ch.HasInput())
	require.NoError(t, ch.WriteInput([]byte("ABCD")))

	err = ch.WriteInput(make([]byte, 1024))
	assert.Error(t, err, "candidate larger than the region must be rejected")
}

func TestChannelCloseIdempotent(t *testing.T) {
	ch, err := NewChannel(16, 16, false)
	require.NoError(t, err)
	assert.NoError(t, ch.Close())
	assert.NoError(t, ch.Close())
}
