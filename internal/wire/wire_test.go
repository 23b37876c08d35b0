package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusWordRoundTrip(t *testing.T) {
	want := StatusWord{Features: FeatureMapSizeOverride | FeatureSharedInput}
	got, err := UnmarshalStatusWord(MarshalStatusWord(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestExecCmdRoundTrip(t *testing.T) {
	cases := []ExecCmd{
		{Len: 0, ShmInput: false},
		{Len: 4096, ShmInput: true},
		{Len: cmdLenMask, ShmInput: true},
	}
	for _, want := range cases {
		got, err := UnmarshalExecCmd(MarshalExecCmd(want))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestUnmarshalWordShort(t *testing.T) {
	_, err := UnmarshalWord([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestExecStatusClassifyTimeout(t *testing.T) {
	code, exit, sig := ExecStatus{}.Classify(true, false)
	assert.Equal(t, StatusTimedOut, code)
	assert.Zero(t, exit)
	assert.Zero(t, sig)
}

func TestExecStatusClassifyInternalError(t *testing.T) {
	code, _, _ := ExecStatus{}.Classify(false, true)
	assert.Equal(t, StatusInternalError, code)
}
