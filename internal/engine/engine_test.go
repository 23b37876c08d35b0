package engine

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// containsOracle accepts any candidate that still contains needle, the
// simplest possible equivalence relation for exercising the stages.
type containsOracle struct {
	needle []byte
	calls  int
}

func (o *containsOracle) Run(candidate []byte, firstRun bool) (bool, error) {
	o.calls++
	return bytes.Contains(candidate, o.needle), nil
}

func TestEngineMinimizeFindsSubstring(t *testing.T) {
	initial := make([]byte, 64)
	for i := range initial {
		initial[i] = byte('a' + i%26)
	}
	copy(initial[30:34], []byte("ABCD"))

	o := &containsOracle{needle: []byte("ABCD")}
	e := New(Config{Oracle: o}, initial)
	require.NoError(t, e.Minimize())

	assert.Contains(t, string(e.Buffer()), "ABCD")
	assert.LessOrEqual(t, len(e.Buffer()), len(initial))
}

func TestEngineAlreadyMinimalIsStable(t *testing.T) {
	initial := []byte("ABCD")
	o := &containsOracle{needle: []byte("ABCD")}
	e := New(Config{Oracle: o}, initial)
	require.NoError(t, e.Minimize())
	assert.Equal(t, "ABCD", string(e.Buffer()))
}

// alwaysTrueOracle accepts every candidate, so the engine should shrink
// the buffer all the way to zero bytes.
type alwaysTrueOracle struct{}

func (alwaysTrueOracle) Run(candidate []byte, firstRun bool) (bool, error) { return true, nil }

func TestEngineShrinksToEmpty(t *testing.T) {
	e := New(Config{Oracle: alwaysTrueOracle{}}, []byte("whatever content"))
	require.NoError(t, e.Minimize())
	assert.Empty(t, e.Buffer())
}

func TestEngineSingleByteInputSkipsStages123(t *testing.T) {
	o := &containsOracle{needle: []byte("X")}
	e := New(Config{Oracle: o}, []byte("X"))
	require.NoError(t, e.Minimize())
	assert.Equal(t, "X", string(e.Buffer()))
}

func TestEngineSkipBuiltinStagesRunsStage0Only(t *testing.T) {
	o := &containsOracle{needle: []byte("ABCD")}
	initial := []byte("AABBCCDDABCD")
	e := New(Config{Oracle: o}, initial)
	e.SkipBuiltinStages()
	require.NoError(t, e.Minimize())

	// Stage 0 (block normalization) still runs; the byte-by-byte Stage
	// 1-3 passes that would otherwise shrink this further do not.
	assert.Equal(t, len(initial), len(e.Buffer()))
}

// TestStage1SweepsDownToFloorForSmallInputs guards against stage1 being a
// pre-test loop that skips the length==DelLenFloor sweep entirely for
// inputs at or under 1024 bytes (nextPow2(|B|/1024) == 1 for any such
// input, which equals the default floor).
func TestStage1SweepsDownToFloorForSmallInputs(t *testing.T) {
	o := &containsOracle{needle: []byte("KEEP")}
	e := New(Config{Oracle: o, DelLenFloor: 1}, []byte("xxxxKEEPxxxx"))

	changed, err := e.stage1()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "KEEP", string(e.Buffer()))
}

// TestStage1SweepsMultipleLengthsForLargeInputs exercises a >1024-byte
// input so the halving loop actually runs more than one length.
func TestStage1SweepsMultipleLengthsForLargeInputs(t *testing.T) {
	initial := make([]byte, 2048)
	for i := range initial {
		initial[i] = 'x'
	}
	copy(initial[1000:1004], []byte("KEEP"))

	o := &containsOracle{needle: []byte("KEEP")}
	e := New(Config{Oracle: o, DelLenFloor: 1}, initial)
	require.NoError(t, e.Minimize())

	assert.Contains(t, string(e.Buffer()), "KEEP")
	assert.Less(t, len(e.Buffer()), len(initial))
}

func TestNextPow2(t *testing.T) {
	assert.Equal(t, 1, nextPow2(0))
	assert.Equal(t, 1, nextPow2(1))
	assert.Equal(t, 16, nextPow2(16))
	assert.Equal(t, 32, nextPow2(17))
}
