package tmin

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-tmin/internal/bitmap"
	"github.com/ehrlich-b/go-tmin/internal/engine"
	"github.com/ehrlich-b/go-tmin/internal/interfaces"
	"github.com/ehrlich-b/go-tmin/oracle"
)

func TestMockForkserverRecordsCallsAndInput(t *testing.T) {
	m := NewMockForkserver()
	res, err := m.Execute([]byte("hello"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, interfaces.VerdictOK, res.Verdict)
	assert.Equal(t, 1, m.ExecCalls())
	assert.Equal(t, []byte("hello"), m.LastInput())
	assert.False(t, m.IsClosed())

	require.NoError(t, m.Close())
	assert.True(t, m.IsClosed())

	m.Reset()
	assert.Equal(t, 0, m.ExecCalls())
	assert.False(t, m.IsClosed())
}

func TestMockForkserverFallsBackToDefaultAfterVerdictsExhausted(t *testing.T) {
	m := &MockForkserver{
		Verdicts: []interfaces.ExecResult{{Verdict: interfaces.VerdictCrash}},
		Default:  interfaces.ExecResult{Verdict: interfaces.VerdictOK},
	}
	res, _ := m.Execute([]byte("a"), time.Second)
	assert.Equal(t, interfaces.VerdictCrash, res.Verdict)
	res, _ = m.Execute([]byte("b"), time.Second)
	assert.Equal(t, interfaces.VerdictOK, res.Verdict)
}

// bitmapForkserver wraps MockForkserver with a rawBitmap source so the
// oracle can run in coverage mode against it: every Execute call paints
// a fixed bitmap pattern when candidate contains needle, and a flatter
// one otherwise, the simplest stand-in for real target instrumentation.
type bitmapForkserver struct {
	*MockForkserver
	needle []byte
	raw    []byte
}

func newBitmapForkserver(mapSize int, needle []byte) *bitmapForkserver {
	return &bitmapForkserver{
		MockForkserver: NewMockForkserver(),
		needle:         needle,
		raw:            make([]byte, mapSize),
	}
}

func (b *bitmapForkserver) Execute(candidate []byte, timeout time.Duration) (interfaces.ExecResult, error) {
	for i := range b.raw {
		b.raw[i] = 0
	}
	if bytes.Contains(candidate, b.needle) {
		b.raw[0] = 1
		b.raw[1] = 1
	} else {
		b.raw[0] = 1
	}
	return b.MockForkserver.Execute(candidate, timeout)
}

func (b *bitmapForkserver) Bitmap() []byte { return b.raw }

// TestOracleEngineIntegrationWithMockForkserver drives a real oracle and
// engine end to end against MockForkserver, the same no-subprocess path
// Run takes internally, minus the real forksrv.Client.
func TestOracleEngineIntegrationWithMockForkserver(t *testing.T) {
	const mapSize = 64
	needle := []byte("KEEP")
	fs := newBitmapForkserver(mapSize, needle)

	o := oracle.New(oracle.Config{
		Forkserver:   fs,
		BitmapMode:   bitmap.ModeEdge,
		Timeout:      time.Second,
		BitmapSource: fs.Bitmap,
	}, mapSize)

	initial := []byte("xxxxxKEEPxxxxx")
	ok, err := o.Run(initial, true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, oracle.ModeCoverage, o.Mode())

	eng := engine.New(engine.Config{Oracle: o}, initial)
	require.NoError(t, eng.Minimize())

	assert.Contains(t, string(eng.Buffer()), "KEEP")
	assert.LessOrEqual(t, len(eng.Buffer()), len(initial))
	assert.Greater(t, fs.ExecCalls(), 1, "minimization should drive more than one candidate through the mock")
}
