package forksrv

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ehrlich-b/go-tmin/internal/interfaces"
	"github.com/ehrlich-b/go-tmin/internal/wire"
)

func TestSubstituteInputToken(t *testing.T) {
	args := []string{"target", "@@", "--flag", "@@"}
	out := substituteInputToken(args, "/tmp/input")
	assert.Equal(t, []string{"target", "/tmp/input", "--flag", "/tmp/input"}, out)
	assert.Equal(t, "@@", args[1], "original slice must not be mutated")
}

func TestClassifyNormalExit(t *testing.T) {
	c := &Client{}
	res := c.classify(wire.ExecStatus{Raw: 0}, false)
	assert.Equal(t, interfaces.VerdictOK, res.Verdict)
}

func TestClassifyTimeout(t *testing.T) {
	c := &Client{}
	res := c.classify(wire.ExecStatus{Raw: 0}, true)
	assert.Equal(t, interfaces.VerdictTimeout, res.Verdict)
}

func TestClassifyNonZeroExitIsOKByDefault(t *testing.T) {
	c := &Client{}
	status := wire.ExecStatus{Raw: uint32(42 << 8)} // WEXITSTATUS layout
	res := c.classify(status, false)
	assert.Equal(t, interfaces.VerdictOK, res.Verdict)
	assert.Equal(t, 42, res.ExitCode)
}

func TestClassifyNonZeroExitIsCrashWithCrashOnExit(t *testing.T) {
	c := &Client{cfg: Config{CrashOnExit: true}}
	status := wire.ExecStatus{Raw: uint32(42 << 8)}
	res := c.classify(status, false)
	assert.Equal(t, interfaces.VerdictCrash, res.Verdict)
	assert.Equal(t, 42, res.ExitCode)
}

func TestClassifyMatchingCrashExitCodeIsCrash(t *testing.T) {
	code := 2
	c := &Client{cfg: Config{CrashExitCode: &code}}
	status := wire.ExecStatus{Raw: uint32(2 << 8)}
	res := c.classify(status, false)
	assert.Equal(t, interfaces.VerdictCrash, res.Verdict)
}

func TestClassifySignalAlwaysCrashRegardlessOfCrashOnExit(t *testing.T) {
	c := &Client{}
	status := wire.ExecStatus{Raw: uint32(11)} // SIGSEGV, signalled bit set
	res := c.classify(status, false)
	assert.Equal(t, interfaces.VerdictCrash, res.Verdict)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "unknown", State(99).String())
}
