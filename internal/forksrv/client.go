// Package forksrv speaks the forkserver handshake and per-execution wire
// protocol (spec §4.1) over a pair of inherited pipe file descriptors.
//
// Grounded on internal/ctrl/control.go's Controller, which owns one
// long-lived fd and drives a request/response cycle per call, and on
// internal/queue/runner.go's explicit per-tag state machine (TagState),
// generalized here to the client-wide state machine named in spec §9:
// UNSTARTED -> HANDSHAKING -> READY -> RUNNING(pid) -> READY | TERMINATED.
package forksrv

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/ehrlich-b/go-tmin/internal/constants"
	"github.com/ehrlich-b/go-tmin/internal/interfaces"
	"github.com/ehrlich-b/go-tmin/internal/shmem"
	"github.com/ehrlich-b/go-tmin/internal/wire"
)

// State is the client-wide forkserver lifecycle state (spec §9).
type State int

const (
	StateUnstarted State = iota
	StateHandshaking
	StateReady
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// InputMode selects how a candidate is delivered to the target.
type InputMode int

const (
	InputModeFile InputMode = iota
	InputModeSharedMemory
)

// Config configures one forkserver client.
type Config struct {
	// Target is the command line to run: the instrumented binary plus its
	// arguments. The literal token "@@" is replaced with InputPath in File
	// mode (spec §6).
	Target []string

	// InputPath is the path the target reads from in File mode. If empty,
	// a temp file is created and torn down with the client.
	InputPath string

	// MapSize is the coverage bitmap entry count.
	MapSize int

	// StartupTimeout bounds the handshake.
	StartupTimeout time.Duration

	// KillSignal is sent to a timed-out grandchild (default SIGKILL).
	KillSignal syscall.Signal

	// TermSignal is sent to the forkserver itself at teardown (default
	// SIGTERM).
	TermSignal syscall.Signal

	// CrashOnExit treats any nonzero exit code as a crash (-x). Without it,
	// only a fatal signal (or a match against CrashExitCode) counts.
	CrashOnExit bool

	// CrashExitCode, when non-nil, is an additional exit code (besides a
	// fatal signal) that counts as a crash regardless of CrashOnExit --
	// AFL_CRASH_EXITCODE, used by sanitizer builds that exit rather than
	// raise a signal on detected errors.
	CrashExitCode *int

	Logger   interfaces.Logger
	Observer interfaces.Observer
}

var _ interfaces.Forkserver = (*Client)(nil)

// Client drives one forkserver subprocess through its handshake and
// per-execution protocol.
type Client struct {
	mu    sync.Mutex
	state State

	cfg Config
	cmd *exec.Cmd

	parentRead  *os.File // client reads status from here
	parentWrite *os.File // client writes commands to here

	channel   *shmem.Channel
	inputMode InputMode
	inputFile *os.File
	tempInput bool

	pid int32
}

// New launches the forkserver process and completes the handshake. The
// returned Client is in StateReady on success.
func New(cfg Config) (*Client, error) {
	if cfg.MapSize <= 0 {
		cfg.MapSize = constants.DefaultMapSize
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = constants.DefaultStartupTimeout
	}
	if cfg.KillSignal == 0 {
		cfg.KillSignal = syscall.SIGKILL
	}
	if cfg.TermSignal == 0 {
		cfg.TermSignal = syscall.SIGTERM
	}

	c := &Client{state: StateUnstarted, cfg: cfg}

	channel, err := shmem.NewChannel(cfg.MapSize, constants.MaxInputSize, true)
	if err != nil {
		return nil, fmt.Errorf("forksrv: %w", err)
	}
	c.channel = channel

	if err := c.openInput(); err != nil {
		channel.Close()
		return nil, err
	}

	if err := c.spawn(); err != nil {
		c.channel.Close()
		return nil, err
	}

	if err := c.handshake(); err != nil {
		c.teardown()
		return nil, err
	}

	return c, nil
}

func (c *Client) openInput() error {
	if c.cfg.InputPath != "" {
		f, err := os.OpenFile(c.cfg.InputPath, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return fmt.Errorf("forksrv: open input path: %w", err)
		}
		c.inputFile = f
		return nil
	}
	f, err := os.CreateTemp(os.Getenv(constants.EnvTmpDir), "go-tmin-input-*")
	if err != nil {
		return fmt.Errorf("forksrv: create temp input: %w", err)
	}
	c.inputFile = f
	c.tempInput = true
	c.cfg.InputPath = f.Name()
	return nil
}

// spawn forks the forkserver binary with the control pipes, the bitmap fd,
// and (when negotiated) the shared-input fd inherited as extra files.
func (c *Client) spawn() error {
	fromClient, toChild, err := os.Pipe() // client writes commands here, child reads
	if err != nil {
		return fmt.Errorf("forksrv: control pipe: %w", err)
	}
	fromChild, toClient, err := os.Pipe() // child writes status here, client reads
	if err != nil {
		fromClient.Close()
		toChild.Close()
		return fmt.Errorf("forksrv: status pipe: %w", err)
	}

	args := substituteInputToken(c.cfg.Target, c.cfg.InputPath)
	if len(args) == 0 {
		fromClient.Close()
		toChild.Close()
		toClient.Close()
		fromChild.Close()
		return fmt.Errorf("forksrv: empty target command")
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin = c.inputFile
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// ExtraFiles are always renumbered to start at fd 3 in the child, so
	// the control pipes land at fixed, predictable slots (3 and 4) rather
	// than the hardcoded 198/199 wire.FDControlRead/FDControlWrite afl-tmin
	// uses — Go's exec.Cmd has no portable way to land ExtraFiles at an
	// arbitrary fd number short of a raw fork+dup2, so the target binary's
	// build is expected to read these two slots instead.
	cmd.ExtraFiles = []*os.File{fromClient, toClient}
	// The bitmap (and optional input) region's fd was opened directly via
	// a raw syscall, not through the os package, so it has no FD_CLOEXEC
	// set and survives exec at its original number unchanged; the child
	// locates it from the env var alone, no ExtraFiles slot needed.
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=%d", constants.EnvShmFD, c.channel.BitmapFD()),
	)
	if c.channel.HasInput() {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%d", constants.EnvShmInputFD, c.channel.InputFD()))
	}

	if err := cmd.Start(); err != nil {
		toChild.Close()
		fromClient.Close()
		toClient.Close()
		fromChild.Close()
		return fmt.Errorf("forksrv: start target: %w", err)
	}

	fromClient.Close()
	toClient.Close()

	c.cmd = cmd
	c.parentWrite = toChild
	c.parentRead = fromChild
	c.state = StateHandshaking
	return nil
}

func (c *Client) handshake() error {
	done := make(chan error, 1)
	var status wire.StatusWord
	go func() {
		buf := make([]byte, 4)
		n, err := c.parentRead.Read(buf)
		if err != nil {
			done <- err
			return
		}
		if n < 4 {
			done <- fmt.Errorf("forksrv: short handshake read (%d bytes)", n)
			return
		}
		status, err = wire.UnmarshalStatusWord(buf)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("forksrv: handshake: %w", err)
		}
	case <-time.After(c.cfg.StartupTimeout):
		return fmt.Errorf("forksrv: handshake timed out after %s", c.cfg.StartupTimeout)
	}

	c.inputMode = InputModeFile
	if status.Features&wire.FeatureSharedInput != 0 {
		c.inputMode = InputModeSharedMemory
	}

	ack := wire.MarshalStatusWord(wire.StatusWord{Features: status.Features & wire.FeatureSharedInput})
	if _, err := c.parentWrite.Write(ack); err != nil {
		return fmt.Errorf("forksrv: handshake ack: %w", err)
	}

	c.state = StateReady
	if c.cfg.Logger != nil {
		c.cfg.Logger.Debugf("forkserver ready, input mode=%v features=%#x", c.inputMode, status.Features)
	}
	return nil
}

// Execute delivers candidate to the target and blocks until a verdict is
// available or timeout expires. Implements interfaces.Forkserver.
func (c *Client) Execute(candidate []byte, timeout time.Duration) (interfaces.ExecResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReady {
		return interfaces.ExecResult{}, fmt.Errorf("forksrv: execute called in state %v", c.state)
	}

	if err := c.deliver(candidate); err != nil {
		return interfaces.ExecResult{}, err
	}

	cmd := wire.ExecCmd{ShmInput: c.inputMode == InputModeSharedMemory}
	if cmd.ShmInput {
		cmd.Len = uint32(len(candidate))
	}
	if _, err := c.parentWrite.Write(wire.MarshalExecCmd(cmd)); err != nil {
		c.state = StateTerminated
		return interfaces.ExecResult{}, fmt.Errorf("forksrv: write exec command: %w", err)
	}

	pid, err := c.readPID()
	if err != nil {
		c.state = StateTerminated
		return interfaces.ExecResult{}, err
	}
	c.pid = pid
	c.state = StateRunning

	start := time.Now()
	status, timedOut, err := c.waitStatus(timeout)
	latency := time.Since(start)
	if err != nil {
		c.state = StateTerminated
		return interfaces.ExecResult{}, err
	}

	c.state = StateReady
	c.pid = 0

	result := c.classify(status, timedOut)
	if c.cfg.Observer != nil {
		c.cfg.Observer.ObserveExec(result.Verdict, latency)
	}
	return result, nil
}

func (c *Client) deliver(candidate []byte) error {
	switch c.inputMode {
	case InputModeSharedMemory:
		return c.channel.WriteInput(candidate)
	default:
		if _, err := c.inputFile.WriteAt(candidate, 0); err != nil {
			return fmt.Errorf("forksrv: write input file: %w", err)
		}
		return c.inputFile.Truncate(int64(len(candidate)))
	}
}

func (c *Client) readPID() (int32, error) {
	buf := make([]byte, 4)
	n, err := c.parentRead.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("forksrv: read pid: %w", err)
	}
	if n < 4 {
		return 0, fmt.Errorf("forksrv: short pid read (%d bytes)", n)
	}
	return wire.UnmarshalPID(buf)
}

// waitStatus races a blocking read of the status word against a timer, the
// second of the three suspension points named in spec §5.
func (c *Client) waitStatus(timeout time.Duration) (wire.ExecStatus, bool, error) {
	done := make(chan struct {
		status wire.ExecStatus
		err    error
	}, 1)

	go func() {
		buf := make([]byte, 4)
		n, err := c.parentRead.Read(buf)
		if err != nil {
			done <- struct {
				status wire.ExecStatus
				err    error
			}{err: fmt.Errorf("forksrv: read status: %w", err)}
			return
		}
		if n < 4 {
			done <- struct {
				status wire.ExecStatus
				err    error
			}{err: fmt.Errorf("forksrv: short status read (%d bytes)", n)}
			return
		}
		status, err := wire.UnmarshalExecStatus(buf)
		done <- struct {
			status wire.ExecStatus
			err    error
		}{status: status, err: err}
	}()

	select {
	case r := <-done:
		return r.status, false, r.err
	case <-time.After(timeout):
		if c.pid != 0 {
			_ = syscall.Kill(int(c.pid), c.cfg.KillSignal)
		}
		r := <-done // the forkserver still replies once the grandchild is reaped
		return r.status, true, r.err
	}
}

func (c *Client) classify(status wire.ExecStatus, timedOut bool) interfaces.ExecResult {
	code, exitCode, signal := status.Classify(timedOut, false)
	switch code {
	case wire.StatusTimedOut:
		return interfaces.ExecResult{Verdict: interfaces.VerdictTimeout}
	case wire.StatusInternalError:
		return interfaces.ExecResult{Verdict: interfaces.VerdictInternalError}
	case wire.StatusSignalled:
		return interfaces.ExecResult{Verdict: interfaces.VerdictCrash, Signal: signal}
	default:
		if c.cfg.CrashExitCode != nil && exitCode == *c.cfg.CrashExitCode {
			return interfaces.ExecResult{Verdict: interfaces.VerdictCrash, ExitCode: exitCode}
		}
		if c.cfg.CrashOnExit && exitCode != 0 {
			return interfaces.ExecResult{Verdict: interfaces.VerdictCrash, ExitCode: exitCode}
		}
		return interfaces.ExecResult{Verdict: interfaces.VerdictOK, ExitCode: exitCode}
	}
}

// Bitmap returns the coverage bitmap's backing slice, owned by the shared-
// memory channel and written in place by the target on every execution.
func (c *Client) Bitmap() []byte { return c.channel.Bitmap() }

// Close tears the forkserver down: sends TermSignal, waits briefly, then
// releases the shared-memory channel and temp input file. Implements
// interfaces.Forkserver.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teardown()
}

func (c *Client) teardown() error {
	if c.state == StateTerminated && c.cmd == nil {
		return nil
	}
	var errs []error

	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Signal(c.cfg.TermSignal)
		done := make(chan error, 1)
		go func() { done <- c.cmd.Wait() }()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			_ = c.cmd.Process.Kill()
			<-done
		}
	}
	if c.parentRead != nil {
		_ = c.parentRead.Close()
	}
	if c.parentWrite != nil {
		_ = c.parentWrite.Close()
	}
	if c.inputFile != nil {
		_ = c.inputFile.Close()
		if c.tempInput {
			_ = os.Remove(c.inputFile.Name())
		}
	}
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	c.state = StateTerminated
	if len(errs) > 0 {
		return fmt.Errorf("forksrv: teardown errors: %v", errs)
	}
	return nil
}

// substituteInputToken replaces the literal "@@" token with path, per
// spec §6, returning a copy so the caller's slice is untouched.
func substituteInputToken(args []string, path string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if a == "@@" {
			out[i] = path
		} else {
			out[i] = a
		}
	}
	return out
}
