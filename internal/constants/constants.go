// Package constants holds default configuration values shared across the
// minimizer's internal packages.
package constants

import "time"

// Size limits
const (
	// MaxInputSize is the compile-time maximum size of a candidate input.
	MaxInputSize = 1 << 20 // 1 MiB

	// DefaultMapSize is the default coverage bitmap entry count, overridable
	// via AFL_MAP_SIZE.
	DefaultMapSize = 65536

	// DefaultDelLenFloor is the default floor for Stage 1 block-deletion
	// length, overridable by -l.
	DefaultDelLenFloor = 1

	// MinBlockLen is the minimum Stage 0 normalization block length.
	MinBlockLen = 16
)

// Timing constants for the forkserver handshake and per-exec protocol.
//
// These mirror the suspension points named in the spec: a blocking read
// awaiting the forkserver status word, and a timer-armed wait for the
// grandchild to finish or be killed.
const (
	// DefaultStartupTimeout bounds the forkserver handshake.
	DefaultStartupTimeout = 10 * time.Second

	// DefaultExecTimeout bounds a single target execution.
	DefaultExecTimeout = 1 * time.Second

	// MinExecTimeout is the smallest timeout -t will accept.
	MinExecTimeout = 10 * time.Millisecond
)

// Environment variables consumed by the minimizer (see spec §6).
const (
	EnvExact             = "AFL_TMIN_EXACT"
	EnvCrashExitCode     = "AFL_CRASH_EXITCODE"
	EnvKillSignal        = "AFL_KILL_SIGNAL"
	EnvForkSrvKillSignal = "AFL_FORK_SERVER_KILL_SIGNAL"
	EnvMapSize           = "AFL_MAP_SIZE"
	EnvForksrvInitTmout  = "AFL_FORKSRV_INIT_TMOUT"
	EnvNoForksrv         = "AFL_NO_FORKSRV"
	EnvDebug             = "AFL_DEBUG"
	EnvTmpDir            = "TMPDIR"

	// EnvShmFD carries the inherited coverage-bitmap fd to the forkserver
	// (and from there to the target), as the shared-memory contract in
	// spec §6 requires.
	EnvShmFD = "__AFL_SHM_FD"

	// EnvShmInputFD carries the inherited shared-memory-input fd, when the
	// negotiated input delivery mode is shared memory rather than file.
	EnvShmInputFD = "__AFL_SHM_INPUT_FD"
)

// Reporting thresholds (spec §7): "results may be skewed" fires once at
// least this many executions have run and missed hangs exceed a tenth of
// them.
const (
	MinExecsForSkewWarning = 50
)
