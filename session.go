// Package tmin implements the core of an AFL-style test-case minimizer:
// given an input that exhibits some behavior on an instrumented target,
// it produces the smallest input that still exhibits the same behavior,
// driving a persistent forkserver subprocess through a multi-stage
// reduction loop.
package tmin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ehrlich-b/go-tmin/internal/bitmap"
	"github.com/ehrlich-b/go-tmin/internal/constants"
	"github.com/ehrlich-b/go-tmin/internal/engine"
	"github.com/ehrlich-b/go-tmin/internal/forksrv"
	"github.com/ehrlich-b/go-tmin/internal/interfaces"
	"github.com/ehrlich-b/go-tmin/oracle"
	"github.com/ehrlich-b/go-tmin/trim"
)

// Params describes one minimization run, the input/output boundary
// spec.md §6 hands to the core.
type Params struct {
	InputPath  string
	OutputPath string

	// Target is the instrumented command line, "@@" substituted with the
	// current temp input path in file-delivery mode.
	Target []string

	// TargetInputPath, if set, is used instead of a temp file (-f).
	TargetInputPath string

	Timeout time.Duration
	MapSize int

	EdgeMode     bool // -e
	CrashOnExit  bool // -x: treat nonzero exit as crash
	HangMode     bool // -H
	DelLenFloor  int  // -l
	MaskPath     string
	ExactCrash   bool // AFL_TMIN_EXACT
	KillSignal   syscall.Signal
	TermSignal   syscall.Signal

	// CrashExitCode, when non-nil, is AFL_CRASH_EXITCODE: an exit code
	// that counts as a crash regardless of CrashOnExit.
	CrashExitCode *int
}

// Options carries cross-cutting collaborators, mirroring ublk.Options.
type Options struct {
	Context  context.Context
	Logger   interfaces.Logger
	Observer interfaces.Observer

	// Trimmers, if set, are tried in order before the built-in stages
	// (spec §9 "Mutator plugins"); the one shipped default is trim.Null,
	// which never proposes and so never disturbs that order.
	Trimmers []interfaces.Trimmer

	// Stop, if supplied, lets the caller request a clean interruption
	// (spec §5 "Cancellation") from outside, e.g. a signal handler. If
	// nil, Run allocates its own.
	Stop *atomic.Bool
}

// Result is what Run returns on both clean completion and a requested
// stop; Interrupted distinguishes the two for exit-code purposes.
type Result struct {
	Buffer      []byte
	Mode        oracle.Mode
	Stats       Snapshot
	Interrupted bool
}

// Run loads the initial input, establishes the baseline via one oracle
// call, drives the minimization engine to a fixed point, and writes the
// final buffer atomically to OutputPath. Patterned directly on
// ublk.CreateAndServe: validate, construct collaborators in dependency
// order, drive to completion, always release via a deferred teardown.
func Run(ctx context.Context, params Params, options *Options) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if options == nil {
		options = &Options{}
	}
	if options.Context != nil {
		ctx = options.Context
	}
	stop := options.Stop
	if stop == nil {
		stop = &atomic.Bool{}
	}

	initial, err := os.ReadFile(params.InputPath)
	if err != nil {
		return nil, WrapError("load input", ErrCodeIO, err)
	}
	if len(initial) == 0 {
		return nil, NewError("load input", ErrCodeUsage, "input file is empty")
	}
	if len(initial) > MaxInputSize {
		return nil, NewError("load input", ErrCodeUsage, fmt.Sprintf("input exceeds max size %d", MaxInputSize))
	}

	mapSize := params.MapSize
	if mapSize <= 0 {
		mapSize = DefaultMapSize
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}

	stats := NewStats()
	stats.OriginalSize.Store(uint64(len(initial)))
	observer := options.Observer
	if observer == nil {
		observer = NewStatsObserver(stats)
	}

	client, err := forksrv.New(forksrv.Config{
		Target:         params.Target,
		InputPath:      params.TargetInputPath,
		MapSize:        mapSize,
		StartupTimeout: startupTimeout(),
		KillSignal:     params.KillSignal,
		TermSignal:     params.TermSignal,
		CrashOnExit:    params.CrashOnExit,
		CrashExitCode:  params.CrashExitCode,
		Logger:         options.Logger,
		Observer:       observer,
	})
	if err != nil {
		return nil, WrapError("start forkserver", ErrCodeProtocol, err)
	}
	defer client.Close()

	var mask []byte
	if params.MaskPath != "" {
		mask, err = bitmap.LoadMask(params.MaskPath, mapSize)
		if err != nil {
			return nil, WrapError("load mask", ErrCodeIO, err)
		}
	}

	bitmapMode := bitmap.ModeCount
	if params.EdgeMode {
		bitmapMode = bitmap.ModeEdge
	}

	o := oracle.New(oracle.Config{
		Forkserver:   client,
		Observer:     observer,
		BitmapMode:   bitmapMode,
		Mask:         mask,
		Exact:        params.ExactCrash,
		Timeout:      timeout,
		Stop:         func() bool { return stop.Load() },
		BitmapSource: client.Bitmap,
	}, mapSize)

	ok, err := o.Run(initial, true)
	if err != nil {
		return nil, WrapError("establish baseline", ErrCodeProtocol, err)
	}
	if !ok {
		return nil, NewError("establish baseline", ErrCodeInternal, "first run must always be accepted")
	}

	if err := checkModeConsistency(params, o.Mode()); err != nil {
		return nil, err
	}

	trimmed, reducedByTrimmer, err := trim.RunSequence(options.Trimmers, initial, func(candidate []byte) (bool, error) {
		return o.Run(candidate, false)
	})
	if err != nil {
		return nil, WrapError("trim", ErrCodeProtocol, err)
	}

	eng := engine.New(engine.Config{
		Oracle:      o,
		Logger:      options.Logger,
		DelLenFloor: params.DelLenFloor,
		Stop:        stop,
	}, trimmed)
	if reducedByTrimmer {
		eng.SkipBuiltinStages()
	}

	runErr := eng.Minimize()
	interrupted := errors.Is(runErr, engine.ErrStopped) || errors.Is(runErr, oracle.ErrStopped)
	if runErr != nil && !interrupted {
		return nil, WrapError("minimize", ErrCodeInternal, runErr)
	}

	final := eng.Buffer()
	if err := writeAtomic(params.OutputPath, final); err != nil {
		return nil, WrapError("write output", ErrCodeIO, err)
	}

	stats.FinalSize.Store(uint64(len(final)))
	stats.Stop()

	return &Result{
		Buffer:      final,
		Mode:        o.Mode(),
		Stats:       stats.Snapshot(),
		Interrupted: interrupted,
	}, nil
}

// checkModeConsistency enforces spec §4.5: the observed behavior must
// match what the user's flags demanded.
func checkModeConsistency(params Params, mode oracle.Mode) error {
	if params.HangMode && mode != oracle.ModeHang {
		return NewError("establish baseline", ErrCodeSemanticMismatch, "hang mode requested but baseline did not time out")
	}
	if !params.HangMode && mode == oracle.ModeHang {
		return NewError("establish baseline", ErrCodeSemanticMismatch, "baseline timed out but hang mode was not requested")
	}
	return nil
}

// startupTimeout honors AFL_FORKSRV_INIT_TMOUT (milliseconds), falling
// back to DefaultStartupTimeout when unset or invalid.
func startupTimeout() time.Duration {
	if v := os.Getenv(constants.EnvForksrvInitTmout); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return DefaultStartupTimeout
}

// writeAtomic writes data to path via a sibling temp file plus rename, so
// a crash mid-write never leaves a truncated output file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmin-out-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
