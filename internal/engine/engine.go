// Package engine drives the multi-stage reduction loop over an input
// buffer (spec §4.2): block normalization, halving block deletion,
// alphabet minimization, and single-byte minimization, repeated as passes
// until a fixed point.
//
// Grounded on queue.Runner's outer loop shape (processRequests:
// poll -> dispatch -> commit-or-not) for the stage/pass control flow, and
// on queue.BufferPool for the allocate-once scratch-buffer discipline
// (internal/engine.Buffer).
package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/ehrlich-b/go-tmin/internal/constants"
	"github.com/ehrlich-b/go-tmin/internal/interfaces"
)

// Stats accumulates per-stage acceptance counts for the final report.
type Stats struct {
	Stage0Accepted uint64
	Stage1Accepted uint64
	Stage2Accepted uint64
	Stage3Accepted uint64
	Passes         uint64
}

// Config configures one Engine run.
type Config struct {
	Oracle interfaces.Oracle
	Logger interfaces.Logger

	// DelLenFloor is the Stage 1 block-deletion length floor (-l, spec
	// §6), default 1.
	DelLenFloor int

	// Stop is checked before every oracle query; when set, Minimize
	// returns immediately with ErrStopped and leaves B at its last
	// accepted value (spec §5 "Cancellation").
	Stop *atomic.Bool
}

// ErrStopped is returned by Minimize when the stop flag was observed set.
var ErrStopped = fmt.Errorf("engine: stop requested")

// Engine drives the reduction stages over one input buffer.
type Engine struct {
	cfg   Config
	buf   *Buffer
	stats Stats

	// skipReduction, when set via SkipBuiltinStages, makes Minimize run
	// Stage 0 only: spec §9 "Mutator plugins" -- if a trimmer sequence
	// reduced the buffer at all before the engine ran, Stages 1-3 are
	// skipped for this invocation.
	skipReduction bool
}

// New constructs an Engine over initial, the input already confirmed
// equivalent to itself by the driver's first oracle call.
func New(cfg Config, initial []byte) *Engine {
	if cfg.DelLenFloor <= 0 {
		cfg.DelLenFloor = constants.DefaultDelLenFloor
	}
	return &Engine{cfg: cfg, buf: NewBuffer(initial)}
}

// Buffer exposes the accepted buffer, valid at any point including after
// a stopped or errored Minimize call.
func (e *Engine) Buffer() []byte { return e.buf.Accepted() }

// SkipBuiltinStages marks this invocation as having already been reduced
// by a trimmer sequence (spec §9): Minimize will run Stage 0 and then
// return without entering the Stage 1-3 pass loop.
func (e *Engine) SkipBuiltinStages() { e.skipReduction = true }

// Stats returns the accumulated per-stage acceptance counts.
func (e *Engine) Stats() Stats { return e.stats }

// Minimize runs Stage 0 once, then loops Stages 1-3 as passes until a
// full pass makes no change (spec §4.2 "Outer loop").
func (e *Engine) Minimize() error {
	if err := e.checkStop(); err != nil {
		return err
	}
	if err := e.stage0(); err != nil {
		return err
	}
	if e.skipReduction {
		return nil
	}

	for {
		changed := false
		e.stats.Passes++

		if len(e.buf.Accepted()) > 1 {
			acc, err := e.stage1()
			if err != nil {
				return err
			}
			changed = changed || acc

			acc, err = e.stage2()
			if err != nil {
				return err
			}
			changed = changed || acc

			acc, err = e.stage3()
			if err != nil {
				return err
			}
			changed = changed || acc
		}

		if e.cfg.Logger != nil {
			e.cfg.Logger.Debugf("pass %d complete, buffer now %d bytes, changed=%v", e.stats.Passes, len(e.buf.Accepted()), changed)
		}
		if !changed {
			return nil
		}
	}
}

func (e *Engine) checkStop() error {
	if e.cfg.Stop != nil && e.cfg.Stop.Load() {
		return ErrStopped
	}
	return nil
}

func (e *Engine) query(candidate []byte) (bool, error) {
	if err := e.checkStop(); err != nil {
		return false, err
	}
	ok, err := e.cfg.Oracle.Run(candidate, false)
	if err != nil {
		return false, fmt.Errorf("engine: oracle query: %w", err)
	}
	return ok, nil
}

func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
