// Package oracle implements the behavior-equivalence decision procedure
// (spec §4.3): run a candidate through the forkserver channel, classify
// its coverage bitmap, and decide "same / different" against the
// baseline fixed on the first call.
//
// This lives at the module root rather than under internal/, the same
// visibility the teacher gives ublk.Metrics: both the driver and tests
// construct it directly rather than reaching for it only through an
// internal indirection.
package oracle

import (
	"fmt"
	"time"

	"github.com/ehrlich-b/go-tmin/internal/bitmap"
	"github.com/ehrlich-b/go-tmin/internal/interfaces"
)

// Mode is the equivalence relation fixed after the first oracle call.
type Mode int

const (
	ModeUnset Mode = iota
	ModeCoverage
	ModeCrash
	ModeHang
)

func (m Mode) String() string {
	switch m {
	case ModeCoverage:
		return "coverage"
	case ModeCrash:
		return "crash"
	case ModeHang:
		return "hang"
	default:
		return "unset"
	}
}

// Config configures one Oracle.
type Config struct {
	Forkserver interfaces.Forkserver
	Observer   interfaces.Observer

	// BitmapMode selects edge-mode or count-mode classification.
	BitmapMode bitmap.Mode

	// Mask, if non-nil, is bitwise-cleared from every classified bitmap
	// before comparison (spec §3 "mask bitmap").
	Mask []byte

	// Exact requires, in CRASH mode, that the bitmap hash also match.
	// Forced off automatically once Mode resolves to HANG (spec §4).
	Exact bool

	// Timeout bounds a single execution.
	Timeout time.Duration

	// Stop is polled after every verdict (spec §5 "Cancellation"); when
	// true the oracle returns a sentinel error the driver treats as a
	// clean, user-requested stop.
	Stop func() bool

	// BitmapSource returns the current raw coverage bitmap, read fresh on
	// every classify call since the forkserver writes it in place
	// (normally the shared-memory channel's backing slice).
	BitmapSource func() []byte
}

// ErrStopped is returned by Run when the stop flag was observed set.
var ErrStopped = fmt.Errorf("oracle: stop requested")

// Oracle holds the baseline established by the first Run call and decides
// equivalence for every subsequent candidate. Implements
// internal/interfaces.Oracle.
type Oracle struct {
	cfg Config

	mode     Mode
	baseline uint64 // valid only when mode == ModeCoverage
	scratch  []byte // classified-bitmap scratch, owned by the oracle

	missedHangs   uint64
	missedCrashes uint64
	missedPaths   uint64
	totalExecs    uint64
}

var _ interfaces.Oracle = (*Oracle)(nil)

// New constructs an Oracle. The bitmap backing slice is supplied by the
// caller (the shared-memory channel's region) and must remain valid for
// the Oracle's lifetime; scratch space is allocated here, out-of-place
// from the raw bitmap per spec §9 "Bitmap ownership".
func New(cfg Config, mapSize int) *Oracle {
	return &Oracle{cfg: cfg, scratch: make([]byte, mapSize)}
}

// Mode returns the equivalence relation fixed on the first Run call, or
// ModeUnset before then.
func (o *Oracle) Mode() Mode { return o.mode }

// Stats returns the transient-anomaly counters for the final report.
func (o *Oracle) Stats() (missedHangs, missedCrashes, missedPaths, totalExecs uint64) {
	return o.missedHangs, o.missedCrashes, o.missedPaths, o.totalExecs
}

// Run delivers candidate through the forkserver and returns whether it is
// equivalent to the baseline, per the nine-step procedure in spec §4.3.
func (o *Oracle) Run(candidate []byte, firstRun bool) (bool, error) {
	result, err := o.cfg.Forkserver.Execute(candidate, o.cfg.Timeout)
	if err != nil {
		return false, fmt.Errorf("oracle: execute: %w", err)
	}
	o.totalExecs++

	if o.cfg.Stop != nil && o.cfg.Stop() {
		return false, ErrStopped
	}

	if result.Verdict == interfaces.VerdictInternalError {
		return false, fmt.Errorf("oracle: internal error executing candidate")
	}

	if firstRun && result.Verdict == interfaces.VerdictTimeout {
		o.mode = ModeHang
		o.cfg.Exact = false // hangs are non-deterministic; exact never applies
	}

	if o.mode == ModeHang {
		switch result.Verdict {
		case interfaces.VerdictTimeout:
			return true, nil
		case interfaces.VerdictCrash:
			o.missedCrashes++
			o.observeMissedCrash()
			return false, nil
		default:
			o.missedHangs++
			o.observeMissedHang()
			return false, nil
		}
	}

	if result.Verdict == interfaces.VerdictTimeout {
		o.missedHangs++
		o.observeMissedHang()
		return false, nil
	}

	if result.Verdict == interfaces.VerdictInstrumentationMissing {
		if o.mode == ModeCoverage || (firstRun && o.mode == ModeUnset) {
			return false, fmt.Errorf("oracle: instrumentation missing in coverage mode")
		}
	}

	if result.Verdict == interfaces.VerdictCrash {
		if firstRun {
			o.mode = ModeCrash
		}
		switch o.mode {
		case ModeCrash:
			if !o.cfg.Exact {
				return true, nil
			}
			// exact: fall through to bitmap compare below
		case ModeCoverage:
			o.missedCrashes++
			o.observeMissedCrash()
			return false, nil
		}
	}

	if result.Verdict == interfaces.VerdictOK && firstRun {
		o.mode = ModeCoverage
	}

	if o.mode == ModeCrash && result.Verdict != interfaces.VerdictCrash {
		o.missedPaths++
		o.observeMissedPath()
		return false, nil
	}

	// Either COVERAGE mode on an OK verdict, or CRASH+exact on a CRASH
	// verdict: both compare the classified bitmap.
	classified := o.classify()
	hash := bitmap.Fingerprint(classified)

	if firstRun {
		o.baseline = hash
		return true, nil
	}
	if hash == o.baseline {
		return true, nil
	}
	o.missedPaths++
	o.observeMissedPath()
	return false, nil
}

func (o *Oracle) classify() []byte {
	bitmap.Classify(o.scratch, o.rawBitmap(), o.cfg.Mask, o.cfg.BitmapMode)
	return o.scratch
}

func (o *Oracle) rawBitmap() []byte {
	if o.cfg.BitmapSource != nil {
		return o.cfg.BitmapSource()
	}
	return nil
}

func (o *Oracle) observeMissedHang() {
	if o.cfg.Observer != nil {
		o.cfg.Observer.ObserveMissedHang()
	}
}

func (o *Oracle) observeMissedCrash() {
	if o.cfg.Observer != nil {
		o.cfg.Observer.ObserveMissedCrash()
	}
}

func (o *Oracle) observeMissedPath() {
	if o.cfg.Observer != nil {
		o.cfg.Observer.ObserveMissedPath()
	}
}
