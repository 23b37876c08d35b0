package tmin

import (
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/go-tmin/internal/interfaces"
)

// Stats tracks the run-wide counters reported in the final summary (spec
// §4.3 "Counters", §7 "Transient run anomalies"). Grounded on
// ublk.Metrics: atomic counters updated off a hot loop, snapshotted once
// at the end rather than locked on every update.
type Stats struct {
	TotalExecs    atomic.Uint64
	MissedHangs   atomic.Uint64
	MissedCrashes atomic.Uint64
	MissedPaths   atomic.Uint64

	OriginalSize atomic.Uint64
	FinalSize    atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewStats constructs a Stats with StartTime set to now.
func NewStats() *Stats {
	s := &Stats{}
	s.StartTime.Store(time.Now().UnixNano())
	return s
}

// Stop marks run completion.
func (s *Stats) Stop() { s.StopTime.Store(time.Now().UnixNano()) }

// Snapshot is a point-in-time, non-atomic copy of Stats for reporting.
type Snapshot struct {
	TotalExecs    uint64
	MissedHangs   uint64
	MissedCrashes uint64
	MissedPaths   uint64
	OriginalSize  uint64
	FinalSize     uint64
	ReductionPct  float64
	Skewed        bool
	UptimeNs      uint64
}

// Snapshot computes the final report, including the "results may be
// skewed" warning (spec §7: missed_hangs*10 > total_execs after at least
// 50 executions).
func (s *Stats) Snapshot() Snapshot {
	total := s.TotalExecs.Load()
	missedHangs := s.MissedHangs.Load()
	original := s.OriginalSize.Load()
	final := s.FinalSize.Load()

	snap := Snapshot{
		TotalExecs:    total,
		MissedHangs:   missedHangs,
		MissedCrashes: s.MissedCrashes.Load(),
		MissedPaths:   s.MissedPaths.Load(),
		OriginalSize:  original,
		FinalSize:     final,
	}
	if original > 0 {
		snap.ReductionPct = (1 - float64(final)/float64(original)) * 100
	}
	if total >= minExecsForSkewWarning && missedHangs*10 > total {
		snap.Skewed = true
	}

	stop := s.StopTime.Load()
	start := s.StartTime.Load()
	if stop > 0 {
		snap.UptimeNs = uint64(stop - start)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - start)
	}
	return snap
}

// statsObserver adapts Stats to internal/interfaces.Observer, mirroring
// ublk.MetricsObserver's role of decoupling the hot path from the
// concrete metrics type.
type statsObserver struct {
	stats *Stats
}

// NewStatsObserver returns an Observer that records into stats.
func NewStatsObserver(stats *Stats) interfaces.Observer {
	return &statsObserver{stats: stats}
}

func (o *statsObserver) ObserveExec(verdict interfaces.Verdict, latency time.Duration) {
	o.stats.TotalExecs.Add(1)
}

func (o *statsObserver) ObserveMissedHang()   { o.stats.MissedHangs.Add(1) }
func (o *statsObserver) ObserveMissedCrash()  { o.stats.MissedCrashes.Add(1) }
func (o *statsObserver) ObserveMissedPath()   { o.stats.MissedPaths.Add(1) }

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveExec(interfaces.Verdict, time.Duration) {}
func (NoOpObserver) ObserveMissedHang()                            {}
func (NoOpObserver) ObserveMissedCrash()                           {}
func (NoOpObserver) ObserveMissedPath()                            {}

var (
	_ interfaces.Observer = (*statsObserver)(nil)
	_ interfaces.Observer = NoOpObserver{}
)
