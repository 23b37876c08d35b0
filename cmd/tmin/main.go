// Command tmin is the CLI entry point for the test-case minimizer core.
// Grounded on cmd/ublk-mem/main.go: flag-based configuration, a
// logging.Logger built from -v, a signal channel whose goroutine sets the
// stop flag on shutdown signals, and the teacher's SIGUSR1 stack-dump handler kept as a
// debugging aid — useful here too, since the engine can appear to hang
// on a misbehaving target.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	tmin "github.com/ehrlich-b/go-tmin"
	"github.com/ehrlich-b/go-tmin/internal/constants"
	"github.com/ehrlich-b/go-tmin/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		inputPath  = flag.String("i", "", "initial input path (required)")
		outputPath = flag.String("o", "", "final output path (required)")
		inputFile  = flag.String("f", "", "use this path instead of stdin/temp for target input")
		timeoutMs  = flag.Int("t", 1000, "per-run timeout in milliseconds (min 10)")
		memLimit   = flag.String("m", "none", "memory limit (e.g. 200M, 1G, none); validated only, neither enforced nor passed to the target")
		edgeMode   = flag.Bool("e", false, "edge-coverage mode (ignore hit-count buckets)")
		crashOnExit = flag.Bool("x", false, "treat any nonzero exit code as a crash")
		hangMode   = flag.Bool("H", false, "hang mode (mutually exclusive with -e)")
		delLenFloor = flag.Int("l", 1, "floor for block-deletion length (1..MAX)")
		maskPath   = flag.String("B", "", "mask bitmap file")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose || os.Getenv(constants.EnvDebug) != "" {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	if *inputPath == "" || *outputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: tmin -i INPUT -o OUTPUT [flags] -- target [args...]")
		flag.PrintDefaults()
		return 2
	}
	if *hangMode && *edgeMode {
		fmt.Fprintln(os.Stderr, "tmin: -H and -e are mutually exclusive")
		return 2
	}
	target := flag.Args()
	if len(target) == 0 {
		fmt.Fprintln(os.Stderr, "tmin: missing trailing -- target [args...]")
		return 2
	}

	if _, err := parseMemLimit(*memLimit); err != nil {
		fmt.Fprintf(os.Stderr, "tmin: invalid -m value %q: %v\n", *memLimit, err)
		return 2
	}

	timeout := time.Duration(*timeoutMs) * time.Millisecond
	if timeout < constants.MinExecTimeout {
		fmt.Fprintf(os.Stderr, "tmin: -t must be at least %s\n", constants.MinExecTimeout)
		return 2
	}

	params := tmin.Params{
		InputPath:       *inputPath,
		OutputPath:      *outputPath,
		Target:          target,
		TargetInputPath: *inputFile,
		Timeout:         timeout,
		MapSize:         envOverrideMapSize(),
		EdgeMode:        *edgeMode,
		CrashOnExit:     *crashOnExit,
		HangMode:        *hangMode,
		DelLenFloor:     envOverrideOr(*delLenFloor),
		MaskPath:        *maskPath,
		ExactCrash:      os.Getenv(constants.EnvExact) != "",
		KillSignal:      envSignalOr(constants.EnvKillSignal, syscall.SIGKILL),
		TermSignal:      envSignalOr(constants.EnvForkSrvKillSignal, syscall.SIGTERM),
		CrashExitCode:   envCrashExitCode(),
	}

	var stop atomic.Bool
	options := &tmin.Options{Logger: logger, Stop: &stop}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	installStackDumpHandler(logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, finishing current stage")
		stop.Store(true)
	}()

	result, err := tmin.Run(ctx, params, options)
	if err != nil {
		logger.Error("minimization failed", "error", err)
		return 2
	}

	reportResult(logger, result)
	if result.Interrupted {
		return 1
	}
	return 0
}

func reportResult(logger *logging.Logger, result *tmin.Result) {
	s := result.Stats
	logger.Info("minimization complete",
		"mode", result.Mode.String(),
		"original_bytes", s.OriginalSize,
		"final_bytes", s.FinalSize,
		"reduction_pct", fmt.Sprintf("%.1f", s.ReductionPct),
		"total_execs", s.TotalExecs,
		"missed_hangs", s.MissedHangs,
		"missed_crashes", s.MissedCrashes,
		"missed_paths", s.MissedPaths,
	)
	if s.Skewed {
		logger.Warn("results may be skewed: excessive missed hangs relative to total executions")
	}
}

func envOverrideMapSize() int {
	if v := os.Getenv(constants.EnvMapSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return constants.DefaultMapSize
}

func envOverrideOr(flagVal int) int {
	if flagVal > 0 {
		return flagVal
	}
	return constants.DefaultDelLenFloor
}

// envCrashExitCode parses AFL_CRASH_EXITCODE, valid in [-127,128] per
// spec §6; an out-of-range or unset value leaves crash classification to
// -x and fatal signals alone.
func envCrashExitCode() *int {
	v := os.Getenv(constants.EnvCrashExitCode)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < -127 || n > 128 {
		return nil
	}
	return &n
}

func envSignalOr(envVar string, def syscall.Signal) syscall.Signal {
	if v := os.Getenv(envVar); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return syscall.Signal(n)
		}
	}
	return def
}

// parseMemLimit validates a -m value without enforcing it: the memory
// limit is the target instrumentation's concern (spec §1 Non-goals
// excludes "selection among instrumentation backends").
func parseMemLimit(s string) (int64, error) {
	if s == "none" || s == "" {
		return 0, nil
	}
	s = strings.ToUpper(s)
	multiplier := int64(1)
	numStr := s
	switch {
	case strings.HasSuffix(s, "T"):
		multiplier = 1 << 40
		numStr = strings.TrimSuffix(s, "T")
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
		numStr = strings.TrimSuffix(s, "G")
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
		numStr = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
		numStr = strings.TrimSuffix(s, "K")
	}
	n, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}
	return n * multiplier, nil
}

func installStackDumpHandler(logger *logging.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	go func() {
		for range ch {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "\n=== GOROUTINE STACK DUMP ===\n%s\n", buf[:n])
			if f, err := os.Create(fmt.Sprintf("tmin-stacks-%d.txt", time.Now().Unix())); err == nil {
				f.Write(buf[:n])
				fmt.Fprintf(f, "\n\n=== GOROUTINE PROFILE ===\n")
				pprof.Lookup("goroutine").WriteTo(f, 2)
				f.Close()
				logger.Info("stack dump written", "file", f.Name())
			}
		}
	}()
}
