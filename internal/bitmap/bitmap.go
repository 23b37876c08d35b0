// Package bitmap classifies raw coverage bitmaps into their canonical
// form and fingerprints them for baseline comparison (spec §3 "Coverage
// bitmap" / "Classified bitmap").
//
// The bucket table in Classify walks an ordered list of thresholds and
// picks the first that covers the raw count — the same shape as
// Metrics.LatencyBuckets' cumulative-threshold histogram in go-ublk's root
// package, repurposed here from latency buckets to hit-count buckets.
package bitmap

import "github.com/cespare/xxhash/v2"

// Mode selects how raw hit counts are classified.
type Mode int

const (
	// ModeCount buckets raw hit counts into AFL's classic 8 buckets.
	ModeCount Mode = iota
	// ModeEdge collapses any nonzero count to 1.
	ModeEdge
)

// countBuckets maps a raw count to a bucketed value. Walked in order;
// the first threshold the raw count does not exceed selects the bucket.
var countBuckets = []struct {
	upTo   int
	bucket byte
}{
	{0, 0},
	{1, 1},
	{2, 2},
	{3, 4},
	{7, 8},
	{15, 16},
	{31, 32},
	{127, 64},
	{255, 128},
}

func classifyByte(raw byte, mode Mode) byte {
	if mode == ModeEdge {
		if raw != 0 {
			return 1
		}
		return 0
	}
	for _, b := range countBuckets {
		if int(raw) <= b.upTo {
			return b.bucket
		}
	}
	return 128
}

// Classify produces the classified bitmap from raw hit counts, applying
// mode bucketing and then (if mask is non-nil) clearing every edge the
// mask marks. dst must have the same length as raw; classification is
// always performed out-of-place (design note §9 "Bitmap ownership" — the
// raw bitmap is shared-memory owned by the channel, the classified bitmap
// is oracle-owned scratch, and the two are never aliased).
func Classify(dst, raw, mask []byte, mode Mode) {
	for i, v := range raw {
		c := classifyByte(v, mode)
		if mask != nil && i < len(mask) && mask[i] != 0 {
			c = 0
		}
		dst[i] = c
	}
}

// Fingerprint returns the 64-bit hash of a classified bitmap used as the
// coverage-mode baseline (spec §3 "Baseline fingerprint").
func Fingerprint(classified []byte) uint64 {
	return xxhash.Sum64(classified)
}
