package bitmap

import (
	"fmt"
	"os"
)

// LoadMask reads a mask bitmap file (spec §6 "Mask bitmap file format":
// raw M bytes, little-endian by position, nonzero = mask this edge). The
// returned slice is exactly mapSize bytes, zero-padded or truncated to
// fit, since a mask captured against a different AFL_MAP_SIZE is still
// usable for the overlapping prefix.
func LoadMask(path string, mapSize int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bitmap: read mask %s: %w", path, err)
	}
	mask := make([]byte, mapSize)
	copy(mask, data)
	return mask, nil
}
