package bitmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyEdgeMode(t *testing.T) {
	raw := []byte{0, 1, 5, 255}
	dst := make([]byte, len(raw))
	Classify(dst, raw, nil, ModeEdge)
	assert.Equal(t, []byte{0, 1, 1, 1}, dst)
}

func TestClassifyCountMode(t *testing.T) {
	raw := []byte{0, 1, 2, 3, 7, 15, 31, 127, 255}
	dst := make([]byte, len(raw))
	Classify(dst, raw, nil, ModeCount)
	assert.Equal(t, []byte{0, 1, 2, 4, 8, 16, 32, 64, 128}, dst)
}

func TestClassifyAppliesMask(t *testing.T) {
	raw := []byte{1, 1, 1}
	mask := []byte{0, 1, 0}
	dst := make([]byte, len(raw))
	Classify(dst, raw, mask, ModeEdge)
	assert.Equal(t, []byte{1, 0, 1}, dst)
}

func TestFingerprintDeterministic(t *testing.T) {
	a := []byte{1, 2, 3, 4}
	b := []byte{1, 2, 3, 4}
	assert.Equal(t, Fingerprint(a), Fingerprint(b))

	c := []byte{1, 2, 3, 5}
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
}

func TestLoadMask(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mask.bin")
	require.NoError(t, os.WriteFile(path, []byte{1, 0, 1}, 0o644))

	mask, err := LoadMask(path, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 1, 0, 0}, mask)
}
