package tmin

import (
	"sync"
	"time"

	"github.com/ehrlich-b/go-tmin/internal/interfaces"
)

// MockForkserver is a fake interfaces.Forkserver for testing callers of
// this package without forking a real target. Grounded on ublk's
// MockBackend: a mutex-guarded struct tracking call counts plus an
// inspection API, rather than a bare function stub.
type MockForkserver struct {
	mu sync.Mutex

	// Verdicts is consumed in order, one per Execute call; once
	// exhausted, Default is returned for every subsequent call.
	Verdicts []interfaces.ExecResult
	Default  interfaces.ExecResult

	execCalls  int
	closeCalls int
	closed     bool
	lastInput  []byte
}

var _ interfaces.Forkserver = (*MockForkserver)(nil)

// NewMockForkserver returns a MockForkserver that always reports OK.
func NewMockForkserver() *MockForkserver {
	return &MockForkserver{Default: interfaces.ExecResult{Verdict: interfaces.VerdictOK}}
}

// Execute implements interfaces.Forkserver.
func (m *MockForkserver) Execute(candidate []byte, timeout time.Duration) (interfaces.ExecResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastInput = append([]byte(nil), candidate...)
	idx := m.execCalls
	m.execCalls++

	if idx < len(m.Verdicts) {
		return m.Verdicts[idx], nil
	}
	return m.Default, nil
}

// Close implements interfaces.Forkserver.
func (m *MockForkserver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	m.closed = true
	return nil
}

// ExecCalls returns how many times Execute was called.
func (m *MockForkserver) ExecCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.execCalls
}

// IsClosed reports whether Close has been called.
func (m *MockForkserver) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// LastInput returns a copy of the most recent candidate delivered.
func (m *MockForkserver) LastInput() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.lastInput...)
}

// Reset clears all call counters and recorded state.
func (m *MockForkserver) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execCalls = 0
	m.closeCalls = 0
	m.closed = false
	m.lastInput = nil
}
