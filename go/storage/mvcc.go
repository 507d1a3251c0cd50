package storage

import (
	"sync"

	"github.com/stratumdb/stratum/go/clock"
)

// MVCCManager tracks the safe timestamp of a tablet: the watermark below
// which snapshot reads observe a consistent view.
type MVCCManager struct {
	mu   sync.Mutex
	safe clock.Timestamp
}

// NewMVCCManager returns an MVCCManager with safe timestamp |initial|.
func NewMVCCManager(initial clock.Timestamp) *MVCCManager {
	return &MVCCManager{safe: initial}
}

// SafeTimestamp returns the current safe timestamp.
func (m *MVCCManager) SafeTimestamp() clock.Timestamp {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.safe
}

// AdjustSafeTimestamp raises the safe timestamp to |t|.
// Regressions are ignored: the watermark is monotone.
func (m *MVCCManager) AdjustSafeTimestamp(t clock.Timestamp) {
	m.mu.Lock()
	if m.safe < t {
		m.safe = t
	}
	m.mu.Unlock()
}
