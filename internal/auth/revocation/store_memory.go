package revocation

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local List for single-instance deployments and tests.
type Memory struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemory creates an empty in-memory list.
func NewMemory() *Memory {
	return &Memory{revoked: make(map[string]time.Time), now: time.Now}
}

// Revoke marks jti as revoked for ttl.
func (m *Memory) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = m.now().Add(ttl)
	return nil
}

// IsRevoked reports whether jti is currently revoked. Expired entries are
// dropped on lookup.
func (m *Memory) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	expires, ok := m.revoked[jti]
	if !ok {
		return false, nil
	}
	if !m.now().Before(expires) {
		delete(m.revoked, jti)
		return false, nil
	}
	return true, nil
}
