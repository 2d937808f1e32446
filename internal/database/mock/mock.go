// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-id/internal/database"
)

// MockAttemptLog is a mock implementation of database.AttemptLogWriter
type MockAttemptLog struct {
	mu       sync.RWMutex
	attempts []database.AttemptRecord

	// Error injection
	SaveError      error
	ListError      error
	BreakdownError error
	DeleteError    error
}

// NewMockAttemptLog creates a new mock attempt log
func NewMockAttemptLog() *MockAttemptLog {
	return &MockAttemptLog{}
}

// SaveAttempt stores an attempt
func (m *MockAttemptLog) SaveAttempt(ctx context.Context, rec database.AttemptRecord) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.attempts = append(m.attempts, rec)
	return nil
}

// ListAttempts returns the most recent attempts, newest first
func (m *MockAttemptLog) ListAttempts(ctx context.Context, limit int) ([]database.AttemptRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := slices.Clone(m.attempts)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FailureBreakdown counts attempts per status
func (m *MockAttemptLog) FailureBreakdown(ctx context.Context) ([]database.StatusCount, error) {
	if m.BreakdownError != nil {
		return nil, m.BreakdownError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, a := range m.attempts {
		counts[a.Status]++
	}
	out := make([]database.StatusCount, 0, len(counts))
	for status, n := range counts {
		out = append(out, database.StatusCount{Status: status, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

// DeleteAllAttempts clears the log
func (m *MockAttemptLog) DeleteAllAttempts(ctx context.Context) (int64, error) {
	if m.DeleteError != nil {
		return 0, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.attempts))
	m.attempts = nil
	return n, nil
}

// Attempts returns every recorded attempt in insertion order (test helper)
func (m *MockAttemptLog) Attempts() []database.AttemptRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.attempts)
}

// MockSignatureArchive is a mock implementation of database.SignatureArchive
type MockSignatureArchive struct {
	mu         sync.RWMutex
	signatures map[string]database.StoredSignature
	order      []string

	// Error injection
	SaveError   error
	DeleteError error
	ListError   error
	CountError  error
}

// NewMockSignatureArchive creates a new mock signature archive
func NewMockSignatureArchive() *MockSignatureArchive {
	return &MockSignatureArchive{
		signatures: make(map[string]database.StoredSignature),
	}
}

// SaveSignature stores or replaces a signature
func (m *MockSignatureArchive) SaveSignature(ctx context.Context, sig database.StoredSignature) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.signatures[sig.IdentityID]; !ok {
		m.order = append(m.order, sig.IdentityID)
	}
	sig.Signature = slices.Clone(sig.Signature)
	sig.Metadata = sig.Metadata.Clone()
	m.signatures[sig.IdentityID] = sig
	return nil
}

// DeleteSignature removes a signature
func (m *MockSignatureArchive) DeleteSignature(ctx context.Context, identityID string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.signatures, identityID)
	m.order = slices.DeleteFunc(m.order, func(id string) bool { return id == identityID })
	return nil
}

// ListSignatures returns every signature in insertion order
func (m *MockSignatureArchive) ListSignatures(ctx context.Context) ([]database.StoredSignature, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.StoredSignature, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.signatures[id])
	}
	return out, nil
}

// CountSignatures returns the number of archived identities
func (m *MockSignatureArchive) CountSignatures(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.signatures), nil
}

// Get returns an archived signature (test helper)
func (m *MockSignatureArchive) Get(identityID string) (database.StoredSignature, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sig, ok := m.signatures[identityID]
	return sig, ok
}

// Compile-time interface checks
var (
	_ database.AttemptLogWriter = (*MockAttemptLog)(nil)
	_ database.SignatureArchive = (*MockSignatureArchive)(nil)
)
