package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"vote-ledger/models"
)

var (
	ErrNotRegistered     = errors.New("voter not registered")
	ErrAlreadyVoted      = errors.New("voter already voted")
	ErrDuplicateIdentity = errors.New("voter identity already exists")
)

// VoterRegistry defines the voter bookkeeping the ledger relies on
type VoterRegistry interface {
	NewIdentity() (string, models.VoterRecord)
	IsRegistered(voterID string) bool
	CheckEligible(voterID string) error
	MarkVoted(voterID string) error
	Add(voterID string, record models.VoterRecord) error
	Snapshot() map[string]models.VoterRecord
	Restore(voters map[string]models.VoterRecord)
	Stats() (registered, voted int)
}

// MemoryRegistry implements VoterRegistry with an in-memory map
type MemoryRegistry struct {
	voters map[string]models.VoterRecord
	mu     sync.RWMutex
	now    func() time.Time
	newID  func() string
}

// Option customizes a MemoryRegistry
type Option func(*MemoryRegistry)

// WithClock overrides the registration timestamp source
func WithClock(now func() time.Time) Option {
	return func(m *MemoryRegistry) { m.now = now }
}

// WithIdentityGenerator overrides the identity token source
func WithIdentityGenerator(newID func() string) Option {
	return func(m *MemoryRegistry) { m.newID = newID }
}

func New(opts ...Option) *MemoryRegistry {
	m := &MemoryRegistry{
		voters: make(map[string]models.VoterRecord),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewIdentity returns a token not yet in the registry, with hasVoted=false,
// without storing it. Generated tokens that collide are skipped.
func (m *MemoryRegistry) NewIdentity() (string, models.VoterRecord) {
	for {
		id := m.newID()
		if !m.IsRegistered(id) {
			return id, models.NewVoterRecord(m.now())
		}
	}
}

func (m *MemoryRegistry) IsRegistered(voterID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.voters[voterID]
	return exists
}

// CheckEligible reports the reason voterID may not vote, without changing state.
func (m *MemoryRegistry) CheckEligible(voterID string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.checkLocked(voterID)
}

func (m *MemoryRegistry) checkLocked(voterID string) error {
	record, exists := m.voters[voterID]
	if !exists {
		return ErrNotRegistered
	}
	if record.HasVoted {
		return ErrAlreadyVoted
	}
	return nil
}

// MarkVoted is the compare-and-mark gate: it flips hasVoted only if the voter
// exists and has not voted yet.
func (m *MemoryRegistry) MarkVoted(voterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(voterID); err != nil {
		return err
	}
	record := m.voters[voterID]
	record.HasVoted = true
	m.voters[voterID] = record
	return nil
}

func (m *MemoryRegistry) Add(voterID string, record models.VoterRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.voters[voterID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateIdentity, voterID)
	}
	m.voters[voterID] = record
	return nil
}

// Snapshot returns a copy of every voter record.
func (m *MemoryRegistry) Snapshot() map[string]models.VoterRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	voters := make(map[string]models.VoterRecord, len(m.voters))
	for k, v := range m.voters {
		voters[k] = v
	}
	return voters
}

// Restore replaces the registry contents with a loaded voter map.
func (m *MemoryRegistry) Restore(voters map[string]models.VoterRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.voters = make(map[string]models.VoterRecord, len(voters))
	for k, v := range voters {
		m.voters[k] = v
	}
}

// Stats returns the number of registered voters and how many have voted.
func (m *MemoryRegistry) Stats() (registered, voted int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, record := range m.voters {
		if record.HasVoted {
			voted++
		}
	}
	return len(m.voters), voted
}
