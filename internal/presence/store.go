package presence

import (
	"context"
	"sync"
	"time"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

func ValidStatus(s Status) bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return true
	}
	return false
}

// Record is a best-effort liveness signal; it is never persisted and never
// authoritative for delivery.
type Record struct {
	UserID        string    `json:"user_id"`
	Username      string    `json:"username"`
	Status        Status    `json:"status"`
	LastSeen      time.Time `json:"last_seen"`
	CustomMessage string    `json:"custom_message,omitempty"`
}

// Store is the capability interface behind the tracker so a multi-instance
// deployment can swap the in-process map for a shared TTL store without
// touching tracker logic.
type Store interface {
	Upsert(ctx context.Context, rec Record) error
	Remove(ctx context.Context, userID string) error
	Online(ctx context.Context) ([]Record, error)
}

// MemoryStore keeps presence in-process; a restart means everyone went
// offline, which is the intended semantics.
type MemoryStore struct {
	mu         sync.Mutex
	records    map[string]Record
	staleAfter time.Duration
}

func NewMemoryStore(staleAfter time.Duration) *MemoryStore {
	return &MemoryStore{
		records:    make(map[string]Record),
		staleAfter: staleAfter,
	}
}

func (s *MemoryStore) Upsert(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.UserID] = rec
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID)
	return nil
}

// Online evicts records whose LastSeen exceeds the staleness window before
// listing, so a client that crashed without a clean disconnect drops out.
func (s *MemoryStore) Online(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-s.staleAfter)
	var out []Record
	for id, rec := range s.records {
		if rec.LastSeen.Before(cutoff) {
			delete(s.records, id)
			continue
		}
		if rec.Status == StatusOffline {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
