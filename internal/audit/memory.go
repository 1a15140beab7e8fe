package audit

import (
	"context"
	"sort"
	"sync"

	"stimctl/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	records     []model.AuditRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.records = nil
	return nil
}

func (s *MemoryStore) Append(_ context.Context, rec model.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) ListSessions(_ context.Context) ([]SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := make(map[string]*SessionInfo)
	order := make([]string, 0)
	for _, rec := range s.records {
		info, ok := byID[rec.SessionID]
		if !ok {
			info = &SessionInfo{SessionID: rec.SessionID, StartedAt: rec.At}
			byID[rec.SessionID] = info
			order = append(order, rec.SessionID)
		}
		if rec.At.Before(info.StartedAt) {
			info.StartedAt = rec.At
		}
		info.Records++
	}
	out := make([]SessionInfo, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *MemoryStore) ListBySession(_ context.Context, sessionID string) ([]model.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.AuditRecord, 0)
	for _, rec := range s.records {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Records returns every appended record in append order.
func (s *MemoryStore) Records() []model.AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.AuditRecord, len(s.records))
	copy(out, s.records)
	return out
}
