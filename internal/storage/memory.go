package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/pace-bot/internal/models"
)

type MemoryStorage struct {
	mu        sync.RWMutex
	records   map[string]*models.TurnRecord
	bySession map[string][]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records:   make(map[string]*models.TurnRecord),
		bySession: make(map[string][]string),
	}
}

func (s *MemoryStorage) SaveTurn(ctx context.Context, rec *models.TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	stored := *rec
	if _, exists := s.records[rec.ID]; !exists {
		s.bySession[rec.SessionID] = append(s.bySession[rec.SessionID], rec.ID)
	}
	s.records[rec.ID] = &stored
	return nil
}

// GetSessionTurns returns the newest records first.
func (s *MemoryStorage) GetSessionTurns(ctx context.Context, sessionID string, limit int) ([]*models.TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.bySession[sessionID]
	out := make([]*models.TurnRecord, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		rec := *s.records[ids[i]]
		out = append(out, &rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStorage) OutcomeCounts(ctx context.Context) (map[models.Outcome]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.Outcome]int)
	for _, rec := range s.records {
		counts[rec.Outcome]++
	}
	return counts, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
