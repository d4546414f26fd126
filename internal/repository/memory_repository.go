package repository

import (
	"context"
	"sync"
	"time"

	"github.com/basel-ax/omni/internal/domain"
)

// MemoryAnalysisRepository keeps analyses in process memory. It is used when
// no database is configured.
type MemoryAnalysisRepository struct {
	mu      sync.RWMutex
	nextID  int64
	records map[string][]domain.AnalysisRecord
}

// NewMemoryAnalysisRepository creates an empty in-memory repository
func NewMemoryAnalysisRepository() *MemoryAnalysisRepository {
	return &MemoryAnalysisRepository{records: make(map[string][]domain.AnalysisRecord)}
}

// Save stores a copy of record and fills in its ID and CreatedAt
func (r *MemoryAnalysisRepository) Save(_ context.Context, record *domain.AnalysisRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	record.ID = r.nextID
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	r.records[record.SessionID] = append(r.records[record.SessionID], *record)
	return nil
}

// ListBySession returns the analyses of one session, oldest first
func (r *MemoryAnalysisRepository) ListBySession(_ context.Context, sessionID string) ([]domain.AnalysisRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := r.records[sessionID]
	out := make([]domain.AnalysisRecord, len(records))
	copy(out, records)
	return out, nil
}
