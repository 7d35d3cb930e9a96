// Package result reads questionnaire submissions. The pipeline never writes
// results; it only looks up the most recent one per instrument.
package result

import (
	"context"
	"sync"

	"bloomence/internal/notify/models"
	"bloomence/pkg/platform/sentinel"
)

// Memory is the in-memory result store used by tests and local development.
type Memory struct {
	mu      sync.RWMutex
	results []models.Result
}

func NewMemory() *Memory {
	return &Memory{}
}

// Add seeds a result. Results are immutable once added.
func (s *Memory) Add(r models.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
}

func (s *Memory) LatestByType(ctx context.Context, uid, questionnaireType string) (*models.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Result
	for i := range s.results {
		r := &s.results[i]
		if r.UID != uid || r.QuestionnaireType != questionnaireType {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}
