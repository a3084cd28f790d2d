package accounting

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps records and aggregates in process memory. Used by tests
// and by local runs without Postgres; applies the same running-average
// recurrence as the SQL upsert, under a lock.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int
	records []*RequestRecord
	stats   map[string]*ModelStats
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stats: make(map[string]*ModelStats)}
}

func (s *MemoryStore) Append(ctx context.Context, rec *RequestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	rec.ID = fmt.Sprintf("%d", s.nextID)
	rec.Timestamp = time.Now().UTC()

	stored := *rec
	s.records = append(s.records, &stored)
	return nil
}

func (s *MemoryStore) UpsertAggregate(ctx context.Context, model string, tokens int, costUSD, latencyMs float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.stats[model]
	if !ok {
		s.stats[model] = &ModelStats{
			Model:         model,
			TotalRequests: 1,
			TotalTokens:   int64(tokens),
			TotalCostUSD:  costUSD,
			AvgLatencyMs:  latencyMs,
			LastUpdated:   time.Now().UTC(),
		}
		return nil
	}

	m.TotalRequests++
	m.TotalTokens += int64(tokens)
	m.TotalCostUSD += costUSD
	// avg' = (avg*(n-1) + new) / n, n post-increment
	m.AvgLatencyMs = (m.AvgLatencyMs*float64(m.TotalRequests-1) + latencyMs) / float64(m.TotalRequests)
	m.LastUpdated = time.Now().UTC()
	return nil
}

func (s *MemoryStore) QueryAllSuccessful(ctx context.Context) ([]*RequestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*RequestRecord
	for _, r := range s.records {
		if r.Status == StatusSuccess {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *MemoryStore) QueryAggregates(ctx context.Context) ([]*ModelStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ModelStats
	for _, m := range s.stats {
		copied := *m
		out = append(out, &copied)
	}
	return out, nil
}

// Records returns every stored record, error ones included. Test helper.
func (s *MemoryStore) Records() []*RequestRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*RequestRecord, len(s.records))
	copy(out, s.records)
	return out
}
