package meal

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Query selects one user's records with meal_time in [From, To].
type Query struct {
	UserID string
	From   time.Time
	To     time.Time
}

// Contains reports whether t lies within the inclusive query window.
func (q Query) Contains(t time.Time) bool {
	return !t.Before(q.From) && !t.After(q.To)
}

// Store is the persistence boundary for meal records.
// Query results are ordered by meal_time, most recent first.
type Store interface {
	Query(ctx context.Context, q Query) ([]Record, error)
	Insert(ctx context.Context, r Record) error
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Query implements Store.
func (s *MemoryStore) Query(ctx context.Context, q Query) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, r := range s.records {
		if r.UserID == q.UserID && q.Contains(r.MealTime) {
			out = append(out, r)
		}
	}
	SortNewestFirst(out)
	return out, nil
}

// Insert implements Store.
func (s *MemoryStore) Insert(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// SortNewestFirst orders records by meal_time descending.
func SortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].MealTime.After(records[j].MealTime)
	})
}
