package records

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/tiergate/internal/common"
	"github.com/dmitrijs2005/tiergate/internal/server/models"
)

// MemoryStore is a process-local Store. It backs tests and single-node
// deployments without a database. Reads return copies so callers can never
// mutate stored state.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]*models.UserRecord
	counters map[string]uint64

	// Fail, when set, is returned by every operation. Tests use it to
	// simulate an unreachable store.
	Fail error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]*models.UserRecord),
		counters: make(map[string]uint64),
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail != nil {
		return nil, s.Fail
	}
	u, ok := s.records[id]
	if !ok {
		return nil, common.ErrRecordNotFound
	}
	return u.Clone(), nil
}

func (s *MemoryStore) MergeWrite(_ context.Context, id string, fields Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail != nil {
		return s.Fail
	}
	u, ok := s.records[id]
	if !ok {
		u = &models.UserRecord{ID: id}
	} else {
		u = u.Clone()
	}
	if err := fields.Apply(u); err != nil {
		return err
	}
	s.records[id] = u
	return nil
}

func (s *MemoryStore) IncrementCounter(_ context.Context, counterID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail != nil {
		return 0, s.Fail
	}
	s.counters[counterID]++
	return s.counters[counterID], nil
}

func (s *MemoryStore) ReadCounter(_ context.Context, counterID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail != nil {
		return 0, s.Fail
	}
	return s.counters[counterID], nil
}

func (s *MemoryStore) WriteCounter(_ context.Context, counterID string, value uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail != nil {
		return s.Fail
	}
	if value > s.counters[counterID] {
		s.counters[counterID] = value
	}
	return nil
}

func (s *MemoryStore) IncrementReferralCount(_ context.Context, id string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail != nil {
		return 0, s.Fail
	}
	u, ok := s.records[id]
	if !ok {
		return 0, common.ErrRecordNotFound
	}
	u.ReferralCount++
	return u.ReferralCount, nil
}

func (s *MemoryStore) QueryByField(_ context.Context, field Field, value any) ([]*models.UserRecord, error) {
	if !field.Queryable() {
		return nil, fmt.Errorf("field %q is not queryable", field)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail != nil {
		return nil, s.Fail
	}

	var out []*models.UserRecord
	for _, u := range s.records {
		var match bool
		switch field {
		case FieldReferralCode:
			match = u.ReferralCode != "" && u.ReferralCode == value
		case FieldIdentityID:
			match = u.IdentityID != "" && u.IdentityID == value
		case FieldUserNumber:
			match = u.UserNumber == value
		}
		if match {
			out = append(out, u.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.UserRecord) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) ListStale(_ context.Context, before time.Time, limit int) ([]*models.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail != nil {
		return nil, s.Fail
	}

	var out []*models.UserRecord
	for _, u := range s.records {
		if !u.HasAccount && u.LastActiveAt.Before(before) {
			out = append(out, u.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.UserRecord) int {
		if c := a.LastActiveAt.Compare(b.LastActiveAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail != nil {
		return s.Fail
	}
	delete(s.records, id)
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
