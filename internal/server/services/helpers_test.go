package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/dmitrijs2005/tiergate/internal/cache"
	"github.com/dmitrijs2005/tiergate/internal/common"
	"github.com/dmitrijs2005/tiergate/internal/server/models"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/identities"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/records"
	"github.com/dmitrijs2005/tiergate/internal/tier"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// 2026-01-04 is a Sunday, weekday index 0.
var sunday = time.Date(2026, time.January, 4, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	store   *records.MemoryStore
	ids     *identities.MemoryRepository
	cache   *cache.MemoryStore
	clock   *quartz.Mock
	metrics *Metrics

	mu     sync.Mutex
	events []TierChanged
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	e := &testEnv{
		store:   records.NewMemoryStore(),
		ids:     identities.NewMemoryRepository(),
		cache:   cache.NewMemoryStore(),
		clock:   quartz.NewMock(t),
		metrics: m,
	}
	e.clock.Set(sunday)
	return e
}

func (e *testEnv) deps() Deps {
	return Deps{
		Policy:     tier.DefaultPolicy(),
		Records:    e.store,
		Identities: e.ids,
		Cache:      e.cache,
		Notifier: NotifierFunc(func(_ context.Context, ev TierChanged) error {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.events = append(e.events, ev)
			return nil
		}),
		Metrics: e.metrics,
		Clock:   e.clock,
	}
}

func (e *testEnv) tierEvents() []TierChanged {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]TierChanged(nil), e.events...)
}

func (e *testEnv) setPopulation(t *testing.T, n uint64) {
	t.Helper()
	require.NoError(t, e.store.WriteCounter(context.Background(), records.TotalInstallsCounter, n))
}

func (e *testEnv) seed(t *testing.T, u *models.UserRecord) {
	t.Helper()
	require.NoError(t, e.store.MergeWrite(context.Background(), u.ID, records.Snapshot(u)))
	for i := uint32(0); i < u.ReferralCount; i++ {
		_, err := e.store.IncrementReferralCount(context.Background(), u.ID)
		require.NoError(t, err)
	}
}

func (e *testEnv) load(t *testing.T, id string) *models.UserRecord {
	t.Helper()
	u, err := e.store.Get(context.Background(), id)
	require.NoError(t, err)
	return u
}

// earlyAdopter is an unlinked early adopter with a complete profile.
func earlyAdopter(id string) *models.UserRecord {
	return &models.UserRecord{
		ID:              id,
		UserNumber:      500,
		IsEarlyAdopter:  true,
		LockedTier:      tier.Tier5,
		CurrentTier:     tier.Tier3,
		ReferralCode:    "CODE-" + strings.ToUpper(id),
		ProfileComplete: true,
		InstalledAt:     sunday.Add(-30 * 24 * time.Hour),
		LastActiveAt:    sunday.Add(-24 * time.Hour),
	}
}

func unavailable() error {
	return fmt.Errorf("%w: connection refused", common.ErrRemoteUnavailable)
}

// flakyStore lets tests fail individual store operations.
type flakyStore struct {
	records.Store

	mu           sync.Mutex
	incrementErr error
	mergeErrs    []error
	referralErrs []error
	deleteErr    map[string]error
}

// next pops the first queued error.
func (s *flakyStore) next(queue *[]error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

func (s *flakyStore) IncrementReferralCount(ctx context.Context, id string) (uint32, error) {
	if err := s.next(&s.referralErrs); err != nil {
		return 0, err
	}
	return s.Store.IncrementReferralCount(ctx, id)
}

func (s *flakyStore) IncrementCounter(ctx context.Context, id string) (uint64, error) {
	if s.incrementErr != nil {
		return 0, s.incrementErr
	}
	return s.Store.IncrementCounter(ctx, id)
}

// MergeWrite fails with the queued errors in order; a nil entry lets that
// write through.
func (s *flakyStore) MergeWrite(ctx context.Context, id string, fields records.Fields) error {
	if err := s.next(&s.mergeErrs); err != nil {
		return err
	}
	return s.Store.MergeWrite(ctx, id, fields)
}

func (s *flakyStore) Delete(ctx context.Context, id string) error {
	if err := s.deleteErr[id]; err != nil {
		return err
	}
	return s.Store.Delete(ctx, id)
}
