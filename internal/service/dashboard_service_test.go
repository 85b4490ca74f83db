package service

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/demandes-api/internal/models"
	appErrors "github.com/noah-isme/demandes-api/pkg/errors"
)

type memCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemCacheRepo() *memCacheRepo {
	return &memCacheRepo{entries: make(map[string][]byte)}
}

func (r *memCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *memCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = raw
	return nil
}

func (r *memCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(r.entries, key)
		}
	}
	return nil
}

type fixedArchiveCount struct {
	n   int
	err error
}

func (f fixedArchiveCount) Count(context.Context) (int, error) { return f.n, f.err }

func TestDashboardSummaryZeroFillsAndCaches(t *testing.T) {
	store := newMemStore()
	store.seed(models.StatusSubmitted)
	store.seed(models.StatusSubmitted)
	store.seed(models.StatusSigned)

	metrics := NewMetricsService()
	cache := NewCacheService(newMemCacheRepo(), metrics, time.Minute, nil, true)
	svc := NewDashboardService(DashboardServiceParams{
		Demandes: store,
		Archives: fixedArchiveCount{n: 4},
		Cache:    cache,
		Metrics:  metrics,
	})

	summary, hit, err := svc.Summary(context.Background(), director)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 4, summary.Archived)
	require.Len(t, summary.ByStatus, len(models.AllStatuses))
	assert.Equal(t, models.StatusSubmitted, summary.ByStatus[0].Status)
	assert.Equal(t, 2, summary.ByStatus[0].Count)
	assert.Equal(t, 0, summary.ByStatus[1].Count)

	store.seed(models.StatusClosed)
	cachedSummary, hit, err := svc.Summary(context.Background(), director)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 3, cachedSummary.Total)

	svc.OnTransition(context.Background(), models.TransitionEvent{DemandeID: "x"})
	fresh, hit, err := svc.Summary(context.Background(), director)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 4, fresh.Total)

	snapshot, err := svc.System(admin)
	require.NoError(t, err)
	assert.EqualValues(t, 1, snapshot.CacheHits)
	assert.EqualValues(t, 2, snapshot.CacheMisses)
}

func TestDashboardAccessAndErrors(t *testing.T) {
	svc := NewDashboardService(DashboardServiceParams{
		Demandes: newMemStore(),
		Archives: fixedArchiveCount{err: errors.New("db down")},
	})

	_, _, err := svc.Summary(context.Background(), requester)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, _, err = svc.Summary(context.Background(), minister)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))

	_, err = svc.System(director)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}
