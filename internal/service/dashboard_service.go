package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/demandes-api/internal/models"
	appErrors "github.com/noah-isme/demandes-api/pkg/errors"
)

const dashboardCachePrefix = "dash:demandes:"

type statusCounter interface {
	CountByStatus(ctx context.Context) ([]models.StatusCount, error)
}

type archiveCounter interface {
	Count(ctx context.Context) (int, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Demandes statusCounter
	Archives archiveCounter
	Cache    *CacheService
	Metrics  *MetricsService
	Logger   *zap.Logger
	Config   DashboardServiceConfig
}

// DashboardService serves cached request counts per status.
type DashboardService struct {
	demandes statusCounter
	archives archiveCounter
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
	cfg      DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		demandes: params.Demandes,
		archives: params.Archives,
		cache:    params.Cache,
		metrics:  params.Metrics,
		logger:   logger,
		now:      time.Now,
		cfg:      cfg,
	}
}

// Summary returns counts for every status and reports whether the cache served it.
func (s *DashboardService) Summary(ctx context.Context, actor models.Actor) (*models.DashboardSummary, bool, error) {
	if actor.Role == models.RoleRequester {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "dashboard is reserved to staff")
	}
	summary, hit, err := cached(ctx, s.cache, dashboardCachePrefix+"summary", s.cfg.CacheTTL, s.loadSummary)
	if err != nil {
		return nil, false, err
	}
	return &summary, hit, nil
}

func (s *DashboardService) loadSummary(ctx context.Context) (models.DashboardSummary, error) {
	counts, err := s.demandes.CountByStatus(ctx)
	if err != nil {
		return models.DashboardSummary{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count requests")
	}
	archived, err := s.archives.Count(ctx)
	if err != nil {
		return models.DashboardSummary{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count archives")
	}

	byStatus := make(map[models.DemandeStatus]int, len(counts))
	for _, c := range counts {
		byStatus[c.Status] = c.Count
	}
	summary := models.DashboardSummary{
		ByStatus:    make([]models.StatusCount, 0, len(models.AllStatuses)),
		Archived:    archived,
		GeneratedAt: s.now().UTC(),
	}
	for _, status := range models.AllStatuses {
		n := byStatus[status]
		summary.Total += n
		summary.ByStatus = append(summary.ByStatus, models.StatusCount{Status: status, Count: n})
	}
	return summary, nil
}

// System returns the runtime metrics snapshot.
func (s *DashboardService) System(actor models.Actor) (models.SystemMetrics, error) {
	if actor.Role != models.RoleAdministrator {
		return models.SystemMetrics{}, appErrors.Clone(appErrors.ErrForbidden, "system metrics are reserved to administrators")
	}
	snapshot := s.metrics.Snapshot()
	if snapshot.GeneratedAt.IsZero() {
		snapshot.GeneratedAt = s.now().UTC()
	}
	return snapshot, nil
}

// OnTransition implements TransitionListener by dropping cached counts.
func (s *DashboardService) OnTransition(ctx context.Context, event models.TransitionEvent) {
	s.cache.Invalidate(ctx, dashboardCachePrefix+"*")
	s.logger.Debug("dashboard cache invalidated", zap.String("demande_id", event.DemandeID))
}
