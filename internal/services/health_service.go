package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/metrics"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/provisioner"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/repository"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// StatusUnhealthy is reported when the liveness probe fails.
const StatusUnhealthy = "unhealthy"

// HealthResult is a point-in-time liveness report.
type HealthResult struct {
	Status         string    `json:"status"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	UptimeMs       int64     `json:"uptime_ms"`
	CheckedAt      time.Time `json:"checked_at"`
}

// HealthService probes deployments. It never changes deployment state.
type HealthService interface {
	CheckHealth(ctx context.Context, deploymentID uuid.UUID) (*HealthResult, error)
}

type healthService struct {
	deployments repository.DeploymentRepository
	liveness    provisioner.Liveness
	timeout     time.Duration
	cache       *cache.Cache
	metrics     *metrics.Metrics
	now         func() time.Time
}

var _ HealthService = (*healthService)(nil)

// probeOutcome is what the cache holds. Status and uptime are always
// derived from the current record.
type probeOutcome struct {
	err       error
	elapsed   time.Duration
	checkedAt time.Time
}

// NewHealthService bounds each probe by timeout and caches probe outcomes
// for cacheTTL. A zero cacheTTL disables caching.
func NewHealthService(deployments repository.DeploymentRepository, liveness provisioner.Liveness, timeout, cacheTTL time.Duration, m *metrics.Metrics) HealthService {
	s := &healthService{
		deployments: deployments,
		liveness:    liveness,
		timeout:     timeout,
		metrics:     m,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if cacheTTL > 0 {
		s.cache = cache.New(cacheTTL, 2*cacheTTL)
	}
	return s
}

func (s *healthService) CheckHealth(ctx context.Context, deploymentID uuid.UUID) (*HealthResult, error) {
	d, err := s.deployments.GetByID(ctx, deploymentID)
	if err != nil {
		return nil, err
	}

	outcome := s.probe(ctx, d.ID, d.Domain)
	res := HealthResult{
		Status:         string(d.Status),
		ResponseTimeMs: outcome.elapsed.Milliseconds(),
		CheckedAt:      outcome.checkedAt,
	}
	if outcome.err != nil {
		res.Status = StatusUnhealthy
	} else if d.DeployedAt != nil {
		if up := s.now().Sub(*d.DeployedAt); up > 0 {
			res.UptimeMs = up.Milliseconds()
		}
	}
	return &res, nil
}

func (s *healthService) probe(ctx context.Context, id uuid.UUID, domain string) probeOutcome {
	key := id.String()
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return v.(probeOutcome)
		}
	}

	pctx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.liveness.Probe(pctx, domain)
	outcome := probeOutcome{err: err, elapsed: time.Since(start), checkedAt: s.now()}

	result := "ok"
	if err != nil {
		logger.L().Info("health probe failed", logger.Deployment(id), zap.Error(err))
		result = StatusUnhealthy
	}
	s.metrics.HealthProbe(result)
	if s.cache != nil {
		s.cache.SetDefault(key, outcome)
	}
	return outcome
}
