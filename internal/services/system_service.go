package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/repositories"
)

const defaultHealthCacheTTL = 2 * time.Second

// BuildInfo is the release metadata reported by the health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps wires the readiness service. CacheTTL bounds how often dependency checks
// actually run when readiness is polled by several load balancers; zero uses 2s, negative disables.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
	CacheTTL         time.Duration
	Logger           Logger
}

type systemService struct {
	health repositories.HealthRepository
	now    func() time.Time
	build  BuildInfo
	ttl    time.Duration
	log    Logger

	checks   singleflight.Group
	mu       sync.Mutex
	cached   SystemHealthReport
	cachedAt time.Time
}

var _ SystemService = (*systemService)(nil)

// NewSystemService builds the service behind /readyz.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	ttl := deps.CacheTTL
	if ttl == 0 {
		ttl = defaultHealthCacheTTL
	}
	s := &systemService{
		health: deps.HealthRepository,
		now:    utcClock(deps.Clock),
		build:  deps.Build,
		ttl:    ttl,
		log:    deps.Logger,
	}
	if s.build.StartedAt.IsZero() {
		s.build.StartedAt = s.now()
	}
	return s, nil
}

// HealthReport checks dependencies, reusing a report younger than the cache TTL. Concurrent
// callers share one check run.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if report, ok := s.fresh(); ok {
		return s.decorate(report), nil
	}
	v, err, _ := s.checks.Do("collect", func() (any, error) {
		report, err := s.health.Collect(ctx)
		if err != nil {
			return SystemHealthReport{}, err
		}
		if report.Status == "" {
			report.Status = overallHealth(report.Checks)
		}
		if report.Status != domain.HealthStatusOK && s.log != nil {
			failing := make(map[string]any)
			for name, check := range report.Checks {
				if check.Status != domain.HealthStatusOK {
					failing[name] = check.Error
				}
			}
			s.log(ctx, "system.health.degraded", map[string]any{"status": report.Status, "checks": failing})
		}
		s.mu.Lock()
		s.cached, s.cachedAt = report, s.now()
		s.mu.Unlock()
		return report, nil
	})
	if err != nil {
		return SystemHealthReport{}, err
	}
	return s.decorate(v.(SystemHealthReport)), nil
}

func (s *systemService) fresh() (SystemHealthReport, bool) {
	if s.ttl < 0 {
		return SystemHealthReport{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cachedAt.IsZero() || s.now().Sub(s.cachedAt) >= s.ttl {
		return SystemHealthReport{}, false
	}
	return s.cached, true
}

// decorate stamps build metadata and timing onto a copy of report.
func (s *systemService) decorate(report SystemHealthReport) SystemHealthReport {
	now := s.now()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	report.GeneratedAt = report.GeneratedAt.UTC()
	if report.Version == "" {
		report.Version = s.build.Version
	}
	if report.CommitSHA == "" {
		report.CommitSHA = s.build.CommitSHA
	}
	if report.Environment == "" {
		report.Environment = s.build.Environment
	}
	report.Uptime = now.Sub(s.build.StartedAt)
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	return report
}

// overallHealth is error when any check errored and degraded when any check is neither ok nor error.
func overallHealth(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
