package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue-api/internal/model"
	"github.com/jwalitptl/clinic-queue-api/internal/repository"
	syncsvc "github.com/jwalitptl/clinic-queue-api/internal/service/sync"
	"github.com/jwalitptl/clinic-queue-api/pkg/metrics"
)

// Service serves the per-doctor dashboard aggregates with a lazily
// refreshed cache: reads inside the validity window return the stored row
// untouched, reads past it recompute from the source tables first.
type Service struct {
	stats     repository.StatsRepository
	tokens    repository.TokenRepository
	schedules repository.ScheduleRepository

	broadcaster *syncsvc.Broadcaster
	dispatcher  *syncsvc.Dispatcher
	metrics     *metrics.Metrics

	validity time.Duration
	now      func() time.Time
}

func NewService(
	stats repository.StatsRepository,
	tokens repository.TokenRepository,
	schedules repository.ScheduleRepository,
	broadcaster *syncsvc.Broadcaster,
	dispatcher *syncsvc.Dispatcher,
	validity time.Duration,
	m *metrics.Metrics,
) *Service {
	if validity <= 0 {
		validity = model.DefaultStatsValidity
	}
	return &Service{
		stats:       stats,
		tokens:      tokens,
		schedules:   schedules,
		broadcaster: broadcaster,
		dispatcher:  dispatcher,
		metrics:     m,
		validity:    validity,
		now:         time.Now,
	}
}

// Get returns the doctor's aggregates, refreshing first if the cached row
// is missing or past its validity window. Two requests inside the same
// window observe identical rows, including last_calculated.
func (s *Service) Get(ctx context.Context, doctorID uuid.UUID) (*model.DoctorStats, error) {
	now := s.now()

	cached, err := s.stats.Get(ctx, doctorID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.metrics.StatsCacheMisses.Inc()
		return s.Refresh(ctx, doctorID)
	case err != nil:
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	if cached.NeedsRefresh(now) {
		s.metrics.StatsCacheMisses.Inc()
		return s.Refresh(ctx, doctorID)
	}

	s.metrics.StatsCacheHits.Inc()
	return cached, nil
}

// Refresh recomputes the whole row from the token and schedule tables and
// replaces the stored copy. Concurrent refreshes race harmlessly: each
// writes a complete row and the last writer wins.
func (s *Service) Refresh(ctx context.Context, doctorID uuid.UUID) (*model.DoctorStats, error) {
	started := s.now()
	defer func() {
		s.metrics.StatsRefreshLatency.Observe(time.Since(started).Seconds())
	}()

	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	today, err := s.tokens.CountByStatus(ctx, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to count today's tokens: %w", err)
	}
	month, err := s.tokens.CountByStatus(ctx, doctorID, monthStart, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to count month tokens: %w", err)
	}
	totals, err := s.tokens.Totals(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to count total tokens: %w", err)
	}
	revenue, err := s.tokens.SumRevenue(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	workingDays, leaveDays, err := s.schedules.CountDays(ctx, doctorID, monthStart, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to count schedule days: %w", err)
	}

	row := &model.DoctorStats{
		DoctorID: doctorID,

		TodayTotal:     today.Total,
		TodayConsulted: today.Consulted,
		TodayCancelled: today.Cancelled,
		TodayMissed:    today.Missed,
		TodayReferred:  today.Referred,

		MonthTotal:     month.Total,
		MonthConsulted: month.Consulted,
		MonthCancelled: month.Cancelled,
		MonthMissed:    month.Missed,

		TotalAppointments: totals.Total,
		TotalConsulted:    totals.Consulted,

		Revenue: revenue,

		WorkingDaysThisMonth: workingDays,
		LeaveDaysThisMonth:   leaveDays,

		LastCalculated: now,
		CacheExpiresAt: now.Add(s.validity),
	}

	if err := s.stats.Upsert(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to store stats: %w", err)
	}
	s.metrics.StatsRefreshes.Inc()

	s.dispatcher.Dispatch(syncsvc.Effect{
		Kind: "broadcast",
		Run: func(ctx context.Context) error {
			s.broadcaster.StatsRefreshed(ctx, doctorID)
			return nil
		},
	})

	return row, nil
}

// RefreshExpired recomputes every row whose window has lapsed, up to limit.
// The background sweeper calls this so dashboards rarely pay the refresh
// cost on the read path.
func (s *Service) RefreshExpired(ctx context.Context, limit int) (int, error) {
	ids, err := s.stats.ListExpired(ctx, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired stats: %w", err)
	}
	refreshed := 0
	for _, id := range ids {
		if _, err := s.Refresh(ctx, id); err != nil {
			return refreshed, err
		}
		refreshed++
	}
	return refreshed, nil
}
