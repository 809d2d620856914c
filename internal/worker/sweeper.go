package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue-api/internal/repository"
	"github.com/jwalitptl/clinic-queue-api/internal/service/stats"
	"github.com/jwalitptl/clinic-queue-api/pkg/metrics"
)

// Config holds the cron schedules and retention knobs for the background
// sweeper.
type Config struct {
	NoShowCron        string        `envconfig:"NO_SHOW_CRON" default:"5 0 * * *"`
	StatsRefreshCron  string        `envconfig:"STATS_REFRESH_CRON" default:"*/10 * * * *"`
	PurgeCron         string        `envconfig:"PURGE_CRON" default:"30 2 * * *"`
	StatsRefreshLimit int           `envconfig:"STATS_REFRESH_LIMIT" default:"100"`
	RequestRetention  time.Duration `envconfig:"REQUEST_RETENTION" default:"2160h"`
	JobTimeout        time.Duration `envconfig:"JOB_TIMEOUT" default:"5m"`
}

// Sweeper owns the recurring maintenance jobs: flipping stale active tokens
// to missed after the day ends, refreshing lapsed stats rows off the read
// path, and purging decided schedule change requests.
type Sweeper struct {
	tokens         repository.TokenRepository
	changeRequests repository.ChangeRequestRepository
	stats          *stats.Service
	logger         *zerolog.Logger
	metrics        *metrics.Metrics
	config         Config
	cron           *cron.Cron
}

func NewSweeper(
	tokens repository.TokenRepository,
	changeRequests repository.ChangeRequestRepository,
	statsSvc *stats.Service,
	logger *zerolog.Logger,
	m *metrics.Metrics,
	config Config,
) *Sweeper {
	return &Sweeper{
		tokens:         tokens,
		changeRequests: changeRequests,
		stats:          statsSvc,
		logger:         logger,
		metrics:        m,
		config:         config,
		cron:           cron.New(),
	}
}

// Start registers the jobs and runs the scheduler until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.config.NoShowCron, s.job("no_show_sweep", s.sweepNoShows)); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.config.StatsRefreshCron, s.job("stats_refresh", s.refreshStats)); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.config.PurgeCron, s.job("request_purge", s.purgeRequests)); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().Msg("sweeper started")

	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info().Msg("sweeper stopped")
	return nil
}

func (s *Sweeper) job(name string, fn func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.JobTimeout)
		defer cancel()

		start := time.Now()
		err := fn(ctx)
		s.metrics.DatabaseLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())

		status := "ok"
		if err != nil {
			status = "error"
			s.logger.Error().Err(err).Str("job", name).Msg("sweeper job failed")
		}
		s.metrics.DatabaseOperations.WithLabelValues(name, status).Inc()
	}
}

// sweepNoShows flips tokens still active on past dates to missed. Runs
// shortly after midnight so yesterday's queue is settled before the day's
// first stats read.
func (s *Sweeper) sweepNoShows(ctx context.Context) error {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	flipped, err := s.tokens.MarkMissedBefore(ctx, today)
	if err != nil {
		return err
	}
	if flipped > 0 {
		s.logger.Info().Int64("tokens", flipped).Msg("marked stale active tokens missed")
	}
	return nil
}

func (s *Sweeper) refreshStats(ctx context.Context) error {
	refreshed, err := s.stats.RefreshExpired(ctx, s.config.StatsRefreshLimit)
	if refreshed > 0 {
		s.logger.Info().Int("doctors", refreshed).Msg("refreshed expired stats rows")
	}
	return err
}

func (s *Sweeper) purgeRequests(ctx context.Context) error {
	cutoff := time.Now().Add(-s.config.RequestRetention)
	purged, err := s.changeRequests.DeleteDecidedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if purged > 0 {
		s.logger.Info().Int64("requests", purged).Msg("purged decided change requests")
	}
	return nil
}
