package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue-api/pkg/metrics"
)

const effectTimeout = 10 * time.Second

// Effect is one best-effort side effect of a committed mutation: a
// notification, an email, a broadcast.
type Effect struct {
	Kind string
	Run  func(ctx context.Context) error
}

// Dispatcher runs side effects after the mutation result has been returned
// to the caller. Effects for one mutation run in order on a single
// goroutine, detached from the request context; failures are logged and
// counted, never propagated.
type Dispatcher struct {
	logger  *zerolog.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(logger *zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{logger: logger, metrics: m}
}

func (d *Dispatcher) Dispatch(effects ...Effect) {
	if len(effects) == 0 {
		return
	}
	go func() {
		for _, effect := range effects {
			d.run(effect)
		}
	}()
}

func (d *Dispatcher) run(effect Effect) {
	ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("side effect panic: %v", r)
			}
		}()
		return effect.Run(ctx)
	}()

	if err != nil {
		d.metrics.SideEffectFailures.WithLabelValues(effect.Kind).Inc()
		d.logger.Error().Err(err).Str("kind", effect.Kind).Msg("side effect failed")
	}
}
