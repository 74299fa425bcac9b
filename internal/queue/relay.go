package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"habitpulse/internal/types"
)

const (
	defaultRelayBatchSize = 100
	// maxSQSDelay is the longest DelaySeconds SQS accepts.
	maxSQSDelay = 15 * time.Minute
)

// Sink receives tasks claimed by the relay.
type Sink interface {
	Dispatch(ctx context.Context, task types.ScheduledTask) error
}

// Relay claims tasks whose fire time falls inside the lookahead horizon and
// hands them to a Sink. A task the sink rejects goes back to pending.
type Relay struct {
	store     TaskStore
	sink      Sink
	clock     types.Clock
	lookahead time.Duration
	batchSize int
	logger    *slog.Logger
}

type RelayConfig struct {
	Lookahead time.Duration
	BatchSize int
}

func NewRelay(store TaskStore, sink Sink, clock types.Clock, cfg RelayConfig, logger *slog.Logger) *Relay {
	if clock == nil {
		clock = types.RealClock{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultRelayBatchSize
	}
	if cfg.Lookahead < 0 {
		cfg.Lookahead = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		store:     store,
		sink:      sink,
		clock:     clock,
		lookahead: cfg.Lookahead,
		batchSize: cfg.BatchSize,
		logger:    logger,
	}
}

// Run claims and dispatches batches until nothing due remains or ctx ends.
// It returns the number of tasks handed off successfully.
func (r *Relay) Run(ctx context.Context) (int, error) {
	var (
		relayed int
		errs    *multierror.Error
	)
	for {
		if err := ctx.Err(); err != nil {
			return relayed, multierror.Append(errs, err).ErrorOrNil()
		}

		horizon := r.clock.Now().Add(r.lookahead)
		tasks, err := r.store.ClaimDue(ctx, horizon, r.batchSize)
		if err != nil {
			return relayed, multierror.Append(errs, err).ErrorOrNil()
		}

		failed := 0
		for _, task := range tasks {
			if err := r.sink.Dispatch(ctx, task); err != nil {
				failed++
				errs = multierror.Append(errs, err)
				r.logger.ErrorContext(ctx, "task dispatch failed", "task_id", task.ID, "error", err)
				if rqErr := r.store.Requeue(ctx, task.ID); rqErr != nil {
					errs = multierror.Append(errs, rqErr)
				}
				continue
			}
			relayed++
		}

		// A short batch means the due set is drained. Failed tasks are back
		// in pending, so stop rather than spin on them.
		if len(tasks) < r.batchSize || failed > 0 {
			break
		}
	}

	if relayed > 0 {
		r.logger.InfoContext(ctx, "relay completed", "relayed", relayed)
	}
	return relayed, errs.ErrorOrNil()
}
