package beacon

import (
	"context"
	"time"

	"github.com/Shugur-Network/capsule-validator/internal/errors"
	"github.com/Shugur-Network/capsule-validator/internal/logger"
	"github.com/Shugur-Network/capsule-validator/internal/metrics"
	"go.uber.org/zap"
)

// Default polling cadence
const (
	DefaultPollInterval = 5 * time.Second
	DefaultErrorBackoff = 10 * time.Second
)

// Progress is reported after every poll.
type Progress struct {
	Current   uint64
	Target    uint64
	Remaining uint64
	Elapsed   time.Duration
	Err       error
}

// Waiter blocks until a network reaches a round.
type Waiter struct {
	source RoundSource
	logger *zap.Logger

	PollInterval time.Duration
	ErrorBackoff time.Duration
	// MaxConsecutiveFailures bounds failed polls in a row; zero retries forever.
	MaxConsecutiveFailures int
	OnProgress             func(Progress)
}

// NewWaiter creates a waiter with the default cadence.
func NewWaiter(source RoundSource) *Waiter {
	return &Waiter{
		source:       source,
		logger:       logger.New("waiter"),
		PollInterval: DefaultPollInterval,
		ErrorBackoff: DefaultErrorBackoff,
	}
}

// WaitForRound polls until the current round is at least target and returns
// the time spent waiting. Cancelling ctx aborts at the next poll boundary with
// an Interrupted error.
func (w *Waiter) WaitForRound(ctx context.Context, target uint64, network Network) (time.Duration, error) {
	start := time.Now()
	failures := 0

	w.logger.Info("waiting for round",
		zap.String("network", network.Label()),
		zap.Uint64("target_round", target),
	)

	for {
		if err := ctx.Err(); err != nil {
			return time.Since(start), errors.Interrupted("waiting for unlock round", err)
		}

		current, err := w.source.CurrentRound(ctx, network)
		delay := w.PollInterval

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return time.Since(start), errors.Interrupted("waiting for unlock round", ctx.Err())
			}
			failures++
			w.report(Progress{Target: target, Elapsed: time.Since(start), Err: err})
			if w.MaxConsecutiveFailures > 0 && failures >= w.MaxConsecutiveFailures {
				return time.Since(start), errors.BeaconDegraded(failures, err)
			}
			w.logger.Warn("error checking round", zap.Int("consecutive_failures", failures), zap.Error(err))
			delay = w.ErrorBackoff

		case current >= target:
			elapsed := time.Since(start)
			metrics.UnlockWaitDuration.Observe(elapsed.Seconds())
			w.logger.Info("round reached",
				zap.Uint64("target_round", target),
				zap.Uint64("current_round", current),
				zap.Duration("waited", elapsed),
			)
			return elapsed, nil

		default:
			failures = 0
			w.report(Progress{Current: current, Target: target, Remaining: target - current, Elapsed: time.Since(start)})
			w.logger.Info("round pending",
				zap.Uint64("current_round", current),
				zap.Uint64("target_round", target),
				zap.Uint64("remaining", target-current),
			)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return time.Since(start), errors.Interrupted("waiting for unlock round", ctx.Err())
		case <-timer.C:
		}
	}
}

func (w *Waiter) report(p Progress) {
	if w.OnProgress != nil {
		w.OnProgress(p)
	}
}
