package beacon

import (
	"context"
	"time"

	"github.com/Shugur-Network/capsule-validator/internal/logger"
	"go.uber.org/zap"
)

// RoundSource reads the most recent round of a network.
type RoundSource interface {
	CurrentRound(ctx context.Context, network Network) (uint64, error)
}

// InfoSource reads chain parameters of a network.
type InfoSource interface {
	Info(ctx context.Context, network Network) (Info, error)
}

// Reader is everything the calculator needs from the beacon.
type Reader interface {
	RoundSource
	InfoSource
}

// Timing is the result of mapping an unlock time onto a network.
type Timing struct {
	UnlockTime   time.Time
	CurrentRound uint64
	TargetRound  uint64
	RoundsNeeded uint64
	Period       time.Duration
	// ExpectedAt is when TargetRound is emitted according to the chain genesis.
	ExpectedAt time.Time
}

// Calculator converts unlock times into target rounds.
type Calculator struct {
	reader Reader
	now    func() time.Time
	logger *zap.Logger
}

// NewCalculator creates a calculator reading from reader. A nil now uses time.Now.
func NewCalculator(reader Reader, now func() time.Time) *Calculator {
	if now == nil {
		now = time.Now
	}
	return &Calculator{reader: reader, now: now, logger: logger.New("rounds")}
}

// CurrentRound returns the latest round of network.
func (c *Calculator) CurrentRound(ctx context.Context, network Network) (uint64, error) {
	return c.reader.CurrentRound(ctx, network)
}

// TargetRound returns the first round emitted at or after unlockTime.
func (c *Calculator) TargetRound(ctx context.Context, unlockTime time.Time, network Network) (uint64, error) {
	timing, err := c.Plan(ctx, unlockTime, network)
	if err != nil {
		return 0, err
	}
	return timing.TargetRound, nil
}

// Plan computes the full timing for unlockTime. The period reported by the
// beacon takes precedence over the configured one.
func (c *Calculator) Plan(ctx context.Context, unlockTime time.Time, network Network) (Timing, error) {
	current, err := c.reader.CurrentRound(ctx, network)
	if err != nil {
		return Timing{}, err
	}
	info, err := c.reader.Info(ctx, network)
	if err != nil {
		return Timing{}, err
	}

	period := time.Duration(info.Period) * time.Second
	needed := RoundsNeeded(unlockTime, c.now(), period)
	target := current + needed

	timing := Timing{
		UnlockTime:   unlockTime,
		CurrentRound: current,
		TargetRound:  target,
		RoundsNeeded: needed,
		Period:       period,
		ExpectedAt:   info.RoundAt(target),
	}
	c.logger.Debug("computed target round",
		zap.String("network", network.Name),
		zap.Uint64("current_round", current),
		zap.Uint64("target_round", target),
		zap.Uint64("rounds_needed", needed),
		zap.Duration("period", period),
	)
	return timing, nil
}

// RoundsNeeded returns ceil(max(0, unlock-now) / period) in whole seconds.
// Periods below one second are treated as one second.
func RoundsNeeded(unlock, now time.Time, period time.Duration) uint64 {
	seconds := unlock.Unix() - now.Unix()
	if seconds <= 0 {
		return 0
	}
	p := int64(period / time.Second)
	if p <= 0 {
		p = 1
	}
	return uint64((seconds + p - 1) / p)
}
