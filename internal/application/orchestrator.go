package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/Shugur-Network/capsule-validator/internal/beacon"
	"github.com/Shugur-Network/capsule-validator/internal/capsule"
	"github.com/Shugur-Network/capsule-validator/internal/config"
	"github.com/Shugur-Network/capsule-validator/internal/errors"
	"github.com/Shugur-Network/capsule-validator/internal/identity"
	"github.com/Shugur-Network/capsule-validator/internal/logger"
	"github.com/Shugur-Network/capsule-validator/internal/metrics"
	"github.com/Shugur-Network/capsule-validator/internal/preflight"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Stage names used in capsule results
const (
	stageBuild   = "build"
	stagePublish = "publish"
	stageDecrypt = "decrypt"
)

// Orchestrator drives one validation run: keys, timing, capsule creation,
// publishing, waiting for the unlock round and decryption.
type Orchestrator struct {
	network  beacon.Network
	relayURL string
	capsules config.CapsulesConfig

	calculator *beacon.Calculator
	waiter     *beacon.Waiter
	builder    *capsule.Builder
	decryptor  *capsule.Decryptor
	publisher  Publisher
	preflight  Preflight
	keygen     func() (identity.Keypair, error)
	now        func() time.Time

	state  State
	logger *zap.Logger
}

// New creates and configures an Orchestrator using the OrchestratorBuilder.
func New(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	b := NewOrchestratorBuilder(cfg, opts...)

	if err := b.BuildNetwork(); err != nil {
		return nil, fmt.Errorf("failed resolving beacon network: %w", err)
	}
	b.BuildBeacon()
	if err := b.BuildCollaborators(); err != nil {
		return nil, fmt.Errorf("failed building collaborators: %w", err)
	}
	b.BuildCapsules()
	b.BuildPublisher()
	b.BuildPreflight()

	return b.Build(), nil
}

// Network returns the beacon network the run targets.
func (o *Orchestrator) Network() beacon.Network {
	return o.network
}

// State returns the last state the orchestrator entered.
func (o *Orchestrator) State() State {
	return o.state
}

// Run executes a full validation run. It always returns a report; failures
// and interruption are recorded on it rather than returned.
func (o *Orchestrator) Run(ctx context.Context) *Report {
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	o.logger = logger.FromContext(ctx).With(zap.String("component", "orchestrator"))

	report := &Report{
		RunID:    runID,
		Network:  o.network,
		RelayURL: o.relayURL,
		Started:  o.now(),
	}
	o.transition(StateInit)
	o.logger.Info("starting validation run",
		zap.String("network", o.network.Label()),
		zap.String("relay", o.relayURL),
		zap.Duration("unlock_delay", o.capsules.UnlockDelay),
	)

	if err := o.run(ctx, report); err != nil {
		report.Err = err
	}
	return o.finish(report)
}

func (o *Orchestrator) run(ctx context.Context, report *Report) error {
	if o.preflight != nil {
		pf := o.preflight.Run(ctx)
		report.Preflight = pf
		if err := preflightError(ctx, pf); err != nil {
			return err
		}
	}

	author, err := o.keygen()
	if err != nil {
		return errors.InternalError("generating author key", err)
	}
	recipient, err := o.keygen()
	if err != nil {
		return errors.InternalError("generating recipient key", err)
	}
	o.logger.Info("generated run identities",
		zap.String("author", author.Short()),
		zap.String("recipient", recipient.Short()),
	)
	o.transition(StateKeysGenerated)

	unlock := o.now().Add(o.capsules.UnlockDelay)
	timing, err := o.calculator.Plan(ctx, unlock, o.network)
	if err != nil {
		return interrupted(ctx, "computing unlock round", err)
	}
	report.Timing = timing
	o.logger.Info("computed unlock round",
		zap.Uint64("current_round", timing.CurrentRound),
		zap.Uint64("target_round", timing.TargetRound),
		zap.Uint64("rounds_needed", timing.RoundsNeeded),
		zap.Time("expected_at", timing.ExpectedAt),
	)
	o.transition(StateTimingComputed)

	report.Capsules = []*CapsuleResult{
		{Mode: metrics.ModePublic, Expected: o.capsules.PublicMessage},
		{Mode: metrics.ModePrivate, Expected: o.capsules.PrivateMessage},
	}

	if err := o.create(ctx, report.Capsules, timing.TargetRound, author, recipient); err != nil {
		return interrupted(ctx, "creating capsules", err)
	}
	o.transition(StateCapsulesCreated)

	if err := o.publishAll(ctx, report.Capsules); err != nil {
		return err
	}
	o.transition(StatePublished)

	o.transition(StateWaitingForUnlock)
	waited, err := o.waiter.WaitForRound(ctx, timing.TargetRound, o.network)
	report.Waited = waited
	if err != nil {
		return interrupted(ctx, "waiting for unlock round", err)
	}

	o.decryptAll(ctx, report.Capsules, author, recipient)
	if err := ctx.Err(); err != nil {
		return errors.Interrupted("decrypting capsules", err)
	}
	o.transition(StateDecrypted)
	return nil
}

// create builds both capsules. Any build failure aborts the run.
func (o *Orchestrator) create(ctx context.Context, results []*CapsuleResult, round uint64, author, recipient identity.Keypair) error {
	build := func(c *CapsuleResult) error {
		var err error
		switch c.Mode {
		case metrics.ModePublic:
			c.Event, err = o.builder.BuildPublic(ctx, c.Expected, round, author, o.network)
		case metrics.ModePrivate:
			c.private, err = o.builder.BuildPrivate(ctx, c.Expected, round, author, recipient.Public, o.network)
			if err == nil {
				c.Event = c.private.GiftWrap
			}
		}
		metrics.RecordBuild(c.Mode, err)
		if err != nil {
			c.fail(stageBuild, err)
			errors.Log(o.logger, "capsule build failed", err, zap.String("mode", c.Mode))
			return err
		}
		c.Created = true
		o.logger.Info("capsule created", zap.String("mode", c.Mode), zap.String("event_id", c.Event.ID))
		return nil
	}

	if !o.capsules.Concurrent {
		for _, c := range results {
			if err := build(c); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	for _, c := range results {
		g.Go(func() error { return build(c) })
	}
	return g.Wait()
}

// publishAll sends every capsule. A rejected capsule is recorded and the run
// continues; the run only stops when nothing was published.
func (o *Orchestrator) publishAll(ctx context.Context, results []*CapsuleResult) error {
	o.forEach(results, func(c *CapsuleResult) {
		res, err := o.publisher.Publish(ctx, c.Event, o.relayURL)
		metrics.RecordPublish(c.Mode, err == nil && res.Accepted, res.Prefix, res.Took)
		if res.EventID != "" {
			c.Relay = &res
		}
		if err != nil {
			c.fail(stagePublish, err)
			errors.Log(o.logger, "capsule not published", err,
				zap.String("mode", c.Mode),
				zap.String("event_id", c.Event.ID),
				zap.String("relay_message", res.Message),
			)
			return
		}
		c.Published = true
		o.logger.Info("capsule published",
			zap.String("mode", c.Mode),
			zap.String("event_id", c.Event.ID),
			zap.Duration("took", res.Took),
		)
	})

	if err := ctx.Err(); err != nil {
		return errors.Interrupted("publishing capsules", err)
	}
	for _, c := range results {
		if c.Published {
			return nil
		}
	}
	return firstError(results)
}

// decryptAll opens every published capsule. Failures are independent.
func (o *Orchestrator) decryptAll(ctx context.Context, results []*CapsuleResult, author, recipient identity.Keypair) {
	o.forEach(results, func(c *CapsuleResult) {
		if !c.Published {
			return
		}
		plaintext, err := o.open(ctx, c, author, recipient)
		if err == nil && plaintext != c.Expected {
			err = errors.DecryptionFailed(c.Mode, fmt.Errorf("decrypted message does not match the original"))
		}
		metrics.RecordDecrypt(c.Mode, err)
		if err != nil {
			c.fail(stageDecrypt, err)
			errors.Log(o.logger, "capsule decryption failed", err, zap.String("mode", c.Mode))
			return
		}
		c.Plaintext = plaintext
		c.Decrypted = true
		o.logger.Info("capsule decrypted", zap.String("mode", c.Mode), zap.String("event_id", c.Event.ID))
	})
}

func (o *Orchestrator) open(ctx context.Context, c *CapsuleResult, author, recipient identity.Keypair) (string, error) {
	if c.private != nil {
		return o.decryptor.DecryptPrivate(ctx, c.private.GiftWrap, author, recipient)
	}
	return o.decryptor.DecryptPublic(ctx, c.Event, o.network)
}

// forEach applies fn to every result, concurrently when configured. Each call
// only touches its own result.
func (o *Orchestrator) forEach(results []*CapsuleResult, fn func(*CapsuleResult)) {
	if !o.capsules.Concurrent {
		for _, c := range results {
			fn(c)
		}
		return
	}
	var g errgroup.Group
	for _, c := range results {
		g.Go(func() error {
			fn(c)
			return nil
		})
	}
	_ = g.Wait() // nolint:errcheck // fn never fails
}

func (o *Orchestrator) finish(report *Report) *Report {
	report.Reached = o.state
	switch {
	case report.Err != nil && stderrors.Is(report.Err, errors.ErrInterrupted):
		report.Outcome = OutcomeInterrupted
	case report.Succeeded():
		report.Outcome = OutcomeSuccess
	default:
		report.Outcome = OutcomeFailed
	}
	o.transition(StateReported)
	report.Finished = o.now()

	fields := []zap.Field{
		zap.String("outcome", string(report.Outcome)),
		zap.Stringer("reached", report.Reached),
		zap.Int("created", report.Created()),
		zap.Int("published", report.Published()),
		zap.Int("decrypted", report.Decrypted()),
	}
	if report.Err != nil {
		errors.Log(o.logger, "validation run failed", report.Err, fields...)
	} else {
		o.logger.Info("validation run finished", fields...)
	}
	return report
}

func preflightError(ctx context.Context, pf *preflight.Report) error {
	if err := ctx.Err(); err != nil {
		return errors.Interrupted("running preflight checks", err)
	}
	if pf.Ready() {
		return nil
	}
	for _, comp := range pf.Components {
		if comp.Status != preflight.StatusUnhealthy {
			continue
		}
		errType := errors.ErrorTypeDependencyMissing
		switch comp.Name {
		case "beacon":
			errType = errors.ErrorTypeBeaconUnavailable
		case "relay":
			errType = errors.ErrorTypeRelayRejected
		}
		return errors.New(errType, "PREFLIGHT_FAILED", fmt.Sprintf("Preflight check %s failed", comp.Name)).
			WithSeverity(errors.SeverityCritical).
			WithDetails(comp.Message).
			WithUserMessage(fmt.Sprintf("Preflight %s check failed: %s", comp.Name, comp.Message))
	}
	return nil
}

// interrupted reports err as an interruption when ctx was cancelled, whatever
// collaborator error the cancellation surfaced as.
func interrupted(ctx context.Context, stage string, err error) error {
	if ctx.Err() == nil || stderrors.Is(err, errors.ErrInterrupted) {
		return err
	}
	return errors.Interrupted(stage, err)
}

func firstError(results []*CapsuleResult) error {
	for _, c := range results {
		if c.Err != nil {
			return c.Err
		}
	}
	return nil
}
