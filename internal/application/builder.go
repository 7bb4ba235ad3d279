package application

import (
	"context"
	"fmt"
	"time"

	"github.com/Shugur-Network/capsule-validator/internal/beacon"
	"github.com/Shugur-Network/capsule-validator/internal/capsule"
	"github.com/Shugur-Network/capsule-validator/internal/config"
	"github.com/Shugur-Network/capsule-validator/internal/identity"
	"github.com/Shugur-Network/capsule-validator/internal/logger"
	"github.com/Shugur-Network/capsule-validator/internal/preflight"
	"github.com/Shugur-Network/capsule-validator/internal/publisher"
	"github.com/Shugur-Network/capsule-validator/internal/timelock"
	"github.com/Shugur-Network/capsule-validator/internal/toolchain"
	"github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"
)

// Publisher sends one event to a relay and reports its verdict.
type Publisher interface {
	Publish(ctx context.Context, evt *nostr.Event, relayURL string) (publisher.Result, error)
}

// Preflight checks collaborators before a run starts.
type Preflight interface {
	Run(ctx context.Context) *preflight.Report
}

// Option overrides a collaborator the builder would otherwise derive from config.
type Option func(*OrchestratorBuilder)

// WithTimelock replaces the configured time-lock backend.
func WithTimelock(tl timelock.Codec) Option {
	return func(b *OrchestratorBuilder) { b.timelock = tl }
}

// WithCrypto replaces the configured crypto backend.
func WithCrypto(p identity.Provider) Option {
	return func(b *OrchestratorBuilder) { b.crypto = p }
}

// WithBeacon replaces the HTTP beacon client.
func WithBeacon(r beacon.Reader) Option {
	return func(b *OrchestratorBuilder) { b.beacon = r }
}

// WithPublisher replaces the websocket publisher.
func WithPublisher(p Publisher) Option {
	return func(b *OrchestratorBuilder) { b.publisher = p }
}

// WithClock sets the clock used for unlock times and created_at.
func WithClock(now func() time.Time) Option {
	return func(b *OrchestratorBuilder) { b.now = now }
}

// WithKeyGenerator replaces the source of run identities.
func WithKeyGenerator(gen func() (identity.Keypair, error)) Option {
	return func(b *OrchestratorBuilder) { b.keygen = gen }
}

// WithoutPreflight skips the readiness checks.
func WithoutPreflight() Option {
	return func(b *OrchestratorBuilder) { b.skipPreflight = true }
}

// OrchestratorBuilder is used to incrementally construct an Orchestrator.
type OrchestratorBuilder struct {
	config *config.Config

	registry *beacon.Registry
	network  beacon.Network
	runner   *toolchain.Runner

	beacon    beacon.Reader
	timelock  timelock.Codec
	crypto    identity.Provider
	publisher Publisher
	probe     preflight.RelayProbe
	now       func() time.Time
	keygen    func() (identity.Keypair, error)

	skipPreflight bool

	calculator *beacon.Calculator
	waiter     *beacon.Waiter
	builder    *capsule.Builder
	decryptor  *capsule.Decryptor
	preflight  Preflight
}

// NewOrchestratorBuilder creates a builder for cfg.
func NewOrchestratorBuilder(cfg *config.Config, opts ...Option) *OrchestratorBuilder {
	b := &OrchestratorBuilder{
		config: cfg,
		now:    time.Now,
		keygen: identity.Generate,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildNetwork resolves the configured beacon network against the table.
func (b *OrchestratorBuilder) BuildNetwork() error {
	b.registry = beacon.RegistryFromConfig(b.config.Beacon)
	network, err := b.registry.ByName(b.config.Beacon.DefaultNetwork)
	if err != nil {
		return err
	}
	b.network = network
	return nil
}

// BuildBeacon sets up round calculation and the unlock waiter.
func (b *OrchestratorBuilder) BuildBeacon() {
	if b.beacon == nil {
		b.beacon = beacon.NewClient(b.config.Beacon.RequestTimeout,
			beacon.WithRateLimit(b.config.Beacon.RequestsPerSecond))
	}
	b.calculator = beacon.NewCalculator(b.beacon, b.now)

	b.waiter = beacon.NewWaiter(b.beacon)
	b.waiter.PollInterval = b.config.Beacon.PollInterval
	b.waiter.ErrorBackoff = b.config.Beacon.ErrorBackoff
	b.waiter.MaxConsecutiveFailures = b.config.Beacon.MaxConsecutiveFailures
}

// BuildCollaborators picks the time-lock and crypto backends.
func (b *OrchestratorBuilder) BuildCollaborators() error {
	b.runner = toolchain.NewRunner(b.config.Capsules.ToolTimeout)

	if b.timelock == nil {
		switch b.config.Capsules.TimelockBackend {
		case config.TimelockBackendDrand:
			b.timelock = timelock.NewDrandCodec(b.registry)
		case config.TimelockBackendTle:
			b.timelock = timelock.NewTleCodec(b.runner, b.registry)
		default:
			return fmt.Errorf("unknown timelock backend %q", b.config.Capsules.TimelockBackend)
		}
	}

	if b.crypto == nil {
		switch b.config.Capsules.CryptoBackend {
		case config.CryptoBackendNative:
			b.crypto = identity.NewNativeProvider()
		case config.CryptoBackendNak:
			b.crypto = identity.NewNakProvider(b.runner)
		default:
			return fmt.Errorf("unknown crypto backend %q", b.config.Capsules.CryptoBackend)
		}
	}

	logger.Debug("collaborators selected",
		zap.String("timelock", b.config.Capsules.TimelockBackend),
		zap.String("crypto", b.config.Capsules.CryptoBackend),
	)
	return nil
}

// BuildCapsules wires the builder and decryptor to the collaborators.
func (b *OrchestratorBuilder) BuildCapsules() {
	b.builder = capsule.NewBuilder(b.timelock, b.crypto,
		capsule.WithClock(b.now),
		capsule.WithTimestampJitter(b.config.Capsules.TimestampJitter),
	)
	b.decryptor = capsule.NewDecryptor(b.timelock, b.crypto, b.registry)
}

// BuildPublisher sets up the relay transport.
func (b *OrchestratorBuilder) BuildPublisher() {
	pub := publisher.FromConfig(b.config.Relay)
	if b.publisher == nil {
		b.publisher = pub
	}
	if probe, ok := b.publisher.(preflight.RelayProbe); ok {
		b.probe = probe
	} else {
		b.probe = pub
	}
}

// BuildPreflight sets up the readiness checks.
func (b *OrchestratorBuilder) BuildPreflight() {
	if b.skipPreflight {
		return
	}
	b.preflight = preflight.NewChecker(b.beacon, b.probe, b.runner, preflight.Target{
		Network:   b.network,
		RelayURL:  b.config.Relay.URL,
		FetchInfo: b.config.Relay.FetchInfo,
		Tools:     preflight.RequiredTools(b.config.Capsules),
	})
}

// Build finalizes the Orchestrator.
func (b *OrchestratorBuilder) Build() *Orchestrator {
	return &Orchestrator{
		network:    b.network,
		relayURL:   b.config.Relay.URL,
		capsules:   b.config.Capsules,
		calculator: b.calculator,
		waiter:     b.waiter,
		builder:    b.builder,
		decryptor:  b.decryptor,
		publisher:  b.publisher,
		preflight:  b.preflight,
		keygen:     b.keygen,
		now:        b.now,
		logger:     logger.New("orchestrator"),
	}
}

// NewPreflight builds only the readiness checks for cfg.
func NewPreflight(cfg *config.Config, opts ...Option) (Preflight, error) {
	b := NewOrchestratorBuilder(cfg, opts...)
	if err := b.BuildNetwork(); err != nil {
		return nil, fmt.Errorf("failed resolving beacon network: %w", err)
	}
	b.BuildBeacon()
	if err := b.BuildCollaborators(); err != nil {
		return nil, fmt.Errorf("failed building collaborators: %w", err)
	}
	b.BuildPublisher()
	b.skipPreflight = false
	b.BuildPreflight()
	return b.preflight, nil
}
