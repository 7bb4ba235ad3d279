// Package capsule builds and opens time capsules: public kind 1041 events and
// private rumor → seal → gift wrap bundles whose innermost content is
// time-lock encrypted.
package capsule

import (
	"context"
	"encoding/base64"
	"math/rand/v2"
	"time"

	"github.com/Shugur-Network/capsule-validator/internal/beacon"
	"github.com/Shugur-Network/capsule-validator/internal/constants"
	"github.com/Shugur-Network/capsule-validator/internal/errors"
	"github.com/Shugur-Network/capsule-validator/internal/events"
	"github.com/Shugur-Network/capsule-validator/internal/identity"
	"github.com/Shugur-Network/capsule-validator/internal/logger"
	"github.com/Shugur-Network/capsule-validator/internal/timelock"
	"github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"
)

// Private is a built private capsule. Only GiftWrap is published; Author is
// kept so the seal's origin can be checked when opening it.
type Private struct {
	GiftWrap  *nostr.Event
	Author    identity.Keypair
	Recipient string
	// RumorID identifies the inner time capsule.
	RumorID string
}

// Builder composes capsules from the time-lock and crypto collaborators.
type Builder struct {
	timelock timelock.Codec
	crypto   identity.Provider
	now      func() time.Time
	jitter   time.Duration
	keygen   func() (identity.Keypair, error)
	logger   *zap.Logger
}

// BuilderOption customises a Builder.
type BuilderOption func(*Builder)

// WithClock sets the source of created_at timestamps.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// WithTimestampJitter backdates seal and gift wrap created_at by a random
// amount up to max.
func WithTimestampJitter(max time.Duration) BuilderOption {
	return func(b *Builder) { b.jitter = max }
}

// WithKeyGenerator replaces the ephemeral key source.
func WithKeyGenerator(gen func() (identity.Keypair, error)) BuilderOption {
	return func(b *Builder) { b.keygen = gen }
}

// NewBuilder creates a builder.
func NewBuilder(tl timelock.Codec, crypto identity.Provider, opts ...BuilderOption) *Builder {
	b := &Builder{
		timelock: tl,
		crypto:   crypto,
		now:      time.Now,
		keygen:   identity.Generate,
		logger:   logger.New("builder"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildPublic returns a signed kind 1041 event whose content opens at round.
func (b *Builder) BuildPublic(ctx context.Context, message string, round uint64, author identity.Keypair, network beacon.Network) (*nostr.Event, error) {
	evt, err := b.timeCapsule(ctx, message, round, author.Public, network, constants.AltPublicCapsule)
	if err != nil {
		return nil, err
	}
	if err := b.crypto.Sign(ctx, evt, author.Secret); err != nil {
		return nil, signError(evt.Kind, err)
	}
	if err := ValidateTimeCapsule(evt); err != nil {
		return nil, err
	}

	b.logger.Info("built public capsule",
		zap.String("event_id", evt.ID),
		zap.Uint64("round", round),
		zap.String("network", network.Name),
	)
	return evt, nil
}

// BuildPrivate returns a gift wrap for recipient. The seal is signed by author
// and carries no tags; the wrap is signed by a fresh ephemeral key and carries
// only the recipient's p tag.
func (b *Builder) BuildPrivate(ctx context.Context, message string, round uint64, author identity.Keypair, recipient string, network beacon.Network) (*Private, error) {
	if err := identity.ValidatePublicKey(recipient); err != nil {
		return nil, errors.InvalidTag(constants.TagP, err.Error())
	}

	rumor, err := b.timeCapsule(ctx, message, round, author.Public, network, constants.AltPrivateRumor)
	if err != nil {
		return nil, err
	}
	events.Finalize(rumor)
	if err := ValidateTimeCapsule(rumor); err != nil {
		return nil, err
	}

	seal, err := b.layer(ctx, rumor, constants.KindSeal, nostr.Tags{}, author, recipient)
	if err != nil {
		return nil, err
	}

	ephemeral, err := b.keygen()
	if err != nil {
		return nil, errors.SigningFailed(constants.KindGiftWrap, err)
	}
	wrap, err := b.layer(ctx, seal, constants.KindGiftWrap, nostr.Tags{{constants.TagP, recipient}}, ephemeral, recipient)
	if err != nil {
		return nil, err
	}
	if _, err := ValidateGiftWrap(wrap); err != nil {
		return nil, err
	}

	b.logger.Info("built private capsule",
		zap.String("rumor_id", rumor.ID),
		zap.String("seal_id", seal.ID),
		zap.String("gift_wrap_id", wrap.ID),
		zap.String("ephemeral", ephemeral.Short()),
		zap.Uint64("round", round),
	)
	return &Private{GiftWrap: wrap, Author: author, Recipient: recipient, RumorID: rumor.ID}, nil
}

// timeCapsule builds the unsigned kind 1041 event shared by both modes.
func (b *Builder) timeCapsule(ctx context.Context, message string, round uint64, pubkey string, network beacon.Network, alt string) (*nostr.Event, error) {
	blob, err := b.timelock.Encrypt(ctx, []byte(message), network.ChainHash, round)
	if err != nil {
		return nil, err
	}
	tag := TlockTag{ChainHash: network.ChainHash, Round: round}
	return &nostr.Event{
		PubKey:    pubkey,
		CreatedAt: nostr.Timestamp(b.now().Unix()),
		Kind:      constants.KindTimeCapsule,
		Tags:      nostr.Tags{tag.Tag(), {constants.TagAlt, alt}},
		Content:   base64.StdEncoding.EncodeToString(blob),
	}, nil
}

// layer encrypts inner to recipient with signer's key and signs the result.
func (b *Builder) layer(ctx context.Context, inner *nostr.Event, kind int, tags nostr.Tags, signer identity.Keypair, recipient string) (*nostr.Event, error) {
	raw, err := events.Marshal(inner)
	if err != nil {
		return nil, err
	}
	content, err := b.crypto.Encrypt(ctx, string(raw), signer.Secret, recipient)
	if err != nil {
		return nil, err
	}
	evt := &nostr.Event{
		CreatedAt: nostr.Timestamp(b.randomizedNow().Unix()),
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	if err := b.crypto.Sign(ctx, evt, signer.Secret); err != nil {
		return nil, signError(kind, err)
	}
	return evt, nil
}

// signError keeps typed provider errors and reports anything else as a
// signing failure for kind.
func signError(kind int, err error) error {
	if errors.TypeOf(err) != "" {
		return err
	}
	return errors.SigningFailed(kind, err)
}

func (b *Builder) randomizedNow() time.Time {
	now := b.now()
	if b.jitter < time.Second {
		return now
	}
	return now.Add(-time.Duration(rand.Int64N(int64(b.jitter/time.Second)+1)) * time.Second)
}
