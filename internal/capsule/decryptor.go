package capsule

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"

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

// Decryptor opens capsules produced by Builder.
type Decryptor struct {
	timelock timelock.Codec
	crypto   identity.Provider
	registry *beacon.Registry
	logger   *zap.Logger
}

// NewDecryptor creates a decryptor resolving rumor chains through registry.
func NewDecryptor(tl timelock.Codec, crypto identity.Provider, registry *beacon.Registry) *Decryptor {
	return &Decryptor{
		timelock: tl,
		crypto:   crypto,
		registry: registry,
		logger:   logger.New("decryptor"),
	}
}

// DecryptPublic opens a kind 1041 event with network's chain. The event's
// tlock tag must name that chain.
func (d *Decryptor) DecryptPublic(ctx context.Context, evt *nostr.Event, network beacon.Network) (string, error) {
	tag, err := ParseTlockTag(evt)
	if err != nil {
		return "", err
	}
	if tag.ChainHash != network.ChainHash {
		return "", errors.UnknownChain(tag.ChainHash)
	}
	return d.open(ctx, evt, network, tag.Round)
}

// DecryptPrivate unwraps a gift wrap with recipient's key, checks that the seal
// was signed by author, and opens the rumor once its round has passed.
func (d *Decryptor) DecryptPrivate(ctx context.Context, wrap *nostr.Event, author, recipient identity.Keypair) (string, error) {
	sealJSON, err := d.crypto.Decrypt(ctx, wrap.Content, recipient.Secret, wrap.PubKey)
	if err != nil {
		return "", layerError("gift wrap", err)
	}
	seal, err := events.Decode([]byte(sealJSON))
	if err != nil {
		return "", err
	}
	if err := ValidateSeal(seal); err != nil {
		return "", err
	}
	if !identity.Verify(seal) {
		return "", errors.InvalidEvent(seal.ID, constants.ErrInvalidSignature)
	}

	authorPub, err := d.crypto.PublicKey(ctx, author.Secret)
	if err != nil {
		return "", err
	}
	if seal.PubKey != authorPub {
		return "", errors.InvalidEvent(seal.ID, constants.ErrAuthorMismatch)
	}

	rumorJSON, err := d.crypto.Decrypt(ctx, seal.Content, recipient.Secret, authorPub)
	if err != nil {
		return "", layerError("seal", err)
	}
	rumor, err := events.Decode([]byte(rumorJSON))
	if err != nil {
		return "", err
	}
	if rumor.Kind != constants.KindTimeCapsule {
		return "", errors.InvalidEvent(rumor.ID, fmt.Sprintf("%s: expected %d, got %d", constants.ErrUnexpectedKind, constants.KindTimeCapsule, rumor.Kind))
	}
	if rumor.PubKey != seal.PubKey {
		return "", errors.InvalidEvent(rumor.ID, constants.ErrRumorAuthorMismatch)
	}

	tag, err := ParseTlockTag(rumor)
	if err != nil {
		return "", err
	}
	network, err := d.registry.ByChainHash(tag.ChainHash)
	if err != nil {
		return "", err
	}

	d.logger.Debug("unwrapped gift wrap",
		zap.String("gift_wrap_id", wrap.ID),
		zap.String("seal_id", seal.ID),
		zap.String("rumor_id", rumor.ID),
		zap.String("network", network.Name),
	)
	return d.open(ctx, rumor, network, tag.Round)
}

func (d *Decryptor) open(ctx context.Context, evt *nostr.Event, network beacon.Network, round uint64) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(evt.Content)
	if err != nil {
		return "", errors.DecryptionFailed("base64", err)
	}
	plaintext, err := d.timelock.Decrypt(ctx, blob, network.ChainHash)
	if err != nil {
		if stderrors.Is(err, errors.ErrTooEarly) {
			return "", errors.TooEarly(round, err)
		}
		return "", err
	}
	return string(plaintext), nil
}

// layerError keeps typed collaborator errors and tags anything else with the
// layer that failed.
func layerError(layer string, err error) error {
	if errors.TypeOf(err) != "" {
		return err
	}
	return errors.DecryptionFailed(layer, err)
}
