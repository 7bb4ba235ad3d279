package identity

import (
	"context"
	"strings"

	"github.com/Shugur-Network/capsule-validator/internal/errors"
	"github.com/Shugur-Network/capsule-validator/internal/events"
	"github.com/Shugur-Network/capsule-validator/internal/toolchain"
	"github.com/nbd-wtf/go-nostr"
)

// NakProvider implements Provider by shelling out to the nak CLI.
type NakProvider struct {
	runner *toolchain.Runner
}

// NewNakProvider creates a provider running nak through runner.
func NewNakProvider(runner *toolchain.Runner) *NakProvider {
	return &NakProvider{runner: runner}
}

func (p *NakProvider) PublicKey(ctx context.Context, secret string) (string, error) {
	out, err := p.runner.Run(ctx, nil, toolchain.Nak, "key", "public", secret)
	if err != nil {
		return "", passThrough(err, errors.Wrap(err, errors.ErrorTypeSigningFailed, "KEY_DERIVATION", "Failed to derive public key"))
	}
	return strings.TrimSpace(string(out)), nil
}

func (p *NakProvider) Encrypt(ctx context.Context, plaintext, secret, peer string) (string, error) {
	out, err := p.runner.Run(ctx, nil, toolchain.Nak, "encrypt", "--sec", secret, "--recipient-pubkey", peer, plaintext)
	if err != nil {
		return "", passThrough(err, errors.EncryptionFailed("nip44", err))
	}
	return strings.TrimSpace(string(out)), nil
}

func (p *NakProvider) Decrypt(ctx context.Context, ciphertext, secret, peer string) (string, error) {
	out, err := p.runner.Run(ctx, nil, toolchain.Nak, "decrypt", "--sec", secret, "--sender-pubkey", peer, ciphertext)
	if err != nil {
		return "", passThrough(err, errors.DecryptionFailed("nip44", err))
	}
	return strings.TrimSpace(string(out)), nil
}

func (p *NakProvider) Sign(ctx context.Context, evt *nostr.Event, secret string) error {
	unsigned, err := events.Marshal(evt)
	if err != nil {
		return errors.SigningFailed(evt.Kind, err)
	}
	out, err := p.runner.Run(ctx, unsigned, toolchain.Nak, "event", "--sec", secret)
	if err != nil {
		return passThrough(err, errors.SigningFailed(evt.Kind, err))
	}

	signed, err := events.Decode([]byte(strings.TrimSpace(string(out))))
	if err != nil {
		return errors.SigningFailed(evt.Kind, err)
	}
	if signed.Kind != evt.Kind || signed.Content != evt.Content {
		return errors.SigningFailed(evt.Kind, errors.InvalidEvent(signed.ID, "signer altered the event"))
	}
	*evt = *signed
	return nil
}

// passThrough keeps missing-tool and cancellation errors intact so callers
// can classify them.
func passThrough(err error, wrapped error) error {
	if errors.TypeOf(err) == errors.ErrorTypeDependencyMissing || errors.IsCancellation(err) {
		return err
	}
	return wrapped
}
