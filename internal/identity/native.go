package identity

import (
	"context"

	"github.com/Shugur-Network/capsule-validator/internal/errors"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip44"
)

// NativeProvider implements Provider with go-nostr and NIP-44 v2.
type NativeProvider struct{}

// NewNativeProvider returns the in-process provider.
func NewNativeProvider() *NativeProvider {
	return &NativeProvider{}
}

func (p *NativeProvider) PublicKey(_ context.Context, secret string) (string, error) {
	pub, err := nostr.GetPublicKey(secret)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeSigningFailed, "KEY_DERIVATION", "Failed to derive public key")
	}
	return pub, nil
}

func (p *NativeProvider) Encrypt(_ context.Context, plaintext, secret, peer string) (string, error) {
	ck, err := nip44.GenerateConversationKey(peer, secret)
	if err != nil {
		return "", errors.EncryptionFailed("nip44", err)
	}
	ct, err := nip44.Encrypt(plaintext, ck)
	if err != nil {
		return "", errors.EncryptionFailed("nip44", err)
	}
	return ct, nil
}

func (p *NativeProvider) Decrypt(_ context.Context, ciphertext, secret, peer string) (string, error) {
	ck, err := nip44.GenerateConversationKey(peer, secret)
	if err != nil {
		return "", errors.DecryptionFailed("nip44", err)
	}
	pt, err := nip44.Decrypt(ciphertext, ck)
	if err != nil {
		return "", errors.DecryptionFailed("nip44", err)
	}
	return pt, nil
}

func (p *NativeProvider) Sign(_ context.Context, evt *nostr.Event, secret string) error {
	if err := evt.Sign(secret); err != nil {
		return errors.SigningFailed(evt.Kind, err)
	}
	return nil
}
