package identity

import (
	"context"

	"github.com/nbd-wtf/go-nostr"
)

// Provider is the asymmetric crypto collaborator. Implementations either call
// a library in process or shell out to a tool; callers cannot tell the difference.
type Provider interface {
	// PublicKey derives the x-only public key of secret.
	PublicKey(ctx context.Context, secret string) (string, error)
	// Encrypt encrypts plaintext from secret's owner to peer.
	Encrypt(ctx context.Context, plaintext, secret, peer string) (string, error)
	// Decrypt reverses Encrypt; peer is the other party's public key.
	Decrypt(ctx context.Context, ciphertext, secret, peer string) (string, error)
	// Sign sets PubKey, ID and Sig on evt.
	Sign(ctx context.Context, evt *nostr.Event, secret string) error
}

// Verify reports whether evt carries a valid BIP-340 signature over its id.
func Verify(evt *nostr.Event) bool {
	ok, err := evt.CheckSignature()
	return err == nil && ok
}
