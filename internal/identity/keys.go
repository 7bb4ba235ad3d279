// Package identity generates the per-run Nostr keypairs and provides the
// asymmetric crypto collaborator used to encrypt, decrypt and sign events.
package identity

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Shugur-Network/capsule-validator/internal/constants"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Keypair holds a secp256k1 secret and its x-only public key, both hex encoded.
// Keypairs live only for the duration of a run and are never written to disk.
type Keypair struct {
	Secret string `json:"secret"`
	Public string `json:"public"`
}

// Generate creates a fresh random keypair.
func Generate() (Keypair, error) {
	sk, err := btcec.NewPrivateKey()
	if err != nil {
		return Keypair{}, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return Keypair{
		Secret: hex.EncodeToString(sk.Serialize()),
		Public: hex.EncodeToString(schnorr.SerializePubKey(sk.PubKey())),
	}, nil
}

// FromSecret derives the keypair for a hex encoded secret.
func FromSecret(secret string) (Keypair, error) {
	secret = strings.TrimSpace(secret)
	if len(secret) != constants.KeyHexLength {
		return Keypair{}, fmt.Errorf("secret key must be %d hex characters, got %d", constants.KeyHexLength, len(secret))
	}
	raw, err := hex.DecodeString(secret)
	if err != nil {
		return Keypair{}, fmt.Errorf("secret key is not valid hex: %w", err)
	}

	var scalar btcec.ModNScalar
	if overflow := scalar.SetByteSlice(raw); overflow || scalar.IsZero() {
		return Keypair{}, fmt.Errorf("secret key is out of range")
	}

	_, pk := btcec.PrivKeyFromBytes(raw)
	return Keypair{
		Secret: strings.ToLower(secret),
		Public: hex.EncodeToString(schnorr.SerializePubKey(pk)),
	}, nil
}

// ValidatePublicKey checks that pub is a 64 character hex x-only key on the curve.
func ValidatePublicKey(pub string) error {
	if len(pub) != constants.KeyHexLength {
		return fmt.Errorf("public key must be %d hex characters, got %d", constants.KeyHexLength, len(pub))
	}
	raw, err := hex.DecodeString(pub)
	if err != nil {
		return fmt.Errorf("public key is not valid hex: %w", err)
	}
	if _, err := schnorr.ParsePubKey(raw); err != nil {
		return fmt.Errorf("public key is not on the curve: %w", err)
	}
	return nil
}

// Short abbreviates the public key for log lines.
func (k Keypair) Short() string {
	if len(k.Public) < 16 {
		return k.Public
	}
	return k.Public[:16]
}
