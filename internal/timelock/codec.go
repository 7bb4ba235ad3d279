// Package timelock provides the time-lock encryption collaborator: ciphertext
// bound to a drand round that cannot be opened before the round is published.
package timelock

import (
	"context"
	"strings"
)

// Codec encrypts to a future round of a chain and decrypts once it has passed.
// Ciphertexts are binary age v1 blobs.
type Codec interface {
	Encrypt(ctx context.Context, plaintext []byte, chainHash string, round uint64) ([]byte, error)
	// Decrypt fails with a TOO_EARLY DecryptionFailed error before the round.
	Decrypt(ctx context.Context, ciphertext []byte, chainHash string) ([]byte, error)
}

// tooEarly recognises the message tlock and tle report for premature decryption.
func tooEarly(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "too early")
}
