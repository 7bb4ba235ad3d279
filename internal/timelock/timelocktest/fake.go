// Package timelocktest provides an in-memory time-lock codec whose unlock
// condition is driven by the test.
package timelocktest

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Shugur-Network/capsule-validator/internal/errors"
)

const magic = "fake-tlock/v1"

// Codec binds plaintext to (chain, round) without real cryptography. A
// ciphertext opens once the chain's current round reaches the bound round.
type Codec struct {
	mu     sync.Mutex
	rounds map[string]uint64

	// CurrentRound, when set, overrides the rounds set with SetRound.
	CurrentRound func(chainHash string) uint64
	// EncryptErr, when set, is returned by every Encrypt call.
	EncryptErr error
}

// New returns a codec where every chain is at round zero.
func New() *Codec {
	return &Codec{rounds: make(map[string]uint64)}
}

// SetRound moves chainHash to round.
func (c *Codec) SetRound(chainHash string, round uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rounds[chainHash] = round
}

func (c *Codec) current(chainHash string) uint64 {
	if c.CurrentRound != nil {
		return c.CurrentRound(chainHash)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rounds[chainHash]
}

func (c *Codec) Encrypt(_ context.Context, plaintext []byte, chainHash string, round uint64) ([]byte, error) {
	if c.EncryptErr != nil {
		return nil, errors.EncryptionFailed("fake", c.EncryptErr)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n%s\n%d\n", magic, chainHash, round)
	buf.Write(plaintext)
	return buf.Bytes(), nil
}

func (c *Codec) Decrypt(_ context.Context, ciphertext []byte, chainHash string) ([]byte, error) {
	parts := strings.SplitN(string(ciphertext), "\n", 4)
	if len(parts) != 4 || parts[0] != magic {
		return nil, errors.DecryptionFailed("fake", fmt.Errorf("not a fake tlock blob"))
	}
	if parts[1] != chainHash {
		return nil, errors.DecryptionFailed("fake", fmt.Errorf("blob is bound to chain %s", parts[1]))
	}
	round, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return nil, errors.DecryptionFailed("fake", err)
	}
	if c.current(chainHash) < round {
		return nil, errors.TooEarly(round, fmt.Errorf("too early to decrypt"))
	}
	return []byte(parts[3]), nil
}
