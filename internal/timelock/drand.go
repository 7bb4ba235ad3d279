package timelock

import (
	"bytes"
	"context"
	stderrors "errors"
	"sync"

	"github.com/Shugur-Network/capsule-validator/internal/beacon"
	"github.com/Shugur-Network/capsule-validator/internal/errors"
	"github.com/Shugur-Network/capsule-validator/internal/logger"
	"github.com/drand/tlock"
	tlockhttp "github.com/drand/tlock/networks/http"
	"go.uber.org/zap"
)

// DrandCodec encrypts in process with github.com/drand/tlock against the
// HTTP endpoint registered for each chain.
type DrandCodec struct {
	registry *beacon.Registry
	logger   *zap.Logger

	mu       sync.Mutex
	networks map[string]*tlockhttp.Network
}

// NewDrandCodec creates a codec resolving chains through registry.
func NewDrandCodec(registry *beacon.Registry) *DrandCodec {
	return &DrandCodec{
		registry: registry,
		logger:   logger.New("tlock"),
		networks: make(map[string]*tlockhttp.Network),
	}
}

// network returns the cached tlock network for chainHash, connecting on first use.
func (c *DrandCodec) network(chainHash string) (*tlockhttp.Network, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if nw, ok := c.networks[chainHash]; ok {
		return nw, nil
	}
	n, err := c.registry.ByChainHash(chainHash)
	if err != nil {
		return nil, err
	}
	nw, err := tlockhttp.NewNetwork(n.API, chainHash)
	if err != nil {
		return nil, errors.BeaconUnavailable(n.InfoURL(), err)
	}
	c.networks[chainHash] = nw
	c.logger.Debug("connected tlock network", zap.String("network", n.Name), zap.String("api", n.API))
	return nw, nil
}

func (c *DrandCodec) Encrypt(ctx context.Context, plaintext []byte, chainHash string, round uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Interrupted("encrypting capsule", err)
	}
	nw, err := c.network(chainHash)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := tlock.New(nw).Encrypt(&out, bytes.NewReader(plaintext), round); err != nil {
		return nil, errors.EncryptionFailed("tlock", err)
	}
	return out.Bytes(), nil
}

func (c *DrandCodec) Decrypt(ctx context.Context, ciphertext []byte, chainHash string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Interrupted("decrypting capsule", err)
	}
	nw, err := c.network(chainHash)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := tlock.New(nw).Decrypt(&out, bytes.NewReader(ciphertext)); err != nil {
		if stderrors.Is(err, tlock.ErrTooEarly) || tooEarly(err.Error()) {
			return nil, errors.TooEarly(0, err)
		}
		return nil, errors.DecryptionFailed("tlock", err)
	}
	return out.Bytes(), nil
}
