package timelock

import (
	"context"
	stderrors "errors"
	"strconv"

	"github.com/Shugur-Network/capsule-validator/internal/beacon"
	"github.com/Shugur-Network/capsule-validator/internal/errors"
	"github.com/Shugur-Network/capsule-validator/internal/toolchain"
)

// TleCodec shells out to the tle CLI.
type TleCodec struct {
	runner   *toolchain.Runner
	registry *beacon.Registry
}

// NewTleCodec creates a codec running tle through runner.
func NewTleCodec(runner *toolchain.Runner, registry *beacon.Registry) *TleCodec {
	return &TleCodec{runner: runner, registry: registry}
}

func (c *TleCodec) args(op, chainHash string) []string {
	args := []string{op, "--chain", chainHash}
	if n, err := c.registry.ByChainHash(chainHash); err == nil && n.API != "" {
		args = append(args, "--network", n.API)
	}
	return args
}

func (c *TleCodec) Encrypt(ctx context.Context, plaintext []byte, chainHash string, round uint64) ([]byte, error) {
	args := append(c.args("--encrypt", chainHash), "--round", strconv.FormatUint(round, 10))
	out, err := c.runner.Run(ctx, plaintext, toolchain.Tle, args...)
	if err != nil {
		return nil, classify(err, errors.EncryptionFailed("tle", err))
	}
	return out, nil
}

func (c *TleCodec) Decrypt(ctx context.Context, ciphertext []byte, chainHash string) ([]byte, error) {
	out, err := c.runner.Run(ctx, ciphertext, toolchain.Tle, c.args("--decrypt", chainHash)...)
	if err != nil {
		var toolErr *toolchain.ToolError
		if stderrors.As(err, &toolErr) && tooEarly(toolErr.Stderr) {
			return nil, errors.TooEarly(0, err)
		}
		return nil, classify(err, errors.DecryptionFailed("tle", err))
	}
	return out, nil
}

func classify(err error, wrapped error) error {
	switch {
	case errors.TypeOf(err) == errors.ErrorTypeDependencyMissing:
		return err
	case errors.IsCancellation(err):
		return errors.Interrupted("running tle", err)
	}
	return wrapped
}
