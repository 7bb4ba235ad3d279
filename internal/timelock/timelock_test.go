package timelock

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Shugur-Network/capsule-validator/internal/beacon"
	"github.com/Shugur-Network/capsule-validator/internal/errors"
	"github.com/Shugur-Network/capsule-validator/internal/timelock/timelocktest"
	"github.com/Shugur-Network/capsule-validator/internal/toolchain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chain = "52db9ba70e0cc0f6eaf7803dd07447a1f5477735fd3f661792ba94600c84e971"

func registry() *beacon.Registry {
	return beacon.NewRegistry(beacon.Network{Name: "quicknet", ChainHash: chain, API: "https://api.drand.sh", Period: 3 * time.Second})
}

var (
	_ Codec = (*DrandCodec)(nil)
	_ Codec = (*TleCodec)(nil)
	_ Codec = (*timelocktest.Codec)(nil)
)

func fakeTle(t *testing.T, script string) *TleCodec {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tle"), []byte("#!/bin/sh\n"+script), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return NewTleCodec(toolchain.NewRunner(time.Second), registry())
}

func TestTleEncryptArguments(t *testing.T) {
	c := fakeTle(t, `echo "$@"; cat`)

	out, err := c.Encrypt(context.Background(), []byte("secret"), chain, 1010)
	require.NoError(t, err)
	assert.Equal(t, "--encrypt --chain "+chain+" --network https://api.drand.sh --round 1010\nsecret", string(out))
}

func TestTleDecryptTooEarly(t *testing.T) {
	c := fakeTle(t, `echo "too early to decrypt" >&2; exit 1`)

	_, err := c.Decrypt(context.Background(), []byte("blob"), chain)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrTooEarly))
	assert.True(t, stderrors.Is(err, errors.ErrDecryptionFailed))
}

func TestTleFailures(t *testing.T) {
	c := fakeTle(t, `echo "boom" >&2; exit 2`)

	_, err := c.Encrypt(context.Background(), []byte("x"), chain, 1)
	assert.True(t, stderrors.Is(err, errors.ErrEncryptionFailed))

	_, err = c.Decrypt(context.Background(), []byte("x"), chain)
	assert.True(t, stderrors.Is(err, errors.ErrDecryptionFailed))
	assert.False(t, stderrors.Is(err, errors.ErrTooEarly))
}

func TestTleMissing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	c := NewTleCodec(toolchain.NewRunner(time.Second), registry())

	_, err := c.Encrypt(context.Background(), []byte("x"), chain, 1)
	assert.True(t, stderrors.Is(err, errors.ErrDependencyMissing))
}

func TestDrandUnknownChain(t *testing.T) {
	c := NewDrandCodec(registry())
	_, err := c.Encrypt(context.Background(), []byte("x"), "00", 1)
	assert.True(t, stderrors.Is(err, errors.ErrUnknownChain))

	_, err = c.Decrypt(context.Background(), []byte("x"), "00")
	assert.True(t, stderrors.Is(err, errors.ErrUnknownChain))
}

func TestDrandCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDrandCodec(registry()).Encrypt(ctx, []byte("x"), chain, 1)
	assert.True(t, stderrors.Is(err, errors.ErrInterrupted))
}

func TestFakeCodec(t *testing.T) {
	ctx := context.Background()
	c := timelocktest.New()

	blob, err := c.Encrypt(ctx, []byte("hello\nworld"), chain, 10)
	require.NoError(t, err)

	c.SetRound(chain, 9)
	_, err = c.Decrypt(ctx, blob, chain)
	assert.True(t, stderrors.Is(err, errors.ErrTooEarly))

	c.SetRound(chain, 10)
	pt, err := c.Decrypt(ctx, blob, chain)
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld", string(pt))

	_, err = c.Decrypt(ctx, blob, "other")
	assert.True(t, stderrors.Is(err, errors.ErrDecryptionFailed))
	assert.False(t, stderrors.Is(err, errors.ErrTooEarly))
}
