package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesJSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(WithWriter(&buf), WithFormat("json"), WithLevel("debug"), WithVersion("test")))
	t.Cleanup(func() { _ = Shutdown() })

	New("beacon").Info("polling")

	out := buf.String()
	assert.Contains(t, out, `"msg":"polling"`)
	assert.Contains(t, out, `"component":"beacon"`)
	assert.Contains(t, out, `"version":"test"`)
}

func TestFromContextAddsRunID(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(WithWriter(&buf), WithFormat("json")))
	t.Cleanup(func() { _ = Shutdown() })

	FromContext(WithRunID(context.Background(), "run-1")).Info("started")

	assert.Contains(t, buf.String(), `"run_id":"run-1"`)
}

func TestUpdateLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(WithWriter(&buf), WithFormat("json"), WithLevel("debug")))
	t.Cleanup(func() { _ = Shutdown() })

	require.NoError(t, UpdateLevel("warn"))
	Debug("hidden")
	Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestInitRejectsUnknownFormat(t *testing.T) {
	assert.Error(t, Init(WithFormat("xml")))
}
