package application

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shugur-Network/capsule-validator/internal/config"
	"github.com/Shugur-Network/capsule-validator/internal/errors"
	"github.com/Shugur-Network/capsule-validator/internal/events"
	"github.com/Shugur-Network/capsule-validator/internal/identity"
	"github.com/Shugur-Network/capsule-validator/internal/timelock/timelocktest"
	"github.com/gorilla/websocket"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quicknetHash = "52db9ba70e0cc0f6eaf7803dd07447a1f5477735fd3f661792ba94600c84e971"

var fixedNow = time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

// fakeBeacon answers latest with the current round, then moves it by step.
type fakeBeacon struct {
	mu     sync.Mutex
	round  uint64
	step   uint64
	status int

	// onLatest, when set, runs before latest is answered.
	onLatest func(r *http.Request)
}

func (f *fakeBeacon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.onLatest != nil && strings.HasSuffix(r.URL.Path, "/public/latest") {
		f.onLatest(r)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}
	switch r.URL.Path {
	case "/" + quicknetHash + "/public/latest":
		fmt.Fprintf(w, `{"round":%d}`, f.round)
		f.round += f.step
	case "/" + quicknetHash + "/info":
		fmt.Fprintf(w, `{"hash":%q,"period":3,"genesis_time":1692803367}`, quicknetHash)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeBeacon) current() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.round
}

// fakeRelay serves NIP-11 over plain HTTP and answers EVENT frames with reply.
type fakeRelay struct {
	url      string
	received atomic.Int32
}

func newFakeRelay(t *testing.T, reply func(evt *nostr.Event) []interface{}) *fakeRelay {
	t.Helper()
	relay := &fakeRelay{}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !websocket.IsWebSocketUpgrade(r) {
			w.Header().Set("Content-Type", "application/nostr+json")
			fmt.Fprintf(w, `{"name":"fake","supported_nips":[1,11,59],"time_capsules":{"version":"1","supported_drand_chains":[%q]}}`, quicknetHash)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frame, err := events.ParseFrame(raw)
			if err != nil || frame.Label != "EVENT" {
				continue
			}
			evt, err := events.Decode(frame.Args[0])
			if err != nil {
				return
			}
			relay.received.Add(1)
			data, _ := json.Marshal(reply(evt))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	relay.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return relay
}

func acceptAll(evt *nostr.Event) []interface{} {
	return []interface{}{"OK", evt.ID, true, ""}
}

type harness struct {
	beacon *fakeBeacon
	relay  *fakeRelay
	codec  *timelocktest.Codec
	cfg    *config.Config
}

func newHarness(t *testing.T, reply func(evt *nostr.Event) []interface{}) *harness {
	t.Helper()
	fb := &fakeBeacon{round: 1000, step: 5}
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)

	relay := newFakeRelay(t, reply)

	codec := timelocktest.New()
	codec.CurrentRound = func(string) uint64 { return fb.current() }

	cfg := &config.Config{
		Beacon: config.BeaconConfig{
			DefaultNetwork:    "quicknet",
			RequestTimeout:    time.Second,
			PollInterval:      10 * time.Millisecond,
			ErrorBackoff:      10 * time.Millisecond,
			RequestsPerSecond: 1000,
			Networks: []config.NetworkConfig{{
				Name:      "quicknet",
				ChainHash: quicknetHash,
				API:       srv.URL,
				Period:    3,
			}},
		},
		Relay: config.RelayConfig{
			URL:           relay.url,
			DialTimeout:   time.Second,
			WriteTimeout:  time.Second,
			ReadTimeout:   time.Second,
			VerifyEventID: true,
			FetchInfo:     true,
		},
		Capsules: config.CapsulesConfig{
			UnlockDelay:     30 * time.Second,
			PublicMessage:   "Hello from public time capsule! 🕐",
			PrivateMessage:  "Secret message in private capsule! 🔒",
			TimelockBackend: config.TimelockBackendDrand,
			CryptoBackend:   config.CryptoBackendNative,
			ToolTimeout:     time.Second,
		},
	}
	return &harness{beacon: fb, relay: relay, codec: codec, cfg: cfg}
}

func (h *harness) orchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithTimelock(h.codec), WithClock(func() time.Time { return fixedNow })}, opts...)
	o, err := New(h.cfg, opts...)
	require.NoError(t, err)
	return o
}

func TestRunSucceeds(t *testing.T) {
	h := newHarness(t, acceptAll)

	report := h.orchestrator(t).Run(context.Background())

	require.NoError(t, report.Err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Equal(t, ExitSuccess, report.ExitCode())
	assert.Equal(t, StateDecrypted, report.Reached)
	assert.NotEmpty(t, report.RunID)

	assert.Equal(t, uint64(10), report.Timing.RoundsNeeded)
	assert.Equal(t, report.Timing.CurrentRound+10, report.Timing.TargetRound)

	assert.Equal(t, 2, report.Created())
	assert.Equal(t, 2, report.Published())
	assert.Equal(t, 2, report.Decrypted())
	assert.Equal(t, int32(2), h.relay.received.Load())

	require.NotNil(t, report.Preflight)
	assert.True(t, report.Preflight.Ready())

	for _, c := range report.Capsules {
		assert.Equal(t, c.Expected, c.Plaintext, c.Mode)
	}
	assert.Equal(t, 1041, report.Capsules[0].Event.Kind)
	assert.Equal(t, 1059, report.Capsules[1].Event.Kind)
}

func TestRunConcurrent(t *testing.T) {
	h := newHarness(t, acceptAll)
	h.cfg.Capsules.Concurrent = true

	report := h.orchestrator(t, WithoutPreflight()).Run(context.Background())

	require.NoError(t, report.Err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Equal(t, 2, report.Decrypted())
	assert.Nil(t, report.Preflight)
}

func TestRunRecordsRejectedCapsule(t *testing.T) {
	h := newHarness(t, func(evt *nostr.Event) []interface{} {
		if evt.Kind == 1059 {
			return []interface{}{"OK", evt.ID, false, "bad signature"}
		}
		return acceptAll(evt)
	})

	report := h.orchestrator(t).Run(context.Background())

	assert.NoError(t, report.Err)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Equal(t, ExitFailure, report.ExitCode())
	assert.Equal(t, StateDecrypted, report.Reached)
	assert.Equal(t, 2, report.Created())
	assert.Equal(t, 1, report.Published())
	assert.Equal(t, 1, report.Decrypted())

	private := report.Capsules[1]
	assert.False(t, private.Published)
	assert.Equal(t, stagePublish, private.Stage)
	assert.True(t, stderrors.Is(private.Err, errors.ErrRelayRejected))
	require.NotNil(t, private.Relay)
	assert.Equal(t, "bad signature", private.Relay.Message)
}

func TestRunFailsWhenNothingPublished(t *testing.T) {
	h := newHarness(t, func(evt *nostr.Event) []interface{} {
		return []interface{}{"OK", evt.ID, false, "blocked: not allowed"}
	})

	report := h.orchestrator(t).Run(context.Background())

	require.Error(t, report.Err)
	assert.True(t, stderrors.Is(report.Err, errors.ErrRelayRejected))
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Equal(t, StateCapsulesCreated, report.Reached)
	assert.Equal(t, 0, report.Decrypted())
}

func TestRunAbortsOnBuildFailure(t *testing.T) {
	h := newHarness(t, acceptAll)
	h.codec.EncryptErr = fmt.Errorf("tle exited with status 1")

	report := h.orchestrator(t).Run(context.Background())

	require.Error(t, report.Err)
	assert.True(t, stderrors.Is(report.Err, errors.ErrEncryptionFailed))
	assert.Equal(t, StateTimingComputed, report.Reached)
	assert.Equal(t, 0, report.Created())
	assert.Equal(t, int32(0), h.relay.received.Load())
	assert.Equal(t, stageBuild, report.Capsules[0].Stage)
}

func TestRunStopsOnUnhealthyPreflight(t *testing.T) {
	h := newHarness(t, acceptAll)
	h.beacon.status = http.StatusServiceUnavailable

	keys := 0
	o := h.orchestrator(t, WithKeyGenerator(func() (kp identity.Keypair, err error) {
		keys++
		return kp, nil
	}))
	report := o.Run(context.Background())

	require.Error(t, report.Err)
	assert.Equal(t, errors.ErrorTypeBeaconUnavailable, errors.TypeOf(report.Err))
	assert.Equal(t, StateInit, report.Reached)
	assert.Equal(t, 0, keys)
	assert.Empty(t, report.Capsules)
}

func TestRunInterruptedWhileWaiting(t *testing.T) {
	h := newHarness(t, acceptAll)
	h.beacon.step = 0

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	o := h.orchestrator(t)
	report := o.Run(ctx)

	require.Error(t, report.Err)
	assert.True(t, stderrors.Is(report.Err, errors.ErrInterrupted))
	assert.Equal(t, OutcomeInterrupted, report.Outcome)
	assert.Equal(t, ExitInterrupted, report.ExitCode())
	assert.Equal(t, StateWaitingForUnlock, report.Reached)
	assert.Equal(t, StateReported, o.State())
	assert.Equal(t, 2, report.Published())
	assert.Equal(t, 0, report.Decrypted())
}

func TestRunInterruptedWhileComputingRound(t *testing.T) {
	h := newHarness(t, acceptAll)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.beacon.onLatest = func(r *http.Request) {
		cancel()
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}

	o := h.orchestrator(t, WithoutPreflight())
	report := o.Run(ctx)

	require.Error(t, report.Err)
	assert.True(t, stderrors.Is(report.Err, errors.ErrInterrupted))
	assert.Equal(t, errors.ErrorTypeInterrupted, errors.TypeOf(report.Err))
	assert.Equal(t, OutcomeInterrupted, report.Outcome)
	assert.Equal(t, ExitInterrupted, report.ExitCode())
	assert.Equal(t, StateKeysGenerated, report.Reached)
	assert.Empty(t, report.Capsules)
	assert.Equal(t, int32(0), h.relay.received.Load())
}

// cancellingCodec cancels the run on its first Encrypt and fails the way an
// external tool killed by the cancellation would.
type cancellingCodec struct {
	*timelocktest.Codec
	cancel context.CancelFunc
}

func (c cancellingCodec) Encrypt(ctx context.Context, plaintext []byte, chainHash string, round uint64) ([]byte, error) {
	c.cancel()
	return nil, errors.EncryptionFailed("tle", ctx.Err())
}

func TestRunInterruptedWhileCreating(t *testing.T) {
	h := newHarness(t, acceptAll)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o := h.orchestrator(t, WithoutPreflight(), WithTimelock(cancellingCodec{Codec: h.codec, cancel: cancel}))
	report := o.Run(ctx)

	require.Error(t, report.Err)
	assert.True(t, stderrors.Is(report.Err, errors.ErrInterrupted))
	assert.True(t, stderrors.Is(report.Err, errors.ErrEncryptionFailed))
	assert.Equal(t, OutcomeInterrupted, report.Outcome)
	assert.Equal(t, ExitInterrupted, report.ExitCode())
	assert.Equal(t, StateTimingComputed, report.Reached)
	assert.Equal(t, 0, report.Created())
}

func TestReportRender(t *testing.T) {
	h := newHarness(t, acceptAll)
	report := h.orchestrator(t, WithoutPreflight()).Run(context.Background())

	var buf bytes.Buffer
	report.Render(&buf)
	out := buf.String()
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "Created:   2/2")
	assert.Contains(t, out, "Decrypted: 2/2")
	assert.Contains(t, out, "public")
	assert.Contains(t, out, "private")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "waiting_for_unlock", StateWaitingForUnlock.String())
	assert.Equal(t, "reported", StateReported.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestNewPreflight(t *testing.T) {
	h := newHarness(t, acceptAll)
	h.cfg.Relay.FetchInfo = false

	pf, err := NewPreflight(h.cfg)
	require.NoError(t, err)
	report := pf.Run(context.Background())
	assert.True(t, report.Ready())
	require.NotNil(t, report.Component("beacon"))
	assert.Equal(t, "healthy", string(report.Component("beacon").Status))
}

func TestNewRejectsUnknownNetwork(t *testing.T) {
	h := newHarness(t, acceptAll)
	h.cfg.Beacon.DefaultNetwork = "mainnet"

	_, err := New(h.cfg)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrUnknownChain))
}
