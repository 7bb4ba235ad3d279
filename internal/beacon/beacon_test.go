package beacon

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shugur-Network/capsule-validator/internal/config"
	"github.com/Shugur-Network/capsule-validator/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quicknetHash = "52db9ba70e0cc0f6eaf7803dd07447a1f5477735fd3f661792ba94600c84e971"

// fakeDrand serves /{hash}/public/latest and /{hash}/info.
type fakeDrand struct {
	mu      sync.Mutex
	round   uint64
	period  int
	status  int
	body    string
	latestN atomic.Int32
}

func (f *fakeDrand) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != 0 && f.status != http.StatusOK {
		w.WriteHeader(f.status)
		return
	}
	switch r.URL.Path {
	case "/" + quicknetHash + "/public/latest":
		f.latestN.Add(1)
		if f.body != "" {
			fmt.Fprint(w, f.body)
			return
		}
		fmt.Fprintf(w, `{"round":%d,"randomness":"00","signature":"00"}`, f.round)
	case "/" + quicknetHash + "/info":
		fmt.Fprintf(w, `{"hash":%q,"period":%d,"genesis_time":1692803367,"schemeID":"bls-unchained-g1-rfc9380"}`, quicknetHash, f.period)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeDrand) set(fn func(f *fakeDrand)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func newFakeNetwork(t *testing.T, f *fakeDrand) Network {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return Network{Name: "quicknet", ChainHash: quicknetHash, API: srv.URL, Period: 3 * time.Second}
}

func TestClientCurrentRound(t *testing.T) {
	f := &fakeDrand{round: 1000, period: 3}
	n := newFakeNetwork(t, f)

	c := NewClient(time.Second)
	round, err := c.CurrentRound(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), round)
}

func TestClientErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fakeDrand)
		code  string
	}{
		{"server error", func(f *fakeDrand) { f.status = http.StatusInternalServerError }, ""},
		{"missing round", func(f *fakeDrand) { f.body = `{"randomness":"00"}` }, "BEACON_MALFORMED"},
		{"garbage", func(f *fakeDrand) { f.body = `not json` }, "BEACON_MALFORMED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeDrand{round: 5, period: 3}
			f.set(tt.setup)
			n := newFakeNetwork(t, f)

			_, err := NewClient(time.Second).CurrentRound(context.Background(), n)
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, errors.ErrBeaconUnavailable))
			if tt.code != "" {
				var appErr *errors.AppError
				require.True(t, stderrors.As(err, &appErr))
				assert.Equal(t, tt.code, appErr.Code)
			}
		})
	}
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	n := Network{Name: "gone", ChainHash: quicknetHash, API: url}
	_, err := NewClient(time.Second).CurrentRound(context.Background(), n)
	require.Error(t, err)
	assert.True(t, errors.IsRecoverable(err))
}

func TestClientInfo(t *testing.T) {
	f := &fakeDrand{round: 1, period: 3}
	n := newFakeNetwork(t, f)

	info, err := NewClient(time.Second).Info(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Period)
	assert.Equal(t, quicknetHash, info.Hash)
	assert.Equal(t, time.Unix(1692803367+3, 0), info.RoundAt(2))
}

func TestRoundsNeeded(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tests := []struct {
		name   string
		unlock time.Time
		period time.Duration
		want   uint64
	}{
		{"exact multiple", now.Add(30 * time.Second), 3 * time.Second, 10},
		{"rounds up", now.Add(31 * time.Second), 3 * time.Second, 11},
		{"one second", now.Add(time.Second), 3 * time.Second, 1},
		{"now", now, 3 * time.Second, 0},
		{"past", now.Add(-time.Hour), 3 * time.Second, 0},
		{"sub-second period", now.Add(5 * time.Second), 0, 5},
		{"thirty second period", now.Add(time.Minute), 30 * time.Second, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoundsNeeded(tt.unlock, now, tt.period))
		})
	}
}

func TestRoundsNeededMonotonic(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	prev := uint64(0)
	for s := -10; s < 200; s++ {
		got := RoundsNeeded(now.Add(time.Duration(s)*time.Second), now, 3*time.Second)
		assert.GreaterOrEqual(t, got, prev, "unlock offset %ds", s)
		prev = got
	}
}

func TestCalculatorPlan(t *testing.T) {
	f := &fakeDrand{round: 1000, period: 3}
	n := newFakeNetwork(t, f)
	now := time.Unix(1_700_000_000, 0)

	calc := NewCalculator(NewClient(time.Second), func() time.Time { return now })

	timing, err := calc.Plan(context.Background(), now.Add(30*time.Second), n)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), timing.CurrentRound)
	assert.Equal(t, uint64(1010), timing.TargetRound)
	assert.Equal(t, uint64(10), timing.RoundsNeeded)
	assert.Equal(t, 3*time.Second, timing.Period)

	target, err := calc.TargetRound(context.Background(), now.Add(-time.Minute), n)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), target)
}

func TestCalculatorBeaconDown(t *testing.T) {
	f := &fakeDrand{status: http.StatusServiceUnavailable}
	n := newFakeNetwork(t, f)

	_, err := NewCalculator(NewClient(time.Second), nil).TargetRound(context.Background(), time.Now().Add(time.Minute), n)
	assert.True(t, stderrors.Is(err, errors.ErrBeaconUnavailable))
}

func TestWaiterReturnsOnceRoundReached(t *testing.T) {
	f := &fakeDrand{round: 10, period: 3}
	n := newFakeNetwork(t, f)

	w := NewWaiter(NewClient(time.Second))
	w.PollInterval = 5 * time.Millisecond

	var progress []Progress
	w.OnProgress = func(p Progress) {
		progress = append(progress, p)
		if len(progress) == 2 {
			f.set(func(f *fakeDrand) { f.round = 12 })
		}
	}

	_, err := w.WaitForRound(context.Background(), 12, n)
	require.NoError(t, err)
	require.Len(t, progress, 2)
	assert.Equal(t, uint64(2), progress[0].Remaining)
}

func TestWaiterPastTargetReturnsImmediately(t *testing.T) {
	f := &fakeDrand{round: 50, period: 3}
	n := newFakeNetwork(t, f)

	_, err := NewWaiter(NewClient(time.Second)).WaitForRound(context.Background(), 40, n)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.latestN.Load())
}

func TestWaiterRetriesTransientErrors(t *testing.T) {
	f := &fakeDrand{round: 20, period: 3, status: http.StatusBadGateway}
	n := newFakeNetwork(t, f)

	w := NewWaiter(NewClient(time.Second))
	w.ErrorBackoff = 5 * time.Millisecond
	failures := 0
	w.OnProgress = func(p Progress) {
		if p.Err != nil {
			failures++
			if failures == 3 {
				f.set(func(f *fakeDrand) { f.status = 0 })
			}
		}
	}

	_, err := w.WaitForRound(context.Background(), 20, n)
	require.NoError(t, err)
	assert.Equal(t, 3, failures)
}

func TestWaiterGivesUpAfterFailureCap(t *testing.T) {
	f := &fakeDrand{status: http.StatusBadGateway}
	n := newFakeNetwork(t, f)

	w := NewWaiter(NewClient(time.Second))
	w.ErrorBackoff = time.Millisecond
	w.MaxConsecutiveFailures = 3

	_, err := w.WaitForRound(context.Background(), 20, n)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrBeaconDegraded))
	assert.Equal(t, int32(0), f.latestN.Load())
}

func TestWaiterCancellation(t *testing.T) {
	f := &fakeDrand{round: 1, period: 3}
	n := newFakeNetwork(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWaiter(NewClient(time.Second))
	w.PollInterval = time.Hour
	w.OnProgress = func(Progress) { cancel() }

	_, err := w.WaitForRound(ctx, 100, n)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInterrupted))
	assert.True(t, stderrors.Is(err, context.Canceled))
}

func TestRegistry(t *testing.T) {
	cfg := config.BeaconConfig{
		Networks: []config.NetworkConfig{
			{Name: "quicknet", DisplayName: "drand quicknet", ChainHash: quicknetHash, API: "https://api.drand.sh", Period: 3},
			{Name: "mainnet", ChainHash: "8990e7a9aaed2ffed73dbd7092123d6f289930540d7651336225dc172e51b2ce", API: "https://api.drand.sh", Period: 30},
		},
	}
	r := RegistryFromConfig(cfg)

	n, err := r.ByChainHash(quicknetHash)
	require.NoError(t, err)
	assert.Equal(t, "quicknet", n.Name)
	assert.Equal(t, 3*time.Second, n.Period)
	assert.Equal(t, "drand quicknet", n.Label())
	assert.Equal(t, "https://api.drand.sh/"+quicknetHash+"/public/latest", n.LatestURL())

	_, err = r.ByChainHash("ff")
	assert.True(t, stderrors.Is(err, errors.ErrUnknownChain))

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "mainnet", all[0].Name)
}
