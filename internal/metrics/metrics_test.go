package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveBeaconRequestCountsByResult(t *testing.T) {
	ok := testutil.ToFloat64(BeaconRequests.WithLabelValues("latest", ResultSuccess))
	failed := testutil.ToFloat64(BeaconRequests.WithLabelValues("latest", ResultFailure))

	ObserveBeaconRequest("latest", nil, 10*time.Millisecond)
	ObserveBeaconRequest("latest", errors.New("boom"), 10*time.Millisecond)
	ObserveBeaconRequest("latest", errors.New("boom"), 10*time.Millisecond)

	assert.Equal(t, ok+1, testutil.ToFloat64(BeaconRequests.WithLabelValues("latest", ResultSuccess)))
	assert.Equal(t, failed+2, testutil.ToFloat64(BeaconRequests.WithLabelValues("latest", ResultFailure)))
}

func TestRecordPublishRejectionPrefix(t *testing.T) {
	before := testutil.ToFloat64(RelayRejections.WithLabelValues("blocked"))
	none := testutil.ToFloat64(RelayRejections.WithLabelValues("none"))

	RecordPublish(ModePublic, false, "blocked", time.Millisecond)
	RecordPublish(ModePrivate, false, "", time.Millisecond)
	RecordPublish(ModePrivate, true, "", time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(RelayRejections.WithLabelValues("blocked")))
	assert.Equal(t, none+1, testutil.ToFloat64(RelayRejections.WithLabelValues("none")))
}

func TestServeExposesMetrics(t *testing.T) {
	RegisterMetrics()
	s, err := Serve(0)
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	_, port, err := net.SplitHostPort(s.Addr())
	require.NoError(t, err)
	resp, err := http.Get("http://127.0.0.1:" + port + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "capsule_validator_capsules_built_total")
}
