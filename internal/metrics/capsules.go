package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Capsule mode label values
const (
	ModePublic  = "public"
	ModePrivate = "private"
)

// Metrics for tracking a validation run
var (
	// Capsule lifecycle
	CapsulesBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capsule_validator_capsules_built_total",
		Help: "The total number of capsules built by mode and result",
	}, []string{"mode", "result"})

	CapsulesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capsule_validator_capsules_published_total",
		Help: "The total number of capsules sent to the relay by mode and result",
	}, []string{"mode", "result"})

	CapsulesDecrypted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capsule_validator_capsules_decrypted_total",
		Help: "The total number of capsules unlocked by mode and result",
	}, []string{"mode", "result"})

	// Beacon
	BeaconRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capsule_validator_beacon_requests_total",
		Help: "The total number of beacon HTTP requests by endpoint and result",
	}, []string{"endpoint", "result"})

	BeaconRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "capsule_validator_beacon_request_duration_seconds",
		Help:    "Beacon HTTP request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 6), // 0.01 .. ~10
	}, []string{"endpoint"})

	UnlockWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "capsule_validator_unlock_wait_duration_seconds",
		Help:    "Time spent waiting for the unlock round",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 .. 512
	})

	// Relay
	RelayPublishDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "capsule_validator_relay_publish_duration_seconds",
		Help:    "Time from dial to OK acknowledgement",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 6),
	})

	RelayRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capsule_validator_relay_rejections_total",
		Help: "Relay rejections by machine-readable prefix",
	}, []string{"prefix"})

	// Orchestrator
	RunState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "capsule_validator_run_state",
		Help: "Ordinal of the current orchestrator state",
	})
)

// ObserveBeaconRequest records one beacon request.
func ObserveBeaconRequest(endpoint string, err error, took time.Duration) {
	BeaconRequests.WithLabelValues(endpoint, result(err)).Inc()
	BeaconRequestDuration.WithLabelValues(endpoint).Observe(took.Seconds())
}

// RecordBuild records a capsule build attempt.
func RecordBuild(mode string, err error) {
	CapsulesBuilt.WithLabelValues(mode, result(err)).Inc()
}

// RecordPublish records a publish attempt and, on rejection, its prefix.
func RecordPublish(mode string, accepted bool, prefix string, took time.Duration) {
	RelayPublishDuration.Observe(took.Seconds())
	if accepted {
		CapsulesPublished.WithLabelValues(mode, ResultSuccess).Inc()
		return
	}
	CapsulesPublished.WithLabelValues(mode, ResultFailure).Inc()
	if prefix == "" {
		prefix = "none"
	}
	RelayRejections.WithLabelValues(prefix).Inc()
}

// RecordDecrypt records a decryption attempt.
func RecordDecrypt(mode string, err error) {
	CapsulesDecrypted.WithLabelValues(mode, result(err)).Inc()
}

// SetState publishes the orchestrator state ordinal.
func SetState(ordinal int) {
	RunState.Set(float64(ordinal))
}

// RegisterMetrics pre-registers the label combinations so they appear at zero.
func RegisterMetrics() {
	for _, mode := range []string{ModePublic, ModePrivate} {
		for _, r := range []string{ResultSuccess, ResultFailure} {
			CapsulesBuilt.WithLabelValues(mode, r)
			CapsulesPublished.WithLabelValues(mode, r)
			CapsulesDecrypted.WithLabelValues(mode, r)
		}
	}
	for _, endpoint := range []string{"latest", "info"} {
		for _, r := range []string{ResultSuccess, ResultFailure} {
			BeaconRequests.WithLabelValues(endpoint, r)
		}
		BeaconRequestDuration.WithLabelValues(endpoint)
	}
}

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
