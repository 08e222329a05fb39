package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MirrorMetrics tracks the remote reads, hint resolutions and watch activity
// of the ledger mirror.
type MirrorMetrics struct {
	remoteReads      *prometheus.CounterVec
	remoteLatency    *prometheus.HistogramVec
	hintResolutions  *prometheus.CounterVec
	hintTrials       prometheus.Histogram
	watchRefetches   *prometheus.CounterVec
	coalescedEvents  *prometheus.CounterVec
	subscriptions    prometheus.Gauge
	throttleWaitTime prometheus.Histogram
}

var (
	mirrorOnce     sync.Once
	mirrorRegistry *MirrorMetrics
)

// Mirror returns the lazily registered mirror metrics.
func Mirror() *MirrorMetrics {
	mirrorOnce.Do(func() {
		mirrorRegistry = &MirrorMetrics{
			remoteReads: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "trovekit",
				Subsystem: "remote",
				Name:      "reads_total",
				Help:      "Contract reads segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "trovekit",
				Subsystem: "remote",
				Name:      "read_duration_seconds",
				Help:      "Latency distribution of contract reads.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			hintResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "trovekit",
				Subsystem: "hints",
				Name:      "resolutions_total",
				Help:      "Hint resolutions segmented by the path that produced the hint.",
			}, []string{"path"}),
			hintTrials: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "trovekit",
				Subsystem: "hints",
				Name:      "trials",
				Help:      "Trial counts requested from the approximate hint sampler.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
			}),
			watchRefetches: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "trovekit",
				Subsystem: "watch",
				Name:      "refetches_total",
				Help:      "Coalesced re-fetches segmented by entity and outcome.",
			}, []string{"entity", "outcome"}),
			coalescedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "trovekit",
				Subsystem: "watch",
				Name:      "events_total",
				Help:      "Change notifications received by watch subscriptions.",
			}, []string{"entity"}),
			subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "trovekit",
				Subsystem: "watch",
				Name:      "active_subscriptions",
				Help:      "Number of live watch subscriptions.",
			}),
			throttleWaitTime: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "trovekit",
				Subsystem: "remote",
				Name:      "throttle_wait_seconds",
				Help:      "Time spent waiting on the RPC rate limiter.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(
			mirrorRegistry.remoteReads,
			mirrorRegistry.remoteLatency,
			mirrorRegistry.hintResolutions,
			mirrorRegistry.hintTrials,
			mirrorRegistry.watchRefetches,
			mirrorRegistry.coalescedEvents,
			mirrorRegistry.subscriptions,
			mirrorRegistry.throttleWaitTime,
		)
	})
	return mirrorRegistry
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveRemoteRead records one contract read.
func (m *MirrorMetrics) ObserveRemoteRead(op string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	op = normalizeLabel(op)
	m.remoteReads.WithLabelValues(op, outcome(err)).Inc()
	m.remoteLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveThrottle records time spent blocked on the rate limiter.
func (m *MirrorMetrics) ObserveThrottle(wait time.Duration) {
	if m == nil {
		return
	}
	m.throttleWaitTime.Observe(wait.Seconds())
}

// ObserveHint records which resolver path produced a hint.
func (m *MirrorMetrics) ObserveHint(path string) {
	if m == nil {
		return
	}
	m.hintResolutions.WithLabelValues(normalizeLabel(path)).Inc()
}

// ObserveTrials records the sample size requested from the remote sampler.
func (m *MirrorMetrics) ObserveTrials(trials uint64) {
	if m == nil {
		return
	}
	m.hintTrials.Observe(float64(trials))
}

// ObserveRefetch records a coalesced re-fetch.
func (m *MirrorMetrics) ObserveRefetch(entity string, err error) {
	if m == nil {
		return
	}
	m.watchRefetches.WithLabelValues(normalizeLabel(entity), outcome(err)).Inc()
}

// ObserveEvent records a change notification before coalescing.
func (m *MirrorMetrics) ObserveEvent(entity string) {
	if m == nil {
		return
	}
	m.coalescedEvents.WithLabelValues(normalizeLabel(entity)).Inc()
}

// SubscriptionOpened and SubscriptionClosed track live subscriptions.
func (m *MirrorMetrics) SubscriptionOpened() {
	if m == nil {
		return
	}
	m.subscriptions.Inc()
}

func (m *MirrorMetrics) SubscriptionClosed() {
	if m == nil {
		return
	}
	m.subscriptions.Dec()
}
