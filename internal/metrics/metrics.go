// Package metrics exposes Prometheus collectors for the sync engine and the remote client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timersync",
		Name:      "reconcile_total",
		Help:      "Reconciliation passes by outcome.",
	}, []string{"outcome"})

	RemoteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timersync",
		Name:      "remote_requests_total",
		Help:      "Requests issued to the time-tracking API by operation and status code.",
	}, []string{"op", "status"})

	RemoteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "timersync",
		Name:      "remote_request_duration_seconds",
		Help:      "Latency of requests to the time-tracking API.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timersync",
		Name:      "cache_lookups_total",
		Help:      "TTL cache lookups by cache name and result.",
	}, []string{"cache", "result"})

	TimerRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "timersync",
		Name:      "timer_running",
		Help:      "1 while the local state believes a timer is running.",
	})

	Observers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "timersync",
		Name:      "observers",
		Help:      "Registered UI observers.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
