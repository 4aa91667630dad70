// Package metrics holds the Prometheus instruments of the friendlist server.
package metrics

import (
	"github.com/alextanhongpin/friendlist/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "friendlist"

var (
	// requestsTotal counts answered requests.
	// Labels: route (friends, befriend, unfriend, introduce, default, error), status (HTTP code)
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "server",
		Name:      "requests_total",
		Help:      "Total requests answered by route and status",
	}, []string{"route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "server",
		Name:      "request_duration_seconds",
		Help:      "Time from request line to response written",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"route"})

	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "server",
		Name:      "active_connections",
		Help:      "Connections currently being served",
	})

	// peerFetchTotal counts outbound crawls.
	// Labels: outcome (ok, unavailable, malformed, status)
	peerFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "peer",
		Name:      "fetch_total",
		Help:      "Total friend list fetches from peers by outcome",
	}, []string{"outcome"})

	peerFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "peer",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of friend list fetches from peers",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	graphChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "graph",
		Name:      "changes_total",
		Help:      "Edges created or removed",
	}, []string{"type"})
)

func RecordRequest(route, status string, durationSec float64) {
	requestsTotal.WithLabelValues(route, status).Inc()
	requestDuration.WithLabelValues(route).Observe(durationSec)
}

func ConnectionOpened() { activeConnections.Inc() }

func ConnectionClosed() { activeConnections.Dec() }

func RecordPeerFetch(outcome string, durationSec float64) {
	peerFetchTotal.WithLabelValues(outcome).Inc()
	peerFetchDuration.Observe(durationSec)
}

// GraphObserver counts committed graph changes.
var GraphObserver = domain.ChangeObserverFunc(func(changes []domain.Change) {
	for _, c := range changes {
		graphChanges.WithLabelValues(string(c.Kind)).Inc()
	}
})

// RegisterGraph exposes the graph size, read at scrape time.
func RegisterGraph(reg prometheus.Registerer, stats func() (users, edges int)) error {
	users := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "graph",
		Name:      "users",
		Help:      "Registered users",
	}, func() float64 {
		u, _ := stats()
		return float64(u)
	})

	edges := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "graph",
		Name:      "edges",
		Help:      "Undirected friendship edges",
	}, func() float64 {
		_, e := stats()
		return float64(e)
	})

	for _, c := range []prometheus.Collector{users, edges} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	return nil
}
