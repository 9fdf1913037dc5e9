// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	AuthTotal         *prometheus.CounterVec
	ScoreUpdatesTotal *prometheus.CounterVec
	ScorePointsTotal  prometheus.Counter

	Observers          prometheus.Gauge
	BroadcastsTotal    prometheus.Counter
	DeliveryFailsTotal prometheus.Counter
}

// New creates the service metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "score_service_auth_total",
				Help: "Total number of session operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		ScoreUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "score_service_score_updates_total",
				Help: "Total number of score update attempts by result",
			},
			[]string{"result"},
		),
		ScorePointsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "score_service_score_points_total",
			Help: "Sum of all accepted score deltas",
		}),
		Observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "score_service_leaderboard_observers",
			Help: "Number of currently connected leaderboard observers",
		}),
		BroadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "score_service_leaderboard_broadcasts_total",
			Help: "Total number of leaderboard rankings published",
		}),
		DeliveryFailsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "score_service_leaderboard_delivery_failures_total",
			Help: "Total number of failed leaderboard pushes",
		}),
	}

	reg.MustRegister(
		m.AuthTotal,
		m.ScoreUpdatesTotal,
		m.ScorePointsTotal,
		m.Observers,
		m.BroadcastsTotal,
		m.DeliveryFailsTotal,
	)

	return m
}

// NewRegistry returns a registry with the Go and process collectors plus
// the service metrics.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return reg, New(reg)
}

func (m *Metrics) AuthAttempt(operation string, err error) {
	m.AuthTotal.WithLabelValues(operation, result(err)).Inc()
}

func (m *Metrics) ScoreUpdated(delta int64, err error) {
	m.ScoreUpdatesTotal.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.ScorePointsTotal.Add(float64(delta))
	}
}

func (m *Metrics) ObserverAdded()   { m.Observers.Inc() }
func (m *Metrics) ObserverRemoved() { m.Observers.Dec() }
func (m *Metrics) Published()       { m.BroadcastsTotal.Inc() }
func (m *Metrics) DeliveryFailed()  { m.DeliveryFailsTotal.Inc() }

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
