package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	// A second registration of the same names must fail.
	assert.Panics(t, func() { New(reg) })
}

func TestNewRegistry(t *testing.T) {
	reg, m := NewRegistry()
	require.NotNil(t, m)

	m.Published()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["score_service_leaderboard_broadcasts_total"])
	assert.True(t, names["go_goroutines"])
}

func TestMetrics_AuthAttempt(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.AuthAttempt("login", nil)
	m.AuthAttempt("login", nil)
	m.AuthAttempt("login", errors.New("bad password"))
	m.AuthAttempt("refresh", nil)

	assert.InDelta(t, 2, testutil.ToFloat64(m.AuthTotal.WithLabelValues("login", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.AuthTotal.WithLabelValues("login", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.AuthTotal.WithLabelValues("refresh", "ok")), 0)
}

func TestMetrics_ScoreUpdated(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ScoreUpdated(50, nil)
	m.ScoreUpdated(7, nil)
	m.ScoreUpdated(-1, errors.New("invalid delta"))

	assert.InDelta(t, 2, testutil.ToFloat64(m.ScoreUpdatesTotal.WithLabelValues("ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ScoreUpdatesTotal.WithLabelValues("error")), 0)
	assert.InDelta(t, 57, testutil.ToFloat64(m.ScorePointsTotal), 0)
}

func TestMetrics_BroadcastRecorder(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserverAdded()
	m.ObserverAdded()
	m.ObserverRemoved()
	m.Published()
	m.DeliveryFailed()

	assert.InDelta(t, 1, testutil.ToFloat64(m.Observers), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.BroadcastsTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DeliveryFailsTotal), 0)
}
