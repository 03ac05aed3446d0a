package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBridgeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := New(reg)

	b.SampleSent("environment.rpi.uptime")
	b.SampleSent("environment.rpi.uptime")
	assert.Equal(t, 2.0, testutil.ToFloat64(b.samplesSent.WithLabelValues("environment.rpi.uptime")))

	b.SampleDropped("environment.rpi.cpu.usage", "not_connected")
	assert.Equal(t, 1.0, testutil.ToFloat64(b.samplesDropped.WithLabelValues("environment.rpi.cpu.usage", "not_connected")))

	b.ReadFailed("environment.lte.signal.strength")
	assert.Equal(t, 1.0, testutil.ToFloat64(b.readErrors.WithLabelValues("environment.lte.signal.strength")))

	b.ConnectAttempt(nil)
	b.ConnectAttempt(errors.New("refused"))
	b.ConnectAttempt(errors.New("refused"))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.connectAttempts.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(b.connectAttempts.WithLabelValues("error")))

	b.Polled(nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(b.polls.WithLabelValues("ok")))

	b.ShutdownRequested("remote", true)
	b.ShutdownRequested("local", false)
	assert.Equal(t, 1.0, testutil.ToFloat64(b.shutdowns.WithLabelValues("remote", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.shutdowns.WithLabelValues("local", "false")))

	b.CycleDuration(1200 * time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(b.cycleDuration))
}

func TestConnectionStateGauge(t *testing.T) {
	b := New(prometheus.NewRegistry())

	assert.Equal(t, 1.0, testutil.ToFloat64(b.connState.WithLabelValues("disconnected")))

	b.ConnectionState("open")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.connState.WithLabelValues("disconnected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.connState.WithLabelValues("open")))
}
