package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "skbridge"

var connectionStates = []string{"disconnected", "connecting", "open", "closing"}

// Bridge holds the collectors for the telemetry bridge. It satisfies the
// observer interfaces of stream, collector, poller and shutdown.
type Bridge struct {
	samplesSent     *prometheus.CounterVec
	samplesDropped  *prometheus.CounterVec
	readErrors      *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	connState       *prometheus.GaugeVec
	connectAttempts *prometheus.CounterVec
	polls           *prometheus.CounterVec
	shutdowns       *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Bridge {
	b := &Bridge{
		samplesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_sent_total",
			Help:      "Samples written to the hub stream.",
		}, []string{"path"}),
		samplesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_dropped_total",
			Help:      "Samples dropped because the stream was down or the write failed.",
		}, []string{"path", "reason"}),
		readErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metric_read_errors_total",
			Help:      "Sensor reads that failed or were unavailable.",
		}, []string{"path"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_cycle_seconds",
			Help:      "Duration of one publish cycle including the CPU sampling window.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		connState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_state",
			Help:      "1 for the current stream connection state.",
		}, []string{"state"}),
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_connect_attempts_total",
			Help:      "Stream dial attempts by result.",
		}, []string{"result"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_polls_total",
			Help:      "Shutdown flag polls by result.",
		}, []string{"result"}),
		shutdowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shutdown_requests_total",
			Help:      "Shutdown requests by source and whether they executed the host command.",
		}, []string{"source", "executed"}),
	}

	reg.MustRegister(
		b.samplesSent,
		b.samplesDropped,
		b.readErrors,
		b.cycleDuration,
		b.connState,
		b.connectAttempts,
		b.polls,
		b.shutdowns,
	)
	b.ConnectionState("disconnected")
	return b
}

func (b *Bridge) ConnectionState(state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		b.connState.WithLabelValues(s).Set(v)
	}
}

func (b *Bridge) ConnectAttempt(err error) {
	b.connectAttempts.WithLabelValues(result(err)).Inc()
}

func (b *Bridge) SampleSent(path string) {
	b.samplesSent.WithLabelValues(path).Inc()
}

func (b *Bridge) SampleDropped(path, reason string) {
	b.samplesDropped.WithLabelValues(path, reason).Inc()
}

func (b *Bridge) ReadFailed(path string) {
	b.readErrors.WithLabelValues(path).Inc()
}

func (b *Bridge) CycleDuration(d time.Duration) {
	b.cycleDuration.Observe(d.Seconds())
}

func (b *Bridge) Polled(err error) {
	b.polls.WithLabelValues(result(err)).Inc()
}

func (b *Bridge) ShutdownRequested(source string, executed bool) {
	b.shutdowns.WithLabelValues(source, strconv.FormatBool(executed)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
