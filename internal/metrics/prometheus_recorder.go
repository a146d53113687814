package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// ReplicationBuckets cover a LAN copy (sub-second) up to a stalled uplink.
var ReplicationBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	captures           *prom.CounterVec
	replicationTime    prom.Histogram
	replicationResults *prom.CounterVec
	day                prom.Gauge
	totalDays          prom.Gauge
	sequence           prom.Gauge
	state              *prom.GaugeVec

	mu        sync.Mutex
	lastState string
}

// NewPrometheusRecorder constructs and registers the metrics on reg
// (a fresh registry when reg is nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		captures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "lapsego",
			Name:      "captures_total",
			Help:      "Capture attempts by result",
		}, []string{"result"}),
		replicationTime: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "lapsego",
			Name:      "replication_duration_seconds",
			Help:      "Wall-clock duration of one file replication",
			Buckets:   ReplicationBuckets,
		}),
		replicationResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "lapsego",
			Name:      "replications_total",
			Help:      "Replication attempts by result",
		}, []string{"result"}),
		day: prom.NewGauge(prom.GaugeOpts{
			Namespace: "lapsego",
			Name:      "current_day",
			Help:      "Day of the run currently in progress (1-based)",
		}),
		totalDays: prom.NewGauge(prom.GaugeOpts{
			Namespace: "lapsego",
			Name:      "total_days",
			Help:      "Number of days the run lasts",
		}),
		sequence: prom.NewGauge(prom.GaugeOpts{
			Namespace: "lapsego",
			Name:      "sequence",
			Help:      "Sequence number of the next capture of the day",
		}),
		state: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "lapsego",
			Name:      "state",
			Help:      "Controller state (1 for the current state)",
		}, []string{"state"}),
	}
	reg.MustRegister(pr.captures, pr.replicationTime, pr.replicationResults, pr.day, pr.totalDays, pr.sequence, pr.state)
	return pr
}

func (p *PrometheusRecorder) IncCapture(result ResultLabel) {
	if p == nil {
		return
	}
	p.captures.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveReplication(d time.Duration, result ResultLabel) {
	if p == nil {
		return
	}
	p.replicationTime.Observe(d.Seconds())
	p.replicationResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) SetDay(day, totalDays int) {
	if p == nil {
		return
	}
	p.day.Set(float64(day))
	p.totalDays.Set(float64(totalDays))
}

func (p *PrometheusRecorder) SetSequence(seq int) {
	if p == nil {
		return
	}
	p.sequence.Set(float64(seq))
}

// SetState raises the gauge of state and clears the previous one.
func (p *PrometheusRecorder) SetState(state string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastState != "" && p.lastState != state {
		p.state.WithLabelValues(p.lastState).Set(0)
	}
	p.state.WithLabelValues(state).Set(1)
	p.lastState = state
}
