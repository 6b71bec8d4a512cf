package poster

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is optional; a nil *Metrics records nothing.
type Metrics struct {
	jobsActive  prometheus.Gauge
	jobsTotal   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	publish     *prometheus.CounterVec
	retract     *prometheus.CounterVec
	sinkDrops   *prometheus.CounterVec
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		jobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poster_jobs_active",
			Help:      "Number of running posting jobs",
		}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poster_jobs_total",
			Help:      "Finished posting jobs by class and terminal state",
		}, []string{"class", "state"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poster_job_duration_seconds",
			Help:      "Wall time of posting jobs",
			Buckets:   []float64{1, 10, 60, 300, 900, 3600, 4 * 3600, 24 * 3600},
		}, []string{"class"}),
		publish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poster_publish_total",
			Help:      "Publish calls by result",
		}, []string{"result"}),
		retract: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poster_retract_total",
			Help:      "Retract calls by result",
		}, []string{"result"}),
		sinkDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poster_sink_dropped_total",
			Help:      "Job events dropped because the sink was too slow",
		}, []string{"event"}),
	}
	reg.MustRegister(m.jobsActive, m.jobsTotal, m.jobDuration, m.publish, m.retract, m.sinkDrops)
	return m
}

func (m *Metrics) jobStarted() {
	if m == nil {
		return
	}
	m.jobsActive.Inc()
}

func (m *Metrics) jobFinished(class Class, state State, took time.Duration) {
	if m == nil {
		return
	}
	m.jobsActive.Dec()
	m.jobsTotal.WithLabelValues(string(class), state.String()).Inc()
	m.jobDuration.WithLabelValues(string(class)).Observe(took.Seconds())
}

func (m *Metrics) published(err error) {
	if m == nil {
		return
	}
	m.publish.WithLabelValues(ResultLabel(err)).Inc()
}

func (m *Metrics) retracted(err error) {
	if m == nil {
		return
	}
	m.retract.WithLabelValues(ResultLabel(err)).Inc()
}

func (m *Metrics) sinkDropped(event string) {
	if m == nil {
		return
	}
	m.sinkDrops.WithLabelValues(event).Inc()
}
