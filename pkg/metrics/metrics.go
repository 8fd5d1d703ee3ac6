// Package metrics provides Prometheus-based metrics recording for task
// routing, dispatch, and queue processing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records orchestrator metrics to a Prometheus registry.
type Recorder struct {
	tasksTotal       *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	deadLettersTotal *prometheus.CounterVec
	discoveredAgents prometheus.Gauge
	queueDepth       *prometheus.GaugeVec
}

// NewRecorder creates a recorder registered against the default registry.
func NewRecorder() *Recorder {
	return NewRecorderWith(prometheus.DefaultRegisterer)
}

// NewRecorderWith creates a recorder registered against reg. Tests pass a
// fresh registry to avoid duplicate registration.
func NewRecorderWith(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		tasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_tasks_total",
				Help: "Total number of tasks by agent, mode, and status",
			},
			[]string{"agent", "mode", "status"},
		),
		dispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_dispatch_duration_seconds",
				Help:    "Duration of outbound agent calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent"},
		),
		deadLettersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_dead_letters_total",
				Help: "Total number of dead-lettered task messages by reason",
			},
			[]string{"reason"},
		),
		discoveredAgents: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "orchestrator_discovered_agents",
				Help: "Number of agents currently known to the registry",
			},
		),
		queueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orchestrator_queue_depth",
				Help: "Pending messages per queue",
			},
			[]string{"queue"},
		),
	}
}

// ObserveTask records a completed task attempt.
func (r *Recorder) ObserveTask(agent, mode string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	r.tasksTotal.WithLabelValues(agent, mode, status).Inc()
	if agent != "" {
		r.dispatchDuration.WithLabelValues(agent).Observe(duration.Seconds())
	}
}

// IncDeadLetter increments the dead-letter counter for a reason code.
func (r *Recorder) IncDeadLetter(reason string) {
	r.deadLettersTotal.WithLabelValues(reason).Inc()
}

// SetDiscoveredAgents records the registry size after a discovery pass.
func (r *Recorder) SetDiscoveredAgents(n int) {
	r.discoveredAgents.Set(float64(n))
}

// SetQueueDepth records the pending message count for a queue.
func (r *Recorder) SetQueueDepth(queue string, depth int) {
	r.queueDepth.WithLabelValues(queue).Set(float64(depth))
}
