package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task metrics
	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcore_tasks_total",
			Help: "Total number of agent tasks by outcome",
		},
		[]string{"agent", "status"},
	)

	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentcore_task_duration_seconds",
			Help:    "Agent task duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"agent"},
	)

	taskIterations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentcore_task_iterations",
			Help:    "Continuation loop iterations per task",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 20},
		},
		[]string{"agent"},
	)

	// Mail metrics
	mailTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcore_mail_total",
			Help: "Total number of mail messages sent by delivery mode",
		},
		[]string{"mode"},
	)

	switchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcore_switches_total",
			Help: "Total number of synchronous mail switches by outcome",
		},
		[]string{"status"},
	)

	switchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentcore_switch_duration_seconds",
			Help:    "Synchronous mail switch round-trip duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Channel metrics
	channelMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcore_channel_messages_total",
			Help: "Total number of routed channel messages",
		},
		[]string{"channel"},
	)

	// Registry metrics
	activeAgents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentcore_agents",
			Help: "Number of registered agents",
		},
	)

	sleepingAgents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentcore_sleeping_agents",
			Help: "Number of agents currently sleeping",
		},
	)

	initOnce sync.Once
)

// InitMetrics initializes Prometheus metrics
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			tasksTotal,
			taskDuration,
			taskIterations,
			mailTotal,
			switchesTotal,
			switchDuration,
			channelMessagesTotal,
			activeAgents,
			sleepingAgents,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordTask records one finished task
func RecordTask(agent, status string, duration time.Duration, iterations int) {
	tasksTotal.WithLabelValues(agent, status).Inc()
	taskDuration.WithLabelValues(agent).Observe(duration.Seconds())
	taskIterations.WithLabelValues(agent).Observe(float64(iterations))
}

// RecordMail records one sent mail message
func RecordMail(mode string) {
	mailTotal.WithLabelValues(mode).Inc()
}

// RecordSwitch records one synchronous switch outcome
func RecordSwitch(status string, duration time.Duration) {
	switchesTotal.WithLabelValues(status).Inc()
	switchDuration.Observe(duration.Seconds())
}

// RecordChannelMessage records one routed channel message
func RecordChannelMessage(channel string) {
	channelMessagesTotal.WithLabelValues(channel).Inc()
}

// SetActiveAgents sets the registered agents gauge
func SetActiveAgents(count int) {
	activeAgents.Set(float64(count))
}

// SetSleepingAgents sets the sleeping agents gauge
func SetSleepingAgents(count int) {
	sleepingAgents.Set(float64(count))
}
