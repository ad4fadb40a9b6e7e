package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	MessagesSeen      prometheus.Counter
	IndicatorHits     prometheus.Counter
	DuplicatesIgnored prometheus.Counter
	ClassifierCalls   prometheus.Counter
	ClassifierNoTask  prometheus.Counter
	TasksCreated      prometheus.Counter
	HandlerPanics     prometheus.Counter
	Reconnects        prometheus.Counter
	SessionClears     prometheus.Counter
	BackfillScans     prometheus.Counter
	BackfillMessages  prometheus.Counter
	ClassifyDuration  prometheus.Histogram
	ConnectionState   prometheus.Gauge
	MonitoredChats    prometheus.Gauge
	PendingTasks      prometheus.Gauge
}

var (
	once   sync.Once
	shared *Metrics
)

// NewMetrics returns the process-wide Prometheus metrics. Collectors register
// with the default registry, so the set is built exactly once.
func NewMetrics() *Metrics {
	once.Do(func() {
		shared = newMetrics()
	})
	return shared
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesSeen: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chat_task_scanner_messages_seen_total",
			Help: "Total number of message events received from the transport",
		}),
		IndicatorHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chat_task_scanner_indicator_hits_total",
			Help: "Total number of messages that passed the indicator pre-filter",
		}),
		DuplicatesIgnored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chat_task_scanner_duplicates_ignored_total",
			Help: "Total number of already-processed messages skipped",
		}),
		ClassifierCalls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chat_task_scanner_classifier_calls_total",
			Help: "Total number of classification service calls",
		}),
		ClassifierNoTask: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chat_task_scanner_classifier_no_task_total",
			Help: "Total number of classification calls that produced no task",
		}),
		TasksCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chat_task_scanner_tasks_created_total",
			Help: "Total number of tasks persisted",
		}),
		HandlerPanics: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chat_task_scanner_handler_panics_total",
			Help: "Total number of recovered panics during message handling",
		}),
		Reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chat_task_scanner_reconnects_total",
			Help: "Total number of transport reconnect attempts",
		}),
		SessionClears: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chat_task_scanner_session_clears_total",
			Help: "Total number of automatic session-material clears",
		}),
		BackfillScans: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chat_task_scanner_backfill_scans_total",
			Help: "Total number of backfill scans run",
		}),
		BackfillMessages: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chat_task_scanner_backfill_messages_total",
			Help: "Total number of messages fed through backfill",
		}),
		ClassifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "chat_task_scanner_classify_duration_seconds",
			Help:    "Time spent per classification call",
			Buckets: prometheus.DefBuckets,
		}),
		ConnectionState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chat_task_scanner_connection_state",
			Help: "Current connection lifecycle state (0=disconnected .. 5=ready)",
		}),
		MonitoredChats: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chat_task_scanner_monitored_chats",
			Help: "Number of currently monitored chats",
		}),
		PendingTasks: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chat_task_scanner_pending_tasks",
			Help: "Number of tasks awaiting completion",
		}),
	}
}
