package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values shared across metrics.
const (
	StatusOK    = "ok"
	StatusError = "error"

	ReasonPermission = "permission"
	ReasonDailyCap   = "daily_cap"
)

var (
	MessagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autoreply_messages_processed_total",
		Help: "The total number of inbound messages evaluated by the engine",
	})

	RulesMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoreply_rules_matched_total",
		Help: "The total number of rule matches by rule name",
	}, []string{"rule"})

	ActionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoreply_actions_executed_total",
		Help: "The total number of action content sends by type and status",
	}, []string{"type", "status"})

	GateRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoreply_gate_rejections_total",
		Help: "The total number of messages rejected before matching by reason",
	}, []string{"reason"})

	SendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoreply_sends_total",
		Help: "The total number of outgoing Telegram sends by kind and status",
	}, []string{"kind", "status"})

	SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "autoreply_send_duration_seconds",
		Help:    "Duration of outgoing Telegram send calls",
		Buckets: prometheus.DefBuckets,
	})

	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autoreply_active_connections",
		Help: "Current number of connected account sessions",
	})

	ConnectionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoreply_connection_attempts_total",
		Help: "The total number of account connection attempts by status",
	}, []string{"status"})

	PendingDeletions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autoreply_pending_deletions",
		Help: "Current number of scheduled message deletions not yet executed",
	})

	FloodWaitSecondsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autoreply_flood_wait_seconds_total",
		Help: "Total time in seconds spent waiting for Telegram flood control",
	})

	DailyResponsesUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autoreply_daily_responses_used",
		Help: "Responses sent against the global daily cap since the last reset",
	})
)
