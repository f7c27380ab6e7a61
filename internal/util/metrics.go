package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransactionsAppendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transactions_appended_total",
		Help: "Total number of transactions appended to the local ledger",
	}, []string{"payment_kind"})

	TransactionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transactions_rejected_total",
		Help: "Total number of transaction writes rejected by validation",
	}, []string{"reason"})

	StatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_status_transitions_total",
		Help: "Total number of transaction status transitions",
	}, []string{"to"})

	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_runs_total",
		Help: "Total number of sync runs by outcome",
	}, []string{"outcome"})

	SyncPushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_pushes_total",
		Help: "Total number of record pushes to the remote authority",
	}, []string{"kind", "outcome"})

	SyncRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_run_duration_seconds",
		Help:    "Duration of sync runs",
		Buckets: prometheus.DefBuckets,
	})

	SyncPendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sync_pending_records",
		Help: "Number of local records awaiting sync after the last run",
	})

	ChannelReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channel_reconnects_total",
		Help: "Total number of realtime channel reconnect attempts",
	})

	ChannelMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_messages_total",
		Help: "Total number of inbound realtime messages",
	}, []string{"type"})

	ChannelDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channel_messages_dropped_total",
		Help: "Total number of malformed realtime messages dropped",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
