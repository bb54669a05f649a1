// Package metrics provides Prometheus instrumentation for cdpfleet.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdpfleet_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cdpfleet_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Business metrics.
var (
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cdpfleet_active_workers",
		Help: "Number of workers currently present in the load set.",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cdpfleet_active_sessions",
		Help: "Number of sessions currently in active status.",
	})

	SessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cdpfleet_sessions_created_total",
		Help: "Total number of sessions successfully created.",
	})

	SessionsClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdpfleet_sessions_closed_total",
		Help: "Total number of sessions closed, labeled by the path that triggered close.",
	}, []string{"reason"}) // "delete", "tunnel", "idle_reaper", "absolute_reaper"

	SchedulerNoCapacityTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cdpfleet_scheduler_no_capacity_total",
		Help: "Total number of createSession calls rejected for lack of worker capacity.",
	})

	BrowserLaunchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cdpfleet_browser_launch_failures_total",
		Help: "Total number of browser launch failures observed by a worker.",
	})
)

// WebSocket / relay metrics.
var (
	WSConnectionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cdpfleet_ws_connections_active",
		Help: "Number of active WebSocket connections, labeled by leg.",
	}, []string{"side"}) // gateway: "client"/"worker"; worker: "gateway"/"browser"

	WSMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdpfleet_ws_messages_total",
		Help: "Total number of WebSocket frames relayed, labeled by direction.",
	}, []string{"direction"})

	ReaperPassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cdpfleet_reaper_passes_total",
		Help: "Total number of reaper passes executed.",
	})

	ReaperClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdpfleet_reaper_closed_total",
		Help: "Total number of sessions closed by the reaper, labeled by cause.",
	}, []string{"cause"}) // "idle", "absolute"
)
