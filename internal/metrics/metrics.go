// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quizlive"

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_connections_active",
		Help:      "Open WebSocket connections on this instance.",
	})

	ConnectionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_connections_rejected_total",
		Help:      "Connections or joins refused, by reason.",
	}, []string{"reason"})

	SessionMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "session_members",
		Help:      "Joined connections on this instance, by role.",
	}, []string{"role"})

	AnswersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "answers_total",
		Help:      "Answer submissions, by result.",
	}, []string{"result"})

	HostActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "host_actions_total",
		Help:      "Session state transitions, by action and outcome.",
	}, []string{"action", "outcome"})

	UpstreamChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sync_upstream_channels",
		Help:      "Sessions with a connected upstream change channel.",
	})

	UpstreamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_reconnect_attempts_total",
		Help:      "Upstream channel reconnection attempts.",
	})

	UpdatesFannedOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_updates_total",
		Help:      "Updates delivered to local listeners, by kind.",
	}, []string{"kind"})
)
