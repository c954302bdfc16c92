package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LiveSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pixelsync_live_subscriptions",
		Help: "Active live query subscriptions per collection",
	}, []string{"collection"})

	LiveWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixelsync_live_writes_total",
		Help: "Writes issued against live collections",
	}, []string{"collection", "op", "result"})

	LiveRefreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pixelsync_live_refresh_seconds",
		Help:    "Time spent re-evaluating subscriptions after a change",
		Buckets: prometheus.DefBuckets,
	}, []string{"collection"})

	ReactionToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixelsync_reaction_toggles_total",
		Help: "Reaction toggles by resulting action",
	}, []string{"action"})

	CommentsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixelsync_comments_rejected_total",
		Help: "Comment writes refused before reaching the store",
	}, []string{"reason"})

	CatalogRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixelsync_catalog_requests_total",
		Help: "Photo catalog calls",
	}, []string{"op", "result"})

	WSSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pixelsync_ws_sessions",
		Help: "Open websocket sessions",
	})
)
