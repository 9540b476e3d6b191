// Package metrics provides Prometheus instrumentation for the chat service.
// It exposes gauges for queue and chat counts, counters for matches and
// relayed messages, and a histogram for match wait time.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueueSize tracks the current number of users waiting for a match.
	QueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sinchat_queue_size",
		Help: "Current number of users in the matching queue",
	})

	// ActiveChats tracks the current number of active chat sessions.
	ActiveChats = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sinchat_active_chats",
		Help: "Current number of active chat sessions",
	})

	// MatchesTotal counts completed matches.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sinchat_matches_total",
		Help: "Total number of matches made",
	})

	// MessagesTotal counts relayed messages, labeled by outcome:
	// "relayed", "flagged", or "limited".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sinchat_messages_total",
		Help: "Total number of relayed messages",
	}, []string{"outcome"})

	// RatingsTotal counts reputation votes, labeled "up" or "down".
	RatingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sinchat_ratings_total",
		Help: "Total number of reputation votes",
	}, []string{"direction"})

	// MatchWait records the time a user waited in the queue before a match.
	MatchWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sinchat_match_wait_seconds",
		Help:    "Time from enqueue to match",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
	})
)

func init() {
	prometheus.MustRegister(
		QueueSize,
		ActiveChats,
		MatchesTotal,
		MessagesTotal,
		RatingsTotal,
		MatchWait,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
