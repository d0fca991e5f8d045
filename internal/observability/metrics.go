package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	pointsAwardedTotal    *prometheus.CounterVec
	achievementsTotal     *prometheus.CounterVec
	feedbackTotal         *prometheus.CounterVec
	assistantSessions     prometheus.Gauge
	assistantMessageTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the portal API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_requests_total",
			Help: "Total number of portal API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_latency_seconds",
			Help:    "Latency distribution for portal API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_errors_total",
			Help: "Total number of error responses returned by portal endpoints.",
		}, []string{"method", "route", "status"})

		pointsAwardedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_points_awarded_total",
			Help: "Points credited to students by activity type.",
		}, []string{"type"})

		achievementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_achievements_unlocked_total",
			Help: "Achievements unlocked, split by grant source.",
		}, []string{"source"})

		feedbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_feedback_submissions_total",
			Help: "Feedback submissions by outcome.",
		}, []string{"status"})

		assistantSessions = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_assistant_sessions_active",
			Help: "Number of open assistant chat sessions.",
		})

		assistantMessageTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_assistant_messages_total",
			Help: "Assistant message round trips by outcome.",
		}, []string{"status"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			pointsAwardedTotal,
			achievementsTotal,
			feedbackTotal,
			assistantSessions,
			assistantMessageTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// PointsAwarded exposes the points counter.
func PointsAwarded() *prometheus.CounterVec {
	RegisterMetrics()
	return pointsAwardedTotal
}

// AchievementsUnlocked exposes the achievement counter.
func AchievementsUnlocked() *prometheus.CounterVec {
	RegisterMetrics()
	return achievementsTotal
}

// FeedbackSubmissions exposes the feedback outcome counter.
func FeedbackSubmissions() *prometheus.CounterVec {
	RegisterMetrics()
	return feedbackTotal
}

// AssistantSessions exposes the open session gauge.
func AssistantSessions() prometheus.Gauge {
	RegisterMetrics()
	return assistantSessions
}

// AssistantMessages exposes the assistant round trip counter.
func AssistantMessages() *prometheus.CounterVec {
	RegisterMetrics()
	return assistantMessageTotal
}
