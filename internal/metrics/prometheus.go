package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AssessmentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "invoscore_assessment_duration_seconds",
			Help:    "Assessment pipeline duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"tenant"},
	)

	AssessmentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoscore_assessment_total",
			Help: "Total number of assessments run",
		},
		[]string{"status"},
	)

	FactorErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoscore_factor_errors_total",
			Help: "Total factor calculations recorded with an error note",
		},
		[]string{"factor"},
	)

	ScoreDistribution = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "invoscore_score_value",
			Help:    "Distribution of aggregate score values",
			Buckets: []float64{10, 25, 40, 50, 60, 75, 90, 100},
		},
	)

	IndicatorsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoscore_risk_indicators_total",
			Help: "Total risk indicators detected",
		},
		[]string{"type", "level"},
	)

	LimitRecommendations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoscore_limit_recommendations_total",
			Help: "Total credit limit recommendations calculated",
		},
		[]string{"method"},
	)

	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "invoscore_monitor_sweep_duration_seconds",
			Help:    "Monitoring sweep duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)

	SweepBuyers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoscore_monitor_sweep_buyers_total",
			Help: "Buyers processed by monitoring sweeps",
		},
		[]string{"status"},
	)

	TermsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoscore_terms_resolved_total",
			Help: "Payment terms resolutions",
		},
		[]string{"outcome"},
	)

	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoscore_events_published_total",
			Help: "Events published to the broker",
		},
		[]string{"event", "status"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoscore_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoscore_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(AssessmentDuration)
	prometheus.MustRegister(AssessmentTotal)
	prometheus.MustRegister(FactorErrors)
	prometheus.MustRegister(ScoreDistribution)
	prometheus.MustRegister(IndicatorsDetected)
	prometheus.MustRegister(LimitRecommendations)
	prometheus.MustRegister(SweepDuration)
	prometheus.MustRegister(SweepBuyers)
	prometheus.MustRegister(TermsResolved)
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
