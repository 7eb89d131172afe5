package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	RecommendationRequestsTotal metric.Int64Counter
	RecommendationDegradedTotal metric.Int64Counter
	AmbiguousResolutionsTotal   metric.Int64Counter
	ProviderCallDurationSeconds metric.Float64Histogram
	CategorySearchFailuresTotal metric.Int64Counter
	CachedPlacesPersistedTotal  metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metrics instruments ONLY ONCE.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("itinero")
		var err error
		m := &AppMetrics{}

		m.RecommendationRequestsTotal, err = meter.Int64Counter(
			"recommendation_requests_total",
			metric.WithDescription("Total number of recommendation requests completed"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create recommendation_requests_total: %v", err)
		}

		m.RecommendationDegradedTotal, err = meter.Int64Counter(
			"recommendation_degraded_total",
			metric.WithDescription("Recommendation requests that completed in degraded mode"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create recommendation_degraded_total: %v", err)
		}

		m.AmbiguousResolutionsTotal, err = meter.Int64Counter(
			"ambiguous_resolutions_total",
			metric.WithDescription("Location resolutions that returned disambiguation options"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create ambiguous_resolutions_total: %v", err)
		}

		m.ProviderCallDurationSeconds, err = meter.Float64Histogram(
			"provider_call_duration_seconds",
			metric.WithDescription("Duration of upstream provider calls in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create provider_call_duration_seconds: %v", err)
		}

		m.CategorySearchFailuresTotal, err = meter.Int64Counter(
			"category_search_failures_total",
			metric.WithDescription("Per-category place searches that failed or timed out"),
			metric.WithUnit("{search}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create category_search_failures_total: %v", err)
		}

		m.CachedPlacesPersistedTotal, err = meter.Int64Counter(
			"cached_places_persisted_total",
			metric.WithDescription("Places written to the recommendation cache"),
			metric.WithUnit("{place}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create cached_places_persisted_total: %v", err)
		}

		appMetrics = m
	})
}

// Get returns the initialized metrics instruments.
func Get() *AppMetrics {
	if appMetrics == nil {
		InitAppMetrics()
	}
	return appMetrics
}
