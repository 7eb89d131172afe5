package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/itinero-app/itinero/internal/api/itinerary"
	"github.com/itinero-app/itinero/internal/api/recommendation"
)

// Config contains dependencies needed for the router setup
type Config struct {
	RecommendationHandler *recommendation.Handler
	ItineraryHandler      *itinerary.Handler
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (logger, requestID, recoverer) are expected to be
// applied before mounting this router in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/recommendations", cfg.RecommendationHandler.GetRecommendations)
		r.Get("/recommendations/stats/{cityID}", cfg.RecommendationHandler.GetCityStats)
		r.Post("/itineraries/narrative", cfg.ItineraryHandler.GenerateNarrative)
	})

	return r
}
