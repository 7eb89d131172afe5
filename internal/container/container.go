package container

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	database "github.com/itinero-app/itinero/app/db"
	"github.com/itinero-app/itinero/config"
	generativeAI "github.com/itinero-app/itinero/internal/api/generative_ai"
	"github.com/itinero-app/itinero/internal/api/geocoding"
	"github.com/itinero-app/itinero/internal/api/itinerary"
	"github.com/itinero-app/itinero/internal/api/location"
	"github.com/itinero-app/itinero/internal/api/places"
	"github.com/itinero-app/itinero/internal/api/planner"
	"github.com/itinero-app/itinero/internal/api/recommendation"
)

// Container holds all application dependencies
type Container struct {
	Config                *config.Config
	Logger                *slog.Logger
	Pool                  *pgxpool.Pool
	RecommendationHandler *recommendation.Handler
	ItineraryHandler      *itinerary.Handler
}

// NewContainer initializes and returns a new dependency container
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	dbConfig, err := database.NewDatabaseConfig(cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		return nil, err
	}

	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		return nil, err
	}

	aiClient, err := generativeAI.NewAIClient(ctx, cfg.Gemini.Model)
	if err != nil {
		logger.Error("Failed to initialize generative AI client", slog.Any("error", err))
		pool.Close()
		return nil, err
	}

	geocodingClient := geocoding.NewGoogleClient(geocoding.Options{
		BaseURL:        cfg.Providers.Geocoding.BaseURL,
		Timeout:        cfg.Providers.Geocoding.Timeout,
		BreakerMaxFail: cfg.Providers.Geocoding.BreakerMaxFail,
		BreakerCooloff: cfg.Providers.Geocoding.BreakerCooloff,
	}, logger)

	placesClient := places.NewGoogleClient(places.Options{
		BaseURL:   cfg.Providers.Places.BaseURL,
		Timeout:   cfg.Providers.Places.Timeout,
		RateLimit: cfg.Providers.Places.RateLimit,
		RateBurst: cfg.Providers.Places.RateBurst,
	}, logger)

	locationRepo := location.NewPostgresLocationRepository(pool, logger)
	locationService := location.NewService(geocodingClient, locationRepo, location.Options{
		ConfidenceThreshold: cfg.Recommendation.ConfidenceThreshold,
		AdministrativeTypes: cfg.Recommendation.AdministrativeTypes,
		CitySuffixes:        cfg.Recommendation.CitySuffixes,
		LocaleBias:          cfg.Recommendation.LocaleBias,
	}, logger)

	promptRepo := planner.NewPostgresPromptRepository(pool, cfg.Prompts.CacheTTL, logger)
	plannerService := planner.NewService(aiClient, promptRepo, planner.Options{
		PromptName:      cfg.Prompts.SearchStrategy,
		PlanningTimeout: cfg.Recommendation.PlanningTimeout,
		Temperature:     cfg.Gemini.Temperature,
	}, logger)

	recommendationRepo := recommendation.NewPostgresRecommendationRepository(pool, logger)
	recommendationService := recommendation.NewService(
		locationService,
		plannerService,
		placesClient,
		recommendationRepo,
		recommendation.Options{
			ResultsPerCategory: cfg.Recommendation.ResultsPerCategory,
			CategoryTimeout:    cfg.Recommendation.CategoryTimeout,
			LocaleBias:         cfg.Recommendation.LocaleBias,
		},
		logger,
	)
	recommendationHandler := recommendation.NewRecommendationHandler(recommendationService, logger)

	itineraryService := itinerary.NewService(aiClient, promptRepo, itinerary.Options{
		PromptName: cfg.Prompts.ItineraryNarrative,
	}, logger)
	itineraryHandler := itinerary.NewItineraryHandler(itineraryService, logger)

	return &Container{
		Config:                cfg,
		Logger:                logger,
		Pool:                  pool,
		RecommendationHandler: recommendationHandler,
		ItineraryHandler:      itineraryHandler,
	}, nil
}

// Close releases all resources held by the container
func (c *Container) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// WaitForDB waits for the database to be ready
func (c *Container) WaitForDB(ctx context.Context) bool {
	return database.WaitForDB(ctx, c.Pool, c.Logger)
}

// RunMigrations runs database migrations
func (c *Container) RunMigrations(connectionURL string) error {
	return database.RunMigrations(connectionURL, c.Logger)
}
