package recommendation

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/itinero-app/itinero/internal/api"
	"github.com/itinero-app/itinero/internal/types"
)

type Handler struct {
	logger  *slog.Logger
	service Service
}

func NewRecommendationHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
	}
}

// GetRecommendations handles POST /recommendations. An ambiguous location
// returns 200 with status "ambiguous" and the options to pick from; the
// client resubmits the same payload plus the chosen region.
func (h *Handler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("RecommendationHandler").Start(r.Context(), "GetRecommendations")
	defer span.End()

	l := h.logger.With(slog.String("method", "GetRecommendations"))

	var req types.RecommendationRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Invalid request body", slog.Any("error", err))
		span.SetStatus(codes.Error, "Invalid request body")
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if msg := validateRequest(&req); msg != "" {
		l.WarnContext(ctx, "Request validation failed", slog.String("reason", msg))
		span.SetStatus(codes.Error, "Validation failed")
		api.ErrorResponse(w, r, http.StatusBadRequest, msg)
		return
	}

	span.SetAttributes(
		attribute.String("request.city", req.City),
		attribute.String("request.country", req.Country),
	)
	l.InfoContext(ctx, "Generating recommendations",
		slog.String("city", req.City), slog.String("country", req.Country))

	outcome, err := h.service.Recommend(ctx, req)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, types.ErrAllCategoriesFailed) {
			l.ErrorContext(ctx, "All category searches failed", slog.Any("error", err))
			span.SetStatus(codes.Error, "Upstream searches failed")
			api.ErrorResponse(w, r, http.StatusBadGateway, "Place search is currently unavailable, try again shortly")
			return
		}
		l.ErrorContext(ctx, "Recommendation pipeline failed", slog.Any("error", err))
		span.SetStatus(codes.Error, "Service operation failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to generate recommendations")
		return
	}

	span.SetStatus(codes.Ok, "Recommendations returned")
	api.WriteJSONResponse(w, r, http.StatusOK, outcome)
}

// GetCityStats handles GET /recommendations/stats/{cityID}.
func (h *Handler) GetCityStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("RecommendationHandler").Start(r.Context(), "GetCityStats", trace.WithAttributes(
		attribute.String("city.id", chi.URLParam(r, "cityID")),
	))
	defer span.End()

	l := h.logger.With(slog.String("method", "GetCityStats"))

	cityID, err := uuid.Parse(chi.URLParam(r, "cityID"))
	if err != nil {
		l.WarnContext(ctx, "Invalid city ID", slog.Any("error", err))
		span.SetStatus(codes.Error, "Invalid city ID")
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid city ID format")
		return
	}

	count, err := h.service.Stats(ctx, cityID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to count cached places", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Service operation failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to retrieve city stats")
		return
	}

	span.SetStatus(codes.Ok, "Stats returned")
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]interface{}{
		"city_id":                 cityID,
		"recommended_place_count": count,
	})
}

func validateRequest(req *types.RecommendationRequest) string {
	req.City = strings.TrimSpace(req.City)
	req.Country = strings.TrimSpace(req.Country)
	req.Region = strings.TrimSpace(req.Region)
	switch {
	case req.City == "":
		return "city is required"
	case req.Country == "":
		return "country is required"
	case req.DurationDays < 1 || req.DurationDays > 30:
		return "duration_days must be between 1 and 30"
	case req.TravelersCount < 1 || req.TravelersCount > 20:
		return "travelers_count must be between 1 and 20"
	}
	return ""
}
