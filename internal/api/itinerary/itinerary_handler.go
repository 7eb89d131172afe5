package itinerary

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/itinero-app/itinero/internal/api"
	"github.com/itinero-app/itinero/internal/types"
)

type Handler struct {
	logger  *slog.Logger
	service Service
}

func NewItineraryHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
	}
}

// GenerateNarrative handles POST /itineraries/narrative.
func (h *Handler) GenerateNarrative(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ItineraryHandler").Start(r.Context(), "GenerateNarrative")
	defer span.End()

	l := h.logger.With(slog.String("method", "GenerateNarrative"))

	var req NarrativeRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Invalid request body", slog.Any("error", err))
		span.SetStatus(codes.Error, "Invalid request body")
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if msg := validateNarrativeRequest(&req); msg != "" {
		l.WarnContext(ctx, "Request validation failed", slog.String("reason", msg))
		span.SetStatus(codes.Error, "Validation failed")
		api.ErrorResponse(w, r, http.StatusBadRequest, msg)
		return
	}

	span.SetAttributes(attribute.String("itinerary.city", req.City))
	l.InfoContext(ctx, "Generating itinerary narrative",
		slog.String("city", req.City), slog.Int("duration_days", req.DurationDays))

	narrative, err := h.service.GenerateNarrative(ctx, req)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, types.ErrInvalidGenerativeOutput) {
			l.ErrorContext(ctx, "Narrative output unusable", slog.Any("error", err))
			span.SetStatus(codes.Error, "Unusable narrative output")
			api.ErrorResponse(w, r, http.StatusBadGateway, "Narrative generation produced unusable output, try again")
			return
		}
		l.ErrorContext(ctx, "Narrative generation failed", slog.Any("error", err))
		span.SetStatus(codes.Error, "Service operation failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to generate itinerary narrative")
		return
	}

	span.SetStatus(codes.Ok, "Narrative returned")
	api.WriteJSONResponse(w, r, http.StatusOK, narrative)
}

func validateNarrativeRequest(req *NarrativeRequest) string {
	req.City = strings.TrimSpace(req.City)
	req.Country = strings.TrimSpace(req.Country)
	placeCount := 0
	for _, categoryResult := range req.Categories {
		placeCount += len(categoryResult.Places)
	}
	switch {
	case req.City == "":
		return "city is required"
	case req.DurationDays < 1 || req.DurationDays > 30:
		return "duration_days must be between 1 and 30"
	case placeCount == 0:
		return "categories must contain at least one place"
	}
	return ""
}
