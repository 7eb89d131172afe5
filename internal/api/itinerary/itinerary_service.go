package itinerary

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/itinero-app/itinero/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

// Generator is the generative text collaborator used for narrative writing.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error)
}

// PromptStore loads named prompt templates.
type PromptStore interface {
	GetPrompt(ctx context.Context, name string) (string, error)
}

// NarrativeRequest describes the trip a narrative should be written for.
// Categories carries the recommended places from a completed recommendation.
type NarrativeRequest struct {
	City         string                 `json:"city"`
	Country      string                 `json:"country"`
	DurationDays int                    `json:"duration_days"`
	Travelers    int                    `json:"travelers_count"`
	Style        string                 `json:"style,omitempty"`
	Categories   []types.CategoryResult `json:"categories"`
}

// Service turns a set of recommended places into day-by-day itinerary prose.
// Unlike search planning, there is no deterministic fallback for prose: output
// that does not parse is an error.
type Service interface {
	GenerateNarrative(ctx context.Context, req NarrativeRequest) (*types.ItineraryNarrative, error)
}

type Options struct {
	PromptName  string
	Timeout     time.Duration
	Temperature float32
}

type ServiceImpl struct {
	logger    *slog.Logger
	generator Generator
	prompts   PromptStore
	opts      Options
}

func NewService(generator Generator, prompts PromptStore, opts Options, logger *slog.Logger) *ServiceImpl {
	if opts.PromptName == "" {
		opts.PromptName = "itinerary_narrative_v1"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.8
	}
	return &ServiceImpl{
		logger:    logger,
		generator: generator,
		prompts:   prompts,
		opts:      opts,
	}
}

func (s *ServiceImpl) GenerateNarrative(ctx context.Context, req NarrativeRequest) (*types.ItineraryNarrative, error) {
	ctx, span := otel.Tracer("ItineraryService").Start(ctx, "GenerateNarrative", trace.WithAttributes(
		attribute.String("itinerary.city", req.City),
		attribute.Int("itinerary.duration_days", req.DurationDays),
	))
	defer span.End()

	template, err := s.prompts.GetPrompt(ctx, s.opts.PromptName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Prompt load failed")
		return nil, fmt.Errorf("failed to load narrative prompt: %w", err)
	}

	prompt := renderNarrativePrompt(template, req)

	genCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](s.opts.Temperature)}
	response, err := s.generator.GenerateContent(genCtx, prompt, config)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Generation failed")
		return nil, fmt.Errorf("failed to generate itinerary narrative: %w", err)
	}

	narrative, err := parseNarrative(response)
	if err != nil {
		s.logger.WarnContext(ctx, "Narrative response did not parse",
			slog.Int("response_length", len(response)), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Unparseable narrative")
		return nil, err
	}

	span.SetStatus(codes.Ok, "Narrative generated")
	return narrative, nil
}

// renderNarrativePrompt fills the template's placeholders, flattening the
// per-category places into a readable list the model can draw from.
func renderNarrativePrompt(template string, req NarrativeRequest) string {
	var placeLines []string
	for _, categoryResult := range req.Categories {
		for _, place := range categoryResult.Places {
			line := fmt.Sprintf("- [%s] %s", categoryResult.Category, place.Name)
			if place.Address != "" {
				line += " (" + place.Address + ")"
			}
			placeLines = append(placeLines, line)
		}
	}

	style := strings.TrimSpace(req.Style)
	if style == "" {
		style = "general sightseeing"
	}

	replacements := map[string]string{
		"{{city}}":      req.City,
		"{{country}}":   req.Country,
		"{{duration}}":  fmt.Sprintf("%d", req.DurationDays),
		"{{travelers}}": fmt.Sprintf("%d", req.Travelers),
		"{{style}}":     style,
		"{{places}}":    strings.Join(placeLines, "\n"),
	}
	rendered := template
	for placeholder, value := range replacements {
		rendered = strings.ReplaceAll(rendered, placeholder, value)
	}
	return rendered
}

func parseNarrative(response string) (*types.ItineraryNarrative, error) {
	cleaned := strings.TrimSpace(response)
	if idx := strings.Index(cleaned, "```json"); idx >= 0 {
		cleaned = cleaned[idx+len("```json"):]
		if end := strings.Index(cleaned, "```"); end >= 0 {
			cleaned = cleaned[:end]
		}
	} else if start := strings.Index(cleaned, "{"); start >= 0 {
		if end := strings.LastIndex(cleaned, "}"); end > start {
			cleaned = cleaned[start : end+1]
		}
	}

	var narrative types.ItineraryNarrative
	if err := json.Unmarshal([]byte(cleaned), &narrative); err != nil {
		return nil, fmt.Errorf("narrative JSON did not parse: %w", types.ErrInvalidGenerativeOutput)
	}
	if narrative.Title == "" || len(narrative.Days) == 0 {
		return nil, fmt.Errorf("narrative JSON missing title or days: %w", types.ErrInvalidGenerativeOutput)
	}
	return &narrative, nil
}
