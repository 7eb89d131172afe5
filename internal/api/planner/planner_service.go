package planner

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

const maxQueryLength = 120

var _ Service = (*ServiceImpl)(nil)

// Generator is the generative text collaborator used for query brainstorming.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error)
}

// Service builds one places-search query per category for a resolved
// location, diversified against the names already recommended for that city.
type Service interface {
	Plan(ctx context.Context, loc types.CanonicalLocation, req types.RecommendationRequest, exclusions []string) (map[types.Category]string, bool)
}

type Options struct {
	PromptName      string
	PlanningTimeout time.Duration
	Temperature     float32
}

type ServiceImpl struct {
	logger     *slog.Logger
	generator  Generator
	promptRepo PromptRepository
	opts       Options
}

func NewService(generator Generator, promptRepo PromptRepository, opts Options, logger *slog.Logger) *ServiceImpl {
	if opts.PromptName == "" {
		opts.PromptName = "search_strategy_v1"
	}
	if opts.PlanningTimeout == 0 {
		opts.PlanningTimeout = 20 * time.Second
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.5
	}
	return &ServiceImpl{
		logger:     logger,
		generator:  generator,
		promptRepo: promptRepo,
		opts:       opts,
	}
}

// Plan returns a search query per category plus a degraded flag. Planning
// never fails the pipeline: any LLM or template problem downgrades to the
// deterministic per-category queries.
func (s *ServiceImpl) Plan(ctx context.Context, loc types.CanonicalLocation, req types.RecommendationRequest, exclusions []string) (map[types.Category]string, bool) {
	ctx, span := otel.Tracer("PlannerService").Start(ctx, "Plan", trace.WithAttributes(
		attribute.String("location.city", loc.City),
		attribute.Int("plan.exclusion_count", len(exclusions)),
	))
	defer span.End()

	brainstormed, err := s.brainstorm(ctx, loc, req, exclusions)
	if err != nil {
		s.logger.WarnContext(ctx, "Query brainstorm failed, using deterministic queries", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Ok, "Planning degraded")
		return s.fallbackQueries(loc), true
	}

	degraded := false
	queries := make(map[types.Category]string, len(types.Categories()))
	fallback := s.fallbackQueries(loc)
	for _, category := range types.Categories() {
		query, ok := brainstormed[category]
		if !ok || !s.validQuery(query, loc.City) {
			s.logger.WarnContext(ctx, "Brainstormed query rejected, using deterministic query",
				slog.String("category", string(category)), slog.String("query", query))
			queries[category] = fallback[category]
			degraded = true
			continue
		}
		queries[category] = strings.TrimSpace(query)
	}

	span.SetAttributes(attribute.Bool("plan.degraded", degraded))
	span.SetStatus(codes.Ok, "Plan ready")
	return queries, degraded
}

func (s *ServiceImpl) brainstorm(ctx context.Context, loc types.CanonicalLocation, req types.RecommendationRequest, exclusions []string) (map[types.Category]string, error) {
	template, err := s.promptRepo.GetPrompt(ctx, s.opts.PromptName)
	if err != nil {
		return nil, fmt.Errorf("failed to load planning prompt: %w", err)
	}

	prompt := renderPrompt(template, promptVars(loc, req, exclusions))

	ctx, cancel := context.WithTimeout(ctx, s.opts.PlanningTimeout)
	defer cancel()

	config := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](s.opts.Temperature)}
	response, err := s.generator.GenerateContent(ctx, prompt, config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate search queries: %w", err)
	}

	var parsed map[string]string
	if err := json.Unmarshal([]byte(extractJSON(response)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search query JSON: %w", types.ErrInvalidGenerativeOutput)
	}

	queries := make(map[types.Category]string, len(parsed))
	for key, value := range parsed {
		category := types.Category(strings.ToLower(strings.TrimSpace(key)))
		if category.IsValid() {
			queries[category] = value
		}
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("no usable categories in response: %w", types.ErrInvalidGenerativeOutput)
	}
	return queries, nil
}

// validQuery rejects queries that are empty, overlong, or too generic to be
// sent to the places provider. Every usable query names the city.
func (s *ServiceImpl) validQuery(query, city string) bool {
	query = strings.TrimSpace(query)
	if query == "" || len(query) > maxQueryLength {
		return false
	}
	if len(strings.Fields(query)) < 2 {
		return false
	}
	return strings.Contains(strings.ToLower(query), strings.ToLower(city))
}

func (s *ServiceImpl) fallbackQueries(loc types.CanonicalLocation) map[types.Category]string {
	where := loc.City
	if loc.Country != "" {
		where = fmt.Sprintf("%s %s", loc.City, loc.Country)
	}
	return map[types.Category]string{
		types.CategoryTourism:       fmt.Sprintf("top tourist attractions and sights in %s", where),
		types.CategoryFood:          fmt.Sprintf("best local restaurants and food in %s", where),
		types.CategoryActivity:      fmt.Sprintf("fun activities and entertainment in %s", where),
		types.CategoryAccommodation: fmt.Sprintf("well reviewed hotels in %s", where),
	}
}
