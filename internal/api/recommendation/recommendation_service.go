package recommendation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/itinero-app/itinero/app/observability/metrics"
	"github.com/itinero-app/itinero/internal/api/location"
	"github.com/itinero-app/itinero/internal/api/places"
	"github.com/itinero-app/itinero/internal/api/planner"
	"github.com/itinero-app/itinero/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

// Service runs the full recommendation pipeline: resolve the location,
// plan one search query per category, search all categories in parallel,
// deduplicate against earlier recommendations, and persist the survivors.
type Service interface {
	Recommend(ctx context.Context, req types.RecommendationRequest) (*types.RecommendationOutcome, error)
	Stats(ctx context.Context, cityID uuid.UUID) (int64, error)
}

type Options struct {
	ResultsPerCategory int
	CategoryTimeout    time.Duration
	LocaleBias         string
}

func (o *Options) applyDefaults() {
	if o.ResultsPerCategory == 0 {
		o.ResultsPerCategory = 5
	}
	if o.CategoryTimeout == 0 {
		o.CategoryTimeout = 10 * time.Second
	}
	if o.LocaleBias == "" {
		o.LocaleBias = "en"
	}
}

type ServiceImpl struct {
	logger          *slog.Logger
	locationService location.Service
	plannerService  planner.Service
	placesProvider  places.Provider
	repo            Repository
	opts            Options
}

func NewService(
	locationService location.Service,
	plannerService planner.Service,
	placesProvider places.Provider,
	repo Repository,
	opts Options,
	logger *slog.Logger,
) *ServiceImpl {
	opts.applyDefaults()
	return &ServiceImpl{
		logger:          logger,
		locationService: locationService,
		plannerService:  plannerService,
		placesProvider:  placesProvider,
		repo:            repo,
		opts:            opts,
	}
}

// categorySearch is one fan-out unit: a category and the query planned for it.
type categorySearch struct {
	category types.Category
	query    string
}

// categoryOutcome is the raw per-category result collected from the fan-out
// before deduplication.
type categoryOutcome struct {
	category types.Category
	places   []types.PlaceResult
	err      error
}

func (s *ServiceImpl) Recommend(ctx context.Context, req types.RecommendationRequest) (*types.RecommendationOutcome, error) {
	ctx, span := otel.Tracer("RecommendationService").Start(ctx, "Recommend", trace.WithAttributes(
		attribute.String("request.city", req.City),
		attribute.String("request.country", req.Country),
	))
	defer span.End()

	metrics.Get().RecommendationRequestsTotal.Add(ctx, 1)

	loc, degraded, outcome, err := s.resolveLocation(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Location resolution failed")
		return nil, err
	}
	if outcome != nil {
		metrics.Get().AmbiguousResolutionsTotal.Add(ctx, 1)
		span.SetStatus(codes.Ok, "Ambiguous location")
		return outcome, nil
	}

	exclusions := s.loadExclusions(ctx, loc)

	queries, planningDegraded := s.plannerService.Plan(ctx, *loc, req, exclusions)

	outcomes := s.searchCategories(ctx, queries)

	result, err := s.assembleResult(ctx, loc, exclusions, outcomes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "All category searches failed")
		return nil, err
	}
	result.Degraded = degraded || planningDegraded || len(result.FailedCategories) > 0
	result.PlanningDegraded = planningDegraded
	result.PreviouslyRecommended = len(exclusions)

	if loc.CityID != uuid.Nil {
		s.persist(ctx, result)
	}

	if result.Degraded {
		metrics.Get().RecommendationDegradedTotal.Add(ctx, 1)
	}
	span.SetAttributes(
		attribute.Bool("recommendation.degraded", result.Degraded),
		attribute.Int("recommendation.new_places", result.NewlyRecommended),
	)
	span.SetStatus(codes.Ok, "Recommendation completed")
	return &types.RecommendationOutcome{Status: types.RecommendationCompleted, Result: result}, nil
}

func (s *ServiceImpl) Stats(ctx context.Context, cityID uuid.UUID) (int64, error) {
	return s.repo.CountByCity(ctx, cityID)
}

// resolveLocation produces the canonical location for the request. Returns a
// non-nil outcome when the input is ambiguous, and a degraded raw-input
// location when the geocoder is unavailable.
func (s *ServiceImpl) resolveLocation(ctx context.Context, req types.RecommendationRequest) (*types.CanonicalLocation, bool, *types.RecommendationOutcome, error) {
	// A region in the request means the caller already picked one of the
	// disambiguation options; resolving again could be ambiguous forever.
	if strings.TrimSpace(req.Region) != "" {
		loc := &types.CanonicalLocation{
			City:    strings.TrimSpace(req.City),
			Region:  strings.TrimSpace(req.Region),
			Country: strings.TrimSpace(req.Country),
		}
		if err := s.locationService.EnsureCanonical(ctx, loc); err != nil {
			return nil, false, nil, fmt.Errorf("failed to canonicalize selected location: %w", err)
		}
		return loc, false, nil, nil
	}

	resolution, err := s.locationService.Resolve(ctx, req.City, req.Country)
	if err != nil {
		if errors.Is(err, types.ErrResolutionUnavailable) {
			s.logger.WarnContext(ctx, "Location resolution unavailable, continuing with raw input",
				slog.String("city", req.City), slog.Any("error", err))
			loc := &types.CanonicalLocation{
				City:    strings.TrimSpace(req.City),
				Country: strings.TrimSpace(req.Country),
			}
			if err := s.locationService.EnsureCanonical(ctx, loc); err != nil {
				s.logger.WarnContext(ctx, "Could not store raw location, results will not be cached",
					slog.Any("error", err))
				loc.CityID = uuid.Nil
			}
			return loc, true, nil, nil
		}
		return nil, false, nil, err
	}

	if resolution.Status == types.ResolutionAmbiguous {
		s.logger.InfoContext(ctx, "Returning disambiguation options",
			slog.String("city", req.City), slog.Int("options", len(resolution.Options)))
		return nil, false, &types.RecommendationOutcome{
			Status:  types.RecommendationAmbiguous,
			Options: resolution.Options,
			Message: fmt.Sprintf("Multiple locations match %q. Pick one and resubmit with its region.", req.City),
		}, nil
	}
	return resolution.Location, false, nil, nil
}

// loadExclusions returns the names already recommended for the city. A read
// failure degrades to an empty set rather than failing the request.
func (s *ServiceImpl) loadExclusions(ctx context.Context, loc *types.CanonicalLocation) []string {
	if loc.CityID == uuid.Nil {
		return nil
	}
	exclusions, err := s.repo.GetExclusionSet(ctx, loc.CityID)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to load exclusion set, recommendations may repeat",
			slog.String("city_id", loc.CityID.String()), slog.Any("error", err))
		return nil
	}
	return exclusions
}

// searchCategories fans out one provider search per category and collects
// every outcome. Each search gets its own timeout so a slow category cannot
// starve the rest. Searches are shielded from caller cancellation so that a
// client disconnect still lets in-flight results land in the cache.
func (s *ServiceImpl) searchCategories(ctx context.Context, queries map[types.Category]string) map[types.Category]categoryOutcome {
	searches := make([]categorySearch, 0, len(queries))
	for category, query := range queries {
		searches = append(searches, categorySearch{category: category, query: query})
	}

	detachedCtx := context.WithoutCancel(ctx)
	resultCh := make(chan categoryOutcome, len(searches))
	var wg sync.WaitGroup
	for _, search := range searches {
		wg.Add(1)
		go func(search categorySearch) {
			defer wg.Done()
			searchCtx, cancel := context.WithTimeout(detachedCtx, s.opts.CategoryTimeout)
			defer cancel()

			start := time.Now()
			results, err := s.placesProvider.SearchText(searchCtx, search.query, s.opts.LocaleBias)
			metrics.Get().ProviderCallDurationSeconds.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(attribute.String("provider", "places"), attribute.String("category", string(search.category))))
			if err != nil {
				s.logger.WarnContext(ctx, "Category search failed",
					slog.String("category", string(search.category)),
					slog.String("query", search.query),
					slog.Any("error", err))
				metrics.Get().CategorySearchFailuresTotal.Add(ctx, 1,
					metric.WithAttributes(attribute.String("category", string(search.category))))
				resultCh <- categoryOutcome{category: search.category, err: err}
				return
			}
			resultCh <- categoryOutcome{category: search.category, places: results}
		}(search)
	}
	wg.Wait()
	close(resultCh)

	outcomes := make(map[types.Category]categoryOutcome, len(searches))
	for outcome := range resultCh {
		outcomes[outcome.category] = outcome
	}
	return outcomes
}

// assembleResult deduplicates the raw search results and lays the categories
// out in their fixed presentation order. Walking the fixed order makes the
// cross-category winner deterministic no matter which search finished first.
func (s *ServiceImpl) assembleResult(ctx context.Context, loc *types.CanonicalLocation, exclusions []string, outcomes map[types.Category]categoryOutcome) (*types.RecommendationResult, error) {
	excludedNames := make(map[string]struct{}, len(exclusions))
	for _, name := range exclusions {
		excludedNames[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	seenIDs := make(map[string]struct{})
	seenNames := make(map[string]struct{})

	result := &types.RecommendationResult{
		CityID:  loc.CityID,
		City:    loc.City,
		Region:  loc.Region,
		Country: loc.Country,
	}

	newCount := 0
	failures := 0
	for _, category := range types.Categories() {
		outcome, ok := outcomes[category]
		if !ok || outcome.err != nil {
			failures++
			result.FailedCategories = append(result.FailedCategories, category)
			result.Categories = append(result.Categories, types.CategoryResult{
				Category: category,
				Places:   []types.PlaceResult{},
				Failed:   true,
			})
			continue
		}

		kept := make([]types.PlaceResult, 0, s.opts.ResultsPerCategory)
		for _, place := range outcome.places {
			if len(kept) == s.opts.ResultsPerCategory {
				break
			}
			nameKey := strings.ToLower(strings.TrimSpace(place.Name))
			if nameKey == "" || place.ExternalID == "" {
				continue
			}
			if _, excluded := excludedNames[nameKey]; excluded {
				continue
			}
			if _, dup := seenIDs[place.ExternalID]; dup {
				continue
			}
			if _, dup := seenNames[nameKey]; dup {
				continue
			}
			seenIDs[place.ExternalID] = struct{}{}
			seenNames[nameKey] = struct{}{}
			kept = append(kept, place)
		}
		newCount += len(kept)
		result.Categories = append(result.Categories, types.CategoryResult{
			Category: category,
			Places:   kept,
		})
	}

	if failures == len(types.Categories()) {
		return nil, fmt.Errorf("no category search succeeded for %q: %w", loc.City, types.ErrAllCategoriesFailed)
	}

	result.NewlyRecommended = newCount
	return result, nil
}

// persist writes the fresh places to the cache. Persistence is opportunistic:
// it runs even if the caller's context is already cancelled, and a failure
// only clears the Persisted flag.
func (s *ServiceImpl) persist(ctx context.Context, result *types.RecommendationResult) {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	result.Persisted = true
	for _, categoryResult := range result.Categories {
		if len(categoryResult.Places) == 0 {
			continue
		}
		written, err := s.repo.PersistPlaces(persistCtx, result.CityID, categoryResult.Category, categoryResult.Places)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to persist recommended places",
				slog.String("category", string(categoryResult.Category)),
				slog.Any("error", err))
			result.Persisted = false
			continue
		}
		metrics.Get().CachedPlacesPersistedTotal.Add(ctx, int64(written),
			metric.WithAttributes(attribute.String("category", string(categoryResult.Category))))
	}
}
