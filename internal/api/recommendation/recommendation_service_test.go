package recommendation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/itinero-app/itinero/internal/types"
)

// MockLocationService is a mock implementation of location.Service
type MockLocationService struct {
	mock.Mock
}

func (m *MockLocationService) Resolve(ctx context.Context, rawCity, rawCountry string) (*types.Resolution, error) {
	args := m.Called(ctx, rawCity, rawCountry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Resolution), args.Error(1)
}

func (m *MockLocationService) EnsureCanonical(ctx context.Context, loc *types.CanonicalLocation) error {
	args := m.Called(ctx, loc)
	return args.Error(0)
}

// MockPlannerService is a mock implementation of planner.Service
type MockPlannerService struct {
	mock.Mock
}

func (m *MockPlannerService) Plan(ctx context.Context, loc types.CanonicalLocation, req types.RecommendationRequest, exclusions []string) (map[types.Category]string, bool) {
	args := m.Called(ctx, loc, req, exclusions)
	return args.Get(0).(map[types.Category]string), args.Bool(1)
}

// MockPlacesProvider is a mock implementation of places.Provider
type MockPlacesProvider struct {
	mock.Mock
}

func (m *MockPlacesProvider) SearchText(ctx context.Context, query, localeBias string) ([]types.PlaceResult, error) {
	args := m.Called(ctx, query, localeBias)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.PlaceResult), args.Error(1)
}

// MockRecommendationRepository is a mock implementation of Repository
type MockRecommendationRepository struct {
	mock.Mock
}

func (m *MockRecommendationRepository) GetExclusionSet(ctx context.Context, cityID uuid.UUID) ([]string, error) {
	args := m.Called(ctx, cityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRecommendationRepository) CountByCity(ctx context.Context, cityID uuid.UUID) (int64, error) {
	args := m.Called(ctx, cityID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRecommendationRepository) PersistPlaces(ctx context.Context, cityID uuid.UUID, category types.Category, places []types.PlaceResult) (int, error) {
	args := m.Called(ctx, cityID, category, places)
	return args.Int(0), args.Error(1)
}

func setupRecommendationServiceTest() (*ServiceImpl, *MockLocationService, *MockPlannerService, *MockPlacesProvider, *MockRecommendationRepository) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mockLocation := new(MockLocationService)
	mockPlanner := new(MockPlannerService)
	mockPlaces := new(MockPlacesProvider)
	mockRepo := new(MockRecommendationRepository)
	service := NewService(mockLocation, mockPlanner, mockPlaces, mockRepo, Options{ResultsPerCategory: 3}, logger)
	return service, mockLocation, mockPlanner, mockPlaces, mockRepo
}

func resolvedGwangju(cityID uuid.UUID) *types.Resolution {
	return &types.Resolution{
		Status: types.ResolutionResolved,
		Location: &types.CanonicalLocation{
			City: "Gwangju", Region: "Gwangju", Country: "South Korea", CityID: cityID,
		},
	}
}

func fullQueries() map[types.Category]string {
	return map[types.Category]string{
		types.CategoryTourism:       "attractions in Gwangju",
		types.CategoryFood:          "restaurants in Gwangju",
		types.CategoryActivity:      "activities in Gwangju",
		types.CategoryAccommodation: "hotels in Gwangju",
	}
}

func baseRequest() types.RecommendationRequest {
	return types.RecommendationRequest{
		City: "Gwangju", Country: "South Korea",
		DurationDays: 3, TravelersCount: 2,
	}
}

func placesFor(prefix string, n int) []types.PlaceResult {
	out := make([]types.PlaceResult, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, types.PlaceResult{
			ExternalID: prefix + "-" + string(rune('a'+i)),
			Name:       prefix + " place " + string(rune('a'+i)),
		})
	}
	return out
}

func TestRecommendationServiceImpl_Recommend(t *testing.T) {
	ctx := context.Background()

	t.Run("full pipeline success", func(t *testing.T) {
		service, mockLocation, mockPlanner, mockPlaces, mockRepo := setupRecommendationServiceTest()
		cityID := uuid.New()

		mockLocation.On("Resolve", mock.Anything, "Gwangju", "South Korea").
			Return(resolvedGwangju(cityID), nil).Once()
		mockRepo.On("GetExclusionSet", mock.Anything, cityID).Return([]string{}, nil).Once()
		mockPlanner.On("Plan", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(fullQueries(), false).Once()
		for category, query := range fullQueries() {
			mockPlaces.On("SearchText", mock.Anything, query, "en").
				Return(placesFor(string(category), 3), nil).Once()
		}
		mockRepo.On("PersistPlaces", mock.Anything, cityID, mock.Anything, mock.Anything).
			Return(3, nil).Times(4)

		outcome, err := service.Recommend(ctx, baseRequest())
		require.NoError(t, err)
		assert.Equal(t, types.RecommendationCompleted, outcome.Status)
		require.NotNil(t, outcome.Result)
		assert.False(t, outcome.Result.Degraded)
		assert.True(t, outcome.Result.Persisted)
		assert.Equal(t, 12, outcome.Result.NewlyRecommended)
		// Categories come back in fixed presentation order.
		require.Len(t, outcome.Result.Categories, 4)
		for i, category := range types.Categories() {
			assert.Equal(t, category, outcome.Result.Categories[i].Category)
			assert.Len(t, outcome.Result.Categories[i].Places, 3)
		}
		mockPlaces.AssertExpectations(t)
		mockRepo.AssertExpectations(t)
	})

	t.Run("ambiguous location short-circuits", func(t *testing.T) {
		service, mockLocation, mockPlanner, mockPlaces, mockRepo := setupRecommendationServiceTest()

		mockLocation.On("Resolve", mock.Anything, "Gwangju", "South Korea").
			Return(&types.Resolution{
				Status: types.ResolutionAmbiguous,
				Options: []types.DisambiguationOption{
					{DisplayLabel: "Gwangju, South Korea", City: "Gwangju", Region: "Gwangju", Country: "South Korea"},
					{DisplayLabel: "Gwangju-si, Gyeonggi-do, South Korea", City: "Gwangju-si", Region: "Gyeonggi-do", Country: "South Korea"},
				},
			}, nil).Once()

		outcome, err := service.Recommend(ctx, baseRequest())
		require.NoError(t, err)
		assert.Equal(t, types.RecommendationAmbiguous, outcome.Status)
		assert.Nil(t, outcome.Result)
		assert.Len(t, outcome.Options, 2)
		mockPlanner.AssertNotCalled(t, "Plan", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		mockPlaces.AssertNotCalled(t, "SearchText", mock.Anything, mock.Anything, mock.Anything)
		mockRepo.AssertNotCalled(t, "GetExclusionSet", mock.Anything, mock.Anything)
	})

	t.Run("region in request skips resolution", func(t *testing.T) {
		service, mockLocation, mockPlanner, mockPlaces, mockRepo := setupRecommendationServiceTest()
		cityID := uuid.New()

		mockLocation.On("EnsureCanonical", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				loc := args.Get(1).(*types.CanonicalLocation)
				loc.CityID = cityID
			}).Return(nil).Once()
		mockRepo.On("GetExclusionSet", mock.Anything, cityID).Return([]string{}, nil).Once()
		mockPlanner.On("Plan", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(fullQueries(), false).Once()
		mockPlaces.On("SearchText", mock.Anything, mock.Anything, "en").
			Return(placesFor("x", 1), nil).Times(4)
		mockRepo.On("PersistPlaces", mock.Anything, cityID, mock.Anything, mock.Anything).
			Return(1, nil).Maybe()

		req := baseRequest()
		req.Region = "Gyeonggi-do"
		outcome, err := service.Recommend(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, types.RecommendationCompleted, outcome.Status)
		mockLocation.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("geocoder outage degrades to raw input", func(t *testing.T) {
		service, mockLocation, mockPlanner, mockPlaces, mockRepo := setupRecommendationServiceTest()
		cityID := uuid.New()

		mockLocation.On("Resolve", mock.Anything, "Gwangju", "South Korea").
			Return(nil, types.ErrResolutionUnavailable).Once()
		mockLocation.On("EnsureCanonical", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				loc := args.Get(1).(*types.CanonicalLocation)
				loc.CityID = cityID
			}).Return(nil).Once()
		mockRepo.On("GetExclusionSet", mock.Anything, cityID).Return([]string{}, nil).Once()
		mockPlanner.On("Plan", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(fullQueries(), false).Once()
		mockPlaces.On("SearchText", mock.Anything, mock.Anything, "en").
			Return(placesFor("x", 1), nil).Times(4)
		mockRepo.On("PersistPlaces", mock.Anything, cityID, mock.Anything, mock.Anything).
			Return(1, nil).Maybe()

		outcome, err := service.Recommend(ctx, baseRequest())
		require.NoError(t, err)
		assert.Equal(t, types.RecommendationCompleted, outcome.Status)
		assert.True(t, outcome.Result.Degraded)
	})

	t.Run("one failed category degrades but completes", func(t *testing.T) {
		service, mockLocation, mockPlanner, mockPlaces, mockRepo := setupRecommendationServiceTest()
		cityID := uuid.New()
		queries := fullQueries()

		mockLocation.On("Resolve", mock.Anything, "Gwangju", "South Korea").
			Return(resolvedGwangju(cityID), nil).Once()
		mockRepo.On("GetExclusionSet", mock.Anything, cityID).Return([]string{}, nil).Once()
		mockPlanner.On("Plan", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(queries, false).Once()
		for category, query := range queries {
			if category == types.CategoryFood {
				mockPlaces.On("SearchText", mock.Anything, query, "en").
					Return(nil, errors.New("timeout")).Once()
				continue
			}
			mockPlaces.On("SearchText", mock.Anything, query, "en").
				Return(placesFor(string(category), 2), nil).Once()
		}
		mockRepo.On("PersistPlaces", mock.Anything, cityID, mock.Anything, mock.Anything).
			Return(2, nil).Times(3)

		outcome, err := service.Recommend(ctx, baseRequest())
		require.NoError(t, err)
		result := outcome.Result
		assert.True(t, result.Degraded)
		assert.Equal(t, []types.Category{types.CategoryFood}, result.FailedCategories)
		// The failed bucket is present, empty, and flagged.
		assert.True(t, result.Categories[1].Failed)
		assert.Empty(t, result.Categories[1].Places)
		assert.Len(t, result.Categories[0].Places, 2)
	})

	t.Run("all categories failing is an error", func(t *testing.T) {
		service, mockLocation, mockPlanner, mockPlaces, mockRepo := setupRecommendationServiceTest()
		cityID := uuid.New()

		mockLocation.On("Resolve", mock.Anything, "Gwangju", "South Korea").
			Return(resolvedGwangju(cityID), nil).Once()
		mockRepo.On("GetExclusionSet", mock.Anything, cityID).Return([]string{}, nil).Once()
		mockPlanner.On("Plan", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(fullQueries(), false).Once()
		mockPlaces.On("SearchText", mock.Anything, mock.Anything, "en").
			Return(nil, errors.New("service unavailable")).Times(4)

		_, err := service.Recommend(ctx, baseRequest())
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrAllCategoriesFailed)
		mockRepo.AssertNotCalled(t, "PersistPlaces", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("excluded and duplicate places are filtered", func(t *testing.T) {
		service, mockLocation, mockPlanner, mockPlaces, mockRepo := setupRecommendationServiceTest()
		cityID := uuid.New()
		queries := fullQueries()

		mockLocation.On("Resolve", mock.Anything, "Gwangju", "South Korea").
			Return(resolvedGwangju(cityID), nil).Once()
		mockRepo.On("GetExclusionSet", mock.Anything, cityID).
			Return([]string{"Gwangju National Museum"}, nil).Once()
		mockPlanner.On("Plan", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(queries, false).Once()

		shared := types.PlaceResult{ExternalID: "shared-1", Name: "Asia Culture Center"}
		mockPlaces.On("SearchText", mock.Anything, queries[types.CategoryTourism], "en").
			Return([]types.PlaceResult{
				{ExternalID: "t-1", Name: "Gwangju National Museum"}, // already recommended
				shared,
				{ExternalID: "t-2", Name: "Sajik Park"},
			}, nil).Once()
		mockPlaces.On("SearchText", mock.Anything, queries[types.CategoryFood], "en").
			Return([]types.PlaceResult{
				shared, // cross-category duplicate
				{ExternalID: "f-1", Name: "Yangdong Market"},
				{ExternalID: "f-2", Name: "ASIA CULTURE CENTER"}, // name duplicate, different id
			}, nil).Once()
		mockPlaces.On("SearchText", mock.Anything, queries[types.CategoryActivity], "en").
			Return([]types.PlaceResult{}, nil).Once()
		mockPlaces.On("SearchText", mock.Anything, queries[types.CategoryAccommodation], "en").
			Return([]types.PlaceResult{}, nil).Once()
		mockRepo.On("PersistPlaces", mock.Anything, cityID, mock.Anything, mock.Anything).
			Return(0, nil).Maybe()

		outcome, err := service.Recommend(ctx, baseRequest())
		require.NoError(t, err)
		result := outcome.Result

		tourism := result.Categories[0].Places
		require.Len(t, tourism, 2)
		assert.Equal(t, "Asia Culture Center", tourism[0].Name)
		assert.Equal(t, "Sajik Park", tourism[1].Name)

		food := result.Categories[1].Places
		require.Len(t, food, 1)
		assert.Equal(t, "Yangdong Market", food[0].Name)

		assert.Equal(t, 1, result.PreviouslyRecommended)
		assert.Equal(t, 3, result.NewlyRecommended)
	})

	t.Run("result cap per category", func(t *testing.T) {
		service, mockLocation, mockPlanner, mockPlaces, mockRepo := setupRecommendationServiceTest()
		cityID := uuid.New()

		mockLocation.On("Resolve", mock.Anything, "Gwangju", "South Korea").
			Return(resolvedGwangju(cityID), nil).Once()
		mockRepo.On("GetExclusionSet", mock.Anything, cityID).Return([]string{}, nil).Once()
		mockPlanner.On("Plan", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(fullQueries(), false).Once()
		mockPlaces.On("SearchText", mock.Anything, mock.Anything, "en").
			Return(placesFor("many", 10), nil).Once()
		mockPlaces.On("SearchText", mock.Anything, mock.Anything, "en").
			Return([]types.PlaceResult{}, nil).Times(3)
		mockRepo.On("PersistPlaces", mock.Anything, cityID, mock.Anything, mock.Anything).
			Return(3, nil).Maybe()

		outcome, err := service.Recommend(ctx, baseRequest())
		require.NoError(t, err)
		total := 0
		for _, categoryResult := range outcome.Result.Categories {
			assert.LessOrEqual(t, len(categoryResult.Places), 3)
			total += len(categoryResult.Places)
		}
		assert.Equal(t, 3, total)
	})

	t.Run("persistence failure does not fail the request", func(t *testing.T) {
		service, mockLocation, mockPlanner, mockPlaces, mockRepo := setupRecommendationServiceTest()
		cityID := uuid.New()

		mockLocation.On("Resolve", mock.Anything, "Gwangju", "South Korea").
			Return(resolvedGwangju(cityID), nil).Once()
		mockRepo.On("GetExclusionSet", mock.Anything, cityID).Return([]string{}, nil).Once()
		mockPlanner.On("Plan", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(fullQueries(), false).Once()
		mockPlaces.On("SearchText", mock.Anything, mock.Anything, "en").
			Return(placesFor("x", 1), nil).Times(4)
		mockRepo.On("PersistPlaces", mock.Anything, cityID, mock.Anything, mock.Anything).
			Return(0, errors.New("disk full")).Times(4)

		outcome, err := service.Recommend(ctx, baseRequest())
		require.NoError(t, err)
		assert.Equal(t, types.RecommendationCompleted, outcome.Status)
		assert.False(t, outcome.Result.Persisted)
	})

	t.Run("exclusion load failure degrades to empty set", func(t *testing.T) {
		service, mockLocation, mockPlanner, mockPlaces, mockRepo := setupRecommendationServiceTest()
		cityID := uuid.New()

		mockLocation.On("Resolve", mock.Anything, "Gwangju", "South Korea").
			Return(resolvedGwangju(cityID), nil).Once()
		mockRepo.On("GetExclusionSet", mock.Anything, cityID).
			Return(nil, errors.New("db down")).Once()
		mockPlanner.On("Plan", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(fullQueries(), false).Once()
		mockPlaces.On("SearchText", mock.Anything, mock.Anything, "en").
			Return(placesFor("x", 1), nil).Times(4)
		mockRepo.On("PersistPlaces", mock.Anything, cityID, mock.Anything, mock.Anything).
			Return(1, nil).Maybe()

		outcome, err := service.Recommend(ctx, baseRequest())
		require.NoError(t, err)
		assert.Equal(t, types.RecommendationCompleted, outcome.Status)
	})

	t.Run("client disconnect lets in-flight searches finish and persist", func(t *testing.T) {
		service, mockLocation, mockPlanner, mockPlaces, mockRepo := setupRecommendationServiceTest()
		cityID := uuid.New()

		mockLocation.On("Resolve", mock.Anything, "Gwangju", "South Korea").
			Return(resolvedGwangju(cityID), nil).Once()
		mockRepo.On("GetExclusionSet", mock.Anything, cityID).Return([]string{}, nil).Once()
		mockPlanner.On("Plan", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(fullQueries(), false).Once()

		var ranToCompletion atomic.Int32
		for category, query := range fullQueries() {
			mockPlaces.On("SearchText", mock.Anything, query, "en").
				Run(func(args mock.Arguments) {
					searchCtx := args.Get(0).(context.Context)
					select {
					case <-searchCtx.Done():
					case <-time.After(150 * time.Millisecond):
						ranToCompletion.Add(1)
					}
				}).
				Return(placesFor(string(category), 1), nil).Once()
			mockRepo.On("PersistPlaces", mock.Anything, cityID, category, mock.Anything).
				Return(1, nil).Once()
		}

		callerCtx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(30 * time.Millisecond)
			cancel()
		}()

		outcome, err := service.Recommend(callerCtx, baseRequest())
		require.NoError(t, err)
		assert.Equal(t, int32(4), ranToCompletion.Load())
		assert.Empty(t, outcome.Result.FailedCategories)
		assert.True(t, outcome.Result.Persisted)
		mockPlaces.AssertExpectations(t)
		mockRepo.AssertExpectations(t)
	})
}
