package planner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/itinero-app/itinero/internal/types"
)

// MockGenerator is a mock implementation of Generator
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) GenerateContent(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error) {
	args := m.Called(ctx, prompt, config)
	return args.String(0), args.Error(1)
}

// MockPromptRepository is a mock implementation of PromptRepository
type MockPromptRepository struct {
	mock.Mock
}

func (m *MockPromptRepository) GetPrompt(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

const testTemplate = "Plan searches for {{city}}, {{country}}. Avoid: {{excluded_places}}."

func setupPlannerServiceTest() (*ServiceImpl, *MockGenerator, *MockPromptRepository) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mockGenerator := new(MockGenerator)
	mockPrompts := new(MockPromptRepository)
	service := NewService(mockGenerator, mockPrompts, Options{}, logger)
	return service, mockGenerator, mockPrompts
}

func testLocation() types.CanonicalLocation {
	return types.CanonicalLocation{City: "Gwangju", Region: "Gwangju", Country: "South Korea"}
}

func testRequest() types.RecommendationRequest {
	return types.RecommendationRequest{
		City: "Gwangju", Country: "South Korea",
		DurationDays: 3, TravelersCount: 2,
	}
}

func TestPlannerServiceImpl_Plan(t *testing.T) {
	ctx := context.Background()

	t.Run("valid response used as-is", func(t *testing.T) {
		service, mockGenerator, mockPrompts := setupPlannerServiceTest()
		mockPrompts.On("GetPrompt", mock.Anything, "search_strategy_v1").Return(testTemplate, nil).Once()
		mockGenerator.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).
			Return(`{"tourism": "hidden art galleries in Gwangju", "food": "traditional markets with street food in Gwangju", "activity": "hiking trails near Gwangju", "accommodation": "boutique hanok stays in Gwangju"}`, nil).Once()

		queries, degraded := service.Plan(ctx, testLocation(), testRequest(), nil)
		assert.False(t, degraded)
		assert.Equal(t, "hidden art galleries in Gwangju", queries[types.CategoryTourism])
		assert.Len(t, queries, 4)
		mockGenerator.AssertExpectations(t)
		mockPrompts.AssertExpectations(t)
	})

	t.Run("fenced JSON is accepted", func(t *testing.T) {
		service, mockGenerator, mockPrompts := setupPlannerServiceTest()
		mockPrompts.On("GetPrompt", mock.Anything, "search_strategy_v1").Return(testTemplate, nil).Once()
		mockGenerator.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).
			Return("Here you go:\n```json\n{\"tourism\": \"street art districts in Gwangju\", \"food\": \"night markets in Gwangju\", \"activity\": \"cycling routes around Gwangju\", \"accommodation\": \"quiet guesthouses in Gwangju\"}\n```", nil).Once()

		queries, degraded := service.Plan(ctx, testLocation(), testRequest(), nil)
		assert.False(t, degraded)
		assert.Equal(t, "night markets in Gwangju", queries[types.CategoryFood])
	})

	t.Run("unparseable response falls back entirely", func(t *testing.T) {
		service, mockGenerator, mockPrompts := setupPlannerServiceTest()
		mockPrompts.On("GetPrompt", mock.Anything, "search_strategy_v1").Return(testTemplate, nil).Once()
		mockGenerator.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).
			Return("I cannot produce JSON today.", nil).Once()

		queries, degraded := service.Plan(ctx, testLocation(), testRequest(), nil)
		assert.True(t, degraded)
		require.Len(t, queries, 4)
		for _, category := range types.Categories() {
			assert.Contains(t, queries[category], "Gwangju")
		}
	})

	t.Run("generator error falls back entirely", func(t *testing.T) {
		service, mockGenerator, mockPrompts := setupPlannerServiceTest()
		mockPrompts.On("GetPrompt", mock.Anything, "search_strategy_v1").Return(testTemplate, nil).Once()
		mockGenerator.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).
			Return("", errors.New("model overloaded")).Once()

		queries, degraded := service.Plan(ctx, testLocation(), testRequest(), nil)
		assert.True(t, degraded)
		assert.Len(t, queries, 4)
	})

	t.Run("prompt load failure falls back entirely", func(t *testing.T) {
		service, mockGenerator, mockPrompts := setupPlannerServiceTest()
		mockPrompts.On("GetPrompt", mock.Anything, "search_strategy_v1").
			Return("", types.ErrPromptNotFound).Once()

		queries, degraded := service.Plan(ctx, testLocation(), testRequest(), nil)
		assert.True(t, degraded)
		assert.Len(t, queries, 4)
		mockGenerator.AssertNotCalled(t, "GenerateContent", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("bad category query replaced individually", func(t *testing.T) {
		service, mockGenerator, mockPrompts := setupPlannerServiceTest()
		mockPrompts.On("GetPrompt", mock.Anything, "search_strategy_v1").Return(testTemplate, nil).Once()
		// food is empty, activity does not mention the city
		mockGenerator.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).
			Return(`{"tourism": "famous pavilions in Gwangju", "food": "", "activity": "fun stuff", "accommodation": "hotels near Gwangju station"}`, nil).Once()

		queries, degraded := service.Plan(ctx, testLocation(), testRequest(), nil)
		assert.True(t, degraded)
		assert.Equal(t, "famous pavilions in Gwangju", queries[types.CategoryTourism])
		assert.Contains(t, queries[types.CategoryFood], "Gwangju")
		assert.Contains(t, queries[types.CategoryActivity], "Gwangju")
	})

	t.Run("exclusions are rendered into the prompt", func(t *testing.T) {
		service, mockGenerator, mockPrompts := setupPlannerServiceTest()
		mockPrompts.On("GetPrompt", mock.Anything, "search_strategy_v1").Return(testTemplate, nil).Once()
		mockGenerator.On("GenerateContent", mock.Anything, mock.MatchedBy(func(prompt string) bool {
			return strings.Contains(prompt, "Gwangju National Museum") &&
				strings.Contains(prompt, "Penguin Village")
		}), mock.Anything).
			Return(`{"tourism": "quiet temples around Gwangju", "food": "bibimbap restaurants in Gwangju", "activity": "day hikes from Gwangju", "accommodation": "hotels in downtown Gwangju"}`, nil).Once()

		_, degraded := service.Plan(ctx, testLocation(), testRequest(),
			[]string{"Gwangju National Museum", "Penguin Village"})
		assert.False(t, degraded)
		mockGenerator.AssertExpectations(t)
	})
}
