package types

import "github.com/google/uuid"

// RecommendationRequest is the transient input for one orchestration call.
// Region is set when the caller resubmits after picking a disambiguation
// option; a non-empty Region means the identity is already canonical.
type RecommendationRequest struct {
	City           string `json:"city"`
	Country        string `json:"country"`
	Region         string `json:"region,omitempty"`
	DurationDays   int    `json:"duration_days"`
	TravelersCount int    `json:"travelers_count"`
	BudgetTier     string `json:"budget_tier,omitempty"`
	Style          string `json:"style,omitempty"`
	Preferences    string `json:"preferences,omitempty"`
}

type RecommendationStatus string

const (
	RecommendationCompleted RecommendationStatus = "completed"
	RecommendationAmbiguous RecommendationStatus = "ambiguous"
)

// RecommendationOutcome is the tagged result of one recommendation call.
// Ambiguous short-circuits before any search: the caller must pick one of
// Options and resubmit.
type RecommendationOutcome struct {
	Status  RecommendationStatus   `json:"status"`
	Result  *RecommendationResult  `json:"result,omitempty"`
	Options []DisambiguationOption `json:"options,omitempty"`
	Message string                 `json:"message,omitempty"`
}

// CategoryResult holds one category's deduplicated places. Failed is true
// when that category's provider call errored or timed out; Places is then
// empty and the other categories are unaffected.
type CategoryResult struct {
	Category Category      `json:"category"`
	Places   []PlaceResult `json:"places"`
	Failed   bool          `json:"failed,omitempty"`
}

// RecommendationResult is a completed recommendation. Degraded means one or
// more optional enhancements (disambiguation, diversified planning) did not
// run; the response is still usable.
type RecommendationResult struct {
	CityID                uuid.UUID        `json:"city_id,omitempty"`
	City                  string           `json:"city"`
	Region                string           `json:"region,omitempty"`
	Country               string           `json:"country"`
	Categories            []CategoryResult `json:"categories"`
	Degraded              bool             `json:"degraded"`
	PlanningDegraded      bool             `json:"planning_degraded"`
	FailedCategories      []Category       `json:"failed_categories,omitempty"`
	Persisted             bool             `json:"persisted"`
	PreviouslyRecommended int              `json:"previously_recommended_count"`
	NewlyRecommended      int              `json:"newly_recommended_count"`
}

// ItineraryNarrative is the generated free-form itinerary text for a set of
// recommended places.
type ItineraryNarrative struct {
	Title   string         `json:"title"`
	Summary string         `json:"summary"`
	Days    []NarrativeDay `json:"days"`
}

type NarrativeDay struct {
	Day       int    `json:"day"`
	Narrative string `json:"narrative"`
}
