package types

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Category is one of the four fixed recommendation buckets.
type Category string

const (
	CategoryTourism       Category = "tourism"
	CategoryFood          Category = "food"
	CategoryActivity      Category = "activity"
	CategoryAccommodation Category = "accommodation"
)

// Categories returns the fixed presentation order of the recommendation
// buckets. Responses always list categories in this order regardless of
// search completion order.
func Categories() []Category {
	return []Category{CategoryTourism, CategoryFood, CategoryActivity, CategoryAccommodation}
}

// IsValid reports whether c is one of the four known categories.
func (c Category) IsValid() bool {
	switch c {
	case CategoryTourism, CategoryFood, CategoryActivity, CategoryAccommodation:
		return true
	}
	return false
}

// PlaceResult is a normalized entry from the places-search provider.
type PlaceResult struct {
	ExternalID  string          `json:"external_id"`
	Name        string          `json:"name"`
	Address     string          `json:"address,omitempty"`
	Latitude    float64         `json:"latitude,omitempty"`
	Longitude   float64         `json:"longitude,omitempty"`
	Rating      float64         `json:"rating,omitempty"`
	ReviewCount int             `json:"review_count,omitempty"`
	RawPayload  json.RawMessage `json:"-"`
}

// CachedPlace matches the cached_places table structure. A place is stored
// at most once per city: (city_id, external_place_id) is unique.
type CachedPlace struct {
	ID              uuid.UUID       `json:"id"`
	CityID          uuid.UUID       `json:"city_id"`
	ExternalPlaceID string          `json:"external_place_id"`
	Name            string          `json:"name"`
	Category        Category        `json:"category"`
	Address         string          `json:"address,omitempty"`
	Latitude        float64         `json:"latitude,omitempty"`
	Longitude       float64         `json:"longitude,omitempty"`
	Rating          float64         `json:"rating,omitempty"`
	ReviewCount     int             `json:"review_count,omitempty"`
	RawPayload      json.RawMessage `json:"-"`
}
