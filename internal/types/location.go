package types

import "github.com/google/uuid"

// Country matches the countries table structure.
type Country struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Region matches the regions table structure. Regions exist because some
// cities are ambiguous only at the region level: two cities may share a name
// in different provinces of the same country.
type Region struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CountryID uuid.UUID `json:"country_id"`
}

// City matches the cities table structure. RegionID is nil for cities that
// sit directly under a country.
type City struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	CountryID uuid.UUID  `json:"country_id"`
	RegionID  *uuid.UUID `json:"region_id,omitempty"`
}

// CanonicalLocation is the (country, region, city) triple standardized to
// English naming, used as the durable storage key for cached places.
type CanonicalLocation struct {
	City      string    `json:"city"`
	Region    string    `json:"region,omitempty"`
	Country   string    `json:"country"`
	CityID    uuid.UUID `json:"city_id,omitempty"`
	Latitude  float64   `json:"latitude,omitempty"`
	Longitude float64   `json:"longitude,omitempty"`
}

// DisambiguationOption is one candidate identity for an ambiguous
// (city, country) input. DisplayLabel is in the input's locale; the
// canonical fields are English-standardized for stable storage keys.
type DisambiguationOption struct {
	DisplayLabel string  `json:"display_label"`
	City         string  `json:"city"`
	Region       string  `json:"region,omitempty"`
	Country      string  `json:"country"`
	PlaceID      string  `json:"place_id,omitempty"`
	Latitude     float64 `json:"latitude,omitempty"`
	Longitude    float64 `json:"longitude,omitempty"`
}

type ResolutionStatus string

const (
	ResolutionResolved    ResolutionStatus = "resolved"
	ResolutionAmbiguous   ResolutionStatus = "ambiguous"
	ResolutionUnavailable ResolutionStatus = "unavailable"
)

// Resolution is the tagged outcome of resolving a free-text (city, country)
// pair. Ambiguity is an expected outcome, not an error.
type Resolution struct {
	Status   ResolutionStatus       `json:"status"`
	Location *CanonicalLocation     `json:"location,omitempty"`
	Options  []DisambiguationOption `json:"options,omitempty"`
}

// AddressComponent is one element of a geocode result's administrative chain.
type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// GeocodeCandidate is a single match from the geocoding provider.
type GeocodeCandidate struct {
	PlaceID          string             `json:"place_id"`
	FormattedAddress string             `json:"formatted_address"`
	Components       []AddressComponent `json:"address_components"`
	Types            []string           `json:"types"`
	Latitude         float64            `json:"latitude"`
	Longitude        float64            `json:"longitude"`
	Confidence       float64            `json:"confidence"`
}
