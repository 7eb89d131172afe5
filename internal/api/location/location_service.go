package location

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/itinero-app/itinero/internal/api/geocoding"
	"github.com/itinero-app/itinero/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

// Service disambiguates a free-text (city, country) pair into zero or more
// canonical administrative identities.
type Service interface {
	Resolve(ctx context.Context, rawCity, rawCountry string) (*types.Resolution, error)
	EnsureCanonical(ctx context.Context, loc *types.CanonicalLocation) error
}

// Options carries the ambiguity heuristic's tunables. The rules are data,
// not code branches, so new ambiguous name patterns can be added without a
// redeploy.
type Options struct {
	ConfidenceThreshold float64
	AdministrativeTypes []string
	CitySuffixes        []string
	LocaleBias          string
}

func (o *Options) applyDefaults() {
	if o.ConfidenceThreshold == 0 {
		o.ConfidenceThreshold = 0.5
	}
	if len(o.AdministrativeTypes) == 0 {
		o.AdministrativeTypes = []string{"locality", "administrative_area_level_1", "administrative_area_level_2", "sublocality"}
	}
	if len(o.CitySuffixes) == 0 {
		o.CitySuffixes = []string{"-si", " si", " city", " metropolitan city", "광역시", "특별시", "시"}
	}
	if o.LocaleBias == "" {
		o.LocaleBias = "en"
	}
}

type ServiceImpl struct {
	logger   *slog.Logger
	provider geocoding.Provider
	repo     Repository
	opts     Options
}

func NewService(provider geocoding.Provider, repo Repository, opts Options, logger *slog.Logger) *ServiceImpl {
	opts.applyDefaults()
	return &ServiceImpl{
		logger:   logger,
		provider: provider,
		repo:     repo,
		opts:     opts,
	}
}

// identity is one canonicalized administrative candidate.
type identity struct {
	city       string
	region     string
	country    string
	display    string
	placeID    string
	latitude   float64
	longitude  float64
	confidence float64
}

// key groups candidates that denote the same real place despite naming
// variations ("Gwangju" vs "Gwangju-si" inside the same region).
func (l *ServiceImpl) key(id identity) string {
	return strings.ToLower(id.country) + "|" + strings.ToLower(id.region) + "|" + l.baseCityName(id.city)
}

func (l *ServiceImpl) baseCityName(name string) string {
	base := strings.ToLower(strings.TrimSpace(name))
	for _, suffix := range l.opts.CitySuffixes {
		base = strings.TrimSuffix(base, strings.ToLower(suffix))
	}
	return strings.TrimSpace(base)
}

func (l *ServiceImpl) Resolve(ctx context.Context, rawCity, rawCountry string) (*types.Resolution, error) {
	ctx, span := otel.Tracer("LocationService").Start(ctx, "Resolve", trace.WithAttributes(
		attribute.String("location.raw_city", rawCity),
		attribute.String("location.raw_country", rawCountry),
	))
	defer span.End()

	candidates, err := l.provider.Geocode(ctx, rawCity, rawCountry, l.opts.LocaleBias)
	if err != nil {
		l.logger.WarnContext(ctx, "Geocoding provider unavailable", slog.Any("error", err))
		span.RecordError(err)
		return nil, fmt.Errorf("geocode %q, %q: %w", rawCity, rawCountry, types.ErrResolutionUnavailable)
	}

	identities := l.distinctIdentities(candidates)
	if len(identities) == 0 {
		l.logger.WarnContext(ctx, "Geocoding returned no usable match",
			slog.String("city", rawCity), slog.String("country", rawCountry))
		return nil, fmt.Errorf("no geocode match for %q, %q: %w", rawCity, rawCountry, types.ErrResolutionUnavailable)
	}

	if len(identities) > 1 {
		options := make([]types.DisambiguationOption, 0, len(identities))
		for _, id := range identities {
			options = append(options, types.DisambiguationOption{
				DisplayLabel: id.display,
				City:         id.city,
				Region:       id.region,
				Country:      id.country,
				PlaceID:      id.placeID,
				Latitude:     id.latitude,
				Longitude:    id.longitude,
			})
		}
		span.SetAttributes(attribute.Int("location.option_count", len(options)))
		span.SetStatus(codes.Ok, "Ambiguous location")
		l.logger.InfoContext(ctx, "Ambiguous location detected",
			slog.String("city", rawCity), slog.Int("options", len(options)))
		return &types.Resolution{Status: types.ResolutionAmbiguous, Options: options}, nil
	}

	id := identities[0]
	loc := &types.CanonicalLocation{
		City:      id.city,
		Region:    id.region,
		Country:   id.country,
		Latitude:  id.latitude,
		Longitude: id.longitude,
	}
	if err := l.EnsureCanonical(ctx, loc); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "Location resolved")
	return &types.Resolution{Status: types.ResolutionResolved, Location: loc}, nil
}

// EnsureCanonical lazily creates (or fetches) the country/region/city rows
// for loc and fills in CityID. Safe under concurrent callers racing to
// create the same rows: every step is a unique-constraint upsert.
func (l *ServiceImpl) EnsureCanonical(ctx context.Context, loc *types.CanonicalLocation) error {
	countryName := strings.TrimSpace(loc.Country)
	if countryName == "" {
		countryName = "Unknown"
	}
	countryID, err := l.repo.GetOrCreateCountry(ctx, countryName)
	if err != nil {
		l.logger.ErrorContext(ctx, "Failed to get or create country", slog.Any("error", err))
		return fmt.Errorf("failed to store country %q: %w", countryName, err)
	}

	var regionID *uuid.UUID
	if region := strings.TrimSpace(loc.Region); region != "" {
		id, err := l.repo.GetOrCreateRegion(ctx, region, countryID)
		if err != nil {
			l.logger.ErrorContext(ctx, "Failed to get or create region", slog.Any("error", err))
			return fmt.Errorf("failed to store region %q: %w", region, err)
		}
		regionID = &id
	}

	cityID, err := l.repo.GetOrCreateCity(ctx, strings.TrimSpace(loc.City), countryID, regionID)
	if err != nil {
		l.logger.ErrorContext(ctx, "Failed to get or create city", slog.Any("error", err))
		return fmt.Errorf("failed to store city %q: %w", loc.City, err)
	}
	loc.CityID = cityID
	return nil
}

// distinctIdentities filters candidates to high-confidence administrative
// matches, canonicalizes each into a (country, region, city) identity, and
// collapses duplicates that denote the same place. Two or more survivors
// mean the input is genuinely ambiguous.
func (l *ServiceImpl) distinctIdentities(candidates []types.GeocodeCandidate) []identity {
	byKey := make(map[string]identity)
	for _, c := range candidates {
		if c.Confidence < l.opts.ConfidenceThreshold {
			continue
		}
		if !l.isAdministrative(c.Types) {
			continue
		}
		id, ok := l.canonicalize(c)
		if !ok {
			continue
		}
		k := l.key(id)
		if existing, seen := byKey[k]; !seen || id.confidence > existing.confidence {
			byKey[k] = id
		}
	}

	identities := make([]identity, 0, len(byKey))
	for _, id := range byKey {
		identities = append(identities, id)
	}
	sort.Slice(identities, func(i, j int) bool {
		if identities[i].confidence != identities[j].confidence {
			return identities[i].confidence > identities[j].confidence
		}
		return identities[i].display < identities[j].display
	})
	return identities
}

func (l *ServiceImpl) isAdministrative(resultTypes []string) bool {
	for _, t := range resultTypes {
		for _, admin := range l.opts.AdministrativeTypes {
			if t == admin {
				return true
			}
		}
	}
	return false
}

// canonicalize walks the address-component chain into a city/region/country
// identity. Metropolitan cities commonly report the same name at the city
// and region level; that still forms a single identity, distinct from a
// same-named city inside another region.
func (l *ServiceImpl) canonicalize(c types.GeocodeCandidate) (identity, bool) {
	id := identity{
		display:    c.FormattedAddress,
		placeID:    c.PlaceID,
		latitude:   c.Latitude,
		longitude:  c.Longitude,
		confidence: c.Confidence,
	}
	var level2 string
	for _, comp := range c.Components {
		for _, t := range comp.Types {
			switch t {
			case "country":
				id.country = comp.LongName
			case "administrative_area_level_1":
				id.region = comp.LongName
			case "administrative_area_level_2":
				level2 = comp.LongName
			case "locality":
				if id.city == "" {
					id.city = comp.LongName
				}
			case "sublocality":
				if id.city == "" {
					id.city = comp.LongName
				}
			}
		}
	}
	if id.city == "" {
		id.city = level2
	}
	if id.city == "" || id.country == "" {
		return identity{}, false
	}
	return id, true
}
