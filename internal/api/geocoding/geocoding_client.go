package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/itinero-app/itinero/internal/types"
)

// Provider is the geocoding/disambiguation collaborator. A free-text
// (city, country) pair may legitimately map to several administratively
// distinct candidates; callers decide what counts as ambiguous.
type Provider interface {
	Geocode(ctx context.Context, city, country, language string) ([]types.GeocodeCandidate, error)
}

var _ Provider = (*GoogleClient)(nil)

type GoogleClient struct {
	logger  *slog.Logger
	http    *http.Client
	baseURL string
	apiKey  string
	breaker *gobreaker.CircuitBreaker[[]types.GeocodeCandidate]
}

type Options struct {
	BaseURL        string
	Timeout        time.Duration
	BreakerMaxFail uint32
	BreakerCooloff time.Duration
}

func NewGoogleClient(opts Options, logger *slog.Logger) *GoogleClient {
	apiKey := os.Getenv("MAPS_PLATFORM_API_KEY")
	if apiKey == "" {
		logger.Warn("MAPS_PLATFORM_API_KEY is not set, geocoding calls will fail")
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	maxFail := opts.BreakerMaxFail
	if maxFail == 0 {
		maxFail = 5
	}
	cooloff := opts.BreakerCooloff
	if cooloff == 0 {
		cooloff = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[[]types.GeocodeCandidate](gobreaker.Settings{
		Name:    "geocoding",
		Timeout: cooloff,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFail
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Geocoding breaker state change",
				slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})

	return &GoogleClient{
		logger:  logger,
		http:    &http.Client{Timeout: timeout},
		baseURL: opts.BaseURL,
		apiKey:  apiKey,
		breaker: breaker,
	}
}

// googleGeocodeResponse mirrors the Geocoding API JSON shape.
type googleGeocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		PlaceID           string                   `json:"place_id"`
		FormattedAddress  string                   `json:"formatted_address"`
		Types             []string                 `json:"types"`
		PartialMatch      bool                     `json:"partial_match"`
		AddressComponents []types.AddressComponent `json:"address_components"`
		Geometry          struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
	ErrorMessage string `json:"error_message"`
}

// Geocode resolves a free-text location. An empty slice with a nil error
// means the provider answered but found nothing; provider outages and an
// open breaker come back as errors.
func (c *GoogleClient) Geocode(ctx context.Context, city, country, language string) ([]types.GeocodeCandidate, error) {
	query := city
	if country != "" {
		query = fmt.Sprintf("%s, %s", city, country)
	}

	return c.breaker.Execute(func() ([]types.GeocodeCandidate, error) {
		params := url.Values{}
		params.Set("address", query)
		params.Set("key", c.apiKey)
		if language != "" {
			params.Set("language", language)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build geocode request: %w", err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("geocode request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("geocode request returned status %d", resp.StatusCode)
		}

		var body googleGeocodeResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("failed to decode geocode response: %w", err)
		}

		switch body.Status {
		case "OK":
			// fall through to candidate mapping
		case "ZERO_RESULTS":
			return []types.GeocodeCandidate{}, nil
		default:
			return nil, fmt.Errorf("geocode provider status %s: %s", body.Status, body.ErrorMessage)
		}

		candidates := make([]types.GeocodeCandidate, 0, len(body.Results))
		for _, r := range body.Results {
			confidence := 0.5
			if hasAdministrativeType(r.Types) {
				confidence = 0.9
			}
			if r.PartialMatch {
				confidence -= 0.4
			}
			candidates = append(candidates, types.GeocodeCandidate{
				PlaceID:          r.PlaceID,
				FormattedAddress: r.FormattedAddress,
				Components:       r.AddressComponents,
				Types:            r.Types,
				Latitude:         r.Geometry.Location.Lat,
				Longitude:        r.Geometry.Location.Lng,
				Confidence:       confidence,
			})
		}
		c.logger.DebugContext(ctx, "Geocode results",
			slog.String("query", query), slog.Int("count", len(candidates)))
		return candidates, nil
	})
}

func hasAdministrativeType(resultTypes []string) bool {
	for _, t := range resultTypes {
		switch t {
		case "locality", "administrative_area_level_1", "administrative_area_level_2", "sublocality":
			return true
		}
	}
	return false
}
