package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/itinero-app/itinero/internal/types"
)

// Provider is the places-search collaborator. An empty result list and a
// provider error are treated identically by callers: the category degrades.
type Provider interface {
	SearchText(ctx context.Context, query, localeBias string) ([]types.PlaceResult, error)
}

var _ Provider = (*GoogleClient)(nil)

// fieldMask limits the Places API response to the fields the cache stores.
const fieldMask = "places.id,places.displayName,places.formattedAddress,places.location,places.rating,places.userRatingCount"

type GoogleClient struct {
	logger  *slog.Logger
	http    *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
}

type Options struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
}

func NewGoogleClient(opts Options, logger *slog.Logger) *GoogleClient {
	apiKey := os.Getenv("MAPS_PLATFORM_API_KEY")
	if apiKey == "" {
		logger.Warn("MAPS_PLATFORM_API_KEY is not set, places search calls will fail")
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 8 * time.Second
	}
	qps := opts.RateLimit
	if qps <= 0 {
		qps = 10
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = 4
	}
	return &GoogleClient{
		logger:  logger,
		http:    &http.Client{Timeout: timeout},
		baseURL: opts.BaseURL,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(qps), burst),
	}
}

type searchTextRequest struct {
	TextQuery    string `json:"textQuery"`
	LanguageCode string `json:"languageCode,omitempty"`
}

type searchTextResponse struct {
	Places []struct {
		ID          string `json:"id"`
		DisplayName struct {
			Text string `json:"text"`
		} `json:"displayName"`
		FormattedAddress string `json:"formattedAddress"`
		Location         struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"location"`
		Rating          float64 `json:"rating"`
		UserRatingCount int     `json:"userRatingCount"`
	} `json:"places"`
}

func (c *GoogleClient) SearchText(ctx context.Context, query, localeBias string) ([]types.PlaceResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait cancelled: %w", err)
	}

	payload, err := json.Marshal(searchTextRequest{TextQuery: query, LanguageCode: localeBias})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("places search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("places search returned status %d", resp.StatusCode)
	}

	var body searchTextResponse
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode places response: %w", err)
	}

	results := make([]types.PlaceResult, 0, len(body.Places))
	for _, p := range body.Places {
		if p.ID == "" || p.DisplayName.Text == "" {
			continue
		}
		raw, _ := json.Marshal(p)
		results = append(results, types.PlaceResult{
			ExternalID:  p.ID,
			Name:        p.DisplayName.Text,
			Address:     p.FormattedAddress,
			Latitude:    p.Location.Latitude,
			Longitude:   p.Location.Longitude,
			Rating:      p.Rating,
			ReviewCount: p.UserRatingCount,
			RawPayload:  raw,
		})
	}
	c.logger.DebugContext(ctx, "Places search results",
		slog.String("query", query), slog.Int("count", len(results)))
	return results, nil
}
