// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jcodagnone/visor/utils/httputils"
)

// DefaultGoogleMapsURL is the Geocoding API endpoint.
const DefaultGoogleMapsURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleMapsOptions configures a GoogleMapsGeocoder.
type GoogleMapsOptions struct {
	APIKey string

	// Region biases results (ccTLD). Defaults to "es".
	Region string

	// BaseURL defaults to DefaultGoogleMapsURL.
	BaseURL string

	HTTP httputils.ClientOptions
}

// GoogleMapsGeocoder uses Google Maps Geocoding API.
type GoogleMapsGeocoder struct {
	apiKey     string
	region     string
	baseURL    string
	httpClient *http.Client
}

// NewGoogleMapsGeocoder creates a new Google Maps geocoder.
func NewGoogleMapsGeocoder(opts GoogleMapsOptions) *GoogleMapsGeocoder {
	if opts.Region == "" {
		opts.Region = "es"
	}

	if opts.BaseURL == "" {
		opts.BaseURL = DefaultGoogleMapsURL
	}

	if opts.HTTP.Timeout == 0 {
		opts.HTTP.Timeout = DefaultTimeout
	}

	return &GoogleMapsGeocoder{
		apiKey:     opts.APIKey,
		region:     opts.Region,
		baseURL:    opts.BaseURL,
		httpClient: httputils.NewClient(&opts.HTTP),
	}
}

type googleMapsResponse struct {
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"` // ROOFTOP, RANGE_INTERPOLATED, GEOMETRIC_CENTER, APPROXIMATE
		} `json:"geometry"`
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
	Status       string `json:"status"` // OK, ZERO_RESULTS, etc.
	ErrorMessage string `json:"error_message"`
}

// Geocode implements Geocoder.
func (g *GoogleMapsGeocoder) Geocode(ctx context.Context, query string) (*Result, error) {
	if g.apiKey == "" {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "falta la API key de Google Maps"}
	}

	params := url.Values{}
	params.Set("address", query)
	params.Set("key", g.apiKey)
	params.Set("region", g.region)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "request inválido", Err: err}
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))

		return nil, ClassifyHTTPError(resp.StatusCode, string(body))
	}

	var gmResp googleMapsResponse
	if err := json.NewDecoder(resp.Body).Decode(&gmResp); err != nil {
		return nil, &GeocodingError{Type: ErrorTypeUnknown, Message: "decodificando respuesta", Err: err}
	}

	if err := classifyGoogleStatus(gmResp.Status, gmResp.ErrorMessage); err != nil {
		return nil, err
	}

	if len(gmResp.Results) == 0 {
		return nil, &GeocodingError{Type: ErrorTypeNotFound, Message: fmt.Sprintf("sin resultados para %q", query)}
	}

	result := gmResp.Results[0]

	confidence := "low"

	switch result.Geometry.LocationType {
	case "ROOFTOP", "RANGE_INTERPOLATED":
		confidence = "high"
	case "GEOMETRIC_CENTER":
		confidence = "medium"
	}

	return &Result{
		Latitude:    result.Geometry.Location.Lat,
		Longitude:   result.Geometry.Location.Lng,
		Confidence:  confidence,
		Provider:    "google_maps",
		DisplayName: result.FormattedAddress,
	}, nil
}

// classifyGoogleStatus maps the API status field to a GeocodingError.
func classifyGoogleStatus(status, message string) error {
	msg := "google maps status: " + status
	if message != "" {
		msg += ": " + message
	}

	switch status {
	case "OK":
		return nil
	case "ZERO_RESULTS":
		return &GeocodingError{Type: ErrorTypeNotFound, Message: msg}
	case "OVER_QUERY_LIMIT":
		// Same status for per-second rate and daily quota.
		if strings.Contains(strings.ToLower(message), "daily") {
			return &GeocodingError{Type: ErrorTypeQuotaExceeded, Message: msg}
		}

		return &GeocodingError{Type: ErrorTypeRateLimit, Message: msg}
	case "OVER_DAILY_LIMIT", "REQUEST_DENIED":
		return &GeocodingError{Type: ErrorTypeQuotaExceeded, Message: msg}
	case "INVALID_REQUEST":
		return &GeocodingError{Type: ErrorTypeInvalidRequest, Message: msg}
	default:
		return &GeocodingError{Type: ErrorTypeUnknown, Message: msg}
	}
}

var _ Geocoder = (*GoogleMapsGeocoder)(nil)
