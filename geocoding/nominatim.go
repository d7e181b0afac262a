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
	"strconv"
	"strings"

	"github.com/jcodagnone/visor/utils/httputils"
)

const (
	// DefaultNominatimURL is the public OpenStreetMap instance.
	DefaultNominatimURL = "https://nominatim.openstreetmap.org"

	// DefaultUserAgent identifies the application, as required by the
	// Nominatim usage policy.
	DefaultUserAgent = "visor_clientes_2026"
)

// NominatimOptions configures a Nominatim geocoder.
type NominatimOptions struct {
	// BaseURL of the instance. Defaults to DefaultNominatimURL.
	BaseURL string

	// Email is sent along every request, so the operators can reach out.
	Email string

	// CountryCodes restricts results (ISO 3166-1 alpha-2, comma separated).
	CountryCodes string

	// AcceptLanguage sets the language of display names.
	AcceptLanguage string

	HTTP httputils.ClientOptions
}

// Nominatim geocodes with the OpenStreetMap Nominatim search API.
type Nominatim struct {
	baseURL        string
	email          string
	countryCodes   string
	acceptLanguage string
	httpClient     *http.Client
}

// NewNominatim creates a new Nominatim geocoder.
func NewNominatim(opts NominatimOptions) *Nominatim {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultNominatimURL
	}

	if opts.HTTP.UserAgent == "" {
		opts.HTTP.UserAgent = DefaultUserAgent
	}

	if opts.HTTP.Timeout == 0 {
		opts.HTTP.Timeout = DefaultTimeout
	}

	return &Nominatim{
		baseURL:        strings.TrimSuffix(opts.BaseURL, "/"),
		email:          opts.Email,
		countryCodes:   opts.CountryCodes,
		acceptLanguage: opts.AcceptLanguage,
		httpClient:     httputils.NewClient(&opts.HTTP),
	}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	PlaceRank   int    `json:"place_rank"`
	Category    string `json:"category"`
	Type        string `json:"type"`
}

// Geocode implements Geocoder.
func (n *Nominatim) Geocode(ctx context.Context, query string) (*Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", "1")

	if n.countryCodes != "" {
		params.Set("countrycodes", n.countryCodes)
	}

	if n.email != "" {
		params.Set("email", n.email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "request inválido", Err: err}
	}

	if n.acceptLanguage != "" {
		req.Header.Set("Accept-Language", n.acceptLanguage)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))

		return nil, ClassifyHTTPError(resp.StatusCode, string(body))
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, &GeocodingError{Type: ErrorTypeUnknown, Message: "decodificando respuesta", Err: err}
	}

	if len(places) == 0 {
		return nil, &GeocodingError{
			Type:    ErrorTypeNotFound,
			Message: fmt.Sprintf("sin resultados para %q", query),
		}
	}

	place := places[0]

	lat, err := strconv.ParseFloat(place.Lat, 64)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeInvalidResult, Message: "latitud inválida", Err: err}
	}

	lon, err := strconv.ParseFloat(place.Lon, 64)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeInvalidResult, Message: "longitud inválida", Err: err}
	}

	return &Result{
		Latitude:    lat,
		Longitude:   lon,
		Confidence:  nominatimConfidence(place.PlaceRank),
		Provider:    "nominatim",
		DisplayName: place.DisplayName,
	}, nil
}

// nominatimConfidence maps the place rank to a confidence level: 26 and up
// are streets and buildings, 16 to 25 are towns and neighbourhoods.
func nominatimConfidence(rank int) string {
	switch {
	case rank >= 26:
		return "high"
	case rank >= 16:
		return "medium"
	default:
		return "low"
	}
}

var _ Geocoder = (*Nominatim)(nil)
