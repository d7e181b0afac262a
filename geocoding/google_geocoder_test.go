// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGoogleServer(t *testing.T, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		assert.Equal(t, "es", r.URL.Query().Get("region"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestGoogleMapsGeocode(t *testing.T) {
	srv := newGoogleServer(t, `{
		"status": "OK",
		"results": [{
			"formatted_address": "Calle de Alcalá, 1, 28014 Madrid, España",
			"geometry": {"location": {"lat": 40.4179, "lng": -3.6993}, "location_type": "ROOFTOP"}
		}]
	}`)

	g := NewGoogleMapsGeocoder(GoogleMapsOptions{APIKey: "secret", BaseURL: srv.URL})

	res, err := g.Geocode(context.Background(), "Calle de Alcalá 1, Madrid, Madrid, España")
	require.NoError(t, err)

	assert.Equal(t, &Result{
		Latitude:    40.4179,
		Longitude:   -3.6993,
		Confidence:  "high",
		Provider:    "google_maps",
		DisplayName: "Calle de Alcalá, 1, 28014 Madrid, España",
	}, res)
}

func TestGoogleMapsGeocodeStatus(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType ErrorType
	}{
		{"zero results", `{"status":"ZERO_RESULTS","results":[]}`, ErrorTypeNotFound},
		{"rate", `{"status":"OVER_QUERY_LIMIT","error_message":"You have exceeded your rate-limit"}`, ErrorTypeRateLimit},
		{"daily quota", `{"status":"OVER_QUERY_LIMIT","error_message":"You have exceeded your daily request quota"}`, ErrorTypeQuotaExceeded},
		{"denied", `{"status":"REQUEST_DENIED","error_message":"The provided API key is invalid."}`, ErrorTypeQuotaExceeded},
		{"invalid", `{"status":"INVALID_REQUEST"}`, ErrorTypeInvalidRequest},
		{"unknown", `{"status":"UNKNOWN_ERROR"}`, ErrorTypeUnknown},
		{"ok but empty", `{"status":"OK","results":[]}`, ErrorTypeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newGoogleServer(t, tt.body)

			_, err := NewGoogleMapsGeocoder(GoogleMapsOptions{APIKey: "secret", BaseURL: srv.URL}).
				Geocode(context.Background(), "x")
			require.Error(t, err)
			assert.Equal(t, tt.wantType, Classify(err))
		})
	}
}

func TestGoogleMapsGeocodeWithoutKey(t *testing.T) {
	_, err := NewGoogleMapsGeocoder(GoogleMapsOptions{}).Geocode(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, ErrorTypeInvalidRequest, Classify(err))
}

func TestResolveGoogleMapsAPIKeyFromEnv(t *testing.T) {
	t.Setenv(APIKeyEnv, "from-env")

	key, err := ResolveGoogleMapsAPIKey(context.Background(), KeyOptions{})
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)
}
