// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jcodagnone/visor/utils/httputils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNominatimGeocode(t *testing.T) {
	var got *http.Request

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"40.4167047","lon":"-3.7035825","display_name":"Madrid, Comunidad de Madrid, España","place_rank":16,"category":"boundary","type":"administrative"}]`))
	}))
	defer srv.Close()

	n := NewNominatim(NominatimOptions{
		BaseURL:        srv.URL + "/",
		Email:          "ops@example.com",
		CountryCodes:   "es",
		AcceptLanguage: "es",
	})

	res, err := n.Geocode(context.Background(), ", Madrid, Madrid, España")
	require.NoError(t, err)

	assert.InDelta(t, 40.4167047, res.Latitude, 1e-9)
	assert.InDelta(t, -3.7035825, res.Longitude, 1e-9)
	assert.Equal(t, "medium", res.Confidence)
	assert.Equal(t, "nominatim", res.Provider)
	assert.Equal(t, "Madrid, Comunidad de Madrid, España", res.DisplayName)

	require.NotNil(t, got)
	assert.Equal(t, "/search", got.URL.Path)

	q := got.URL.Query()
	assert.Equal(t, ", Madrid, Madrid, España", q.Get("q"))
	assert.Equal(t, "jsonv2", q.Get("format"))
	assert.Equal(t, "1", q.Get("limit"))
	assert.Equal(t, "es", q.Get("countrycodes"))
	assert.Equal(t, "ops@example.com", q.Get("email"))
	assert.Equal(t, DefaultUserAgent, got.Header.Get("User-Agent"))
	assert.Equal(t, "es", got.Header.Get("Accept-Language"))
	assert.Equal(t, "application/json", got.Header.Get("Accept"))
}

func TestNominatimGeocodeErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType ErrorType
	}{
		{"no results", http.StatusOK, `[]`, ErrorTypeNotFound},
		{"throttled", http.StatusTooManyRequests, `Too many requests`, ErrorTypeRateLimit},
		{"blocked", http.StatusForbidden, `Access blocked`, ErrorTypeQuotaExceeded},
		{"bad json", http.StatusOK, `{`, ErrorTypeUnknown},
		{"bad latitude", http.StatusOK, `[{"lat":"norte","lon":"-3"}]`, ErrorTypeInvalidResult},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewNominatim(NominatimOptions{BaseURL: srv.URL}).Geocode(context.Background(), "x")
			require.Error(t, err)
			assert.Equal(t, tt.wantType, Classify(err))
		})
	}
}

func TestNominatimGeocodeTimeout(t *testing.T) {
	block := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	n := NewNominatim(NominatimOptions{BaseURL: srv.URL, HTTP: httputils.ClientOptions{Timeout: time.Minute}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := n.Geocode(ctx, "x")
	require.Error(t, err)
	assert.True(t, IsTimeoutError(err))
}

func TestNominatimConfidence(t *testing.T) {
	assert.Equal(t, "high", nominatimConfidence(30))
	assert.Equal(t, "high", nominatimConfidence(26))
	assert.Equal(t, "medium", nominatimConfidence(16))
	assert.Equal(t, "low", nominatimConfidence(8))
}
