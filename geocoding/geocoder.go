// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"

	"github.com/jcodagnone/visor/spatial"
)

// Result represents a geocoding result from any provider.
type Result struct {
	Latitude    float64
	Longitude   float64
	Confidence  string // high, medium, low
	Provider    string
	DisplayName string
}

// Point returns the result as a spatial.Point.
func (r *Result) Point() spatial.Point {
	return spatial.Point{Lat: r.Latitude, Lng: r.Longitude}
}

// Geocoder resolves a free-text address. Implementations return an error
// matching ErrNotFound when the address has no match.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*Result, error)
}

// GeocoderFunc adapts a function to the Geocoder interface.
type GeocoderFunc func(ctx context.Context, query string) (*Result, error)

// Geocode implements Geocoder.
func (f GeocoderFunc) Geocode(ctx context.Context, query string) (*Result, error) {
	return f(ctx, query)
}
