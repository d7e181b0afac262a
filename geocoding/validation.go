// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"fmt"
)

// Bounds is a latitude/longitude box.
type Bounds struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// SpainBounds covers the peninsula, the Balearic and Canary Islands, Ceuta
// and Melilla, with about half a degree of margin.
var SpainBounds = &Bounds{
	MinLat: 27.0,
	MaxLat: 44.5,
	MinLon: -18.8,
	MaxLon: 4.9,
}

// Contains reports whether lat/lon lies inside the box.
func (b *Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// validateResult rejects results that cannot be stored: coordinates outside
// the global range and, when bounds is set, outside bounds.
func validateResult(res *Result, bounds *Bounds) error {
	if err := res.Point().Valid(); err != nil {
		return &GeocodingError{Type: ErrorTypeInvalidResult, Message: "coordenadas inválidas", Err: err}
	}

	if bounds != nil && !bounds.Contains(res.Latitude, res.Longitude) {
		return &GeocodingError{
			Type: ErrorTypeInvalidResult,
			Message: fmt.Sprintf("coordenadas fuera de los límites (%f, %f)..(%f, %f): %f, %f",
				bounds.MinLat, bounds.MinLon, bounds.MaxLat, bounds.MaxLon, res.Latitude, res.Longitude),
		}
	}

	return nil
}
