// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"strings"

	"github.com/jcodagnone/visor/clientes"
)

// DefaultCountry is appended to every query.
const DefaultCountry = "España"

// QueryBuilder turns a record into the free-text address sent to the
// geocoder.
type QueryBuilder func(r *clientes.Record) string

// FullAddress joins street, locality, province and country with ", ".
// Blank fields still take their slot, so a record without street produces
// ", Madrid, Madrid, España".
func FullAddress(country string) QueryBuilder {
	return func(r *clientes.Record) string {
		return strings.Join([]string{
			strings.TrimSpace(r.Address),
			strings.TrimSpace(r.Locality),
			strings.TrimSpace(r.Province),
			country,
		}, ", ")
	}
}

// CompactAddress is like FullAddress but leaves blank fields out.
func CompactAddress(country string) QueryBuilder {
	return func(r *clientes.Record) string {
		parts := make([]string, 0, 4)

		for _, p := range []string{r.Address, r.Locality, r.Province, country} {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}

		return strings.Join(parts, ", ")
	}
}
