// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package clientes

import (
	"sort"
	"strings"

	"github.com/jcodagnone/visor/utils/textutils"
)

// Filter restricts which records are shown. Comparisons ignore case and
// accents; empty fields don't filter.
type Filter struct {
	Province string `form:"provincia" json:"provincia,omitempty"`
	Group    string `form:"grupo" json:"grupo,omitempty"`
	Query    string `form:"q" json:"q,omitempty"`
}

// Empty reports whether the filter lets everything through.
func (f Filter) Empty() bool {
	return strings.TrimSpace(f.Province) == "" &&
		strings.TrimSpace(f.Group) == "" &&
		strings.TrimSpace(f.Query) == ""
}

// Match reports whether r passes the filter.
func (f Filter) Match(r *Record) bool {
	if p := textutils.LowerASCIIFolding(f.Province); p != "" && textutils.LowerASCIIFolding(r.Province) != p {
		return false
	}

	if g := textutils.LowerASCIIFolding(f.Group); g != "" && textutils.LowerASCIIFolding(r.Group) != g {
		return false
	}

	if q := textutils.LowerASCIIFolding(f.Query); q != "" {
		key := SearchKey(r)
		for _, term := range strings.Fields(q) {
			if !strings.Contains(key, term) {
				return false
			}
		}
	}

	return true
}

// Apply returns the records passing the filter, in order.
func (f Filter) Apply(records []*Record) []*Record {
	if f.Empty() {
		return records
	}

	out := make([]*Record, 0, len(records))

	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}

	return out
}

// SearchKey is the folded text free-text queries are matched against.
func SearchKey(r *Record) string {
	return textutils.LowerASCIIFolding(strings.Join(
		[]string{r.Name, r.Address, r.Locality, r.Province, r.Group},
		" ",
	))
}

// distinct returns the sorted distinct non-blank values of field, using the
// first spelling seen for values that only differ in case or accents.
func distinct(records []*Record, field func(*Record) string) []string {
	seen := make(map[string]string)

	for _, r := range records {
		v := strings.TrimSpace(field(r))
		if v == "" {
			continue
		}

		k := textutils.LowerASCIIFolding(v)
		if _, ok := seen[k]; !ok {
			seen[k] = v
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, seen[k])
	}

	return out
}

// Provinces lists the provinces present in records.
func Provinces(records []*Record) []string {
	return distinct(records, func(r *Record) string { return r.Province })
}

// Groups lists the groups present in records.
func Groups(records []*Record) []string {
	return distinct(records, func(r *Record) string { return r.Group })
}

// Duplicate is a name shared by more than one record.
type Duplicate struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Duplicates reports names used by more than one record. Since names are
// the only identity the data has, those records can't be told apart by
// name-based operations such as deletion marks.
func Duplicates(records []*Record) []Duplicate {
	counts := make(map[string]int)
	order := make([]string, 0)

	for _, r := range records {
		if counts[r.Name] == 0 {
			order = append(order, r.Name)
		}

		counts[r.Name]++
	}

	var out []Duplicate

	for _, name := range order {
		if counts[name] > 1 {
			out = append(out, Duplicate{Name: name, Count: counts[name]})
		}
	}

	return out
}
