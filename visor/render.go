// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

// Package visor renders the customer map and serves the editing workspace.
package visor

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/jcodagnone/visor/clientes"
	"github.com/jcodagnone/visor/spatial"
	"github.com/jcodagnone/visor/utils/textutils"
)

//go:embed templates/map.html
var templatesFS embed.FS

var mapTemplate = template.Must(template.ParseFS(templatesFS, "templates/map.html"))

const (
	// DefaultZoom of the rendered map.
	DefaultZoom = 8

	// DefaultTitle of the rendered page.
	DefaultTitle = "Visor de clientes"

	// UngroupedColor is used for records without a group.
	UngroupedColor = "#7f7f7f"
)

// DefaultCenter is Madrid.
var DefaultCenter = spatial.Point{Lat: 40.4167, Lng: -3.7037}

// palette is assigned to groups in alphabetical order, wrapping around.
var palette = []string{
	"#1f77b4", // blue
	"#d62728", // red
	"#2ca02c", // green
	"#ff7f0e", // orange
	"#9467bd", // purple
	"#8c564b", // brown
	"#e377c2", // pink
	"#17becf", // cyan
	"#bcbd22", // olive
	"#393b79", // dark blue
}

// Palette maps groups to marker colors. Colors depend only on the set of
// groups, never on record order.
type Palette map[string]string

// NewPalette assigns a color to each group present in records.
func NewPalette(records []*clientes.Record) Palette {
	p := make(Palette)

	for i, g := range clientes.Groups(records) {
		p[textutils.LowerASCIIFolding(g)] = palette[i%len(palette)]
	}

	return p
}

// Color returns the color of group, UngroupedColor when unknown.
func (p Palette) Color(group string) string {
	if c, ok := p[textutils.LowerASCIIFolding(group)]; ok {
		return c
	}

	return UngroupedColor
}

// Map holds the presentation settings of a rendered map.
type Map struct {
	Title  string
	Center spatial.Point
	Zoom   int

	// Interactive adds the filter form and the mark buttons, which need
	// the server.
	Interactive bool

	// Provinces offered by the filter form.
	Provinces []string

	// Marked names are drawn faded.
	Marked map[string]bool
}

// NewMap returns a map centered on Madrid.
func NewMap() *Map {
	return &Map{
		Title:  DefaultTitle,
		Center: DefaultCenter,
		Zoom:   DefaultZoom,
	}
}

type marker struct {
	Name     string  `json:"name"`
	Address  string  `json:"address"`
	Locality string  `json:"locality"`
	Province string  `json:"province"`
	Group    string  `json:"group"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Color    string  `json:"color"`
	Marked   bool    `json:"marked"`
}

type legendEntry struct {
	Group string
	Label string
	Color string
	Count int
}

type page struct {
	Title       string
	Center      spatial.Point
	Zoom        int
	Interactive bool
	Provinces   []string
	Filter      clientes.Filter
	Legend      []legendEntry
	Markers     []marker
	Located     int
	Total       int
}

// Render writes the map of the records passing filter, with default
// settings.
func Render(w io.Writer, records []*clientes.Record, filter clientes.Filter) error {
	return NewMap().Render(w, records, filter)
}

// Render writes a self-contained HTML page with one marker per record that
// passes filter and has coordinates.
func (m *Map) Render(w io.Writer, records []*clientes.Record, filter clientes.Filter) error {
	// colors are assigned over the full list so filtering doesn't repaint
	colors := NewPalette(records)
	shown := filter.Apply(records)

	p := page{
		Title:       m.Title,
		Center:      m.Center,
		Zoom:        m.Zoom,
		Interactive: m.Interactive,
		Provinces:   m.Provinces,
		Filter:      filter,
		Markers:     make([]marker, 0, len(shown)),
		Total:       len(shown),
	}

	counts := make(map[string]int)

	for _, r := range shown {
		loc, ok := r.Location()
		if !ok {
			continue
		}

		p.Markers = append(p.Markers, marker{
			Name:     r.Name,
			Address:  r.Address,
			Locality: r.Locality,
			Province: r.Province,
			Group:    r.Group,
			Lat:      loc.Lat,
			Lon:      loc.Lng,
			Color:    colors.Color(r.Group),
			Marked:   m.Marked[r.Name],
		})

		counts[textutils.LowerASCIIFolding(r.Group)]++
	}

	p.Located = len(p.Markers)

	for _, g := range clientes.Groups(shown) {
		if n := counts[textutils.LowerASCIIFolding(g)]; n > 0 {
			p.Legend = append(p.Legend, legendEntry{Group: g, Label: g, Color: colors.Color(g), Count: n})
		}
	}

	if n := counts[""]; n > 0 {
		p.Legend = append(p.Legend, legendEntry{Label: "Sin grupo", Color: UngroupedColor, Count: n})
	}

	if err := mapTemplate.Execute(w, p); err != nil {
		return fmt.Errorf("rendering map: %w", err)
	}

	return nil
}
