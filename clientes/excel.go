// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package clientes

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// ImportExcel reads a spreadsheet whose first row holds the JSON keys
// (Nombre, Dirección, Población, Provincia, Grupo, lat, lon, ...). An empty
// sheet name means the first sheet. Blank rows are skipped.
func ImportExcel(path, sheet string, logger zerolog.Logger) (doc *Document, err error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening spreadsheet: %w", err)
	}

	defer func() {
		if cErr := f.Close(); cErr != nil {
			err = errors.Join(err, fmt.Errorf("closing spreadsheet: %w", cErr))
		}
	}()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("spreadsheet has no sheets")
		}

		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = normalizeHeader(h)
	}

	doc = &Document{}

	for i, row := range rows[1:] {
		r, err := recordFromRow(header, row)
		if err != nil {
			logger.Warn().Int("row", i+2).Err(err).Msg("skipping spreadsheet row")

			continue
		}

		if r != nil {
			doc.entries = append(doc.entries, entry{record: r})
		}
	}

	logger.Debug().Str("sheet", sheet).Int("records", doc.Len()).Msg("spreadsheet imported")

	return doc, nil
}

// normalizeHeader maps header spellings to the canonical JSON keys.
func normalizeHeader(h string) string {
	switch strings.ToLower(strings.TrimSpace(h)) {
	case "nombre":
		return KeyName
	case "dirección", "direccion":
		return KeyAddress
	case "población", "poblacion":
		return KeyLocality
	case "provincia":
		return KeyProvince
	case "grupo":
		return KeyGroup
	case "lat", "latitud":
		return KeyLat
	case "lon", "lng", "longitud":
		return KeyLon
	}

	return strings.TrimSpace(h)
}

func recordFromRow(header, row []string) (*Record, error) {
	r := &Record{}
	blank := true

	for i, key := range header {
		if key == "" {
			continue
		}

		var cell string
		if i < len(row) {
			cell = strings.TrimSpace(row[i])
		}

		if cell != "" {
			blank = false
		}

		if key == KeyLat || key == KeyLon {
			quoted, err := encode(cell)
			if err != nil {
				return nil, err
			}

			v, err := coordinate(quoted)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}

			if v != nil {
				b, err := encode(*v)
				if err != nil {
					return nil, err
				}

				r.set(key, b)
			}

			continue
		}

		r.setString(key, cell)
	}

	if blank {
		return nil, nil
	}

	r.sync()

	var err error
	if r.Lat, err = coordinate(r.fields[KeyLat]); err != nil {
		return nil, err
	}

	if r.Lon, err = coordinate(r.fields[KeyLon]); err != nil {
		return nil, err
	}

	return r, nil
}
