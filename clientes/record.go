// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package clientes

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jcodagnone/visor/spatial"
)

// Keys used by the customer JSON documents. The locality key carries a
// trailing space in the source spreadsheets; the bare form is accepted too.
const (
	KeyName        = "Nombre"
	KeyAddress     = "Dirección"
	KeyLocality    = "Población "
	KeyLocalityAlt = "Población"
	KeyProvince    = "Provincia"
	KeyGroup       = "Grupo"
	KeyLat         = "lat"
	KeyLon         = "lon"
)

var errNotAnObject = errors.New("record is not a JSON object")

// Record is a single customer entry. Keys the program doesn't know about are
// kept untouched, in their original order, so a rewrite only changes what
// was actually modified.
type Record struct {
	Name     string
	Address  string
	Locality string
	Province string
	Group    string
	Lat      *float64
	Lon      *float64

	keys   []string
	fields map[string]json.RawMessage
}

// HasCoordinates reports whether both latitude and longitude are set.
func (r *Record) HasCoordinates() bool {
	return r.Lat != nil && r.Lon != nil
}

// SetCoordinates stores the given point.
func (r *Record) SetCoordinates(lat, lon float64) {
	r.Lat = &lat
	r.Lon = &lon
}

// Location implements spatial.Located.
func (r *Record) Location() (spatial.Point, bool) {
	if !r.HasCoordinates() {
		return spatial.Point{}, false
	}

	return spatial.Point{Lat: *r.Lat, Lng: *r.Lon}, true
}

// Field returns the raw value of an arbitrary key.
func (r *Record) Field(key string) (json.RawMessage, bool) {
	v, ok := r.fields[key]

	return v, ok
}

func (r *Record) set(key string, value json.RawMessage) {
	if r.fields == nil {
		r.fields = make(map[string]json.RawMessage)
	}

	if _, ok := r.fields[key]; !ok {
		r.keys = append(r.keys, key)
	}

	r.fields[key] = value
}

// NewRecord builds a record from scratch, as the spreadsheet importer does.
func NewRecord(name, address, locality, province, group string) *Record {
	r := &Record{}
	r.setString(KeyName, name)
	r.setString(KeyAddress, address)
	r.setString(KeyLocality, locality)
	r.setString(KeyProvince, province)

	if group != "" {
		r.setString(KeyGroup, group)
	}

	r.sync()

	return r
}

func (r *Record) setString(key, value string) {
	b, _ := encode(value) // strings always encode

	r.set(key, b)
}

// encode is json.Marshal without HTML escaping.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// sync refreshes the typed fields from the raw ones.
func (r *Record) sync() {
	r.Name = r.str(KeyName)
	r.Address = r.str(KeyAddress)
	r.Province = r.str(KeyProvince)
	r.Group = r.str(KeyGroup)

	if _, ok := r.fields[KeyLocality]; ok {
		r.Locality = r.str(KeyLocality)
	} else {
		r.Locality = r.str(KeyLocalityAlt)
	}
}

// str returns a key as string. Missing keys and nulls are empty strings;
// numbers are kept in their textual form.
func (r *Record) str(key string) string {
	raw, ok := r.fields[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}

	return ""
}

// coordinate decodes a lat/lon value. Numbers and numeric strings (decimal
// comma included) are accepted; null and blank strings mean absent.
func coordinate(raw json.RawMessage) (*float64, error) {
	if raw == nil || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("invalid coordinate %s", raw)
	}

	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return nil, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid coordinate %q: %w", s, err)
	}

	return &f, nil
}

// UnmarshalJSON decodes a JSON object keeping the key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errNotAnObject
	}

	*r = Record{}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}

		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decoding %q: %w", key, err)
		}

		r.set(key, raw)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	r.sync()

	if r.Lat, err = coordinate(r.fields[KeyLat]); err != nil {
		return fmt.Errorf("%s: %w", KeyLat, err)
	}

	if r.Lon, err = coordinate(r.fields[KeyLon]); err != nil {
		return fmt.Errorf("%s: %w", KeyLon, err)
	}

	return nil
}

// MarshalJSON writes the record back with its original key order. Only
// the coordinates are taken from the typed fields: they are the only thing
// the program mutates.
func (r *Record) MarshalJSON() ([]byte, error) {
	if err := r.syncCoordinates(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		k, err := encode(key)
		if err != nil {
			return nil, err
		}

		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(r.fields[key])
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func (r *Record) syncCoordinates() error {
	for _, c := range []struct {
		key string
		v   *float64
	}{{KeyLat, r.Lat}, {KeyLon, r.Lon}} {
		key, v := c.key, c.v
		if v == nil {
			continue
		}

		b, err := encode(*v)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", key, err)
		}

		if old, ok := r.fields[key]; ok && bytes.Equal(old, b) {
			continue
		}

		if old, ok := r.fields[key]; ok {
			// keep the stored text when it already holds the same value
			if f, err := coordinate(old); err == nil && f != nil && *f == *v {
				continue
			}
		}

		r.set(key, b)
	}

	return nil
}
