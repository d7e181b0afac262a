// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package clientes

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// entry is a position in the document: either a decoded record or the raw
// JSON of something that isn't one.
type entry struct {
	record *Record
	raw    json.RawMessage
}

// Document is the full customer list as stored on disk. It round-trips
// through a single read/modify/write cycle.
type Document struct {
	entries []entry
}

// NewDocument builds a document out of records.
func NewDocument(records ...*Record) *Document {
	d := &Document{entries: make([]entry, 0, len(records))}
	for _, r := range records {
		d.entries = append(d.entries, entry{record: r})
	}

	return d
}

// ParseDocument decodes a JSON array of customer objects. Entries that are
// not objects, or whose coordinates cannot be read, are skipped when
// iterating but retained so they are written back as they were.
func ParseDocument(data []byte, logger zerolog.Logger) (*Document, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("parsing customers JSON: %w", err)
	}

	d := &Document{entries: make([]entry, 0, len(raws))}

	for i, raw := range raws {
		r := &Record{}
		if err := r.UnmarshalJSON(raw); err != nil {
			logger.Warn().Int("index", i).Err(err).Msg("skipping malformed record")
			d.entries = append(d.entries, entry{raw: raw})

			continue
		}

		d.entries = append(d.entries, entry{record: r})
	}

	return d, nil
}

// Records returns the well-formed records, in document order.
func (d *Document) Records() []*Record {
	out := make([]*Record, 0, len(d.entries))

	for _, e := range d.entries {
		if e.record != nil {
			out = append(out, e.record)
		}
	}

	return out
}

// Len returns the number of entries, malformed ones included.
func (d *Document) Len() int {
	return len(d.entries)
}

// Find returns the first record with the given name. Names are the only
// identity the data has.
func (d *Document) Find(name string) (*Record, bool) {
	for _, e := range d.entries {
		if e.record != nil && e.record.Name == name {
			return e.record, true
		}
	}

	return nil, false
}

// Remove drops every record whose name is in names and returns how many
// were removed.
func (d *Document) Remove(names ...string) int {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}

	kept := d.entries[:0]
	removed := 0

	for _, e := range d.entries {
		if e.record != nil && drop[e.record.Name] {
			removed++

			continue
		}

		kept = append(kept, e)
	}

	d.entries = kept

	return removed
}

// MarshalJSON implements json.Marshaler.
func (d *Document) MarshalJSON() ([]byte, error) {
	items := make([]any, 0, len(d.entries))

	for _, e := range d.entries {
		if e.record != nil {
			items = append(items, e.record)
		} else {
			items = append(items, e.raw)
		}
	}

	return encode(items)
}

// WriteTo encodes the document as indented JSON without escaping
// non-ASCII or HTML characters.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")

	if err := enc.Encode(d); err != nil {
		return 0, fmt.Errorf("encoding customers: %w", err)
	}

	return buf.WriteTo(w)
}

// Bytes is a convenience around WriteTo.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := d.WriteTo(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// ErrSourceNotFound is returned when the backing customer list doesn't exist.
var ErrSourceNotFound = errors.New("customer list not found")
