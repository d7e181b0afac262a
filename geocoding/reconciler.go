// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"fmt"
	"time"

	"github.com/jcodagnone/visor/clientes"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single geocoding call.
const DefaultTimeout = 10 * time.Second

// Status is what happened to a record during reconciliation.
type Status string

const (
	StatusResolved Status = "resolved"
	StatusNotFound Status = "not_found"
	StatusFailed   Status = "failed"
)

// Outcome describes the lookup of one record.
type Outcome struct {
	Record *clientes.Record
	Query  string
	Status Status
	Result *Result
	Err    error
}

// Report summarizes a reconciliation pass.
type Report struct {
	// Changed is true when at least one record gained coordinates, i.e.
	// the collection must be persisted.
	Changed bool

	// Cached counts records that already had coordinates.
	Cached int

	Resolved int
	NotFound int
	Failed   int

	// Outcomes holds one entry per lookup, in order.
	Outcomes []Outcome
}

// Lookups is the number of geocoder calls made.
func (r *Report) Lookups() int {
	return len(r.Outcomes)
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)

	switch o.Status {
	case StatusResolved:
		r.Resolved++
		r.Changed = true
	case StatusNotFound:
		r.NotFound++
	case StatusFailed:
		r.Failed++
	}
}

// Options tweak a Reconciler. The zero value is usable.
type Options struct {
	// Limiter paces requests. Defaults to one request per DefaultInterval.
	Limiter Limiter

	// Timeout of each geocoder call. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Query builds the address for a record. Defaults to
	// FullAddress(DefaultCountry).
	Query QueryBuilder

	// Bounds, when set, rejects results outside the box.
	Bounds *Bounds

	// Progress, when set, is called after every lookup.
	Progress func(done, total int)

	Logger zerolog.Logger
}

// Reconciler fills in missing coordinates.
type Reconciler struct {
	geocoder Geocoder
	limiter  Limiter
	timeout  time.Duration
	query    QueryBuilder
	bounds   *Bounds
	progress func(done, total int)
	logger   zerolog.Logger
}

// NewReconciler creates a reconciler that resolves addresses with g.
func NewReconciler(g Geocoder, opts Options) *Reconciler {
	rc := &Reconciler{
		geocoder: g,
		limiter:  opts.Limiter,
		timeout:  opts.Timeout,
		query:    opts.Query,
		bounds:   opts.Bounds,
		progress: opts.Progress,
		logger:   opts.Logger,
	}

	if rc.limiter == nil {
		rc.limiter = NewIntervalLimiter(DefaultInterval)
	}

	if rc.timeout <= 0 {
		rc.timeout = DefaultTimeout
	}

	if rc.query == nil {
		rc.query = FullAddress(DefaultCountry)
	}

	return rc
}

// Pending returns the records lacking latitude or longitude.
func Pending(records []*clientes.Record) []*clientes.Record {
	var out []*clientes.Record

	for _, r := range records {
		if r != nil && !r.HasCoordinates() {
			out = append(out, r)
		}
	}

	return out
}

// Reconcile looks up every record lacking coordinates, one at a time, and
// stores the coordinates found. Records that already have both coordinates
// are never looked up again. Lookup failures are logged and reported but
// never returned: the record just stays without coordinates until the next
// run. The only error is ctx being done, in which case the report covers the
// records processed so far.
func (rc *Reconciler) Reconcile(ctx context.Context, records []*clientes.Record) (*Report, error) {
	pending := Pending(records)
	report := &Report{Cached: len(records) - len(pending)}

	rc.logger.Debug().Int("records", len(records)).Int("pending", len(pending)).Msg("reconciling coordinates")

	for i, r := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		query := rc.query(r)

		if err := rc.limiter.Wait(ctx); err != nil {
			return report, fmt.Errorf("waiting for rate limiter: %w", err)
		}

		o := rc.lookup(ctx, r, query)
		report.add(o)
		rc.log(o)

		if rc.progress != nil {
			rc.progress(i+1, len(pending))
		}
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}

	return report, nil
}

func (rc *Reconciler) lookup(ctx context.Context, r *clientes.Record, query string) Outcome {
	o := Outcome{Record: r, Query: query}

	cctx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()

	res, err := rc.geocoder.Geocode(cctx, query)

	switch {
	case err != nil && IsNotFoundError(err):
		o.Status, o.Err = StatusNotFound, err
	case err != nil:
		o.Status, o.Err = StatusFailed, err
	case res == nil:
		o.Status, o.Err = StatusNotFound, ErrNotFound
	default:
		if vErr := validateResult(res, rc.bounds); vErr != nil {
			o.Status, o.Err = StatusFailed, vErr

			break
		}

		r.SetCoordinates(res.Latitude, res.Longitude)
		o.Status, o.Result = StatusResolved, res
	}

	return o
}

func (rc *Reconciler) log(o Outcome) {
	switch o.Status {
	case StatusResolved:
		rc.logger.Info().
			Str("name", o.Record.Name).
			Str("query", o.Query).
			Float64("lat", o.Result.Latitude).
			Float64("lon", o.Result.Longitude).
			Str("provider", o.Result.Provider).
			Str("confidence", o.Result.Confidence).
			Msg("record geocoded")
	case StatusNotFound:
		rc.logger.Debug().
			Str("name", o.Record.Name).
			Str("query", o.Query).
			Msg("address not found, record skipped")
	case StatusFailed:
		rc.logger.Warn().
			Str("name", o.Record.Name).
			Str("query", o.Query).
			Stringer("type", Classify(o.Err)).
			Err(o.Err).
			Msg("geocoding failed, record skipped")
	}
}
