// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jcodagnone/visor/clientes"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGeocoder answers from a map of query to result and records calls.
type fakeGeocoder struct {
	mu      sync.Mutex
	results map[string]*Result
	errs    map[string]error
	calls   []string
}

func (f *fakeGeocoder) Geocode(_ context.Context, query string) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, query)

	if err, ok := f.errs[query]; ok {
		return nil, err
	}

	if res, ok := f.results[query]; ok {
		return res, nil
	}

	return nil, ErrNotFound
}

type countingLimiter struct {
	waits int
}

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.waits++

	return ctx.Err()
}

func parseRecords(t *testing.T, data string) (*clientes.Document, []*clientes.Record) {
	t.Helper()

	doc, err := clientes.ParseDocument([]byte(data), zerolog.Nop())
	require.NoError(t, err)

	return doc, doc.Records()
}

func newTestReconciler(g Geocoder, l Limiter) *Reconciler {
	return NewReconciler(g, Options{Limiter: l, Logger: zerolog.Nop()})
}

func TestReconcileResolvesMissingCoordinates(t *testing.T) {
	doc, records := parseRecords(t, `[{"Nombre":"A","Dirección":"","Población ":"Madrid","Provincia":"Madrid"}]`)

	g := &fakeGeocoder{results: map[string]*Result{
		", Madrid, Madrid, España": {Latitude: 40.0, Longitude: -3.0, Provider: "fake"},
	}}

	report, err := newTestReconciler(g, Unlimited{}).Reconcile(context.Background(), records)
	require.NoError(t, err)

	assert.True(t, report.Changed)
	assert.Equal(t, 1, report.Resolved)
	assert.Equal(t, []string{", Madrid, Madrid, España"}, g.calls)

	require.NotNil(t, records[0].Lat)
	require.NotNil(t, records[0].Lon)
	assert.InDelta(t, 40.0, *records[0].Lat, 0)
	assert.InDelta(t, -3.0, *records[0].Lon, 0)

	out, err := doc.Bytes()
	require.NoError(t, err)

	want := `[
    {
        "Nombre": "A",
        "Dirección": "",
        "Población ": "Madrid",
        "Provincia": "Madrid",
        "lat": 40,
        "lon": -3
    }
]
`
	if diff := cmp.Diff(want, string(out)); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcileNotFoundLeavesRecordUntouched(t *testing.T) {
	const input = `[{"Nombre":"A","Dirección":"","Población ":"Madrid","Provincia":"Madrid"}]`

	doc, records := parseRecords(t, input)
	before, err := doc.Bytes()
	require.NoError(t, err)

	g := &fakeGeocoder{}

	report, err := newTestReconciler(g, Unlimited{}).Reconcile(context.Background(), records)
	require.NoError(t, err)

	assert.False(t, report.Changed)
	assert.Equal(t, 1, report.NotFound)
	assert.False(t, records[0].HasCoordinates())

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, StatusNotFound, report.Outcomes[0].Status)
	assert.ErrorIs(t, report.Outcomes[0].Err, ErrNotFound)

	after, err := doc.Bytes()
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestReconcileSkipsRecordsWithCoordinates(t *testing.T) {
	doc, records := parseRecords(t, `[
		{"Nombre":"Con","Dirección":"Calle Mayor 1","Población ":"Toledo","Provincia":"Toledo","lat":39.86,"lon":"-4,02"},
		{"Nombre":"Sin","Dirección":"Calle Real 2","Población ":"Ávila","Provincia":"Ávila"}
	]`)
	before, err := doc.Bytes()
	require.NoError(t, err)

	g := &fakeGeocoder{results: map[string]*Result{
		"Calle Real 2, Ávila, Ávila, España": {Latitude: 40.65, Longitude: -4.69},
	}}
	l := &countingLimiter{}

	report, err := newTestReconciler(g, l).Reconcile(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, []string{"Calle Real 2, Ávila, Ávila, España"}, g.calls)
	assert.Equal(t, 1, l.waits)
	assert.Equal(t, 1, report.Cached)
	assert.Equal(t, 1, report.Lookups())
	assert.True(t, report.Changed)

	after, err := doc.Bytes()
	require.NoError(t, err)

	// the first record is written back byte for byte
	assert.Contains(t, string(before), `"lon": "-4,02"`)
	assert.Contains(t, string(after), `"lon": "-4,02"`)
}

func TestReconcileCallsEachIncompleteRecordOnce(t *testing.T) {
	lat := 40.0
	partial := clientes.NewRecord("Solo lat", "Calle 1", "Madrid", "Madrid", "")
	partial.Lat = &lat

	records := []*clientes.Record{
		clientes.NewRecord("A", "Calle 1", "Madrid", "Madrid", ""),
		clientes.NewRecord("B", "Calle 2", "Madrid", "Madrid", ""),
		partial,
	}

	g := &fakeGeocoder{errs: map[string]error{
		"Calle 2, Madrid, Madrid, España": &GeocodingError{Type: ErrorTypeRateLimit, Message: "límite de tasa alcanzado"},
	}}

	report, err := newTestReconciler(g, Unlimited{}).Reconcile(context.Background(), records)
	require.NoError(t, err)

	assert.Len(t, g.calls, 3)
	assert.Equal(t, 2, report.NotFound)
	assert.Equal(t, 1, report.Failed)
	assert.False(t, report.Changed)

	for _, r := range records[:2] {
		assert.False(t, r.HasCoordinates(), r.Name)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	doc, records := parseRecords(t, `[{"Nombre":"A","Dirección":"Gran Vía 1","Población ":"Madrid","Provincia":"Madrid"}]`)

	g := &fakeGeocoder{results: map[string]*Result{
		"Gran Vía 1, Madrid, Madrid, España": {Latitude: 40.42, Longitude: -3.70},
	}}
	rc := newTestReconciler(g, Unlimited{})

	first, err := rc.Reconcile(context.Background(), records)
	require.NoError(t, err)
	assert.True(t, first.Changed)

	out1, err := doc.Bytes()
	require.NoError(t, err)

	second, err := rc.Reconcile(context.Background(), records)
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Zero(t, second.Lookups())
	assert.Len(t, g.calls, 1)

	out2, err := doc.Bytes()
	require.NoError(t, err)
	assert.Equal(t, string(out1), string(out2))
}

func TestReconcileRejectsInvalidResults(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		bounds *Bounds
	}{
		{"latitude out of range", &Result{Latitude: 123, Longitude: -3}, nil},
		{"longitude out of range", &Result{Latitude: 40, Longitude: -190}, nil},
		{"outside bounds", &Result{Latitude: -34.9, Longitude: -56.1}, SpainBounds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := clientes.NewRecord("A", "Calle 1", "Madrid", "Madrid", "")
			g := GeocoderFunc(func(context.Context, string) (*Result, error) { return tt.result, nil })

			rc := NewReconciler(g, Options{Limiter: Unlimited{}, Bounds: tt.bounds, Logger: zerolog.Nop()})

			report, err := rc.Reconcile(context.Background(), []*clientes.Record{r})
			require.NoError(t, err)

			assert.False(t, report.Changed)
			assert.Equal(t, 1, report.Failed)
			assert.Equal(t, ErrorTypeInvalidResult, Classify(report.Outcomes[0].Err))
			assert.False(t, r.HasCoordinates())
		})
	}
}

func TestReconcileEmpty(t *testing.T) {
	g := &fakeGeocoder{}

	report, err := newTestReconciler(g, Unlimited{}).Reconcile(context.Background(), nil)
	require.NoError(t, err)

	assert.False(t, report.Changed)
	assert.Empty(t, g.calls)
}

func TestReconcileCancellationKeepsPartialProgress(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	records := []*clientes.Record{
		clientes.NewRecord("A", "Calle 1", "Madrid", "Madrid", ""),
		clientes.NewRecord("B", "Calle 2", "Madrid", "Madrid", ""),
		clientes.NewRecord("C", "Calle 3", "Madrid", "Madrid", ""),
	}

	calls := 0
	g := GeocoderFunc(func(context.Context, string) (*Result, error) {
		calls++
		if calls == 1 {
			cancel()
		}

		return &Result{Latitude: 40, Longitude: -3}, nil
	})

	report, err := newTestReconciler(g, Unlimited{}).Reconcile(ctx, records)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 1, calls)
	assert.True(t, report.Changed)
	assert.True(t, records[0].HasCoordinates())
	assert.False(t, records[1].HasCoordinates())
}

func TestReconcileUsesPerCallTimeout(t *testing.T) {
	r := clientes.NewRecord("A", "Calle 1", "Madrid", "Madrid", "")

	g := GeocoderFunc(func(ctx context.Context, _ string) (*Result, error) {
		<-ctx.Done()

		return nil, classifyTransportError(ctx.Err())
	})

	rc := NewReconciler(g, Options{Limiter: Unlimited{}, Timeout: 10 * time.Millisecond, Logger: zerolog.Nop()})

	report, err := rc.Reconcile(context.Background(), []*clientes.Record{r})
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, StatusFailed, report.Outcomes[0].Status)
	assert.True(t, IsTimeoutError(report.Outcomes[0].Err))
}

func TestReconcileProgressAndQueryBuilder(t *testing.T) {
	records := []*clientes.Record{
		clientes.NewRecord("A", "", "Madrid", "Madrid", ""),
		clientes.NewRecord("B", "Calle 2", "", "Segovia", ""),
	}

	g := &fakeGeocoder{}

	var progress [][2]int

	rc := NewReconciler(g, Options{
		Limiter:  Unlimited{},
		Query:    CompactAddress(DefaultCountry),
		Progress: func(done, total int) { progress = append(progress, [2]int{done, total}) },
		Logger:   zerolog.Nop(),
	})

	_, err := rc.Reconcile(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, []string{"Madrid, Madrid, España", "Calle 2, Segovia, España"}, g.calls)
	assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, progress)
}

func TestReconcilePacesRequests(t *testing.T) {
	records := []*clientes.Record{
		clientes.NewRecord("A", "Calle 1", "Madrid", "Madrid", ""),
		clientes.NewRecord("B", "Calle 2", "Madrid", "Madrid", ""),
		clientes.NewRecord("C", "Calle 3", "Madrid", "Madrid", ""),
	}

	const interval = 50 * time.Millisecond

	rc := newTestReconciler(&fakeGeocoder{}, NewIntervalLimiter(interval))

	start := time.Now()
	_, err := rc.Reconcile(context.Background(), records)
	require.NoError(t, err)

	// the first request goes out immediately
	assert.GreaterOrEqual(t, time.Since(start), 2*interval-5*time.Millisecond)
}

func TestReconcileLimiterError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := &fakeGeocoder{}

	report, err := newTestReconciler(g, &countingLimiter{}).Reconcile(ctx, []*clientes.Record{
		clientes.NewRecord("A", "Calle 1", "Madrid", "Madrid", ""),
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, g.calls)
	assert.Zero(t, report.Lookups())
}

func TestPending(t *testing.T) {
	lat, lon := 1.0, 2.0
	done := clientes.NewRecord("Done", "", "", "", "")
	done.Lat, done.Lon = &lat, &lon
	todo := clientes.NewRecord("Todo", "", "", "", "")

	got := Pending([]*clientes.Record{done, nil, todo})
	assert.Equal(t, []*clientes.Record{todo}, got)
}

func TestQueryBuilders(t *testing.T) {
	r := clientes.NewRecord("A", "  Calle Mayor 5 ", "", " Cuenca", "")

	assert.Equal(t, "Calle Mayor 5, , Cuenca, España", FullAddress(DefaultCountry)(r))
	assert.Equal(t, "Calle Mayor 5, Cuenca, España", CompactAddress(DefaultCountry)(r))
}

func TestNewIntervalLimiterDisabled(t *testing.T) {
	assert.Equal(t, Unlimited{}, NewIntervalLimiter(0))
}
