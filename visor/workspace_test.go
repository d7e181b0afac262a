// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package visor

import (
	"database/sql"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/jcodagnone/visor/clientes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestWorkspace(t *testing.T) (*sql.DB, Workspace) {
	t.Helper()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	t.Cleanup(func() { db.Close() })

	ws := NewWorkspace(db)
	if err := ws.CreateSchema(); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return db, ws
}

func workspaceFixture() []*clientes.Record {
	return []*clientes.Record{
		located("Bar Pepe", "Madrid", "Hostelería", 40.4168, -3.7038),
		located("Cafetería Sol", "madrid", "Hostelería", 40.4169, -3.7035),
		located("Ferretería Toledana", "Toledo", "Comercio", 39.8628, -4.0273),
		clientes.NewRecord("Panadería Ávila", "Calle Mayor 1", "Ávila", "Ávila", ""),
	}
}

func customerNames(cs []*Customer) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Name)
	}

	return out
}

func TestWorkspaceCreateSchema(t *testing.T) {
	db, _ := setupTestWorkspace(t)

	for _, table := range []string{"customers", "deletion_marks"} {
		var name string

		err := db.QueryRow("SELECT table_name FROM information_schema.tables WHERE table_name = ?", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestWorkspaceSearch(t *testing.T) {
	_, ws := setupTestWorkspace(t)
	require.NoError(t, ws.Replace(workspaceFixture()))

	tests := []struct {
		name   string
		filter clientes.Filter
		want   []string
	}{
		{"everything", clientes.Filter{}, []string{"Bar Pepe", "Cafetería Sol", "Ferretería Toledana", "Panadería Ávila"}},
		{"province ignores case", clientes.Filter{Province: "MADRID"}, []string{"Bar Pepe", "Cafetería Sol"}},
		{"province ignores accents", clientes.Filter{Province: "avila"}, []string{"Panadería Ávila"}},
		{"query folds accents", clientes.Filter{Query: "ferreteria"}, []string{"Ferretería Toledana"}},
		{"every term must match", clientes.Filter{Query: "sol hosteleria"}, []string{"Cafetería Sol"}},
		{"group", clientes.Filter{Group: "comercio"}, []string{"Ferretería Toledana"}},
		{"no match", clientes.Filter{Query: "zapatería"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ws.Search(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, customerNames(got))
		})
	}
}

func TestWorkspaceSearchMatchesFilter(t *testing.T) {
	_, ws := setupTestWorkspace(t)

	records := workspaceFixture()
	require.NoError(t, ws.Replace(records))

	filter := clientes.Filter{Province: "madrid", Query: "bar"}

	got, err := ws.Search(filter)
	require.NoError(t, err)

	var want []string
	for _, r := range filter.Apply(records) {
		want = append(want, r.Name)
	}

	assert.Equal(t, want, customerNames(got))
}

func TestWorkspaceCustomerFields(t *testing.T) {
	_, ws := setupTestWorkspace(t)
	require.NoError(t, ws.Replace(workspaceFixture()))

	got, err := ws.Search(clientes.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 4)

	pepe := got[0]
	assert.Equal(t, 0, pepe.Position)
	require.NotNil(t, pepe.Lat)
	assert.InDelta(t, 40.4168, *pepe.Lat, 1e-9)
	assert.NotEmpty(t, pepe.Cell)

	avila := got[3]
	assert.Nil(t, avila.Lat)
	assert.Nil(t, avila.Lon)
	assert.Empty(t, avila.Cell)
}

func TestWorkspaceReplace(t *testing.T) {
	_, ws := setupTestWorkspace(t)
	require.NoError(t, ws.Replace(workspaceFixture()))
	require.NoError(t, ws.Replace(workspaceFixture()[:1]))

	got, err := ws.Search(clientes.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bar Pepe"}, customerNames(got))
}

func TestWorkspaceProvinces(t *testing.T) {
	_, ws := setupTestWorkspace(t)
	require.NoError(t, ws.Replace(workspaceFixture()))

	got, err := ws.Provinces()
	require.NoError(t, err)
	assert.Equal(t, []string{"Ávila", "Madrid", "Toledo"}, got)
}

func TestWorkspaceMarks(t *testing.T) {
	_, ws := setupTestWorkspace(t)
	require.NoError(t, ws.Replace(workspaceFixture()))

	require.NoError(t, ws.Mark("Cafetería Sol"))
	require.NoError(t, ws.Mark("Bar Pepe"))
	require.NoError(t, ws.Mark("Bar Pepe"), "marking twice is fine")

	err := ws.Mark("Nadie")
	require.ErrorIs(t, err, ErrUnknownCustomer)

	marked, err := ws.Marked()
	require.NoError(t, err)
	assert.Equal(t, []string{"Bar Pepe", "Cafetería Sol"}, marked)

	got, err := ws.Search(clientes.Filter{Province: "Madrid"})
	require.NoError(t, err)

	for _, c := range got {
		assert.True(t, c.Marked, c.Name)
	}

	require.NoError(t, ws.Unmark("Bar Pepe"))
	require.NoError(t, ws.Unmark("Bar Pepe"))

	// marks survive a reload
	require.NoError(t, ws.Replace(workspaceFixture()))

	marked, err = ws.Marked()
	require.NoError(t, err)
	assert.Equal(t, []string{"Cafetería Sol"}, marked)
}

func TestWorkspaceCellCounts(t *testing.T) {
	_, ws := setupTestWorkspace(t)
	require.NoError(t, ws.Replace(workspaceFixture()))

	cells, err := ws.CellCounts(IndexResolution)
	require.NoError(t, err)
	require.Len(t, cells, 2)

	// the two Madrid customers are a few metres apart
	assert.Equal(t, 2, cells[0].Count)
	assert.InDelta(t, 40.41685, cells[0].Center.Lat, 1e-6)
	assert.Equal(t, 1, cells[1].Count)

	coarse, err := ws.CellCounts(3)
	require.NoError(t, err)

	total := 0
	for _, c := range coarse {
		total += c.Count
	}

	assert.Equal(t, 3, total)

	fine, err := ws.CellCounts(12)
	require.NoError(t, err)
	assert.Len(t, fine, 3)
}
