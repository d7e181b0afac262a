// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package clientes

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeSheet(t *testing.T, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	path := filepath.Join(t.TempDir(), "clientes.xlsx")
	require.NoError(t, f.SaveAs(path))

	return path
}

func TestImportExcel(t *testing.T) {
	path := writeSheet(t, [][]any{
		{"Nombre", "Direccion", "Población", "Provincia", "Grupo", "Latitud", "Longitud", "Teléfono"},
		{"Ferretería López", "C/ Mayor 1", "Alcalá de Henares", "Madrid", "A", "", "", "600000000"},
		{},
		{"Bar Pepe", "", "Toledo", "Toledo", "", 39.8628, -4.0273, ""},
		{"Roto", "", "", "", "", "norte", "sur", ""},
	})

	doc, err := ImportExcel(path, "", zerolog.Nop())
	require.NoError(t, err)

	records := doc.Records()
	require.Len(t, records, 2)

	assert.Equal(t, "Ferretería López", records[0].Name)
	assert.Equal(t, "C/ Mayor 1", records[0].Address)
	assert.Equal(t, "Alcalá de Henares", records[0].Locality)
	assert.Equal(t, "A", records[0].Group)
	assert.False(t, records[0].HasCoordinates())

	phone, ok := records[0].Field("Teléfono")
	require.True(t, ok)
	assert.JSONEq(t, `"600000000"`, string(phone))

	require.True(t, records[1].HasCoordinates())
	assert.InDelta(t, 39.8628, *records[1].Lat, 1e-9)
	assert.InDelta(t, -4.0273, *records[1].Lon, 1e-9)

	_, hasLocalityKey := records[1].Field(KeyLocality)
	assert.True(t, hasLocalityKey, "locality is stored under the canonical key")
}

func TestImportExcelMissingSheet(t *testing.T) {
	path := writeSheet(t, [][]any{{"Nombre"}, {"A"}})

	_, err := ImportExcel(path, "Clientes", zerolog.Nop())
	assert.Error(t, err)
}

func TestImportExcelMissingFile(t *testing.T) {
	_, err := ImportExcel(filepath.Join(t.TempDir(), "nope.xlsx"), "", zerolog.Nop())
	assert.Error(t, err)
}
