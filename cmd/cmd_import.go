// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jcodagnone/visor/clientes"
	"github.com/jcodagnone/visor/utils/textutils"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <archivo.xlsx>",
	Short: "Reemplaza la lista de clientes con el contenido de una planilla",
	Long: `Lee la planilla (la primera fila tiene los nombres de las columnas) y la guarda
como lista de clientes. Los clientes que ya existían con el mismo nombre y
dirección conservan sus coordenadas, para no volver a consultarlas.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		doc, err := clientes.ImportExcel(args[0], settings.GetString("sheet"), logger)
		if err != nil {
			return fmt.Errorf("importing %s: %w", args[0], err)
		}

		src, err := newSource()
		if err != nil {
			return err
		}

		previous, err := src.Load(ctx)

		switch {
		case errors.Is(err, clientes.ErrSourceNotFound):
		case err != nil:
			return fmt.Errorf("loading %s: %w", src, err)
		default:
			kept := carryCoordinates(previous, doc)
			log.Printf("📌 %d clientes conservan sus coordenadas", kept)
		}

		if err := src.Save(context.WithoutCancel(ctx), doc); err != nil {
			return fmt.Errorf("saving %s: %w", src, err)
		}

		log.Printf("💾 %s clientes importados en %s", textutils.FormatInt(int64(doc.Len())), src)

		return nil
	},
}

// carryCoordinates copies the coordinates of previous records into the
// matching records of doc that have none. Records match by name and
// address. Returns how many records got coordinates.
func carryCoordinates(previous, doc *clientes.Document) int {
	type key struct{ name, address string }

	known := make(map[key]*clientes.Record)

	for _, r := range previous.Records() {
		if r.HasCoordinates() {
			known[key{r.Name, r.Address}] = r
		}
	}

	n := 0

	for _, r := range doc.Records() {
		if r.HasCoordinates() {
			continue
		}

		if old, ok := known[key{r.Name, r.Address}]; ok {
			r.SetCoordinates(*old.Lat, *old.Lon)
			n++
		}
	}

	return n
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().String("sheet", "", "Hoja a importar (por defecto la primera)")
}
