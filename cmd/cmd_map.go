// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/jcodagnone/visor/clientes"
	"github.com/jcodagnone/visor/visor"
	"github.com/spf13/cobra"
)

var mapFilter clientes.Filter

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Completa las coordenadas que faltan y genera el mapa de clientes",
	Long: `Carga la lista de clientes, busca las coordenadas de los que no las tienen,
guarda la lista si cambió y escribe el mapa en un archivo HTML.

$ visor map --provincia Toledo --out toledo.html`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		src, err := newSource()
		if err != nil {
			return err
		}

		doc, ok, err := loadDocument(ctx, src)
		if err != nil || !ok {
			return err
		}

		var rErr error

		if !settings.GetBool("no-geocode") {
			report, err := reconcile(ctx, doc.Records())
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			rErr = err

			if report.Changed {
				if err := src.Save(context.WithoutCancel(ctx), doc); err != nil {
					return fmt.Errorf("saving %s: %w", src, err)
				}

				log.Printf("💾 Lista de clientes actualizada en %s", src)
			}
		}

		if rErr != nil {
			log.Println("⚠️ Geocodificación interrumpida, el progreso quedó guardado")

			return rErr
		}

		out := settings.GetString("out")

		f, err := os.Create(filepath.Clean(out))
		if err != nil {
			return fmt.Errorf("creating %s: %w", out, err)
		}

		if err := visor.Render(f, doc.Records(), mapFilter); err != nil {
			return errors.Join(err, f.Close())
		}

		if err := f.Close(); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}

		abs, err := filepath.Abs(out)
		if err != nil {
			abs = out
		}

		log.Printf("🗺️  Mapa generado: %s", abs)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(mapCmd)
	addGeocoderFlags(mapCmd)

	mapCmd.Flags().String("out", "mapa_clientes.html", "Archivo HTML a generar")
	mapCmd.Flags().Bool("no-geocode", false, "No consulta coordenadas, solo dibuja las existentes")
	mapCmd.Flags().StringVar(&mapFilter.Province, "provincia", "", "Muestra solo los clientes de esta provincia")
	mapCmd.Flags().StringVar(&mapFilter.Group, "grupo", "", "Muestra solo los clientes de este grupo")
	mapCmd.Flags().StringVarP(&mapFilter.Query, "query", "q", "", "Muestra solo los clientes que coinciden con el texto")
}
