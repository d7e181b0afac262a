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

	"github.com/spf13/cobra"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Completa las coordenadas que faltan sin generar el mapa",
	Args:  cobra.NoArgs,
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

		report, rErr := reconcile(ctx, doc.Records())
		if rErr != nil && !errors.Is(rErr, context.Canceled) {
			return rErr
		}

		if settings.GetBool("dry-run") {
			for _, o := range report.Outcomes {
				fmt.Printf("%s\t%s\t%s\n", o.Status, o.Record.Name, o.Query)
			}

			return rErr
		}

		if report.Changed {
			if err := src.Save(context.WithoutCancel(ctx), doc); err != nil {
				return fmt.Errorf("saving %s: %w", src, err)
			}

			log.Printf("💾 Lista de clientes actualizada en %s", src)
		}

		return rErr
	},
}

func init() {
	rootCmd.AddCommand(geocodeCmd)
	addGeocoderFlags(geocodeCmd)
	geocodeCmd.Flags().Bool("dry-run", false, "No persiste ningun cambio, imprime el resultado de cada consulta")
}
