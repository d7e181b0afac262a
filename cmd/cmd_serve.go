// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/visor/geocoding"
	"github.com/jcodagnone/visor/visor"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Sirve el mapa interactivo con búsqueda y marcas de eliminación (solo local)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		src, err := newSource()
		if err != nil {
			return err
		}

		db, err := sql.Open("duckdb", settings.GetString("db"))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		ws := visor.NewWorkspace(db)
		if err := ws.CreateSchema(); err != nil {
			return err
		}

		var rc *geocoding.Reconciler

		if !settings.GetBool("no-geocode") {
			if rc, err = newReconciler(ctx); err != nil {
				return err
			}
		}

		if settings.GetString("log-level") != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}

		server := visor.NewServer(src, ws, rc, logger)
		if err := server.Load(ctx); err != nil {
			return err
		}

		addr := settings.GetString("addr")

		log.Println("🗺️  Visor de clientes iniciando...")
		log.Printf("📍 Abrir http://%s en el navegador", addr)

		return server.Run(addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addGeocoderFlags(serveCmd)
	serveCmd.Flags().String("addr", "localhost:8080", "Dirección donde escuchar")
	serveCmd.Flags().String("db", "visor.duckdb", "Base de datos del espacio de trabajo (marcas de eliminación)")
	serveCmd.Flags().Bool("no-geocode", false, "Deshabilita POST /api/geocode")
}
