// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jcodagnone/visor/clientes"
	"github.com/jcodagnone/visor/geocoding"
	"github.com/jcodagnone/visor/spatial"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Dev tools",
}

var debugGeocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Consulta el servicio de geocodificación con direcciones leídas de stdin",
	Long: `Lee una dirección por línea, e imprime en stdout la dirección seguida del
resultado de la consulta.

$ echo "Calle Mayor 1, Madrid, España" | visor debug geocode
Calle Mayor 1, Madrid, España		{"Latitude":40.41,"Longitude":-3.70,…}
	`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		inner, err := newGeocoder(ctx)
		if err != nil {
			return err
		}

		limiter := geocoding.NewIntervalLimiter(settings.GetDuration("interval"))
		timeout := settings.GetDuration("timeout")

		g := geocoding.GeocoderFunc(func(ctx context.Context, query string) (*geocoding.Result, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}

			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			return inner.Geocode(ctx, query)
		})

		input := os.Stdin
		if isatty.IsTerminal(input.Fd()) {
			fmt.Fprintln(os.Stderr, "Ingrese direcciones a consultar, una por línea…")
		}

		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			query := strings.TrimSpace(scanner.Text())
			if query == "" {
				continue
			}

			res, err := g.Geocode(ctx, query)
			if err != nil {
				fmt.Printf("%s\t%s\t%q\n", query, geocoding.Classify(err), err)

				continue
			}

			s, err := json.Marshal(res)
			if err != nil {
				return err
			}

			fmt.Printf("%s\t\t%s\n", query, s)
		}

		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		return nil
	},
}

var debugDuplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Lista los nombres de cliente repetidos",
	Long: `Las marcas de eliminación identifican a los clientes por nombre; los nombres
repetidos no pueden distinguirse entre sí.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		src, err := newSource()
		if err != nil {
			return err
		}

		doc, ok, err := loadDocument(cmd.Context(), src)
		if err != nil || !ok {
			return err
		}

		for _, d := range clientes.Duplicates(doc.Records()) {
			fmt.Printf("%d\t%s\n", d.Count, d.Name)
		}

		return nil
	},
}

var debugClustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "Agrupa los clientes que están a menos de --distance metros entre sí",
	Long: `Útil para encontrar clientes con coordenadas repetidas o casi iguales, que
suelen indicar una dirección resuelta solo a nivel de población.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		src, err := newSource()
		if err != nil {
			return err
		}

		doc, ok, err := loadDocument(cmd.Context(), src)
		if err != nil || !ok {
			return err
		}

		distance := settings.GetFloat64("distance")

		for _, cluster := range spatialClusters(doc.Records(), distance) {
			p, _ := cluster[0].Location()

			names := make([]string, 0, len(cluster))
			for _, r := range cluster {
				names = append(names, r.Name)
			}

			fmt.Printf("%d\t%s\t%s\n", len(cluster), p, strings.Join(names, " | "))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.AddCommand(debugGeocodeCmd)
	debugCmd.AddCommand(debugDuplicatesCmd)
	debugCmd.AddCommand(debugClustersCmd)
	addGeocoderFlags(debugGeocodeCmd)
	debugClustersCmd.Flags().Float64("distance", 50, "Distancia máxima en metros entre clientes de un mismo grupo")
}

// spatialClusters returns the groups with more than one record, largest first.
func spatialClusters(records []*clientes.Record, distance float64) [][]*clientes.Record {
	var out [][]*clientes.Record

	for _, c := range spatial.Cluster(records, distance) {
		if len(c) > 1 {
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })

	return out
}
