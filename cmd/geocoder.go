// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jcodagnone/visor/clientes"
	"github.com/jcodagnone/visor/geocoding"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func addGeocoderFlags(c *cobra.Command) {
	flags := c.Flags()
	flags.String("provider", "nominatim", "Servicio de geocodificación: nominatim o google")
	flags.String("nominatim-url", geocoding.DefaultNominatimURL, "URL base de Nominatim")
	flags.String("nominatim-email", "", "Email de contacto enviado a Nominatim")
	flags.String("countrycodes", "", "Restringe los resultados de Nominatim a estos países (ej. es)")
	flags.String("google-project", "", "Proyecto GCP donde buscar la API key de Google Maps")
	flags.String("country", geocoding.DefaultCountry, "País agregado a cada dirección")
	flags.Bool("compact-query", false, "Omite los campos vacíos de la dirección en la consulta")
	flags.Bool("spain-only", false, "Descarta resultados fuera de España")
	flags.Duration("interval", geocoding.DefaultInterval, "Pausa mínima entre consultas")
	flags.Duration("timeout", geocoding.DefaultTimeout, "Tiempo máximo de cada consulta")
}

func newGeocoder(ctx context.Context) (geocoding.Geocoder, error) {
	switch p := settings.GetString("provider"); p {
	case "nominatim", "":
		log.Println("📍 Geocodificación: Nominatim")

		return geocoding.NewNominatim(geocoding.NominatimOptions{
			BaseURL:      settings.GetString("nominatim-url"),
			Email:        settings.GetString("nominatim-email"),
			CountryCodes: settings.GetString("countrycodes"),
			HTTP:         httpOptions(),
		}), nil
	case "google":
		key, err := geocoding.ResolveGoogleMapsAPIKey(ctx, geocoding.KeyOptions{
			ProjectID: settings.GetString("google-project"),
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("resolving Google Maps API key: %w", err)
		}

		log.Println("📍 Geocodificación: Google Maps")

		return geocoding.NewGoogleMapsGeocoder(geocoding.GoogleMapsOptions{
			APIKey: key,
			HTTP:   httpOptions(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown geocoding provider %q", p)
	}
}

func reconcilerOptions() geocoding.Options {
	opts := geocoding.Options{
		Limiter: geocoding.NewIntervalLimiter(settings.GetDuration("interval")),
		Timeout: settings.GetDuration("timeout"),
		Query:   geocoding.FullAddress(settings.GetString("country")),
		Logger:  logger,
	}

	if settings.GetBool("compact-query") {
		opts.Query = geocoding.CompactAddress(settings.GetString("country"))
	}

	if settings.GetBool("spain-only") {
		opts.Bounds = geocoding.SpainBounds
	}

	return opts
}

func newReconciler(ctx context.Context) (*geocoding.Reconciler, error) {
	g, err := newGeocoder(ctx)
	if err != nil {
		return nil, err
	}

	return geocoding.NewReconciler(g, reconcilerOptions()), nil
}

// reconcile runs a pass over records, with a progress bar on terminals.
func reconcile(ctx context.Context, records []*clientes.Record) (*geocoding.Report, error) {
	g, err := newGeocoder(ctx)
	if err != nil {
		return nil, err
	}

	opts := reconcilerOptions()

	pending := len(geocoding.Pending(records))
	if pending == 0 {
		log.Println("✅ Todos los clientes tienen coordenadas")

		return &geocoding.Report{Cached: len(records)}, nil
	}

	log.Printf("🔎 %d clientes sin coordenadas", pending)

	if isatty.IsTerminal(os.Stderr.Fd()) {
		bar := progressbar.NewOptions(pending,
			progressbar.OptionSetDescription("Geocodificando"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Close()

		opts.Progress = func(done, _ int) {
			_ = bar.Set(done)
		}
	}

	report, err := geocoding.NewReconciler(g, opts).Reconcile(ctx, records)

	log.Printf(
		"Geocodificación - %d resueltos, %d no encontrados, %d fallidos, %d ya tenían coordenadas",
		report.Resolved,
		report.NotFound,
		report.Failed,
		report.Cached,
	)

	return report, err
}
