// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jcodagnone/visor/clientes"
	"github.com/jcodagnone/visor/utils/httputils"
	"github.com/jcodagnone/visor/utils/textutils"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type logWriter struct {
	writer io.Writer
}

func (w *logWriter) Write(bytes []byte) (int, error) {
	return fmt.Fprintf(w.writer, "%s %s", time.Now().Format("2006-01-02 15:04:05"), string(bytes))
}

func init() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{writer: os.Stderr})
}

// settings is the merged configuration: flags, then VISOR_* environment
// variables (.env files included), then visor.yaml.
var settings = viper.New()

// logger carries the structured per-record events.
var logger = zerolog.Nop()

var rootCmd = &cobra.Command{
	Use:   "visor",
	Short: "mapa de clientes",
	Long: `
visor carga la lista de clientes, completa las coordenadas que faltan
consultando un servicio de geocodificación y genera un mapa interactivo con
los clientes agrupados por color.
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}

		logger = newLogger(settings.GetString("log-level"))

		return nil
	},
}

var Version = "dev"

func Execute(version string) {
	Version = version

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) error {
	// the first file setting a variable wins, the environment over both
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}

	settings.SetEnvPrefix("VISOR")
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()

	if err := settings.BindEnv("github-token", "VISOR_GITHUB_TOKEN", "GITHUB_TOKEN"); err != nil {
		return err
	}

	if err := settings.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	if cfg := settings.GetString("config"); cfg != "" {
		settings.SetConfigFile(cfg)
	} else {
		settings.SetConfigName("visor")
		settings.SetConfigType("yaml")
		settings.AddConfigPath(".")
	}

	if err := settings.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		if level != "" {
			log.Printf("⚠️ Nivel de log inválido %q, se usa info", level)
		}

		lvl = zerolog.InfoLevel
	}

	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func httpOptions() httputils.ClientOptions {
	return httputils.ClientOptions{
		UserAgent:           fmt.Sprintf("visor/%s", Version),
		EnableHTTPTrace:     settings.GetBool("trace-http"),
		EnableHTTPBodyTrace: settings.GetBool("trace-http-body"),
	}
}

// newSource returns the GitHub source when a repository is configured and
// the local file otherwise.
func newSource() (clientes.Source, error) {
	if repo := settings.GetString("github-repo"); repo != "" {
		owner, name, ok := strings.Cut(repo, "/")
		if !ok {
			return nil, fmt.Errorf("--github-repo must be owner/name, got %q", repo)
		}

		src, err := clientes.NewGitHubSource(clientes.GitHubConfig{
			Owner:         owner,
			Repo:          name,
			Path:          settings.GetString("github-path"),
			Branch:        settings.GetString("github-branch"),
			Token:         settings.GetString("github-token"),
			BaseURL:       settings.GetString("github-api"),
			CommitMessage: settings.GetString("github-message"),
			HTTP:          httpOptions(),
		}, logger)
		if err != nil {
			return nil, err
		}

		return src, nil
	}

	src := clientes.NewFileSource(settings.GetString("data"), logger)
	src.Charset = settings.GetString("charset")

	return src, nil
}

// loadDocument loads the customer list. A missing list is reported as a
// status line and ok is false.
func loadDocument(ctx context.Context, src clientes.Source) (doc *clientes.Document, ok bool, err error) {
	doc, err = src.Load(ctx)
	if errors.Is(err, clientes.ErrSourceNotFound) {
		log.Printf("❌ Error: no se encuentra la lista de clientes en %s", src)

		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("loading %s: %w", src, err)
	}

	log.Printf("📂 %s clientes cargados de %s", textutils.FormatInt(int64(len(doc.Records()))), src)

	return doc, true, nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Archivo de configuración (por defecto ./visor.yaml)")
	flags.String("data", "clientes.json", "Archivo JSON con la lista de clientes")
	flags.String("charset", clientes.DefaultCharset, "Codificación a usar cuando el archivo no es UTF-8")
	flags.String("github-repo", "", "Repositorio GitHub (owner/name) con la lista de clientes, en lugar del archivo local")
	flags.String("github-path", "clientes.json", "Ruta del JSON dentro del repositorio")
	flags.String("github-branch", "", "Rama del repositorio (por defecto la principal)")
	flags.String("github-api", "", "URL de la API de GitHub, para GitHub Enterprise")
	flags.String("github-message", "", "Mensaje de commit al guardar")
	flags.String("log-level", "info", "Nivel de log: trace, debug, info, warn, error")
	flags.Bool("trace-http", false, "Display HTTP requests-responses")
	flags.Bool("trace-http-body", false, "Display HTTP requests-responses bodies")
}
