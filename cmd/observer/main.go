// Command observer serves the read-only HTTP surface of internal/observer,
// adapted from the teacher's standalone api/server.go binary. It runs as its own
// process: its Store starts empty and nothing in this command fills it, and its
// Publisher is a fresh one with no batch records, so /api/v1/prices lists no
// quotes, /api/v1/prices/{symbol} answers 404 and every batch lookup reports
// Unknown.
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/neooracle/pricefeed/internal/config"
	"github.com/neooracle/pricefeed/internal/observer"
	"github.com/neooracle/pricefeed/internal/wiring"
)

func main() {
	var envPath, port string

	root := &cobra.Command{
		Use:   "observer",
		Short: "Serve read-only price/batch-status queries over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(envPath, port)
		},
	}
	root.Flags().StringVar(&envPath, "env-file", ".env", "path to a .env file to seed configuration from, if present")
	root.Flags().StringVar(&port, "port", "8080", "HTTP listen port")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(envPath, port string) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	cfg, err := config.Load(envPath)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load configuration")
		return err
	}

	graph, err := wiring.Build(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to wire dependencies")
		return err
	}

	store := observer.NewStore()
	srv := observer.New(store, graph.Publisher, logger)

	logger.Info().Str("port", port).Msg("observer starting")
	return http.ListenAndServe(":"+port, srv.Handler())
}
