// Command oracled runs one single-shot price-oracle pipeline pass: fetch from
// every enabled provider, aggregate, publish on-chain, and prune stale
// attestations (spec.md §4.8). Replaces the teacher's flag-based polling loop
// (cmd/oracled/main.go's `for { fetch; sleep }`) with a cobra CLI invoked once
// per cron tick, matching the spec's one-shot deployment model (§5).
package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/neooracle/pricefeed/internal/config"
	"github.com/neooracle/pricefeed/internal/pipeline"
	"github.com/neooracle/pricefeed/internal/quote"
	"github.com/neooracle/pricefeed/internal/wiring"
)

func main() {
	var envPath string
	var symbolsCSV string
	var timeout time.Duration

	root := &cobra.Command{
		Use:   "oracled",
		Short: "Run one Neo-N3 price oracle pipeline pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(envPath, symbolsCSV, timeout)
		},
	}
	root.Flags().StringVar(&envPath, "env-file", ".env", "path to a .env file to seed configuration from, if present")
	root.Flags().StringVar(&symbolsCSV, "symbols", "BTCUSDT,ETHUSDT,NEOUSDT", "comma-separated canonical symbols to fetch this run")
	root.Flags().DurationVar(&timeout, "timeout", 90*time.Second, "wall-clock bound for the entire run")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(envPath, symbolsCSV string, timeout time.Duration) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	cfg, err := config.Load(envPath)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load configuration")
		return err
	}

	graph, err := wiring.Build(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to wire pipeline dependencies")
		return err
	}

	symbols := parseSymbols(symbolsCSV)
	runner := pipeline.New(graph.Adapters, symbols, graph.Publisher, graph.Attestor, logger)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := runner.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("pipeline run failed")
		return err
	}

	logger.Info().Msg("pipeline run completed")
	return nil
}

func parseSymbols(csv string) []quote.CanonicalSymbol {
	var out []quote.CanonicalSymbol
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				out = append(out, quote.CanonicalSymbol(csv[start:i]))
			}
			start = i + 1
		}
	}
	return out
}
