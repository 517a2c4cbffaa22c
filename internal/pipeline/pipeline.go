// Package pipeline implements PipelineRunner (spec.md §4.8): the single-shot
// orchestrator that fans out across enabled provider adapters, aggregates,
// publishes, and prunes stale attestations.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/neooracle/pricefeed/internal/aggregator"
	"github.com/neooracle/pricefeed/internal/attestation"
	"github.com/neooracle/pricefeed/internal/oraclerr"
	"github.com/neooracle/pricefeed/internal/providers"
	"github.com/neooracle/pricefeed/internal/publisher"
	"github.com/neooracle/pricefeed/internal/quote"
)

const (
	attestationRetention = 7 * 24 * time.Hour
	publishMaxAttempts   = 3
	publishBaseDelay     = 500 * time.Millisecond
)

// Publisher is the subset of *publisher.Publisher the pipeline depends on,
// narrowed to an interface so tests can substitute a fake.
type Publisher interface {
	Publish(ctx context.Context, batch *quote.PriceBatch) error
}

// Runner owns one run's worth of wiring: the adapter registry, the attestor used
// for pruning, and the publisher used to push the aggregated batch on-chain.
type Runner struct {
	adapters  []providers.Adapter
	symbols   []quote.CanonicalSymbol
	publisher Publisher
	attest    *attestation.Attestor
	log       zerolog.Logger
}

// New builds a Runner over the given adapters and the universe of symbols to
// fetch each run.
func New(adapters []providers.Adapter, symbols []quote.CanonicalSymbol, pub Publisher, attestor *attestation.Attestor, logger zerolog.Logger) *Runner {
	return &Runner{
		adapters:  adapters,
		symbols:   symbols,
		publisher: pub,
		attest:    attestor,
		log:       logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes one full pipeline pass: fetch, aggregate, publish, prune
// (spec.md §4.8 steps 1-6).
func (r *Runner) Run(ctx context.Context) error {
	enabled := make([]providers.Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		if a.IsEnabled() {
			enabled = append(enabled, a)
		}
	}
	if len(enabled) == 0 {
		return oraclerr.ErrNoEnabledProviders
	}

	bySymbol := r.fetchAll(ctx, enabled)
	if len(bySymbol) == 0 {
		return oraclerr.ErrNoData
	}

	aggregated := aggregator.AggregateAll(ctx, bySymbol, time.Now().UTC())
	if len(aggregated) == 0 {
		return oraclerr.ErrNoData
	}

	batch, err := quote.NewPriceBatch(aggregated, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", oraclerr.ErrInvalidBatch, err)
	}

	publishErr := r.publishWithRetry(ctx, batch)
	if publishErr != nil {
		r.log.Error().Err(publishErr).Str("batch", batch.ID.String()).Msg("publish failed after all retries")
	}

	// Attestation cleanup runs regardless of publish outcome (spec.md §4.8 step
	// 5: a failed publish "does not abort attestation cleanup"); the publish
	// error is still propagated afterward so the process exits non-zero
	// (spec.md §7, §8: "all publish attempts failed ... propagate and exit the
	// process non-zero").
	if pruned := r.attest.PruneOlderThan(int(attestationRetention.Hours()/24), time.Now().UTC()); pruned > 0 {
		r.log.Info().Int("pruned", pruned).Msg("pruned stale attestations")
	}

	if publishErr != nil {
		return publishErr
	}
	return nil
}

// fetchAll fans out FetchBatch across every enabled adapter concurrently and
// merges results into a symbol -> quotes accumulator (spec.md §4.8 step 2, §5:
// "linearizable append-or-create semantics").
func (r *Runner) fetchAll(ctx context.Context, enabled []providers.Adapter) map[quote.CanonicalSymbol][]quote.PriceQuote {
	var mu sync.Mutex
	acc := make(map[quote.CanonicalSymbol][]quote.PriceQuote)

	var wg sync.WaitGroup
	for _, a := range enabled {
		a := a
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Error().Interface("panic", rec).Str("provider", string(a.Name())).Msg("adapter panicked, contributing no quotes")
				}
			}()

			quotes := a.FetchBatch(ctx, r.symbols)
			mu.Lock()
			defer mu.Unlock()
			for _, q := range quotes {
				acc[q.Symbol] = append(acc[q.Symbol], q)
			}
		}()
	}
	wg.Wait()
	return acc
}

// publishWithRetry implements spec.md §4.8 step 5's retry loop: up to
// publishMaxAttempts attempts, exponential backoff with jitter, any success
// terminates the loop early.
func (r *Runner) publishWithRetry(ctx context.Context, batch *quote.PriceBatch) error {
	var lastErr error
	for attempt := 0; attempt < publishMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", oraclerr.ErrCancelled, err)
		}

		err := r.publisher.Publish(ctx, batch)
		if err == nil {
			return nil
		}
		lastErr = err
		r.log.Warn().Err(err).Int("attempt", attempt).Msg("publish attempt failed")

		if attempt < publishMaxAttempts-1 {
			delay := publisher.RetryDelay(publishBaseDelay, attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", oraclerr.ErrCancelled, ctx.Err())
			}
		}
	}
	return lastErr
}
