// Package providers implements the ProviderAdapter instances of spec.md §2/§4.2
// (Binance, Coinbase, Kraken, CoinGecko, CoinMarketCap, plus the optional
// Uniswap v3 adapter), grounded on the teacher's per-exchange fetch methods
// (yetaxyz-oracle's CryptoAggregator.fetchBinancePrice/fetchCoinbasePrice/
// fetchKrakenPrice/fetchUniswapV3Price), generalized to canonical symbols and
// wrapped in the resilience stack instead of a bare *http.Client.
package providers

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/neooracle/pricefeed/internal/catalog"
	"github.com/neooracle/pricefeed/internal/oraclerr"
	"github.com/neooracle/pricefeed/internal/quote"
	"github.com/neooracle/pricefeed/internal/resilience"
)

// Adapter is the capability set every provider satisfies (spec.md §9: an open
// registry of objects, not a closed tagged-union).
type Adapter interface {
	Name() quote.Provider
	IsEnabled() bool
	FetchOne(ctx context.Context, symbol quote.CanonicalSymbol) (quote.PriceQuote, error)
	FetchBatch(ctx context.Context, symbols []quote.CanonicalSymbol) []quote.PriceQuote
}

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)

// sanitizeSymbol strips non-alphanumeric characters before a symbol is
// interpolated into a URL path or query string (spec.md §4.2).
func sanitizeSymbol(s string) string {
	return nonAlphanumeric.ReplaceAllString(s, "")
}

// base holds the fields every adapter needs: the catalog to filter against, an
// HTTP client, a resilience policy, and a logger. Adapters own their own client and
// config per spec.md §3 ownership rules.
type base struct {
	catalog *catalog.Catalog
	client  *http.Client
	policy  *resilience.Policy
	log     zerolog.Logger
}

func newBase(cat *catalog.Catalog, rc resilience.Config, provider string, logger zerolog.Logger) base {
	timeout := rc.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return base{
		catalog: cat,
		client:  &http.Client{Timeout: timeout},
		policy:  resilience.New(provider, rc),
		log:     logger.With().Str("provider", provider).Logger(),
	}
}

// fetchBatchVia fans out fetchOne across symbols (used by adapters with no native
// batch endpoint), filtering unsupported symbols first and suppressing per-symbol
// errors into a log line, returning partial success (spec.md §4.2).
func fetchBatchVia(ctx context.Context, b base, provider quote.Provider, symbols []quote.CanonicalSymbol, fetchOne func(context.Context, quote.CanonicalSymbol) (quote.PriceQuote, error)) []quote.PriceQuote {
	supported := b.catalog.Filter(symbols, provider)
	out := make([]quote.PriceQuote, 0, len(supported))
	for _, sym := range supported {
		q, err := fetchOne(ctx, sym)
		if err != nil {
			b.log.Warn().Err(err).Str("symbol", string(sym)).Msg("fetch failed, skipping symbol")
			continue
		}
		out = append(out, q)
	}
	return out
}

func checkSupported(cat *catalog.Catalog, symbol quote.CanonicalSymbol, provider quote.Provider) (string, error) {
	native, ok := cat.SourceSymbol(symbol, provider)
	if !ok {
		return "", oraclerr.ErrUnsupportedSymbol
	}
	return native, nil
}
