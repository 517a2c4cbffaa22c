package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/neooracle/pricefeed/internal/catalog"
	"github.com/neooracle/pricefeed/internal/quote"
	"github.com/neooracle/pricefeed/internal/resilience"
)

// CoinbaseAdapter mirrors yetaxyz-oracle's fetchCoinbasePrice against the
// exchange-rates spot endpoint. Coinbase exposes no native batch endpoint, so
// FetchBatch fans out individual calls (spec.md §4.2).
type CoinbaseAdapter struct {
	base
	baseURL string
}

// NewCoinbaseAdapter builds the Coinbase adapter. Always enabled: the spot price
// endpoint is public (spec.md §4.2).
func NewCoinbaseAdapter(cat *catalog.Catalog, rc resilience.Config, logger zerolog.Logger) *CoinbaseAdapter {
	return &CoinbaseAdapter{
		base:    newBase(cat, rc, string(quote.ProviderCoinbase), logger),
		baseURL: "https://api.coinbase.com",
	}
}

func (a *CoinbaseAdapter) Name() quote.Provider { return quote.ProviderCoinbase }
func (a *CoinbaseAdapter) IsEnabled() bool      { return true }

func (a *CoinbaseAdapter) FetchOne(ctx context.Context, symbol quote.CanonicalSymbol) (quote.PriceQuote, error) {
	native, err := checkSupported(a.catalog, symbol, quote.ProviderCoinbase)
	if err != nil {
		return quote.PriceQuote{}, err
	}
	return resilience.Execute(ctx, a.policy, func(ctx context.Context) (quote.PriceQuote, error) {
		// native is a hyphenated pair like "BTC-USD"; sanitize each leg rather
		// than the whole string so the separator Coinbase requires survives.
		legs := strings.Split(native, "-")
		for i, leg := range legs {
			legs[i] = sanitizeSymbol(leg)
		}
		url := fmt.Sprintf("%s/v2/prices/%s/spot", a.baseURL, strings.Join(legs, "-"))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return quote.PriceQuote{}, err
		}
		resp, err := a.client.Do(req)
		if err != nil {
			return quote.PriceQuote{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return quote.PriceQuote{}, resilience.NewHTTPStatusError(resp)
		}

		var data struct {
			Data struct {
				Amount string `json:"amount"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
			return quote.PriceQuote{}, err
		}
		// Coinbase's spot endpoint does not report volume.
		return toPriceQuote(symbol, quote.ProviderCoinbase, data.Data.Amount, "")
	})
}

func (a *CoinbaseAdapter) FetchBatch(ctx context.Context, symbols []quote.CanonicalSymbol) []quote.PriceQuote {
	return fetchBatchVia(ctx, a.base, quote.ProviderCoinbase, symbols, a.FetchOne)
}
