package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/neooracle/pricefeed/internal/catalog"
	"github.com/neooracle/pricefeed/internal/quote"
	"github.com/neooracle/pricefeed/internal/resilience"
)

// UniswapV3Adapter generalizes yetaxyz-oracle's fetchUniswapV3Price (a single
// hardcoded-pool Graph query) into a per-canonical-symbol pool lookup. This is the
// teacher's own DEX addition, not one of the five adapters wiring always builds, so
// it is an optional sixth source consulted only when explicitly configured
// (SPEC_FULL.md §3) — IsEnabled reports false unless at least one pool is
// registered.
type UniswapV3Adapter struct {
	base
	endpoint string
	apiKey   string
	pools    map[quote.CanonicalSymbol]poolRef
}

type poolRef struct {
	address    string
	quoteIsUSD bool // true if token0 is the USD-stable leg
}

// NewUniswapV3Adapter builds the adapter. pools maps canonical symbol -> pool
// address; an empty map leaves the adapter disabled.
func NewUniswapV3Adapter(cat *catalog.Catalog, rc resilience.Config, endpoint, apiKey string, pools map[quote.CanonicalSymbol]string, logger zerolog.Logger) *UniswapV3Adapter {
	refs := make(map[quote.CanonicalSymbol]poolRef, len(pools))
	for sym, addr := range pools {
		refs[sym] = poolRef{address: addr}
	}
	return &UniswapV3Adapter{
		base:     newBase(cat, rc, string(quote.ProviderUniswapV3), logger),
		endpoint: endpoint,
		apiKey:   apiKey,
		pools:    refs,
	}
}

func (a *UniswapV3Adapter) Name() quote.Provider { return quote.ProviderUniswapV3 }
func (a *UniswapV3Adapter) IsEnabled() bool      { return len(a.pools) > 0 }

func (a *UniswapV3Adapter) FetchOne(ctx context.Context, symbol quote.CanonicalSymbol) (quote.PriceQuote, error) {
	if _, err := checkSupported(a.catalog, symbol, quote.ProviderUniswapV3); err != nil {
		return quote.PriceQuote{}, err
	}
	pool, ok := a.pools[symbol]
	if !ok {
		return quote.PriceQuote{}, fmt.Errorf("uniswap: no configured pool for %s", symbol)
	}

	return resilience.Execute(ctx, a.policy, func(ctx context.Context) (quote.PriceQuote, error) {
		query := fmt.Sprintf(`{
			pool(id: "%s") {
				token0Price
				token1Price
				volumeUSD
				token0 { symbol }
				token1 { symbol }
			}
		}`, sanitizeSymbol(pool.address))

		body, err := json.Marshal(map[string]string{"query": query})
		if err != nil {
			return quote.PriceQuote{}, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
		if err != nil {
			return quote.PriceQuote{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		if a.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+a.apiKey)
		}

		resp, err := a.client.Do(req)
		if err != nil {
			return quote.PriceQuote{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return quote.PriceQuote{}, resilience.NewHTTPStatusError(resp)
		}

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return quote.PriceQuote{}, err
		}

		var result struct {
			Data struct {
				Pool struct {
					Token0Price string `json:"token0Price"`
					Token1Price string `json:"token1Price"`
					VolumeUSD   string `json:"volumeUSD"`
					Token0      struct {
						Symbol string `json:"symbol"`
					} `json:"token0"`
				} `json:"pool"`
			} `json:"data"`
		}
		if err := json.Unmarshal(respBody, &result); err != nil {
			return quote.PriceQuote{}, err
		}
		if result.Data.Pool.Token0Price == "" && result.Data.Pool.Token1Price == "" {
			return quote.PriceQuote{}, fmt.Errorf("uniswap: empty pool response for %s", symbol)
		}

		priceStr := result.Data.Pool.Token1Price
		if isStable(result.Data.Pool.Token0.Symbol) {
			priceStr = result.Data.Pool.Token0Price
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return quote.PriceQuote{}, fmt.Errorf("uniswap: parse price: %w", err)
		}

		q := quote.PriceQuote{
			Symbol:     symbol,
			Price:      price,
			Provider:   quote.ProviderUniswapV3,
			ObservedAt: time.Now().UTC(),
		}
		if vol, err := decimal.NewFromString(result.Data.Pool.VolumeUSD); err == nil {
			q.Volume = vol
			q.HasVolume = true
		}
		return q, nil
	})
}

func (a *UniswapV3Adapter) FetchBatch(ctx context.Context, symbols []quote.CanonicalSymbol) []quote.PriceQuote {
	return fetchBatchVia(ctx, a.base, quote.ProviderUniswapV3, symbols, a.FetchOne)
}

func isStable(symbol string) bool {
	switch symbol {
	case "USDT", "USDC", "DAI", "BUSD":
		return true
	default:
		return false
	}
}
