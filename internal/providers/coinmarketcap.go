package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/neooracle/pricefeed/internal/catalog"
	"github.com/neooracle/pricefeed/internal/quote"
	"github.com/neooracle/pricefeed/internal/resilience"
)

// CoinMarketCapAdapter quotes everything in USD. Per spec.md §4.2, a canonical
// symbol whose quote currency is BTC (suffix "BTC") has no direct pair on this
// provider, so it is synthesized by fetching both legs in USD and dividing
// base-USD by BTC-USD.
type CoinMarketCapAdapter struct {
	base
	apiKey  string
	baseURL string
}

// NewCoinMarketCapAdapter builds the CoinMarketCap adapter. It is enabled iff
// apiKey is non-empty (spec.md §4.2: API-key-required adapters).
func NewCoinMarketCapAdapter(cat *catalog.Catalog, rc resilience.Config, apiKey string, logger zerolog.Logger) *CoinMarketCapAdapter {
	return &CoinMarketCapAdapter{
		base:    newBase(cat, rc, string(quote.ProviderCoinMarketCap), logger),
		apiKey:  apiKey,
		baseURL: "https://pro-api.coinmarketcap.com",
	}
}

func (a *CoinMarketCapAdapter) Name() quote.Provider { return quote.ProviderCoinMarketCap }
func (a *CoinMarketCapAdapter) IsEnabled() bool      { return a.apiKey != "" }

func (a *CoinMarketCapAdapter) FetchOne(ctx context.Context, symbol quote.CanonicalSymbol) (quote.PriceQuote, error) {
	native, err := checkSupported(a.catalog, symbol, quote.ProviderCoinMarketCap)
	if err != nil {
		return quote.PriceQuote{}, err
	}

	baseLeg, needsBTCCross := cmcBaseLeg(native)
	legs := []string{baseLeg}
	if needsBTCCross {
		legs = append(legs, "BTC")
	}

	usdPrices, err := a.fetchUSDQuotes(ctx, legs)
	if err != nil {
		return quote.PriceQuote{}, err
	}

	baseQuote, ok := usdPrices[baseLeg]
	if !ok {
		return quote.PriceQuote{}, fmt.Errorf("coinmarketcap: no USD quote for %s", baseLeg)
	}
	if !needsBTCCross {
		return quote.PriceQuote{
			Symbol:     symbol,
			Price:      baseQuote.price,
			Volume:     baseQuote.volume,
			HasVolume:  true,
			Provider:   quote.ProviderCoinMarketCap,
			ObservedAt: baseQuote.observedAt,
		}, nil
	}

	btcQuote, ok := usdPrices["BTC"]
	if !ok || btcQuote.price.IsZero() {
		return quote.PriceQuote{}, fmt.Errorf("coinmarketcap: no BTC-USD leg to cross-convert %s", symbol)
	}
	price := baseQuote.price.Div(btcQuote.price)
	return quote.PriceQuote{
		Symbol:     symbol,
		Price:      price,
		Provider:   quote.ProviderCoinMarketCap,
		ObservedAt: baseQuote.observedAt,
		Meta:       map[string]string{"cross_converted_via": "BTC-USD"},
	}, nil
}

func (a *CoinMarketCapAdapter) FetchBatch(ctx context.Context, symbols []quote.CanonicalSymbol) []quote.PriceQuote {
	return fetchBatchVia(ctx, a.base, quote.ProviderCoinMarketCap, symbols, a.FetchOne)
}

// cmcBaseLeg splits a native symbol like "ETHBTC" into its base asset ("ETH") and
// reports whether the quote leg is BTC, which this USD-only provider cannot quote
// directly and must cross-convert (spec.md §4.2).
func cmcBaseLeg(native string) (base string, needsBTCCross bool) {
	upper := strings.ToUpper(native)
	if strings.HasSuffix(upper, "BTC") && upper != "BTC" {
		return strings.TrimSuffix(upper, "BTC"), true
	}
	return strings.TrimSuffix(strings.TrimSuffix(upper, "USDT"), "USD"), false
}

type cmcUSDQuote struct {
	price      decimal.Decimal
	volume     decimal.Decimal
	observedAt time.Time
}

func (a *CoinMarketCapAdapter) fetchUSDQuotes(ctx context.Context, symbols []string) (map[string]cmcUSDQuote, error) {
	return resilience.Execute(ctx, a.policy, func(ctx context.Context) (map[string]cmcUSDQuote, error) {
		sanitized := make([]string, len(symbols))
		for i, s := range symbols {
			sanitized[i] = sanitizeSymbol(s)
		}
		reqURL := fmt.Sprintf("%s/v1/cryptocurrency/quotes/latest?symbol=%s&convert=USD",
			a.baseURL, url.QueryEscape(strings.Join(sanitized, ",")))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-CMC_PRO_API_KEY", a.apiKey)

		resp, err := a.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, resilience.NewHTTPStatusError(resp)
		}

		var data struct {
			Data map[string]struct {
				Quote struct {
					USD struct {
						Price       float64 `json:"price"`
						Volume24H   float64 `json:"volume_24h"`
						LastUpdated string  `json:"last_updated"`
					} `json:"USD"`
				} `json:"quote"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
			return nil, err
		}

		out := make(map[string]cmcUSDQuote, len(data.Data))
		now := time.Now().UTC()
		for symbol, entry := range data.Data {
			q := cmcUSDQuote{
				price:      decimal.NewFromFloat(entry.Quote.USD.Price),
				volume:     decimal.NewFromFloat(entry.Quote.USD.Volume24H),
				observedAt: now,
			}
			if ts, err := time.Parse(time.RFC3339, entry.Quote.USD.LastUpdated); err == nil {
				q.observedAt = ts
			}
			out[strings.ToUpper(symbol)] = q
		}
		return out, nil
	})
}
