package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
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

// BinanceAdapter mirrors yetaxyz-oracle's fetchBinancePrice, generalized to the
// canonical-symbol catalog and Binance's native multi-symbol ticker endpoint.
type BinanceAdapter struct {
	base
	apiKey     string
	baseURL    string
	requireKey bool
}

// NewBinanceAdapter builds the Binance adapter. apiKey is optional: per spec.md
// §4.2, Binance is enabled unconditionally on public endpoints unless the deployer
// opts into requiring a key (requireKey).
func NewBinanceAdapter(cat *catalog.Catalog, rc resilience.Config, apiKey string, requireKey bool, logger zerolog.Logger) *BinanceAdapter {
	a := &BinanceAdapter{
		base:    newBase(cat, rc, string(quote.ProviderBinance), logger),
		apiKey:  apiKey,
		baseURL: "https://api.binance.com",
	}
	if requireKey {
		a.requireKey = true
	}
	return a
}

func (a *BinanceAdapter) Name() quote.Provider { return quote.ProviderBinance }

func (a *BinanceAdapter) IsEnabled() bool {
	if a.requireKey {
		return a.apiKey != ""
	}
	return true
}

type binanceTicker struct {
	Symbol     string `json:"symbol"`
	LastPrice  string `json:"lastPrice"`
	Volume     string `json:"volume"`
}

func (a *BinanceAdapter) FetchOne(ctx context.Context, symbol quote.CanonicalSymbol) (quote.PriceQuote, error) {
	native, err := checkSupported(a.catalog, symbol, quote.ProviderBinance)
	if err != nil {
		return quote.PriceQuote{}, err
	}
	tickers, err := a.fetchTickers(ctx, []string{native})
	if err != nil {
		return quote.PriceQuote{}, err
	}
	t, ok := tickers[native]
	if !ok {
		return quote.PriceQuote{}, fmt.Errorf("binance: no ticker for %s", native)
	}
	return toPriceQuote(symbol, quote.ProviderBinance, t.LastPrice, t.Volume)
}

func (a *BinanceAdapter) FetchBatch(ctx context.Context, symbols []quote.CanonicalSymbol) []quote.PriceQuote {
	supported := a.catalog.Filter(symbols, quote.ProviderBinance)
	if len(supported) == 0 {
		return nil
	}
	natives := make([]string, 0, len(supported))
	bySymbol := make(map[string]quote.CanonicalSymbol, len(supported))
	for _, sym := range supported {
		native, _ := a.catalog.SourceSymbol(sym, quote.ProviderBinance)
		natives = append(natives, native)
		bySymbol[native] = sym
	}

	tickers, err := a.fetchTickers(ctx, natives)
	if err != nil {
		a.log.Warn().Err(err).Msg("batch fetch failed")
		return nil
	}

	out := make([]quote.PriceQuote, 0, len(tickers))
	for native, t := range tickers {
		sym, ok := bySymbol[native]
		if !ok {
			continue
		}
		q, err := toPriceQuote(sym, quote.ProviderBinance, t.LastPrice, t.Volume)
		if err != nil {
			a.log.Warn().Err(err).Str("symbol", string(sym)).Msg("parse failed, skipping")
			continue
		}
		out = append(out, q)
	}
	return out
}

func (a *BinanceAdapter) fetchTickers(ctx context.Context, natives []string) (map[string]binanceTicker, error) {
	return resilience.Execute(ctx, a.policy, func(ctx context.Context) (map[string]binanceTicker, error) {
		var reqURL string
		if len(natives) == 1 {
			reqURL = fmt.Sprintf("%s/api/v3/ticker/24hr?symbol=%s", a.baseURL, sanitizeSymbol(natives[0]))
		} else {
			quoted := make([]string, len(natives))
			for i, n := range natives {
				quoted[i] = fmt.Sprintf("%q", sanitizeSymbol(n))
			}
			arrayParam := url.QueryEscape("[" + strings.Join(quoted, ",") + "]")
			reqURL = fmt.Sprintf("%s/api/v3/ticker/24hr?symbols=%s", a.baseURL, arrayParam)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := a.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, resilience.NewHTTPStatusError(resp)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		out := make(map[string]binanceTicker)
		if len(natives) == 1 {
			var single binanceTicker
			if err := json.Unmarshal(body, &single); err != nil {
				return nil, err
			}
			out[single.Symbol] = single
			return out, nil
		}
		var many []binanceTicker
		if err := json.Unmarshal(body, &many); err != nil {
			return nil, err
		}
		for _, t := range many {
			out[t.Symbol] = t
		}
		return out, nil
	})
}

func toPriceQuote(symbol quote.CanonicalSymbol, provider quote.Provider, priceStr, volumeStr string) (quote.PriceQuote, error) {
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return quote.PriceQuote{}, fmt.Errorf("parse price %q: %w", priceStr, err)
	}
	q := quote.PriceQuote{
		Symbol:     symbol,
		Price:      price,
		Provider:   provider,
		ObservedAt: time.Now().UTC(),
	}
	if volumeStr != "" {
		if vol, err := decimal.NewFromString(volumeStr); err == nil {
			q.Volume = vol
			q.HasVolume = true
		}
	}
	return q, nil
}
