package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/neooracle/pricefeed/internal/catalog"
	"github.com/neooracle/pricefeed/internal/quote"
	"github.com/neooracle/pricefeed/internal/resilience"
)

// KrakenAdapter mirrors yetaxyz-oracle's fetchKrakenPrice, generalized to use
// Kraken's native comma-separated multi-pair Ticker endpoint for FetchBatch
// (spec.md §4.2: providers with a native batch endpoint MUST use it).
type KrakenAdapter struct {
	base
	baseURL string
}

func NewKrakenAdapter(cat *catalog.Catalog, rc resilience.Config, logger zerolog.Logger) *KrakenAdapter {
	return &KrakenAdapter{
		base:    newBase(cat, rc, string(quote.ProviderKraken), logger),
		baseURL: "https://api.kraken.com",
	}
}

func (a *KrakenAdapter) Name() quote.Provider { return quote.ProviderKraken }
func (a *KrakenAdapter) IsEnabled() bool      { return true }

type krakenTickerResult struct {
	Result map[string]struct {
		LastTrade []string `json:"c"`
		Volume    []string `json:"v"`
	} `json:"result"`
	Error []string `json:"error"`
}

func (a *KrakenAdapter) FetchOne(ctx context.Context, symbol quote.CanonicalSymbol) (quote.PriceQuote, error) {
	native, err := checkSupported(a.catalog, symbol, quote.ProviderKraken)
	if err != nil {
		return quote.PriceQuote{}, err
	}
	results, err := a.fetchTickers(ctx, []string{native})
	if err != nil {
		return quote.PriceQuote{}, err
	}
	r, ok := firstValue(results)
	if !ok {
		return quote.PriceQuote{}, fmt.Errorf("kraken: no ticker for %s", native)
	}
	return krakenQuote(symbol, r)
}

func (a *KrakenAdapter) FetchBatch(ctx context.Context, symbols []quote.CanonicalSymbol) []quote.PriceQuote {
	supported := a.catalog.Filter(symbols, quote.ProviderKraken)
	if len(supported) == 0 {
		return nil
	}
	natives := make([]string, 0, len(supported))
	bySymbol := make(map[string]quote.CanonicalSymbol, len(supported))
	for _, sym := range supported {
		native, _ := a.catalog.SourceSymbol(sym, quote.ProviderKraken)
		natives = append(natives, native)
		bySymbol[native] = sym
	}

	results, err := a.fetchTickers(ctx, natives)
	if err != nil {
		a.log.Warn().Err(err).Msg("batch fetch failed")
		return nil
	}

	out := make([]quote.PriceQuote, 0, len(results))
	// Kraken's response map keys don't always echo the requested pair spelling
	// exactly (altnames), so match positionally when there's a single pair.
	// With several pairs only keys equal to a requested spelling are used; any
	// other key is skipped.
	if len(natives) == 1 {
		if r, ok := firstValue(results); ok {
			if q, err := krakenQuote(bySymbol[natives[0]], r); err == nil {
				out = append(out, q)
			}
		}
		return out
	}
	for key, r := range results {
		sym, ok := bySymbol[key]
		if !ok {
			continue
		}
		q, err := krakenQuote(sym, r)
		if err != nil {
			a.log.Warn().Err(err).Str("symbol", string(sym)).Msg("parse failed, skipping")
			continue
		}
		out = append(out, q)
	}
	return out
}

type krakenResult struct {
	LastTrade []string
	Volume    []string
}

func firstValue(m map[string]krakenResult) (krakenResult, bool) {
	for _, v := range m {
		return v, true
	}
	return krakenResult{}, false
}

func krakenQuote(symbol quote.CanonicalSymbol, r krakenResult) (quote.PriceQuote, error) {
	if len(r.LastTrade) < 1 {
		return quote.PriceQuote{}, fmt.Errorf("kraken: invalid response for %s", symbol)
	}
	vol := ""
	if len(r.Volume) >= 1 {
		vol = r.Volume[0]
	}
	return toPriceQuote(symbol, quote.ProviderKraken, r.LastTrade[0], vol)
}

func (a *KrakenAdapter) fetchTickers(ctx context.Context, natives []string) (map[string]krakenResult, error) {
	return resilience.Execute(ctx, a.policy, func(ctx context.Context) (map[string]krakenResult, error) {
		sanitized := make([]string, len(natives))
		for i, n := range natives {
			sanitized[i] = sanitizeSymbol(n)
		}
		reqURL := fmt.Sprintf("%s/0/public/Ticker?pair=%s", a.baseURL, url.QueryEscape(strings.Join(sanitized, ",")))

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

		var data krakenTickerResult
		if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
			return nil, err
		}
		if len(data.Error) > 0 {
			return nil, fmt.Errorf("kraken: api error: %v", data.Error)
		}

		out := make(map[string]krakenResult, len(data.Result))
		for key, v := range data.Result {
			out[key] = krakenResult{LastTrade: v.LastTrade, Volume: v.Volume}
		}
		return out, nil
	})
}
