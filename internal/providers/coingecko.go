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

// CoinGeckoAdapter uses the public /simple/price endpoint, which natively accepts
// a comma-separated list of coin ids and is used for both FetchOne and FetchBatch
// (spec.md §4.2: a native batch endpoint MUST be used when available).
type CoinGeckoAdapter struct {
	base
	baseURL string
}

// NewCoinGeckoAdapter builds the CoinGecko adapter. Always enabled: it is a fully
// public endpoint (spec.md §4.2).
func NewCoinGeckoAdapter(cat *catalog.Catalog, rc resilience.Config, logger zerolog.Logger) *CoinGeckoAdapter {
	return &CoinGeckoAdapter{
		base:    newBase(cat, rc, string(quote.ProviderCoinGecko), logger),
		baseURL: "https://api.coingecko.com",
	}
}

func (a *CoinGeckoAdapter) Name() quote.Provider { return quote.ProviderCoinGecko }
func (a *CoinGeckoAdapter) IsEnabled() bool      { return true }

func (a *CoinGeckoAdapter) FetchOne(ctx context.Context, symbol quote.CanonicalSymbol) (quote.PriceQuote, error) {
	native, err := checkSupported(a.catalog, symbol, quote.ProviderCoinGecko)
	if err != nil {
		return quote.PriceQuote{}, err
	}
	prices, err := a.fetchSimplePrices(ctx, []string{native})
	if err != nil {
		return quote.PriceQuote{}, err
	}
	p, ok := prices[native]
	if !ok {
		return quote.PriceQuote{}, fmt.Errorf("coingecko: no price for %s", native)
	}
	return quote.PriceQuote{
		Symbol:     symbol,
		Price:      p.usd,
		Volume:     p.vol24h,
		HasVolume:  p.hasVol,
		Provider:   quote.ProviderCoinGecko,
		ObservedAt: p.observedAt,
	}, nil
}

func (a *CoinGeckoAdapter) FetchBatch(ctx context.Context, symbols []quote.CanonicalSymbol) []quote.PriceQuote {
	supported := a.catalog.Filter(symbols, quote.ProviderCoinGecko)
	if len(supported) == 0 {
		return nil
	}
	ids := make([]string, 0, len(supported))
	bySymbol := make(map[string]quote.CanonicalSymbol, len(supported))
	for _, sym := range supported {
		id, _ := a.catalog.SourceSymbol(sym, quote.ProviderCoinGecko)
		ids = append(ids, id)
		bySymbol[id] = sym
	}

	prices, err := a.fetchSimplePrices(ctx, ids)
	if err != nil {
		a.log.Warn().Err(err).Msg("batch fetch failed")
		return nil
	}

	out := make([]quote.PriceQuote, 0, len(prices))
	for id, p := range prices {
		sym, ok := bySymbol[id]
		if !ok {
			continue
		}
		out = append(out, quote.PriceQuote{
			Symbol:     sym,
			Price:      p.usd,
			Volume:     p.vol24h,
			HasVolume:  p.hasVol,
			Provider:   quote.ProviderCoinGecko,
			ObservedAt: p.observedAt,
		})
	}
	return out
}

type cgPrice struct {
	usd        decimal.Decimal
	vol24h     decimal.Decimal
	hasVol     bool
	observedAt time.Time
}

func (a *CoinGeckoAdapter) fetchSimplePrices(ctx context.Context, ids []string) (map[string]cgPrice, error) {
	return resilience.Execute(ctx, a.policy, func(ctx context.Context) (map[string]cgPrice, error) {
		sanitized := make([]string, len(ids))
		for i, id := range ids {
			sanitized[i] = sanitizeSymbol(id)
		}
		reqURL := fmt.Sprintf("%s/api/v3/simple/price?ids=%s&vs_currencies=usd&include_24hr_vol=true",
			a.baseURL, url.QueryEscape(strings.Join(sanitized, ",")))

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

		var raw map[string]map[string]float64
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		out := make(map[string]cgPrice, len(raw))
		for id, fields := range raw {
			usd, ok := fields["usd"]
			if !ok {
				continue
			}
			p := cgPrice{usd: decimal.NewFromFloat(usd), observedAt: now}
			if vol, ok := fields["usd_24h_vol"]; ok {
				p.vol24h = decimal.NewFromFloat(vol)
				p.hasVol = true
			}
			out[id] = p
		}
		return out, nil
	})
}
