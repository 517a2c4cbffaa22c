package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/neooracle/pricefeed/internal/catalog"
	"github.com/neooracle/pricefeed/internal/quote"
	"github.com/neooracle/pricefeed/internal/resilience"
)

func testCatalog(t *testing.T, raw map[string]map[string]string) *catalog.Catalog {
	t.Helper()
	c, err := catalog.FromMap(raw)
	require.NoError(t, err)
	return c
}

func TestBinanceAdapter_FetchOne(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"BTCUSDT","lastPrice":"50000.50","volume":"12.5"}`))
	}))
	defer srv.Close()

	cat := testCatalog(t, map[string]map[string]string{"BTCUSDT": {"Binance": "BTCUSDT"}})
	a := NewBinanceAdapter(cat, resilience.Config{}, "", false, zerolog.Nop())
	a.baseURL = srv.URL

	q, err := a.FetchOne(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.True(t, q.Price.Equal(decimal.RequireFromString("50000.50")))
	require.Equal(t, quote.ProviderBinance, q.Provider)
}

func TestBinanceAdapter_FetchOne_UnsupportedSymbol(t *testing.T) {
	cat := testCatalog(t, map[string]map[string]string{})
	a := NewBinanceAdapter(cat, resilience.Config{}, "", false, zerolog.Nop())

	_, err := a.FetchOne(context.Background(), "DOGEUSDT")
	require.Error(t, err)
}

func TestBinanceAdapter_EnabledRequiresKeyWhenConfigured(t *testing.T) {
	cat := testCatalog(t, nil)
	a := NewBinanceAdapter(cat, resilience.Config{}, "", true, zerolog.Nop())
	require.False(t, a.IsEnabled())

	a2 := NewBinanceAdapter(cat, resilience.Config{}, "a-key", true, zerolog.Nop())
	require.True(t, a2.IsEnabled())
}

func TestCoinbaseAdapter_FetchOne(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"amount":"3000.25"}}`))
	}))
	defer srv.Close()

	cat := testCatalog(t, map[string]map[string]string{"ETHUSD": {"Coinbase": "ETH-USD"}})
	a := NewCoinbaseAdapter(cat, resilience.Config{}, zerolog.Nop())
	a.baseURL = srv.URL

	q, err := a.FetchOne(context.Background(), "ETHUSD")
	require.NoError(t, err)
	require.True(t, q.Price.Equal(decimal.RequireFromString("3000.25")))
	require.False(t, q.HasVolume)
}

func TestKrakenAdapter_FetchOne(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":[],"result":{"XXBTZUSD":{"c":["51000.0","0.1"],"v":["100.0","200.0"]}}}`))
	}))
	defer srv.Close()

	cat := testCatalog(t, map[string]map[string]string{"BTCUSD": {"Kraken": "XBTUSD"}})
	a := NewKrakenAdapter(cat, resilience.Config{}, zerolog.Nop())
	a.baseURL = srv.URL

	q, err := a.FetchOne(context.Background(), "BTCUSD")
	require.NoError(t, err)
	require.True(t, q.Price.Equal(decimal.RequireFromString("51000.0")))
	require.True(t, q.HasVolume)
}

func TestCoinMarketCapAdapter_BTCCrossConversion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{
			"ETH":{"quote":{"USD":{"price":3000.0,"volume_24h":1000.0,"last_updated":"2024-01-01T00:00:00Z"}}},
			"BTC":{"quote":{"USD":{"price":50000.0,"volume_24h":2000.0,"last_updated":"2024-01-01T00:00:00Z"}}}
		}}`))
	}))
	defer srv.Close()

	cat := testCatalog(t, map[string]map[string]string{"ETHBTC": {"CoinMarketCap": "ETHBTC"}})
	a := NewCoinMarketCapAdapter(cat, resilience.Config{}, "key", zerolog.Nop())
	a.baseURL = srv.URL

	q, err := a.FetchOne(context.Background(), "ETHBTC")
	require.NoError(t, err)
	require.True(t, q.Price.Equal(decimal.RequireFromString("0.06")), "expected 3000/50000 = 0.06, got %s", q.Price)
}

func TestCoinMarketCapAdapter_DisabledWithoutKey(t *testing.T) {
	cat := testCatalog(t, nil)
	a := NewCoinMarketCapAdapter(cat, resilience.Config{}, "", zerolog.Nop())
	require.False(t, a.IsEnabled())
}
