package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/neooracle/pricefeed/internal/attestation"
	"github.com/neooracle/pricefeed/internal/oraclerr"
	"github.com/neooracle/pricefeed/internal/providers"
	"github.com/neooracle/pricefeed/internal/quote"
)

type fakeAdapter struct {
	name    quote.Provider
	enabled bool
	quotes  []quote.PriceQuote
}

func (f *fakeAdapter) Name() quote.Provider { return f.name }
func (f *fakeAdapter) IsEnabled() bool      { return f.enabled }
func (f *fakeAdapter) FetchOne(ctx context.Context, symbol quote.CanonicalSymbol) (quote.PriceQuote, error) {
	for _, q := range f.quotes {
		if q.Symbol == symbol {
			return q, nil
		}
	}
	return quote.PriceQuote{}, errors.New("not found")
}
func (f *fakeAdapter) FetchBatch(ctx context.Context, symbols []quote.CanonicalSymbol) []quote.PriceQuote {
	return f.quotes
}

type fakePublisher struct {
	calls int
	failN int // fail the first failN calls
}

func (f *fakePublisher) Publish(ctx context.Context, batch *quote.PriceBatch) error {
	f.calls++
	if f.calls <= f.failN {
		return errors.New("publish failed")
	}
	return nil
}

func testAttestor(t *testing.T) *attestation.Attestor {
	t.Helper()
	a, err := attestation.New(t.TempDir(), attestation.Secrets{}, zerolog.Nop())
	require.NoError(t, err)
	return a
}

func TestRun_FailsFatallyWhenNoProvidersEnabled(t *testing.T) {
	r := New(nil, nil, &fakePublisher{}, testAttestor(t), zerolog.Nop())
	err := r.Run(context.Background())
	require.ErrorIs(t, err, oraclerr.ErrNoEnabledProviders)
}

func TestRun_HappyPath_AggregatesAndPublishes(t *testing.T) {
	quotes := []quote.PriceQuote{
		{Symbol: "BTCUSDT", Price: decimal.RequireFromString("50000"), Provider: quote.ProviderBinance, ObservedAt: time.Now()},
		{Symbol: "BTCUSDT", Price: decimal.RequireFromString("50001"), Provider: quote.ProviderCoinbase, ObservedAt: time.Now()},
	}
	a1 := &fakeAdapter{name: quote.ProviderBinance, enabled: true, quotes: quotes[:1]}
	a2 := &fakeAdapter{name: quote.ProviderCoinbase, enabled: true, quotes: quotes[1:]}
	pub := &fakePublisher{}

	r := New([]providers.Adapter{a1, a2}, []quote.CanonicalSymbol{"BTCUSDT"}, pub, testAttestor(t), zerolog.Nop())
	err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, pub.calls)
}

func TestRun_RetriesPublishOnFailure(t *testing.T) {
	quotes := []quote.PriceQuote{
		{Symbol: "ETHUSDT", Price: decimal.RequireFromString("4000"), Provider: quote.ProviderBinance, ObservedAt: time.Now()},
	}
	a1 := &fakeAdapter{name: quote.ProviderBinance, enabled: true, quotes: quotes}
	pub := &fakePublisher{failN: 2}

	r := New([]providers.Adapter{a1}, []quote.CanonicalSymbol{"ETHUSDT"}, pub, testAttestor(t), zerolog.Nop())
	err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, pub.calls)
}

func TestRun_ReturnsErrorAndStillPrunesWhenAllPublishAttemptsFail(t *testing.T) {
	quotes := []quote.PriceQuote{
		{Symbol: "ETHUSDT", Price: decimal.RequireFromString("4000"), Provider: quote.ProviderBinance, ObservedAt: time.Now()},
	}
	a1 := &fakeAdapter{name: quote.ProviderBinance, enabled: true, quotes: quotes}
	pub := &fakePublisher{failN: 99}
	attestor := testAttestor(t)

	r := New([]providers.Adapter{a1}, []quote.CanonicalSymbol{"ETHUSDT"}, pub, attestor, zerolog.Nop())
	err := r.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, 3, pub.calls)
}

func TestRun_NoDataWhenAllAdaptersEmpty(t *testing.T) {
	a1 := &fakeAdapter{name: quote.ProviderBinance, enabled: true, quotes: nil}
	r := New([]providers.Adapter{a1}, []quote.CanonicalSymbol{"BTCUSDT"}, &fakePublisher{}, testAttestor(t), zerolog.Nop())
	err := r.Run(context.Background())
	require.Error(t, err)
}
