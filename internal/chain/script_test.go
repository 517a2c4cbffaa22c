package chain

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestToSatoshi_ScalesRealisticPrice(t *testing.T) {
	// scenario 1: BTCUSDT = 50000.50 -> 5000050000000 (spec.md §8 property 2).
	got := ToSatoshi(decimal.RequireFromString("50000.50"))
	require.Equal(t, int64(5_000_050_000_000), got)
}

func TestToSatoshi_SmallPrice(t *testing.T) {
	got := ToSatoshi(decimal.RequireFromString("100.5"))
	require.Equal(t, int64(10_050_000_000), got)
}

func TestToSatoshi_ClampsPriceAboveBound(t *testing.T) {
	huge := decimal.NewFromInt(maxSatoshiPrice).Add(decimal.NewFromInt(1))
	got := ToSatoshi(huge)
	require.Equal(t, int64(maxSatoshiPrice)*Satoshi, got)
}

func TestClampSatoshi_PassesThroughOrdinaryValues(t *testing.T) {
	c := &Client{log: zerolog.Nop()}
	require.Equal(t, int64(5_000_050_000_000), c.ClampSatoshi(5_000_050_000_000))
}

func TestClampSatoshi_ClampsNegativeToZero(t *testing.T) {
	c := &Client{log: zerolog.Nop()}
	require.Equal(t, int64(0), c.ClampSatoshi(-1))
}

func TestClampSatoshi_NeverExceedsMaxInt64(t *testing.T) {
	c := &Client{log: zerolog.Nop()}
	require.Equal(t, int64(math.MaxInt64), c.ClampSatoshi(math.MaxInt64))
}
