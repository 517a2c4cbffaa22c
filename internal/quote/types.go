// Package quote holds the per-run data model shared by every pipeline stage:
// symbols, raw provider quotes, aggregated quotes, and price batches.
package quote

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CanonicalSymbol is the internal, provider-independent identifier for a trading pair,
// e.g. "BTCUSDT". It is always uppercase and non-empty.
type CanonicalSymbol string

// Provider is the stable name of a market-data source, e.g. "Binance".
type Provider string

const (
	ProviderBinance       Provider = "Binance"
	ProviderCoinbase      Provider = "Coinbase"
	ProviderKraken        Provider = "Kraken"
	ProviderCoinGecko     Provider = "CoinGecko"
	ProviderCoinMarketCap Provider = "CoinMarketCap"
	ProviderUniswapV3     Provider = "UniswapV3"
)

// PriceQuote is one provider's observation of one canonical symbol's price, discarded
// once it has been folded into an AggregatedQuote.
type PriceQuote struct {
	Symbol     CanonicalSymbol
	Price      decimal.Decimal
	Volume     decimal.Decimal // zero value means "not reported"
	HasVolume  bool
	Provider   Provider
	ObservedAt time.Time
	Meta       map[string]string
}

// AggregatedQuote is the fused, authoritative price for one symbol produced by the
// Aggregator, ready for on-chain publication.
type AggregatedQuote struct {
	Symbol       CanonicalSymbol
	Price        decimal.Decimal
	AggregatedAt time.Time
	Confidence   int // 0..100
	StdDev       *decimal.Decimal
	Sources      []PriceQuote
}

// BatchStatus tracks a PriceBatch (or sub-batch) through its on-chain lifecycle. The
// zero value is StatusUnknown. Transitions are monotonic: Unknown -> Processing ->
// Sent -> {Confirmed, Pending, Failed}, or Processing -> Failed directly; never
// back to an earlier state.
type BatchStatus int

const (
	StatusUnknown BatchStatus = iota
	StatusProcessing
	StatusSent
	StatusConfirmed
	StatusPending
	StatusFailed
)

func (s BatchStatus) String() string {
	switch s {
	case StatusProcessing:
		return "Processing"
	case StatusSent:
		return "Sent"
	case StatusConfirmed:
		return "Confirmed"
	case StatusPending:
		return "Pending"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// CanAdvanceTo reports whether transitioning from s to next respects the monotonic
// ordering required by spec §3/§8.
func (s BatchStatus) CanAdvanceTo(next BatchStatus) bool {
	switch s {
	case StatusUnknown:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusSent || next == StatusFailed
	case StatusSent:
		return next == StatusConfirmed || next == StatusPending || next == StatusFailed
	default:
		return false
	}
}

// PriceBatch is an ordered set of AggregatedQuotes sharing one run, bounded at
// MaxBatchSize quotes per on-chain sub-batch.
type PriceBatch struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Quotes    []AggregatedQuote
}

// NewPriceBatch assigns a fresh UUID and builds a PriceBatch from aggregated quotes,
// rejecting duplicate canonical symbols per the §3 invariant.
func NewPriceBatch(quotes []AggregatedQuote, now time.Time) (*PriceBatch, error) {
	seen := make(map[CanonicalSymbol]struct{}, len(quotes))
	for _, q := range quotes {
		if _, dup := seen[q.Symbol]; dup {
			return nil, ErrDuplicateSymbol(q.Symbol)
		}
		seen[q.Symbol] = struct{}{}
	}
	return &PriceBatch{
		ID:        uuid.New(),
		CreatedAt: now,
		Quotes:    quotes,
	}, nil
}

// Split slices b into ordered sub-batches of at most size quotes each, every one
// inheriting b's batch UUID (spec §4.6 step 4).
func (b *PriceBatch) Split(size int) []PriceBatch {
	if size <= 0 || len(b.Quotes) <= size {
		return []PriceBatch{*b}
	}
	var out []PriceBatch
	for start := 0; start < len(b.Quotes); start += size {
		end := start + size
		if end > len(b.Quotes) {
			end = len(b.Quotes)
		}
		out = append(out, PriceBatch{
			ID:        b.ID,
			CreatedAt: b.CreatedAt,
			Quotes:    b.Quotes[start:end],
		})
	}
	return out
}

// DuplicateSymbolError reports a PriceBatch built from quotes carrying the same
// canonical symbol twice.
type DuplicateSymbolError struct {
	Symbol CanonicalSymbol
}

func (e *DuplicateSymbolError) Error() string {
	return "quote: duplicate canonical symbol " + string(e.Symbol) + " in batch"
}

// ErrDuplicateSymbol builds a DuplicateSymbolError for sym.
func ErrDuplicateSymbol(sym CanonicalSymbol) error {
	return &DuplicateSymbolError{Symbol: sym}
}
