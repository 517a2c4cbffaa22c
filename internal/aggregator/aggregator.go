// Package aggregator fuses per-provider PriceQuotes for one canonical symbol into
// a single AggregatedQuote, per the deterministic algorithm in spec.md §4.3. It
// replaces the teacher's simple sorted-median (yetaxyz-oracle's calculateMedian)
// with the spec's MAD-based outlier filter and confidence scoring; the teacher's
// "fuse everything, ignore disagreement" approach is gone, a deliberate
// replacement recorded in DESIGN.md.
package aggregator

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/neooracle/pricefeed/internal/oraclerr"
	"github.com/neooracle/pricefeed/internal/quote"
)

// Aggregate fuses the quotes for a single symbol into one AggregatedQuote,
// implementing spec.md §4.3 steps 1-4. Fails with oraclerr.ErrAggregation if
// quotes is empty.
func Aggregate(quotes []quote.PriceQuote, now time.Time) (quote.AggregatedQuote, error) {
	if len(quotes) == 0 {
		return quote.AggregatedQuote{}, oraclerr.ErrAggregation
	}

	survivors := filterOutliers(quotes)
	price := centralEstimate(survivors)
	stdDev := populationStdDev(survivors)
	confidence := confidenceFor(len(survivors))

	var stdDevPtr *decimal.Decimal
	if len(survivors) > 1 {
		stdDevPtr = &stdDev
	}

	return quote.AggregatedQuote{
		Symbol:       quotes[0].Symbol,
		Price:        price,
		AggregatedAt: now,
		Confidence:   confidence,
		StdDev:       stdDevPtr,
		Sources:      survivors,
	}, nil
}

// AggregateAll groups quotes by symbol and aggregates each group concurrently,
// skipping any symbol whose aggregation fails (spec.md §4.3: "tolerate per-symbol
// failures, skip that symbol").
func AggregateAll(ctx context.Context, bySymbol map[quote.CanonicalSymbol][]quote.PriceQuote, now time.Time) []quote.AggregatedQuote {
	type result struct {
		q  quote.AggregatedQuote
		ok bool
	}

	results := make([]result, len(bySymbol))
	symbols := make([]quote.CanonicalSymbol, 0, len(bySymbol))
	for sym := range bySymbol {
		symbols = append(symbols, sym)
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })

	var wg sync.WaitGroup
	for i, sym := range symbols {
		i, sym := i, sym
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			default:
			}
			q, err := Aggregate(bySymbol[sym], now)
			if err == nil {
				results[i] = result{q: q, ok: true}
			}
		}()
	}
	wg.Wait()

	out := make([]quote.AggregatedQuote, 0, len(results))
	for _, r := range results {
		if r.ok {
			out = append(out, r.q)
		}
	}
	return out
}

// filterOutliers implements spec.md §4.3 step 1: pass-through for n<=2 (two
// quotes are both kept however far apart they are), and a MAD threshold for n>=3 that reverts to the
// full set if too few quotes survive.
func filterOutliers(quotes []quote.PriceQuote) []quote.PriceQuote {
	n := len(quotes)
	if n <= 2 {
		return quotes
	}

	prices := make([]decimal.Decimal, n)
	for i, q := range quotes {
		prices[i] = q.Price
	}
	median := medianOf(prices)

	absDevs := make([]decimal.Decimal, n)
	for i, p := range prices {
		absDevs[i] = p.Sub(median).Abs()
	}
	mad := medianOf(absDevs)

	threshold := madThreshold(mad, median, n)

	survivors := make([]quote.PriceQuote, 0, n)
	for i, q := range quotes {
		if absDevs[i].Cmp(threshold) <= 0 {
			survivors = append(survivors, q)
		}
	}

	minSurvivors := (n + 1) / 2 // ceil(n/2)
	if len(survivors) < minSurvivors {
		return quotes
	}
	return survivors
}

func madThreshold(mad, median decimal.Decimal, n int) decimal.Decimal {
	var multiplier decimal.Decimal
	switch {
	case n == 3:
		multiplier = decimal.NewFromFloat(2.5)
	case n > 3 && n <= 5:
		multiplier = decimal.NewFromInt(3)
	default: // n > 5
		multiplier = decimal.NewFromInt(2)
	}
	t := mad.Mul(multiplier)

	tightBound := median.Abs().Mul(decimal.NewFromFloat(0.01))
	if mad.Cmp(tightBound) < 0 {
		t = median.Abs().Mul(decimal.NewFromFloat(0.1))
	}
	return t
}

// centralEstimate implements spec.md §4.3 step 2.
func centralEstimate(survivors []quote.PriceQuote) decimal.Decimal {
	prices := make([]decimal.Decimal, len(survivors))
	for i, q := range survivors {
		prices[i] = q.Price
	}
	switch len(prices) {
	case 0:
		return decimal.Zero
	case 1:
		return prices[0]
	case 2:
		return prices[0].Add(prices[1]).Div(decimal.NewFromInt(2))
	default:
		return medianOf(prices)
	}
}

// populationStdDev implements spec.md §4.3 step 3.
func populationStdDev(survivors []quote.PriceQuote) decimal.Decimal {
	n := len(survivors)
	if n <= 1 {
		return decimal.Zero
	}
	prices := make([]decimal.Decimal, n)
	sum := decimal.Zero
	for i, q := range survivors {
		prices[i] = q.Price
		sum = sum.Add(q.Price)
	}
	mean := sum.Div(decimal.NewFromInt(int64(n)))

	variance := decimal.Zero
	for _, p := range prices {
		d := p.Sub(mean)
		variance = variance.Add(d.Mul(d))
	}
	variance = variance.Div(decimal.NewFromInt(int64(n)))
	return sqrtDecimal(variance)
}

// confidenceFor implements spec.md §4.3 step 4's baseline scoring: 60/80/100 for
// 1/2/>=3 survivors.
func confidenceFor(survivorCount int) int {
	switch {
	case survivorCount <= 1:
		return 60
	case survivorCount == 2:
		return 80
	default:
		return 100
	}
}

func medianOf(values []decimal.Decimal) decimal.Decimal {
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })

	n := len(sorted)
	if n == 0 {
		return decimal.Zero
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1].Add(sorted[n/2]).Div(decimal.NewFromInt(2))
}

// sqrtDecimal computes a decimal square root via float64; decimal.Decimal has no
// native Sqrt, and population stddev only needs float-grade precision for a
// reported dispersion figure (never used in on-chain scaling).
func sqrtDecimal(d decimal.Decimal) decimal.Decimal {
	if d.Sign() <= 0 {
		return decimal.Zero
	}
	f, _ := d.Float64()
	return decimal.NewFromFloat(math.Sqrt(f))
}
