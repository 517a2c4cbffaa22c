package chain

import (
	"fmt"
	"math"

	"github.com/joeqian10/neo3-gogogo/helper"
	"github.com/joeqian10/neo3-gogogo/sc"
	"github.com/shopspring/decimal"

	"github.com/neooracle/pricefeed/internal/oraclerr"
	"github.com/neooracle/pricefeed/internal/quote"
)

// BuildUpdatePriceBatchScript builds the VM script invoking
// updatePriceBatch(symbols[], prices[], timestamps[], confidences[]) on the oracle
// contract (spec.md §4.6 step 5). Prices arrive pre-scaled to satoshis by the
// caller so this function stays a pure script builder.
func BuildUpdatePriceBatchScript(contractHash helper.UInt160, symbols []string, prices []int64, timestamps []int64, confidences []int) ([]byte, error) {
	if len(symbols) != len(prices) || len(symbols) != len(timestamps) || len(symbols) != len(confidences) {
		return nil, fmt.Errorf("%w: updatePriceBatch arrays must be index-aligned", oraclerr.ErrInvalidBatch)
	}

	symbolParams := make([]sc.ContractParameter, len(symbols))
	priceParams := make([]sc.ContractParameter, len(prices))
	tsParams := make([]sc.ContractParameter, len(timestamps))
	confParams := make([]sc.ContractParameter, len(confidences))
	for i := range symbols {
		symbolParams[i] = sc.ContractParameter{Type: sc.String, Value: symbols[i]}
		priceParams[i] = sc.ContractParameter{Type: sc.Integer, Value: prices[i]}
		tsParams[i] = sc.ContractParameter{Type: sc.Integer, Value: timestamps[i]}
		confParams[i] = sc.ContractParameter{Type: sc.Integer, Value: confidences[i]}
	}

	args := []sc.ContractParameter{
		{Type: sc.Array, Value: symbolParams},
		{Type: sc.Array, Value: priceParams},
		{Type: sc.Array, Value: tsParams},
		{Type: sc.Array, Value: confParams},
	}

	sb := sc.NewScriptBuilder()
	script, err := sb.MakeInvocationScript(contractHash.Bytes(), "updatePriceBatch", args)
	if err != nil {
		return nil, fmt.Errorf("%w: build updatePriceBatch script: %v", oraclerr.ErrInvalidBatch, err)
	}
	return script, nil
}

// BuildTransferScript builds a NEP-17 transfer(from, to, amount, data) script, used
// by the asset-sweep step (spec.md §4.6 step 3).
func BuildTransferScript(assetHash, from, to helper.UInt160, amount int64, data string) ([]byte, error) {
	args := []sc.ContractParameter{
		{Type: sc.Hash160, Value: from},
		{Type: sc.Hash160, Value: to},
		{Type: sc.Integer, Value: amount},
		{Type: sc.String, Value: data},
	}
	sb := sc.NewScriptBuilder()
	script, err := sb.MakeInvocationScript(assetHash.Bytes(), "transfer", args)
	if err != nil {
		return nil, fmt.Errorf("%w: build transfer script: %v", oraclerr.ErrChainReject, err)
	}
	return script, nil
}

// ToSatoshi converts a decimal price to its 10^8-scaled integer form (spec.md
// §4.6 step 5); the scaled value is truncated toward zero, not rounded. Prices above
// maxSatoshiPrice are clamped *before* scaling, since the bound applies to the
// price, not to the already-scaled satoshi value — clamping after scaling
// would reject perfectly ordinary prices (e.g. 50000.50) that just happen to
// exceed the unscaled int64/10^8 bound. The caller is expected to pass the
// result through Client.ClampSatoshi as a final int64-range guard.
func ToSatoshi(price decimal.Decimal) int64 {
	if price.GreaterThan(decimal.NewFromInt(maxSatoshiPrice)) {
		price = decimal.NewFromInt(maxSatoshiPrice)
	}
	scaled := price.Mul(decimal.NewFromInt(Satoshi)).Truncate(0)
	f := scaled.BigInt()
	if !f.IsInt64() {
		if scaled.Sign() > 0 {
			return math.MaxInt64
		}
		return 0
	}
	return f.Int64()
}

// BuildConfidences extracts the confidence array, index-aligned with
// BuildTimestamps and the caller's price array (spec.md §5 ordering guarantee).
func BuildConfidences(quotes []quote.AggregatedQuote) []int {
	out := make([]int, len(quotes))
	for i, q := range quotes {
		out[i] = q.Confidence
	}
	return out
}

// BuildTimestamps extracts Unix-second timestamps from quote instants.
func BuildTimestamps(quotes []quote.AggregatedQuote) []int64 {
	out := make([]int64, len(quotes))
	for i, q := range quotes {
		out[i] = q.AggregatedAt.Unix()
	}
	return out
}

// BuildSymbols extracts canonical symbol strings.
func BuildSymbols(quotes []quote.AggregatedQuote) []string {
	out := make([]string, len(quotes))
	for i, q := range quotes {
		out[i] = string(q.Symbol)
	}
	return out
}
