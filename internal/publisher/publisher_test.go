package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/joeqian10/neo3-gogogo/helper"
	"github.com/joeqian10/neo3-gogogo/wallet"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/neooracle/pricefeed/internal/attestation"
	"github.com/neooracle/pricefeed/internal/chain"
	"github.com/neooracle/pricefeed/internal/quote"
)

type fakeChain struct {
	submitCount int
	failSubmit  bool
	confirmed   bool
	balances    []chain.TokenBalance
}

func (f *fakeChain) SubmitScript(ctx context.Context, script []byte, signers []chain.Signer) (string, error) {
	f.submitCount++
	if f.failSubmit {
		return "", errTest
	}
	return "0xfaketxhash", nil
}

func (f *fakeChain) GetRawTransaction(ctx context.Context, txHash string) (chain.TxStatus, error) {
	if f.confirmed {
		return chain.TxStatus{Confirmations: 1, Found: true}, nil
	}
	return chain.TxStatus{Found: false}, nil
}

func (f *fakeChain) GetTokenBalances(ctx context.Context, address string) ([]chain.TokenBalance, error) {
	return f.balances, nil
}

func (f *fakeChain) ClampSatoshi(raw int64) int64 { return raw }

var errTest = &testError{"fake submission failure"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func testConfig(t *testing.T) Config {
	t.Helper()
	contractHash, err := helper.UInt160FromString("0x70e2301955bf1e74cbb31d18c2f96972abd08a2c")
	require.NoError(t, err)
	teeAcc := &wallet.Account{Address: "NTeeAddress", ScriptHash: contractHash}
	masterAcc := &wallet.Account{Address: "NMasterAddress", ScriptHash: contractHash}
	return Config{
		MaxBatchSize:  2,
		ContractHash:  contractHash,
		TEEAccount:    chain.Signer{Account: teeAcc, KeyPair: nil},
		MasterAccount: chain.Signer{Account: masterAcc, KeyPair: nil},
	}
}

func testBatch(t *testing.T, n int) *quote.PriceBatch {
	t.Helper()
	quotes := make([]quote.AggregatedQuote, n)
	for i := range quotes {
		quotes[i] = quote.AggregatedQuote{
			Symbol:       quote.CanonicalSymbol("SYM" + string(rune('A'+i))),
			Price:        decimal.RequireFromString("50000.50"),
			AggregatedAt: time.Now(),
			Confidence:   100,
		}
	}
	b, err := quote.NewPriceBatch(quotes, time.Now())
	require.NoError(t, err)
	return b
}

func TestPublish_RejectsEmptyBatch(t *testing.T) {
	dir := t.TempDir()
	attestor, err := attestation.New(dir, attestation.Secrets{}, zerolog.Nop())
	require.NoError(t, err)

	p := New(testConfig(t), &fakeChain{}, attestor, zerolog.Nop())
	err = p.Publish(context.Background(), &quote.PriceBatch{})
	require.Error(t, err)
}

func TestPublish_SplitsIntoSubBatchesAndSubmitsEach(t *testing.T) {
	dir := t.TempDir()
	attestor, err := attestation.New(dir, attestation.Secrets{}, zerolog.Nop())
	require.NoError(t, err)

	fc := &fakeChain{}
	p := New(testConfig(t), fc, attestor, zerolog.Nop())

	batch := testBatch(t, 5) // MaxBatchSize=2 -> 3 sub-batches
	err = p.Publish(context.Background(), batch)
	require.NoError(t, err)
	require.Equal(t, 3, fc.submitCount)
}

func TestPublish_FailsBatchOnSubmitError(t *testing.T) {
	dir := t.TempDir()
	attestor, err := attestation.New(dir, attestation.Secrets{}, zerolog.Nop())
	require.NoError(t, err)

	fc := &fakeChain{failSubmit: true}
	p := New(testConfig(t), fc, attestor, zerolog.Nop())

	batch := testBatch(t, 1)
	err = p.Publish(context.Background(), batch)
	require.Error(t, err)

	status := p.Status(batch.ID.String())
	require.Equal(t, quote.StatusFailed, status.Status)
}

func TestStatus_UnknownForUnrecordedBatch(t *testing.T) {
	dir := t.TempDir()
	attestor, err := attestation.New(dir, attestation.Secrets{}, zerolog.Nop())
	require.NoError(t, err)

	p := New(testConfig(t), &fakeChain{}, attestor, zerolog.Nop())
	status := p.Status("nonexistent")
	require.Equal(t, quote.StatusUnknown, status.Status)
}

func TestRetryDelay_GrowsExponentially(t *testing.T) {
	base := 100 * time.Millisecond
	d0 := RetryDelay(base, 0)
	d2 := RetryDelay(base, 2)
	require.GreaterOrEqual(t, d0, base)
	require.GreaterOrEqual(t, d2, base*4)
}
