// Package publisher implements BatchPublisher (spec.md §4.6): splits a PriceBatch
// into sub-batches, builds and submits the updatePriceBatch invocation per
// sub-batch, creates attestations, and tracks confirmation status.
package publisher

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/joeqian10/neo3-gogogo/helper"
	"github.com/rs/zerolog"

	"github.com/neooracle/pricefeed/internal/attestation"
	"github.com/neooracle/pricefeed/internal/chain"
	"github.com/neooracle/pricefeed/internal/oraclerr"
	"github.com/neooracle/pricefeed/internal/quote"
)

const (
	defaultMaxBatchSize  = 50
	confirmationInterval = 2 * time.Second
	confirmationAttempts = 30
	minGasReserve        = 1 * chain.Satoshi // leave at least 1 GAS on the TEE account
)

// ChainClient is the subset of *chain.Client the publisher depends on, narrowed
// to an interface so tests can substitute a fake RPC backend.
type ChainClient interface {
	SubmitScript(ctx context.Context, script []byte, signers []chain.Signer) (string, error)
	GetRawTransaction(ctx context.Context, txHash string) (chain.TxStatus, error)
	GetTokenBalances(ctx context.Context, address string) ([]chain.TokenBalance, error)
	ClampSatoshi(raw int64) int64
}

// Status is the richer, forward-looking query shape exposed by §4.6's public
// query operation, superseding the source's two diverging BatchPublisher
// variants (see DESIGN.md, internal/publisher).
type Status struct {
	BatchID   string
	Status    quote.BatchStatus
	TxHash    string
	Timestamp time.Time
	Processed int
	Total     int
}

// Config carries the publisher's tunables.
type Config struct {
	MaxBatchSize  int
	ContractHash  helper.UInt160
	TEEAccount    chain.Signer
	MasterAccount chain.Signer
	EnableSweep   bool
	GasAssetHash  helper.UInt160
}

func (c Config) maxBatchSize() int {
	if c.MaxBatchSize <= 0 {
		return defaultMaxBatchSize
	}
	return c.MaxBatchSize
}

// Publisher orchestrates on-chain publication of aggregated price batches.
type Publisher struct {
	cfg    Config
	chain  ChainClient
	attest *attestation.Attestor
	log    zerolog.Logger

	mu       sync.Mutex
	statuses map[string]Status
}

// New builds a Publisher.
func New(cfg Config, chainClient ChainClient, attestor *attestation.Attestor, logger zerolog.Logger) *Publisher {
	return &Publisher{
		cfg:      cfg,
		chain:    chainClient,
		attest:   attestor,
		log:      logger.With().Str("component", "publisher").Logger(),
		statuses: make(map[string]Status),
	}
}

// Publish runs the full §4.6 algorithm over batch.
func (p *Publisher) Publish(ctx context.Context, batch *quote.PriceBatch) error {
	if batch == nil || len(batch.Quotes) == 0 {
		return oraclerr.ErrInvalidBatch
	}

	batchID := batch.ID.String()
	p.setStatus(batchID, Status{BatchID: batchID, Status: quote.StatusProcessing, Timestamp: time.Now().UTC()})

	if p.cfg.EnableSweep {
		p.sweep(ctx)
	}

	subBatches := batch.Split(p.cfg.maxBatchSize())
	total := len(batch.Quotes)
	processed := 0

	for _, sub := range subBatches {
		if err := ctx.Err(); err != nil {
			p.fail(batchID, err)
			return fmt.Errorf("%w: %v", oraclerr.ErrCancelled, err)
		}

		txHash, err := p.publishSubBatch(ctx, &sub)
		if err != nil {
			p.fail(batchID, err)
			return err
		}
		processed += len(sub.Quotes)

		p.setStatus(batchID, Status{
			BatchID:   batchID,
			Status:    quote.StatusSent,
			TxHash:    txHash,
			Timestamp: time.Now().UTC(),
			Processed: processed,
			Total:     total,
		})

		go p.pollConfirmation(batchID, txHash)
	}

	return nil
}

// publishSubBatch builds the updatePriceBatch script for one sub-batch, submits
// it, and writes its BatchAttestation (spec.md §4.6 steps 5-7).
func (p *Publisher) publishSubBatch(ctx context.Context, sub *quote.PriceBatch) (string, error) {
	symbols := chain.BuildSymbols(sub.Quotes)
	timestamps := chain.BuildTimestamps(sub.Quotes)
	confidences := chain.BuildConfidences(sub.Quotes)

	prices := make([]int64, len(sub.Quotes))
	for i, q := range sub.Quotes {
		raw := chain.ToSatoshi(q.Price)
		prices[i] = p.chain.ClampSatoshi(raw)
	}

	script, err := chain.BuildUpdatePriceBatchScript(p.cfg.ContractHash, symbols, prices, timestamps, confidences)
	if err != nil {
		return "", err
	}

	txHash, err := p.chain.SubmitScript(ctx, script, []chain.Signer{p.cfg.TEEAccount, p.cfg.MasterAccount})
	if err != nil {
		return "", err
	}

	summaries := make([]attestation.PriceSummary, len(sub.Quotes))
	for i, q := range sub.Quotes {
		summaries[i] = attestation.PriceSummary{Symbol: string(q.Symbol), Price: q.Price, Confidence: q.Confidence}
	}
	if _, err := p.attest.CreateBatch(sub.ID, txHash, summaries, attestation.RunMetadata{}); err != nil {
		// Attestation is part of the contract: a publish without a receipt is a failed publish.
		return "", fmt.Errorf("%w: %v", oraclerr.ErrAttestationFailure, err)
	}

	return txHash, nil
}

// sweep transfers every non-zero NEP-17 balance from the TEE account to the
// Master account, leaving at least 1 GAS behind for fees (spec.md §4.6 step 3).
// Failures are logged, never fatal to the publish.
func (p *Publisher) sweep(ctx context.Context) {
	balances, err := p.chain.GetTokenBalances(ctx, p.cfg.TEEAccount.Account.Address)
	if err != nil {
		p.log.Warn().Err(err).Msg("asset sweep: failed to read TEE balances")
		return
	}

	for _, bal := range balances {
		amount := parseAmount(bal.Amount)
		if amount <= 0 {
			continue
		}
		assetHash, err := helper.UInt160FromString(bal.AssetHash)
		if err != nil {
			p.log.Warn().Err(err).Str("asset", bal.AssetHash).Msg("asset sweep: bad asset hash")
			continue
		}
		if assetHash == p.cfg.GasAssetHash {
			amount -= minGasReserve
			if amount <= 0 {
				continue
			}
		}

		script, err := chain.BuildTransferScript(assetHash, p.cfg.TEEAccount.Account.ScriptHash, p.cfg.MasterAccount.Account.ScriptHash, amount, "TEE to Master transfer")
		if err != nil {
			p.log.Warn().Err(err).Str("asset", bal.AssetHash).Msg("asset sweep: failed to build transfer script")
			continue
		}
		if _, err := p.chain.SubmitScript(ctx, script, []chain.Signer{p.cfg.TEEAccount}); err != nil {
			p.log.Warn().Err(err).Str("asset", bal.AssetHash).Msg("asset sweep: transfer submission failed")
		}
	}
}

// pollConfirmation watches a submitted sub-batch transaction for up to
// confirmationAttempts tries, advancing its status on settlement (spec.md §4.6
// step 8).
func (p *Publisher) pollConfirmation(batchID, txHash string) {
	ctx := context.Background()
	for attempt := 0; attempt < confirmationAttempts; attempt++ {
		time.Sleep(confirmationInterval)

		result, err := p.chain.GetRawTransaction(ctx, txHash)
		if err != nil {
			p.advance(batchID, quote.StatusFailed, txHash)
			return
		}
		if result.Found && result.Confirmations >= 1 {
			p.advance(batchID, quote.StatusConfirmed, txHash)
			return
		}
	}
	p.advance(batchID, quote.StatusPending, txHash)
}

// Status returns the publisher's last known record for batchID.
func (p *Publisher) Status(batchID string) Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.statuses[batchID]
	if !ok {
		return Status{BatchID: batchID, Status: quote.StatusUnknown}
	}
	return s
}

func (p *Publisher) setStatus(batchID string, s Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[batchID] = s
}

func (p *Publisher) advance(batchID string, next quote.BatchStatus, txHash string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur, ok := p.statuses[batchID]
	if !ok || !cur.Status.CanAdvanceTo(next) {
		return
	}
	cur.Status = next
	cur.TxHash = txHash
	cur.Timestamp = time.Now().UTC()
	p.statuses[batchID] = cur
}

func (p *Publisher) fail(batchID string, cause error) {
	p.log.Error().Err(cause).Str("batch", batchID).Msg("publish failed")
	p.advance(batchID, quote.StatusFailed, "")
}

// RetryDelay computes the PipelineRunner's exponential backoff with jitter for
// publish attempts (spec.md §4.8 step 5): baseDelay * 2^attempt + rand(0,500ms).
func RetryDelay(baseDelay time.Duration, attempt int) time.Duration {
	backoff := baseDelay * time.Duration(1<<uint(attempt))
	jitter := time.Duration(rand.Int63n(int64(500 * time.Millisecond)))
	return backoff + jitter
}

func parseAmount(s string) int64 {
	var n int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int64(r-'0')
	}
	return n
}
