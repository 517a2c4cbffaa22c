// Package oraclerr defines the sentinel error kinds shared across the pipeline.
package oraclerr

import "errors"

var (
	// ErrConfig marks a missing or malformed required startup input.
	ErrConfig = errors.New("oraclerr: invalid configuration")

	// ErrUnsupportedSymbol marks a symbol absent from a provider's SymbolCatalog entry.
	ErrUnsupportedSymbol = errors.New("oraclerr: symbol unsupported by provider")

	// ErrTransport marks a network/HTTP failure or malformed provider response.
	ErrTransport = errors.New("oraclerr: transport failure")

	// ErrCircuitOpen marks a short-circuited call while a provider's breaker is open.
	ErrCircuitOpen = errors.New("oraclerr: circuit open")

	// ErrAggregation marks a symbol with no usable quotes at aggregation time.
	ErrAggregation = errors.New("oraclerr: aggregation failed")

	// ErrInvalidBatch marks an empty batch at publish time.
	ErrInvalidBatch = errors.New("oraclerr: invalid batch")

	// ErrChainReject marks an RPC error or VM FAULT state from the chain.
	ErrChainReject = errors.New("oraclerr: chain rejected transaction")

	// ErrAttestationFailure marks a failure to write or sign a receipt.
	ErrAttestationFailure = errors.New("oraclerr: attestation failure")

	// ErrNoEnabledProviders marks a run where every adapter is disabled.
	ErrNoEnabledProviders = errors.New("oraclerr: no enabled providers")

	// ErrNoData marks a run where no adapter returned any quote.
	ErrNoData = errors.New("oraclerr: no data")

	// ErrCancelled marks cooperative cancellation of a blocking operation.
	ErrCancelled = errors.New("oraclerr: cancelled")
)
