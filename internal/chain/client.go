// Package chain wraps the Neo-N3 JSON-RPC surface used to submit and monitor
// oracle transactions, built on github.com/joeqian10/neo3-gogogo (spec.md §4.5).
package chain

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/joeqian10/neo3-gogogo/crypto"
	"github.com/joeqian10/neo3-gogogo/helper"
	"github.com/joeqian10/neo3-gogogo/rpc"
	"github.com/joeqian10/neo3-gogogo/sc"
	"github.com/joeqian10/neo3-gogogo/tx"
	"github.com/joeqian10/neo3-gogogo/wallet"
	"github.com/rs/zerolog"

	"github.com/neooracle/pricefeed/internal/oraclerr"
)

// Satoshi is the on-chain fixed-point scale applied to decimal prices (10^8),
// matching the oracle contract's expected precision (spec.md §4.6 step 5).
const Satoshi = 100_000_000

// maxSatoshiPrice bounds the decimal price *before* it is scaled by Satoshi:
// a price above floor(int64_max / 10^8) would overflow int64 once multiplied
// by 10^8, so ToSatoshi clamps the price in its own domain, not the scaled
// satoshi value (spec.md §4.6 step 5; the scaled value's own bound is simply
// math.MaxInt64, checked by ClampSatoshi below).
const maxSatoshiPrice = math.MaxInt64 / Satoshi

// TokenBalance is one NEP-17 entry returned by GetTokenBalances.
type TokenBalance struct {
	AssetHash string
	Amount    string
}

// TxStatus is the confirmation state of a submitted transaction as observed via
// getrawtransaction.
type TxStatus struct {
	Confirmations int
	Found         bool
}

// Signer is one witness-bearing account attached to a transaction: the account
// plus the key pair used to produce its witness signature. Its scope is not
// carried here; SubmitScript sets CalledByEntry for every signer.
type Signer struct {
	Account *wallet.Account
	KeyPair *crypto.KeyPair
}

// Client owns the RPC connection and the process-wide protocol settings
// (network magic, address version) needed to hash and sign transactions
// correctly. Protocol settings are fetched once, lazily, guarded by a
// single-flight lock (spec.md §4.5 "Protocol initialisation").
type Client struct {
	rpc *rpc.RpcClient
	log zerolog.Logger

	protoOnce sync.Once
	protoErr  error
	network   uint32
	addrVer   byte
}

// New dials endpoint; protocol settings are not fetched until first use.
func New(endpoint string, logger zerolog.Logger) *Client {
	return &Client{
		rpc: rpc.NewClient(endpoint),
		log: logger.With().Str("component", "chain").Logger(),
	}
}

// ensureProtocol performs the single-flight getversion bootstrap described in
// spec.md §4.5. Safe for concurrent callers; only the first pays the RPC cost.
func (c *Client) ensureProtocol(ctx context.Context) error {
	c.protoOnce.Do(func() {
		resp := c.rpc.GetVersion()
		if resp.HasError() {
			c.protoErr = fmt.Errorf("%w: getversion: %s", oraclerr.ErrChainReject, resp.ErrorResponse.Error.Message)
			return
		}
		c.network = resp.Result.Protocol.Network
		c.addrVer = byte(resp.Result.Protocol.AddressVersion)
		c.log.Info().Uint32("network", c.network).Msg("protocol settings initialized")
	})
	return c.protoErr
}

// SubmitScript builds an invocation transaction for script, attaches a
// called-by-entry witness from every signer, submits it, and returns the
// transaction hash. Every signer must carry a non-nil KeyPair (spec.md §4.5:
// "Fails if any signer lacks a corresponding key").
func (c *Client) SubmitScript(ctx context.Context, script []byte, signers []Signer) (string, error) {
	if err := c.ensureProtocol(ctx); err != nil {
		return "", err
	}
	for _, s := range signers {
		if s.Account == nil || s.KeyPair == nil {
			return "", fmt.Errorf("%w: signer missing account or key", oraclerr.ErrChainReject)
		}
	}

	trx := tx.NewInvocationTransaction(script)
	trx.Signers = make([]tx.ISigner, 0, len(signers))
	for _, s := range signers {
		trx.Signers = append(trx.Signers, &tx.Signer{
			Account: s.Account.ScriptHash,
			Scopes:  tx.CalledByEntry,
		})
	}

	trx.Witnesses = make([]*tx.Witness, 0, len(signers))
	for _, s := range signers {
		sig, err := crypto.Sign(trx.GetHashData(c.network), s.KeyPair.PrivateKey)
		if err != nil {
			return "", fmt.Errorf("%w: sign transaction: %v", oraclerr.ErrChainReject, err)
		}
		invocation, err := sc.CreateSignatureInvocationScript(sig)
		if err != nil {
			return "", fmt.Errorf("%w: build invocation script: %v", oraclerr.ErrChainReject, err)
		}
		verification, err := sc.CreateSignatureVerificationScript(s.KeyPair.PublicKey)
		if err != nil {
			return "", fmt.Errorf("%w: build verification script: %v", oraclerr.ErrChainReject, err)
		}
		trx.Witnesses = append(trx.Witnesses, &tx.Witness{
			InvocationScript:   invocation,
			VerificationScript: verification,
		})
	}

	rawTx, err := helper.BytesToHex(trx.ToByteArray())
	if err != nil {
		return "", fmt.Errorf("%w: serialize transaction: %v", oraclerr.ErrChainReject, err)
	}

	resp := c.rpc.SendRawTransaction(rawTx)
	if resp.HasError() {
		return "", fmt.Errorf("%w: sendrawtransaction: %s", oraclerr.ErrChainReject, resp.ErrorResponse.Error.Message)
	}
	return trx.GetTxId(), nil
}

// GetRawTransaction polls a submitted transaction's confirmation state.
func (c *Client) GetRawTransaction(ctx context.Context, txHash string) (TxStatus, error) {
	resp := c.rpc.GetRawTransaction(txHash)
	if resp.HasError() {
		if isNotFound(resp.ErrorResponse.Error.Message) {
			return TxStatus{Found: false}, nil
		}
		return TxStatus{}, fmt.Errorf("%w: getrawtransaction: %s", oraclerr.ErrChainReject, resp.ErrorResponse.Error.Message)
	}
	return TxStatus{Confirmations: resp.Result.Confirmations, Found: true}, nil
}

// GetTokenBalances returns an account's NEP-17 balances.
func (c *Client) GetTokenBalances(ctx context.Context, address string) ([]TokenBalance, error) {
	resp := c.rpc.GetNep17Balances(address)
	if resp.HasError() {
		return nil, fmt.Errorf("%w: getnep17balances: %s", oraclerr.ErrChainReject, resp.ErrorResponse.Error.Message)
	}
	out := make([]TokenBalance, 0, len(resp.Result.Balances))
	for _, b := range resp.Result.Balances {
		out = append(out, TokenBalance{AssetHash: b.AssetHash, Amount: b.Amount})
	}
	return out, nil
}

// AddressVersion returns the network's address version byte, bootstrapping
// protocol settings on first call.
func (c *Client) AddressVersion(ctx context.Context) (byte, error) {
	if err := c.ensureProtocol(ctx); err != nil {
		return 0, err
	}
	return c.addrVer, nil
}

// NetworkMagic returns the network magic number, bootstrapping protocol settings
// on first call.
func (c *Client) NetworkMagic(ctx context.Context) (uint32, error) {
	if err := c.ensureProtocol(ctx); err != nil {
		return 0, err
	}
	return c.network, nil
}

// ClampSatoshi is the final guard on an already-scaled satoshi value, bounding
// it to the int64 range rather than the price-domain bound ToSatoshi already
// enforced (spec.md §4.6 step 5). In practice ToSatoshi never hands back a
// value outside int64, so this never fires for well-formed input; it exists
// as defense-in-depth against a caller that scaled a price itself.
func (c *Client) ClampSatoshi(raw int64) int64 {
	if raw > math.MaxInt64 {
		c.log.Warn().Int64("raw", raw).Msg("satoshi price overflow clamped")
		return math.MaxInt64
	}
	if raw < 0 {
		c.log.Warn().Int64("raw", raw).Msg("satoshi price negative, clamped to zero")
		return 0
	}
	return raw
}

func isNotFound(msg string) bool {
	return msg == "Unknown transaction" || msg == "unknown transaction"
}
