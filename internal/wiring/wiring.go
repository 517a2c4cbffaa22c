// Package wiring assembles the concrete object graph for one pipeline run from a
// resolved config.Config: the symbol catalog, the five default provider adapters
// plus the optional Uniswap v3 adapter, the
// chain client, the attestor, and the publisher. Kept separate from cmd/ so both
// cmd/oracled and the observer entrypoint can share the same construction logic.
package wiring

import (
	"fmt"
	"os"
	"strings"

	"github.com/joeqian10/neo3-gogogo/crypto"
	"github.com/joeqian10/neo3-gogogo/wallet"
	"github.com/rs/zerolog"

	"github.com/neooracle/pricefeed/internal/attestation"
	"github.com/neooracle/pricefeed/internal/catalog"
	"github.com/neooracle/pricefeed/internal/chain"
	"github.com/neooracle/pricefeed/internal/config"
	"github.com/neooracle/pricefeed/internal/oraclerr"
	"github.com/neooracle/pricefeed/internal/providers"
	"github.com/neooracle/pricefeed/internal/publisher"
	"github.com/neooracle/pricefeed/internal/quote"
	"github.com/neooracle/pricefeed/internal/resilience"
)

// Graph is the fully wired set of collaborators a pipeline run needs.
type Graph struct {
	Catalog   *catalog.Catalog
	Adapters  []providers.Adapter
	Chain     *chain.Client
	Attestor  *attestation.Attestor
	Publisher *publisher.Publisher
}

// Build constructs a Graph from cfg. WIF files at cfg.TEEWIFPath/MasterWIFPath
// must already exist (created by the identity provisioner).
func Build(cfg *config.Config, logger zerolog.Logger) (*Graph, error) {
	cat, err := catalog.Load(cfg.CatalogDir)
	if err != nil {
		return nil, err
	}

	attestor, err := attestation.New(cfg.AttestationDir, attestation.Secrets{
		BuildCommit: cfg.BuildCommit,
		Invoker:     cfg.Invoker,
		Token:       cfg.AttestationToken,
	}, logger)
	if err != nil {
		return nil, err
	}

	chainClient := chain.New(cfg.RPCEndpoint, logger)

	teeSigner, err := loadSigner(cfg.TEEWIFPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load TEE signer: %v", oraclerr.ErrConfig, err)
	}
	masterSigner, err := loadSigner(cfg.MasterWIFPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load Master signer: %v", oraclerr.ErrConfig, err)
	}

	pub := publisher.New(publisher.Config{
		MaxBatchSize:  cfg.MaxBatchSize,
		ContractHash:  cfg.ContractHash,
		TEEAccount:    teeSigner,
		MasterAccount: masterSigner,
		EnableSweep:   cfg.EnableSweep,
		GasAssetHash:  cfg.GasAssetHash,
	}, chainClient, attestor, logger)

	adapters := buildAdapters(cat, cfg, logger)

	return &Graph{
		Catalog:   cat,
		Adapters:  adapters,
		Chain:     chainClient,
		Attestor:  attestor,
		Publisher: pub,
	}, nil
}

// defaultResilience matches the ResilienceLayer defaults spec.md §4.4 names
// (3 attempts, 10s timeout, 5-failure breaker, 30s open duration) with no rate
// limit applied.
func defaultResilience() resilience.Config {
	return resilience.Config{}
}

// krakenResilience and coinGeckoResilience apply the example per-provider rates
// spec.md §4.4 names explicitly (Kraken 1 rps, CoinGecko 10 rps).
func krakenResilience() resilience.Config {
	return resilience.Config{RequestsPerSecond: 1, Burst: 1}
}

func coinGeckoResilience() resilience.Config {
	return resilience.Config{RequestsPerSecond: 10, Burst: 5}
}

func buildAdapters(cat *catalog.Catalog, cfg *config.Config, logger zerolog.Logger) []providers.Adapter {
	adapters := []providers.Adapter{
		providers.NewBinanceAdapter(cat, defaultResilience(), cfg.Providers.BinanceAPIKey, false, logger),
		providers.NewCoinbaseAdapter(cat, defaultResilience(), logger),
		providers.NewKrakenAdapter(cat, krakenResilience(), logger),
		providers.NewCoinGeckoAdapter(cat, coinGeckoResilience(), logger),
		providers.NewCoinMarketCapAdapter(cat, defaultResilience(), cfg.Providers.CoinMarketCapAPIKey, logger),
	}

	if cfg.Providers.UniswapEndpoint != "" {
		adapters = append(adapters, providers.NewUniswapV3Adapter(cat, defaultResilience(), cfg.Providers.UniswapEndpoint, cfg.Providers.UniswapAPIKey, uniswapPools(cfg.Providers.UniswapPools), logger))
	}

	return adapters
}

// uniswapPools converts the config's raw symbol->address map into the
// canonical-symbol-keyed form NewUniswapV3Adapter expects. An adapter built
// with an empty map reports IsEnabled() == false, so UNISWAP_SUBGRAPH_ENDPOINT
// alone is not enough to activate it: at least one pool must be configured too
// (SPEC_FULL.md §3: Uniswap is the optional sixth adapter).
func uniswapPools(raw map[string]string) map[quote.CanonicalSymbol]string {
	out := make(map[quote.CanonicalSymbol]string, len(raw))
	for sym, addr := range raw {
		out[quote.CanonicalSymbol(sym)] = addr
	}
	return out
}

// loadSigner reads a "WIF: <wif>" line from the credentials file written by the
// identity provisioner and derives the signing account.
func loadSigner(wifPath string) (chain.Signer, error) {
	raw, err := os.ReadFile(wifPath)
	if err != nil {
		return chain.Signer{}, fmt.Errorf("read WIF file: %w", err)
	}

	wif := ""
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.HasPrefix(line, "WIF:") {
			wif = strings.TrimSpace(strings.TrimPrefix(line, "WIF:"))
			break
		}
	}
	if wif == "" {
		return chain.Signer{}, fmt.Errorf("no WIF line found in %s", wifPath)
	}

	keyPair, err := crypto.NewKeyPairFromWIF(wif)
	if err != nil {
		return chain.Signer{}, fmt.Errorf("parse WIF: %w", err)
	}
	account, err := wallet.NewAccountFromPrivateKey(keyPair.PrivateKey)
	if err != nil {
		return chain.Signer{}, fmt.Errorf("derive account: %w", err)
	}
	return chain.Signer{Account: account, KeyPair: keyPair}, nil
}
