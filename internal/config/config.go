// Package config loads pipeline configuration from environment variables
// (optionally seeded from a .env file), generalizing the teacher's per-concern
// JSON-file loading (yetaxyz-oracle's crypto.LoadAllConfigs) to the spec's
// flatter, env-first configuration surface. It reads no JSON itself: it only
// records the catalog directory, whose symbols.json internal/catalog loads.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joeqian10/neo3-gogogo/helper"
	"github.com/joho/godotenv"

	"github.com/neooracle/pricefeed/internal/oraclerr"
)

// ProviderCredentials holds the optional API keys/secrets read per provider.
type ProviderCredentials struct {
	BinanceAPIKey       string
	CoinbaseAPIKey      string
	KrakenAPIKey        string
	CoinGeckoAPIKey     string
	CoinMarketCapAPIKey string
	UniswapEndpoint     string
	UniswapAPIKey       string
	UniswapPools        map[string]string // canonical symbol -> pool address
}

// Config is the fully resolved runtime configuration for one pipeline run
// (spec.md §4.8/§4.9 inputs).
type Config struct {
	RPCEndpoint      string
	ContractHash     helper.UInt160
	TEEWIFPath       string
	MasterWIFPath    string
	CatalogDir       string
	AttestationDir   string
	MaxBatchSize     int
	EnableSweep      bool
	GasAssetHash     helper.UInt160
	Providers        ProviderCredentials
	BuildCommit      string
	Invoker          string
	AttestationToken string
}

// Load reads configuration from the process environment, first seeding it from
// a .env file at envPath if present (teacher's convention via joho/godotenv; a
// missing .env is not an error — only real environments need one).
func Load(envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: load .env file: %v", oraclerr.ErrConfig, err)
		}
	}

	rpcEndpoint, err := requireEnv("ORACLE_RPC_ENDPOINT")
	if err != nil {
		return nil, err
	}
	contractHashStr, err := requireEnv("ORACLE_CONTRACT_HASH")
	if err != nil {
		return nil, err
	}
	contractHash, err := helper.UInt160FromString(contractHashStr)
	if err != nil {
		return nil, fmt.Errorf("%w: ORACLE_CONTRACT_HASH: %v", oraclerr.ErrConfig, err)
	}

	gasAssetHash, err := helper.UInt160FromString(envOr("ORACLE_GAS_ASSET_HASH", "0xd2a4cff31913016155e38e474a2c06d08be276cf"))
	if err != nil {
		return nil, fmt.Errorf("%w: ORACLE_GAS_ASSET_HASH: %v", oraclerr.ErrConfig, err)
	}

	maxBatchSize, err := strconv.Atoi(envOr("ORACLE_MAX_BATCH_SIZE", "50"))
	if err != nil {
		return nil, fmt.Errorf("%w: ORACLE_MAX_BATCH_SIZE must be an integer: %v", oraclerr.ErrConfig, err)
	}

	enableSweep, err := strconv.ParseBool(envOr("ORACLE_ENABLE_ASSET_SWEEP", "false"))
	if err != nil {
		return nil, fmt.Errorf("%w: ORACLE_ENABLE_ASSET_SWEEP must be a bool: %v", oraclerr.ErrConfig, err)
	}

	teeWIFPath, err := requireEnv("ORACLE_TEE_WIF_PATH")
	if err != nil {
		return nil, err
	}
	masterWIFPath, err := requireEnv("ORACLE_MASTER_WIF_PATH")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCEndpoint:    rpcEndpoint,
		ContractHash:   contractHash,
		TEEWIFPath:     teeWIFPath,
		MasterWIFPath:  masterWIFPath,
		CatalogDir:     envOr("ORACLE_CATALOG_DIR", "config/catalog"),
		AttestationDir: envOr("ORACLE_ATTESTATION_DIR", "data/attestation"),
		MaxBatchSize:   maxBatchSize,
		EnableSweep:    enableSweep,
		GasAssetHash:   gasAssetHash,
		Providers: ProviderCredentials{
			BinanceAPIKey:       os.Getenv("BINANCE_API_KEY"),
			CoinbaseAPIKey:      os.Getenv("COINBASE_API_KEY"),
			KrakenAPIKey:        os.Getenv("KRAKEN_API_KEY"),
			CoinGeckoAPIKey:     os.Getenv("COINGECKO_API_KEY"),
			CoinMarketCapAPIKey: os.Getenv("COINMARKETCAP_API_KEY"),
			UniswapEndpoint:     os.Getenv("UNISWAP_SUBGRAPH_ENDPOINT"),
			UniswapAPIKey:       os.Getenv("UNISWAP_API_KEY"),
			UniswapPools:        parsePools(os.Getenv("UNISWAP_POOLS")),
		},
		BuildCommit:      envOr("ORACLE_BUILD_COMMIT", "unknown"),
		Invoker:          envOr("ORACLE_INVOKER", "unknown"),
		AttestationToken: os.Getenv("ORACLE_ATTESTATION_TOKEN"),
	}

	if loadErr := validate(cfg); loadErr != nil {
		return nil, loadErr
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.MaxBatchSize <= 0 {
		return fmt.Errorf("%w: ORACLE_MAX_BATCH_SIZE must be positive, got %d", oraclerr.ErrConfig, cfg.MaxBatchSize)
	}
	if cfg.TEEWIFPath == cfg.MasterWIFPath {
		return fmt.Errorf("%w: ORACLE_TEE_WIF_PATH and ORACLE_MASTER_WIF_PATH must differ", oraclerr.ErrConfig)
	}
	return nil
}

func requireEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("%w: missing required environment variable %s", oraclerr.ErrConfig, key)
	}
	return v, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parsePools reads "SYMBOL:address,SYMBOL:address" pairs naming the Uniswap
// v3 pool to query per canonical symbol. An empty or malformed entry is
// skipped rather than failing config load, since the Uniswap adapter is
// optional (SPEC_FULL.md §3).
func parsePools(raw string) map[string]string {
	out := make(map[string]string)
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		out[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return out
}
