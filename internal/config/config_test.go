package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	env := map[string]string{
		"ORACLE_RPC_ENDPOINT":   "http://localhost:10332",
		"ORACLE_CONTRACT_HASH":  "0x70e2301955bf1e74cbb31d18c2f96972abd08a2c",
		"ORACLE_TEE_WIF_PATH":   "/tmp/tee.txt",
		"ORACLE_MASTER_WIF_PATH": "/tmp/master.txt",
	}
	for k, v := range env {
		require.NoError(t, os.Setenv(k, v))
		t.Cleanup(func(k string) func() { return func() { os.Unsetenv(k) } }(k))
	}
}

func TestLoad_MissingRequiredVar_Fails(t *testing.T) {
	os.Clearenv()
	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_HappyPath_AppliesDefaults(t *testing.T) {
	os.Clearenv()
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 50, cfg.MaxBatchSize)
	require.False(t, cfg.EnableSweep)
	require.Equal(t, "config/catalog", cfg.CatalogDir)
}

func TestLoad_RejectsIdenticalTEEAndMasterPaths(t *testing.T) {
	os.Clearenv()
	setRequiredEnv(t)
	require.NoError(t, os.Setenv("ORACLE_MASTER_WIF_PATH", "/tmp/tee.txt"))

	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_RejectsInvalidMaxBatchSize(t *testing.T) {
	os.Clearenv()
	setRequiredEnv(t)
	require.NoError(t, os.Setenv("ORACLE_MAX_BATCH_SIZE", "not-a-number"))

	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_ParsesUniswapPools(t *testing.T) {
	os.Clearenv()
	setRequiredEnv(t)
	require.NoError(t, os.Setenv("UNISWAP_POOLS", "BTCUSDT:0xabc, ETHUSDT:0xdef"))
	t.Cleanup(func() { os.Unsetenv("UNISWAP_POOLS") })

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"BTCUSDT": "0xabc", "ETHUSDT": "0xdef"}, cfg.Providers.UniswapPools)
}

func TestParsePools_SkipsMalformedEntries(t *testing.T) {
	got := parsePools("BTCUSDT:0xabc,garbage,:0xmissing-symbol,ETHUSDT:")
	require.Equal(t, map[string]string{"BTCUSDT": "0xabc"}, got)
}

func TestParsePools_EmptyInputYieldsEmptyMap(t *testing.T) {
	got := parsePools("")
	require.Empty(t, got)
}
