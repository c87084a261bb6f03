package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]string{"run"})
	require.NoError(t, err)
	require.Equal(t, "./db", cfg.DataDir)
	require.EqualValues(t, 331337, cfg.ChainID)
	require.EqualValues(t, 10, cfg.MaxReorgHistorySize)
	require.EqualValues(t, 12000, cfg.GasPerByte)
	require.EqualValues(t, 10000, cfg.GasPerBitcoinRPCCall)
	require.EqualValues(t, 4*1024*1024, cfg.MaxBlockSize.Bytes())
	require.False(t, cfg.EVMRecordTraces)
	require.Equal(t, "127.0.0.1:18545", cfg.RPCListenAddr)
	require.Equal(t, "info", cfg.Verbosity)
}

func TestParseFlagsOverrideDefaults(t *testing.T) {
	cfg, err := Parse([]string{"run", "--chain-id", "7", "--evm-record-traces", "--datadir", "/tmp/brc20"})
	require.NoError(t, err)
	require.EqualValues(t, 7, cfg.ChainID)
	require.True(t, cfg.EVMRecordTraces)
	require.Equal(t, "/tmp/brc20", cfg.DataDir)
}

func TestParseAcceptsHexChainID(t *testing.T) {
	cfg, err := Parse([]string{"run", "--chain-id", "0x50e49"})
	require.NoError(t, err)
	require.EqualValues(t, 331337, cfg.ChainID)
}

func TestParseEnvOverridesDefaults(t *testing.T) {
	t.Setenv("BRC20PROG_CHAIN_ID", "42")
	cfg, err := Parse([]string{"run"})
	require.NoError(t, err)
	require.EqualValues(t, 42, cfg.ChainID)
}

func TestEngineConfigProjection(t *testing.T) {
	cfg, err := Parse([]string{"run"})
	require.NoError(t, err)
	ec := cfg.EngineConfig()
	require.EqualValues(t, cfg.ChainID, ec.ChainID)
	require.Equal(t, cfg.MaxReorgHistorySize, ec.MaxReorgHistorySize)
	require.EqualValues(t, cfg.MaxBlockSize.Bytes(), ec.MaxBlockSize)
}

func TestPrecompileConfigUnconfiguredLeavesClientsNil(t *testing.T) {
	cfg, err := Parse([]string{"run"})
	require.NoError(t, err)
	pc, err := cfg.PrecompileConfig()
	require.NoError(t, err)
	require.Nil(t, pc.BitcoinRPC)
	require.Nil(t, pc.BalanceIndexer)
}

func TestPrecompileConfigBuildsBalanceIndexerWhenConfigured(t *testing.T) {
	cfg, err := Parse([]string{"run", "--brc20-balance-server-url", "http://localhost:9000"})
	require.NoError(t, err)
	pc, err := cfg.PrecompileConfig()
	require.NoError(t, err)
	require.NotNil(t, pc.BalanceIndexer)
}
