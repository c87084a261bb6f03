// Package config resolves BRC20ProgEngine's settings from, in priority
// order, CLI flags, BRC20PROG_*-prefixed environment variables, and
// compiled-in defaults — the same layered resolution original_source's
// global/config.rs constants (CHAIN_ID, MAX_REORG_HISTORY_SIZE,
// GAS_PER_BYTE, MAX_BLOCK_SIZE, GAS_PER_BITCOIN_RPC_CALL,
// CONFIG.read().evm_record_traces) are populated from at startup.
package config

import (
	"github.com/alecthomas/kong"
	"github.com/c2h5oh/datasize"

	"github.com/erigontech/brc20-prog/internal/bnum"
	"github.com/erigontech/brc20-prog/internal/engine"
	"github.com/erigontech/brc20-prog/internal/precompiles"
)

// Config is every flag/env-resolved setting the daemon needs to wire up a
// storage environment, an engine, and an RPC server.
type Config struct {
	DataDir string `kong:"name='datadir',default='./db',env='BRC20PROG_DATADIR',help='Directory the mdbx environment is stored in.'"`

	ChainID              bnum.HexOrDecimal64 `kong:"name='chain-id',default='331337',env='BRC20PROG_CHAIN_ID',help='Chain id legacy transactions must sign against, decimal or 0x-hex.'"`
	MaxReorgHistorySize  uint64              `kong:"name='max-reorg-history-size',default='10',env='BRC20PROG_MAX_REORG_HISTORY_SIZE',help='Blocks of history kept for reorg and pending-pool staleness.'"`
	GasPerByte           bnum.HexOrDecimal64 `kong:"name='gas-per-byte',default='12000',env='BRC20PROG_GAS_PER_BYTE',help='Gas charged per inscription content byte, decimal or 0x-hex.'"`
	GasPerBitcoinRPCCall uint64              `kong:"name='gas-per-bitcoin-rpc-call',default='10000',env='BRC20PROG_GAS_PER_BITCOIN_RPC_CALL',help='Gas charged per Bitcoin RPC call a precompile makes.'"`
	MaxBlockSize         datasize.ByteSize `kong:"name='max-block-size',default='4MB',env='BRC20PROG_MAX_BLOCK_SIZE',help='Maximum accepted inscription payload size.'"`
	EVMRecordTraces      bool              `kong:"name='evm-record-traces',default='false',env='BRC20PROG_EVM_RECORD_TRACES',help='Collect a geth-style call trace for every executed transaction.'"`

	BitcoinNetwork     string `kong:"name='bitcoin-network',default='mainnet',env='BRC20PROG_BITCOIN_NETWORK',help='mainnet, testnet, testnet4, signet, or regtest.'"`
	BitcoinRPCURL      string `kong:"name='bitcoin-rpc-url',env='BRC20PROG_BITCOIN_RPC_URL',help='Bitcoin Core RPC endpoint for the last-sat-location and tx-details precompiles.'"`
	BitcoinRPCUser     string `kong:"name='bitcoin-rpc-user',env='BRC20PROG_BITCOIN_RPC_USER'"`
	BitcoinRPCPassword string `kong:"name='bitcoin-rpc-password',env='BRC20PROG_BITCOIN_RPC_PASSWORD'"`

	BRC20BalanceServerURL string `kong:"name='brc20-balance-server-url',env='BRC20PROG_BALANCE_SERVER_URL',help='External BRC-20 balance indexer base URL.'"`

	RPCListenAddr        string `kong:"name='rpc-listen',default='127.0.0.1:18545',env='BRC20PROG_RPC_LISTEN_ADDR'"`
	RPCAuthJWTSecretPath string `kong:"name='rpc-auth-jwt-secret-path',env='BRC20PROG_RPC_AUTH_JWT_SECRET_PATH',help='If set, requires a bearer token signed with this secret on every RPC request.'"`

	Verbosity string `kong:"name='verbosity',default='info',env='BRC20PROG_VERBOSITY',help='One of crit,error,warn,info,debug,trace.'"`
}

// CLI is brc20progd's top-level command tree: `brc20progd run --datadir
// ./db --chain-id 331337 --rpc-listen 127.0.0.1:18545 ...`.
type CLI struct {
	Run struct {
		Config
	} `kong:"cmd,help='Run the brc20prog daemon.'"`
}

// Parse populates a Config from args (normally os.Args[1:]), falling back
// to environment variables and the defaults declared in the struct tags
// above. kong.Parse exits the process on --help or a flag error, matching
// every other kong-based CLI in the ecosystem.
func Parse(args []string) (*Config, error) {
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("brc20progd"), kong.Description("BRC-20 programmable module execution engine"))
	if err != nil {
		return nil, err
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, err
	}
	return &cli.Run.Config, nil
}

// EngineConfig projects the subset internal/engine.Config consults.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		ChainID:              uint64(c.ChainID),
		MaxReorgHistorySize:  c.MaxReorgHistorySize,
		GasPerByte:           uint64(c.GasPerByte),
		GasPerBitcoinRPCCall: c.GasPerBitcoinRPCCall,
		MaxBlockSize:         uint64(c.MaxBlockSize.Bytes()),
		EVMRecordTraces:      c.EVMRecordTraces,
	}
}

// network maps the configured network name to precompiles.BitcoinNetwork,
// defaulting to testnet4 the same way original_source's
// get_bitcoin_network() falls back on an unrecognized value.
func (c *Config) network() precompiles.BitcoinNetwork {
	switch c.BitcoinNetwork {
	case "mainnet":
		return precompiles.NetworkMainnet
	case "testnet":
		return precompiles.NetworkTestnet
	case "signet":
		return precompiles.NetworkSignet
	case "regtest":
		return precompiles.NetworkRegtest
	default:
		return precompiles.NetworkTestnet4
	}
}

// PrecompileConfig builds the precompiles.Config this daemon's engine
// registers, dialing the Bitcoin RPC client (if a URL was configured) and
// constructing the BRC-20 balance indexer HTTP client (if a server URL was
// configured). Either dependency is left nil when unconfigured; the
// precompiles that need them surface a clear error at call time instead of
// failing to start.
func (c *Config) PrecompileConfig() (precompiles.Config, error) {
	cfg := precompiles.Config{
		Network:              c.network(),
		GasPerBitcoinRPCCall: c.GasPerBitcoinRPCCall,
	}
	if c.BitcoinRPCURL != "" {
		rpc, err := precompiles.NewBitcoindClient(c.BitcoinRPCURL, c.BitcoinRPCUser, c.BitcoinRPCPassword)
		if err != nil {
			return precompiles.Config{}, err
		}
		cfg.BitcoinRPC = rpc
	}
	if c.BRC20BalanceServerURL != "" {
		cfg.BalanceIndexer = precompiles.NewHTTPBalanceIndexer(c.BRC20BalanceServerURL)
	}
	return cfg, nil
}
