package precompiles

import (
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
)

// BitcoinNetwork mirrors the handful of networks original_source's
// get_bitcoin_network()/get_bitcoin_hrp() switch on.
type BitcoinNetwork int

const (
	NetworkMainnet BitcoinNetwork = iota
	NetworkTestnet
	NetworkTestnet4
	NetworkSignet
	NetworkRegtest
)

// Params returns the chaincfg.Params matching the network, falling back to
// testnet like original_source's `_ => Network::Testnet4` arm.
func (n BitcoinNetwork) Params() *chaincfg.Params {
	switch n {
	case NetworkMainnet:
		return &chaincfg.MainNetParams
	case NetworkRegtest:
		return &chaincfg.RegressionNetParams
	case NetworkSignet:
		return &chaincfg.SigNetParams
	default:
		return &chaincfg.TestNet3Params
	}
}

// RawTransaction is the subset of btcjson.TxRawResult this package reads:
// coinbase detection, the previous-output each vin spends, and every
// vout's scriptPubKey/value.
type RawTransaction struct {
	Txid      string
	Confirmed bool
	BlockHash string
	Vin       []RawVin
	Vout      []RawVout
}

func (tx *RawTransaction) IsCoinbase() bool {
	return len(tx.Vin) > 0 && tx.Vin[0].Coinbase
}

type RawVin struct {
	Coinbase bool
	Txid     string
	Vout     uint32
}

type RawVout struct {
	ValueSats    int64
	ScriptPubKey []byte
}

// BitcoinRPC is everything the last-sat-location and tx-details precompiles
// need from a Bitcoin node, grounded on btc_utils.rs's get_raw_transaction/
// get_block_info pair.
type BitcoinRPC interface {
	GetRawTransaction(txid string) (*RawTransaction, error)
	GetBlockHeight(blockHash string) (int, error)
}

// bitcoindClient is the production BitcoinRPC backed by btcsuite/btcd's
// rpcclient, the Go-ecosystem counterpart to bitcoincore_rpc.
type bitcoindClient struct {
	client *rpcclient.Client
}

// NewBitcoindClient dials url with basic auth, matching
// btc_utils.rs::BTC_CLIENT's Auth::UserPass construction.
func NewBitcoindClient(url, user, password string) (BitcoinRPC, error) {
	cfg := &rpcclient.ConnConfig{
		Host:         url,
		User:         user,
		Pass:         password,
		HTTPPostMode: true,
		DisableTLS:   true,
	}
	client, err := rpcclient.New(cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("precompiles: dial bitcoind: %w", err)
	}
	return &bitcoindClient{client: client}, nil
}

// GetRawTransaction retries up to 5 times like
// btc_utils.rs::get_raw_transaction_with_retry, except a confirmed
// "not found" (RPC code -5) is returned immediately without retrying.
func (c *bitcoindClient) GetRawTransaction(txid string) (*RawTransaction, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, fmt.Errorf("precompiles: invalid txid %q: %w", txid, err)
	}
	var lastErr error
	for attempt := 0; attempt <= 5; attempt++ {
		result, err := c.client.GetRawTransactionVerbose(hash)
		if err == nil {
			return convertRawTx(result)
		}
		if rpcErr, ok := err.(*btcjson.RPCError); ok && rpcErr.Code == btcjson.ErrRPCInvalidAddressOrKey {
			return nil, fmt.Errorf("precompiles: tx %s not found", txid)
		}
		lastErr = err
		time.Sleep(time.Second)
	}
	return nil, fmt.Errorf("precompiles: bitcoind unreachable: %w", lastErr)
}

func (c *bitcoindClient) GetBlockHeight(blockHash string) (int, error) {
	hash, err := chainhash.NewHashFromStr(blockHash)
	if err != nil {
		return 0, fmt.Errorf("precompiles: invalid block hash %q: %w", blockHash, err)
	}
	var lastErr error
	for attempt := 0; attempt <= 5; attempt++ {
		info, err := c.client.GetBlockVerbose(hash)
		if err == nil {
			return int(info.Height), nil
		}
		lastErr = err
		time.Sleep(time.Second)
	}
	return 0, fmt.Errorf("precompiles: bitcoind unreachable: %w", lastErr)
}

func convertRawTx(r *btcjson.TxRawResult) (*RawTransaction, error) {
	out := &RawTransaction{
		Txid:      r.Txid,
		BlockHash: r.BlockHash,
		Confirmed: r.BlockHash != "",
	}
	for _, vin := range r.Vin {
		out.Vin = append(out.Vin, RawVin{
			Coinbase: vin.Coinbase != "",
			Txid:     vin.Txid,
			Vout:     vin.Vout,
		})
	}
	for _, vout := range r.Vout {
		script, err := hex.DecodeString(vout.ScriptPubKey.Hex)
		if err != nil {
			return nil, fmt.Errorf("precompiles: decode scriptPubKey: %w", err)
		}
		out.Vout = append(out.Vout, RawVout{
			ValueSats:    int64(math.Round(vout.Value * 1e8)),
			ScriptPubKey: script,
		})
	}
	return out, nil
}
