package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/erigontech/brc20-prog/internal/bnum"
	"github.com/erigontech/brc20-prog/internal/engine"
	"github.com/erigontech/brc20-prog/internal/evmtypes"
	"github.com/erigontech/brc20-prog/internal/statestore"
)

func mapEngineErr(err error) *Error {
	switch {
	case errors.Is(err, engine.ErrReorgTooDeep):
		return &Error{Code: codeReorgTooDeep, Message: err.Error()}
	default:
		return errServer(err)
	}
}

type initialiseParams struct {
	BlockHeight uint64 `json:"blockHeight"`
	BlockHash   string `json:"blockHash"`
	Timestamp   uint64 `json:"timestamp"`
	GasLimit    uint64 `json:"gasLimit"`
}

func handleBrc20Initialise(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p []initialiseParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p) < 1 {
		return nil, errInvalidParams("brc20_initialise requires a params object")
	}
	hash, err := parseOptionalHash(p[0].BlockHash)
	if err != nil {
		return nil, errInvalidParams("invalid block hash: %s", err)
	}
	if err := s.engine.Initialise(p[0].BlockHeight, hash, p[0].Timestamp, p[0].GasLimit); err != nil {
		return nil, mapEngineErr(err)
	}
	return true, nil
}

type mineParams struct {
	BlockCount uint64 `json:"blockCount"`
	Timestamp  uint64 `json:"timestamp"`
	GasLimit   uint64 `json:"gasLimit"`
}

func handleBrc20Mine(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p []mineParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p) < 1 {
		return nil, errInvalidParams("brc20_mine requires a params object")
	}
	if err := s.engine.MineBlocks(p[0].BlockCount, p[0].Timestamp, p[0].GasLimit); err != nil {
		return nil, mapEngineErr(err)
	}
	return true, nil
}

type bridgeParams struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

func handleBrc20Deposit(s *Server, params json.RawMessage) (interface{}, *Error) {
	return handleBridge(s, params, true)
}

func handleBrc20Withdraw(s *Server, params json.RawMessage) (interface{}, *Error) {
	return handleBridge(s, params, false)
}

func handleBridge(s *Server, params json.RawMessage, credit bool) (interface{}, *Error) {
	var p []bridgeParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p) < 1 {
		return nil, errInvalidParams("requires an address and amount")
	}
	addr, err := parseAddress(p[0].Address)
	if err != nil {
		return nil, errInvalidParams("invalid address: %s", err)
	}
	amount, err := parseUint256(p[0].Amount)
	if err != nil {
		return nil, errInvalidParams("invalid amount: %s", err)
	}
	if err := s.engine.AdjustBalance(addr, amount, credit); err != nil {
		return nil, errServer(err)
	}
	return true, nil
}

type transactParams struct {
	Raw                string `json:"raw"`
	Timestamp          uint64 `json:"timestamp"`
	BlockHash          string `json:"blockHash"`
	TxIndex            uint32 `json:"txIndex"`
	InscriptionID      string `json:"inscriptionId"`
	InscriptionByteLen uint64 `json:"inscriptionByteLen"`
}

func handleBrc20Transact(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p []transactParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p) < 1 {
		return nil, errInvalidParams("brc20_transact requires a params object")
	}
	args := p[0]

	raw, err := decodeInscriptionPayload(args.Raw)
	if err != nil {
		return nil, errInvalidParams("%s", err)
	}
	blockHash, err := parseOptionalHash(args.BlockHash)
	if err != nil {
		return nil, errInvalidParams("invalid block hash: %s", err)
	}

	byteLen := args.InscriptionByteLen
	if byteLen == 0 {
		byteLen = uint64(len(raw))
	}

	receipts, err := s.engine.AddRawTxToBlock(raw, args.Timestamp, blockHash, args.TxIndex, args.InscriptionID, byteLen)
	if err != nil {
		return nil, mapEngineErr(err)
	}
	out := make([]interface{}, len(receipts))
	for i, rc := range receipts {
		out[i] = receiptResult(rc, 0, statestore.Tx{}, uint64(i))
	}
	return out, nil
}

type callParams struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Value         string `json:"value"`
	Data          string `json:"data"`
	Timestamp     uint64 `json:"timestamp"`
	BlockHash     string `json:"blockHash"`
	GasLimit      uint64 `json:"gasLimit"`
	InscriptionID string `json:"inscriptionId"`
}

func handleBrc20Call(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p []callParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p) < 1 {
		return nil, errInvalidParams("brc20_call requires a params object")
	}
	args := p[0]

	from, err := parseAddress(args.From)
	if err != nil {
		return nil, errInvalidParams("invalid from address: %s", err)
	}
	var to *evmtypes.Address
	if args.To != "" {
		a, err := parseAddress(args.To)
		if err != nil {
			return nil, errInvalidParams("invalid to address: %s", err)
		}
		to = &a
	}
	value, err := parseUint256(args.Value)
	if err != nil {
		return nil, errInvalidParams("invalid value: %s", err)
	}
	var data []byte
	if args.Data != "" {
		data, err = decodeInscriptionPayload(args.Data)
		if err != nil {
			return nil, errInvalidParams("%s", err)
		}
	}
	blockHash, err := parseOptionalHash(args.BlockHash)
	if err != nil {
		return nil, errInvalidParams("invalid block hash: %s", err)
	}

	gasLimit := args.GasLimit
	if gasLimit == 0 {
		gasLimit, err = gasLimitForPayload(uint64(len(data)), s.engine.Config().GasPerByte)
		if err != nil {
			return nil, errInvalidParams("%s", err)
		}
	}

	receipt, err := s.engine.AddTxToBlock(from, to, value, data, args.Timestamp, blockHash, gasLimit, args.InscriptionID)
	if err != nil {
		return nil, mapEngineErr(err)
	}
	t := statestore.Tx{From: from, To: to, Value: *value, Data: data}
	return receiptResult(receipt, 0, t, 0), nil
}

// gasLimitForPayload mirrors internal/engine's per-byte gas accounting for
// calls that default their gas limit from the payload size, rejecting a
// uint64 overflow rather than wrapping it into a tiny limit.
func gasLimitForPayload(byteLen, gasPerByte uint64) (uint64, error) {
	limit, overflow := bnum.SafeMul(byteLen, gasPerByte)
	if overflow {
		return 0, fmt.Errorf("gas limit for %d bytes at %d gas/byte overflows uint64", byteLen, gasPerByte)
	}
	return limit, nil
}

type finaliseParams struct {
	MineTimestampNanos uint64 `json:"mineTimestampNanos"`
	BlockTxCount       uint64 `json:"blockTxCount"`
}

func handleBrc20FinaliseBlock(s *Server, params json.RawMessage) (interface{}, *Error) {
	var args finaliseParams
	if len(params) > 0 {
		var p []finaliseParams
		if rpcErr := decodeParams(params, &p); rpcErr != nil {
			return nil, rpcErr
		}
		if len(p) > 0 {
			args = p[0]
		}
	}
	if err := s.engine.FinaliseBlock(args.MineTimestampNanos, args.BlockTxCount); err != nil {
		return nil, mapEngineErr(err)
	}
	return true, nil
}

func handleBrc20CommitToDatabase(s *Server, _ json.RawMessage) (interface{}, *Error) {
	if err := s.engine.CommitToDB(); err != nil {
		return nil, errServer(err)
	}
	return true, nil
}

type reorgParams struct {
	LatestValidBlockNumber uint64 `json:"latestValidBlockNumber"`
}

func handleBrc20Reorg(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p []reorgParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p) < 1 {
		return nil, errInvalidParams("brc20_reorg requires a latestValidBlockNumber")
	}
	if err := s.engine.Reorg(p[0].LatestValidBlockNumber); err != nil {
		return nil, mapEngineErr(err)
	}
	return true, nil
}

func handleBrc20ClearCaches(s *Server, _ json.RawMessage) (interface{}, *Error) {
	s.engine.ClearCaches()
	return true, nil
}

func handleBrc20GetInscriptionIdByTxHash(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p []string
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p) < 1 {
		return nil, errInvalidParams("brc20_getInscriptionIdByTxHash requires a transaction hash")
	}
	hash, err := parseHash(p[0])
	if err != nil {
		return nil, errInvalidParams("invalid transaction hash: %s", err)
	}
	id, ok, err := s.engine.GetInscriptionIDByTxHash(hash)
	if err != nil {
		return nil, errServer(err)
	}
	if !ok {
		return nil, nil
	}
	return id, nil
}

func handleBrc20GetInscriptionIdByContractAddress(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p []string
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p) < 1 {
		return nil, errInvalidParams("brc20_getInscriptionIdByContractAddress requires a contract address")
	}
	addr, err := parseAddress(p[0])
	if err != nil {
		return nil, errInvalidParams("invalid address: %s", err)
	}
	id, ok, err := s.engine.GetInscriptionIDByContractAddress(addr)
	if err != nil {
		return nil, errServer(err)
	}
	if !ok {
		return nil, nil
	}
	return id, nil
}

type balanceParams struct {
	Pkscript string `json:"pkscript"`
	Ticker   string `json:"ticker"`
}

func handleBrc20Balance(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p []balanceParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p) < 1 {
		return nil, errInvalidParams("brc20_balance requires a pkscript and ticker")
	}
	balance, err := s.engine.GetBRC20Balance(p[0].Pkscript, p[0].Ticker)
	if err != nil {
		return nil, errServer(err)
	}
	return balance.Hex(), nil
}

func handleBrc20GetTransactionReceiptById(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p []string
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p) < 1 {
		return nil, errInvalidParams("brc20_getTransactionReceiptById requires an inscription id")
	}
	rec, blockNumber, ok, err := s.engine.GetTxRecordByInscriptionID(p[0])
	if err != nil {
		return nil, errServer(err)
	}
	if !ok {
		return nil, nil
	}
	return receiptResult(rec.Receipt, blockNumber, rec.Tx, 0), nil
}
