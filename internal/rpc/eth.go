package rpc

import (
	"encoding/json"

	"github.com/holiman/uint256"

	"github.com/erigontech/brc20-prog/internal/evmtypes"
	"github.com/erigontech/brc20-prog/internal/statestore"
)

func handleChainID(s *Server, _ json.RawMessage) (interface{}, *Error) {
	return hexQuantity(s.engine.Config().ChainID), nil
}

func handleBlockNumber(s *Server, _ json.RawMessage) (interface{}, *Error) {
	n, err := s.engine.GetLatestBlockHeight()
	if err != nil {
		return nil, errServer(err)
	}
	return hexQuantity(n), nil
}

func handleGetBalance(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p []string
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p) < 1 {
		return nil, errInvalidParams("eth_getBalance requires an address")
	}
	addr, err := parseAddress(p[0])
	if err != nil {
		return nil, errInvalidParams("invalid address: %s", err)
	}
	balance, err := s.engine.GetBalance(addr)
	if err != nil {
		return nil, errServer(err)
	}
	return balance.Hex(), nil
}

func handleGetTransactionCount(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p []string
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p) < 1 {
		return nil, errInvalidParams("eth_getTransactionCount requires an address")
	}
	addr, err := parseAddress(p[0])
	if err != nil {
		return nil, errInvalidParams("invalid address: %s", err)
	}
	nonce, err := s.engine.GetTransactionCount(addr)
	if err != nil {
		return nil, errServer(err)
	}
	return hexQuantity(nonce), nil
}

func handleGetCode(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p []string
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p) < 1 {
		return nil, errInvalidParams("eth_getCode requires an address")
	}
	addr, err := parseAddress(p[0])
	if err != nil {
		return nil, errInvalidParams("invalid address: %s", err)
	}
	code, err := s.engine.GetCode(addr)
	if err != nil {
		return nil, errServer(err)
	}
	return hexBytes(code), nil
}

func handleGetStorageAt(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p []string
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p) < 2 {
		return nil, errInvalidParams("eth_getStorageAt requires an address and a slot")
	}
	addr, err := parseAddress(p[0])
	if err != nil {
		return nil, errInvalidParams("invalid address: %s", err)
	}
	slot, err := parseHash(p[1])
	if err != nil {
		return nil, errInvalidParams("invalid storage slot: %s", err)
	}
	value, err := s.engine.GetStorageAt(addr, slot)
	if err != nil {
		return nil, errServer(err)
	}
	return hexBytes(value[:]), nil
}

// callArgs mirrors the eth_call/eth_sendTransaction parameter object: from
// and value are optional (default zero), to is nil for a contract-creation
// dry run, data is the calldata.
type callArgs struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Gas      string `json:"gas"`
	GasPrice string `json:"gasPrice"`
	Value    string `json:"value"`
	Data     string `json:"data"`
}

func handleCall(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p []json.RawMessage
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p) < 1 {
		return nil, errInvalidParams("eth_call requires a call object")
	}
	var args callArgs
	if err := json.Unmarshal(p[0], &args); err != nil {
		return nil, errInvalidParams("invalid call object: %s", err)
	}

	var from evmtypes.Address
	if args.From != "" {
		var err error
		from, err = parseAddress(args.From)
		if err != nil {
			return nil, errInvalidParams("invalid from address: %s", err)
		}
	}
	var to *evmtypes.Address
	if args.To != "" {
		addr, err := parseAddress(args.To)
		if err != nil {
			return nil, errInvalidParams("invalid to address: %s", err)
		}
		to = &addr
	}
	value, err := parseUint256(args.Value)
	if err != nil {
		return nil, errInvalidParams("invalid value: %s", err)
	}
	data, err := parseBytes(args.Data)
	if err != nil {
		return nil, errInvalidParams("invalid data: %s", err)
	}
	gasLimit, err := parseQuantity(args.Gas)
	if err != nil {
		return nil, errInvalidParams("invalid gas: %s", err)
	}
	if gasLimit == 0 {
		gasLimit = 50_000_000
	}

	result, err := s.engine.ReadContract(from, to, value, data, gasLimit)
	if err != nil {
		return nil, errServer(err)
	}
	if result.Err != nil {
		return nil, &Error{Code: codeServerError, Message: "execution reverted: " + result.Err.Error()}
	}
	return hexBytes(result.ReturnData), nil
}

// handleEstimateGas runs the same dry-run call path as eth_call (SPEC_FULL
// §4.7.3 names this path as serving both methods) and reports the gas the
// call actually consumed instead of its return data.
func handleEstimateGas(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p []json.RawMessage
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p) < 1 {
		return nil, errInvalidParams("eth_estimateGas requires a call object")
	}
	var args callArgs
	if err := json.Unmarshal(p[0], &args); err != nil {
		return nil, errInvalidParams("invalid call object: %s", err)
	}

	var from evmtypes.Address
	if args.From != "" {
		var err error
		from, err = parseAddress(args.From)
		if err != nil {
			return nil, errInvalidParams("invalid from address: %s", err)
		}
	}
	var to *evmtypes.Address
	if args.To != "" {
		addr, err := parseAddress(args.To)
		if err != nil {
			return nil, errInvalidParams("invalid to address: %s", err)
		}
		to = &addr
	}
	value, err := parseUint256(args.Value)
	if err != nil {
		return nil, errInvalidParams("invalid value: %s", err)
	}
	data, err := parseBytes(args.Data)
	if err != nil {
		return nil, errInvalidParams("invalid data: %s", err)
	}
	gasLimit, err := parseQuantity(args.Gas)
	if err != nil {
		return nil, errInvalidParams("invalid gas: %s", err)
	}
	if gasLimit == 0 {
		gasLimit = 50_000_000
	}

	result, err := s.engine.ReadContract(from, to, value, data, gasLimit)
	if err != nil {
		return nil, errServer(err)
	}
	if result.Err != nil {
		return nil, &Error{Code: codeServerError, Message: "execution reverted: " + result.Err.Error()}
	}
	return hexQuantity(result.GasUsed), nil
}

func blockResult(b statestore.Block, txs statestore.BlockTxList, fullTx bool) map[string]interface{} {
	out := map[string]interface{}{
		"number":           hexQuantity(b.Number),
		"hash":             b.Hash.String(),
		"parentHash":       b.ParentHash.String(),
		"timestamp":        hexQuantity(b.Timestamp),
		"gasUsed":          hexQuantity(b.GasUsed),
		"gasLimit":         hexQuantity(b.GasLimit),
		"transactionsRoot": b.TransactionsRoot.String(),
		"logsBloom":        hexBytes(b.LogsBloom),
	}
	if fullTx {
		txList := make([]interface{}, len(txs))
		for i, rec := range txs {
			txList[i] = txResult(rec.Tx, b.Number, uint64(i))
		}
		out["transactions"] = txList
	} else {
		hashes := make([]string, len(b.TxHashes))
		for i, h := range b.TxHashes {
			hashes[i] = h.String()
		}
		out["transactions"] = hashes
	}
	return out
}

func txResult(t statestore.Tx, blockNumber, index uint64) map[string]interface{} {
	out := map[string]interface{}{
		"hash":             t.Hash.String(),
		"from":             t.From.String(),
		"nonce":            hexQuantity(t.Nonce),
		"gas":              hexQuantity(t.GasLimit),
		"value":            t.Value.Hex(),
		"input":            hexBytes(t.Data),
		"blockNumber":      hexQuantity(blockNumber),
		"transactionIndex": hexQuantity(index),
	}
	if t.To != nil {
		out["to"] = t.To.String()
	} else {
		out["to"] = nil
	}
	return out
}

func receiptResult(rc statestore.Receipt, blockNumber uint64, t statestore.Tx, index uint64) map[string]interface{} {
	logs := make([]interface{}, len(rc.Logs))
	for i, l := range rc.Logs {
		logs[i] = logResult(l, blockNumber, t.Hash, index, uint64(i))
	}
	out := map[string]interface{}{
		"transactionHash":   t.Hash.String(),
		"transactionIndex":  hexQuantity(index),
		"blockNumber":       hexQuantity(blockNumber),
		"from":              t.From.String(),
		"status":            hexQuantity(uint64(rc.Status)),
		"gasUsed":           hexQuantity(rc.GasUsed),
		"cumulativeGasUsed": hexQuantity(rc.CumulativeGasUsed),
		"logs":              logs,
		"logsBloom":         hexBytes(rc.LogsBloom),
	}
	if t.To != nil {
		out["to"] = t.To.String()
	} else {
		out["to"] = nil
	}
	if rc.ContractAddress != nil {
		out["contractAddress"] = rc.ContractAddress.String()
	} else {
		out["contractAddress"] = nil
	}
	return out
}

func logResult(l statestore.Log, blockNumber uint64, txHash evmtypes.Hash, txIndex, logIndex uint64) map[string]interface{} {
	topics := make([]string, len(l.Topics))
	for i, t := range l.Topics {
		topics[i] = t.String()
	}
	return map[string]interface{}{
		"address":          l.Address.String(),
		"topics":           topics,
		"data":             hexBytes(l.Data),
		"blockNumber":      hexQuantity(blockNumber),
		"transactionHash":  txHash.String(),
		"transactionIndex": hexQuantity(txIndex),
		"logIndex":         hexQuantity(logIndex),
	}
}

func handleGetBlockByNumber(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p []interface{}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p) < 1 {
		return nil, errInvalidParams("eth_getBlockByNumber requires a block number")
	}
	tag, _ := p[0].(string)
	var fullTx bool
	if len(p) > 1 {
		fullTx, _ = p[1].(bool)
	}

	latest, err := s.engine.GetLatestBlockHeight()
	if err != nil {
		return nil, errServer(err)
	}
	number, err := parseBlockNumber(tag, latest)
	if err != nil {
		return nil, errInvalidParams("%s", err)
	}

	block, txs, ok, err := s.engine.GetBlockByNumber(number, fullTx)
	if err != nil {
		return nil, errServer(err)
	}
	if !ok {
		return nil, nil
	}
	return blockResult(block, txs, fullTx), nil
}

func handleGetBlockByHash(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p []interface{}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p) < 1 {
		return nil, errInvalidParams("eth_getBlockByHash requires a block hash")
	}
	hashStr, _ := p[0].(string)
	var fullTx bool
	if len(p) > 1 {
		fullTx, _ = p[1].(bool)
	}

	hash, err := parseHash(hashStr)
	if err != nil {
		return nil, errInvalidParams("invalid block hash: %s", err)
	}
	block, txs, ok, err := s.engine.GetBlockByHash(hash, fullTx)
	if err != nil {
		return nil, errServer(err)
	}
	if !ok {
		return nil, nil
	}
	return blockResult(block, txs, fullTx), nil
}

func handleGetTransactionByHash(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p []string
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p) < 1 {
		return nil, errInvalidParams("eth_getTransactionByHash requires a transaction hash")
	}
	hash, err := parseHash(p[0])
	if err != nil {
		return nil, errInvalidParams("invalid transaction hash: %s", err)
	}
	t, blockNumber, ok, err := s.engine.GetTransactionByHash(hash)
	if err != nil {
		return nil, errServer(err)
	}
	if !ok {
		return nil, nil
	}
	return txResult(t, blockNumber, 0), nil
}

func handleGetTransactionReceipt(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p []string
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p) < 1 {
		return nil, errInvalidParams("eth_getTransactionReceipt requires a transaction hash")
	}
	hash, err := parseHash(p[0])
	if err != nil {
		return nil, errInvalidParams("invalid transaction hash: %s", err)
	}
	rc, blockNumber, ok, err := s.engine.GetTransactionReceipt(hash)
	if err != nil {
		return nil, errServer(err)
	}
	if !ok {
		return nil, nil
	}
	t, _, _, err := s.engine.GetTransactionByHash(hash)
	if err != nil {
		return nil, errServer(err)
	}
	return receiptResult(rc, blockNumber, t, 0), nil
}

type getLogsFilter struct {
	FromBlock string   `json:"fromBlock"`
	ToBlock   string   `json:"toBlock"`
	Address   string   `json:"address"`
	Topics    []string `json:"topics"`
}

func handleGetLogs(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p []getLogsFilter
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p) < 1 {
		return nil, errInvalidParams("eth_getLogs requires a filter object")
	}
	filter := p[0]

	latest, err := s.engine.GetLatestBlockHeight()
	if err != nil {
		return nil, errServer(err)
	}
	from, err := parseBlockNumber(filter.FromBlock, latest)
	if err != nil {
		return nil, errInvalidParams("%s", err)
	}
	to, err := parseBlockNumber(filter.ToBlock, latest)
	if err != nil {
		return nil, errInvalidParams("%s", err)
	}

	var address *evmtypes.Address
	if filter.Address != "" {
		a, err := parseAddress(filter.Address)
		if err != nil {
			return nil, errInvalidParams("invalid address: %s", err)
		}
		address = &a
	}
	topics := make([]evmtypes.Hash, len(filter.Topics))
	for i, t := range filter.Topics {
		h, err := parseHash(t)
		if err != nil {
			return nil, errInvalidParams("invalid topic: %s", err)
		}
		topics[i] = h
	}

	logs, err := s.engine.GetLogs(from, to, address, topics)
	if err != nil {
		return nil, errServer(err)
	}
	out := make([]interface{}, len(logs))
	for i, l := range logs {
		out[i] = logResult(l, 0, evmtypes.Hash{}, 0, uint64(i))
	}
	return out, nil
}

func handleTxpoolContent(s *Server, _ json.RawMessage) (interface{}, *Error) {
	content := s.engine.PendingPoolContent()
	pending := make(map[string]map[string]interface{}, len(content))
	for addr, byNonce := range content {
		nonces := make(map[string]interface{}, len(byNonce))
		for nonce, tx := range byNonce {
			value := uint256.NewInt(0)
			if tx.Value != nil {
				value = tx.Value
			}
			nonces[hexQuantity(nonce)] = txResult(statestore.Tx{
				Hash:     tx.Hash,
				From:     tx.From,
				To:       tx.To,
				Nonce:    tx.Nonce,
				GasLimit: tx.GasLimit,
				Value:    *value,
				Data:     tx.Data,
			}, 0, 0)
		}
		pending[addr.String()] = nonces
	}
	return map[string]interface{}{"pending": pending, "queued": map[string]interface{}{}}, nil
}
