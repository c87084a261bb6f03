package rpc

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/brc20-prog/internal/engine"
	"github.com/erigontech/brc20-prog/internal/evmtypes"
	"github.com/erigontech/brc20-prog/internal/kvschema"
	"github.com/erigontech/brc20-prog/internal/precompiles"
	"github.com/erigontech/brc20-prog/internal/storage"
)

func openTestServer(t *testing.T) (*Server, *engine.BRC20ProgEngine) {
	t.Helper()
	env, err := storage.OpenWithTables(t.TempDir(), nil, kvschema.AllTables())
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	eng := engine.New(env, engine.Config{ChainID: 331337, MaxReorgHistorySize: 10, GasPerByte: 1}, precompiles.Config{})
	return New(eng, nil, nil), eng
}

func call(t *testing.T, s *Server, method string, params interface{}) Response {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	req := Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: method, Params: raw}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	httpReq := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	s.ServeHTTP(rec, httpReq)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestChainIDAndBlockNumber(t *testing.T) {
	s, _ := openTestServer(t)

	resp := call(t, s, "eth_chainId", []interface{}{})
	require.Nil(t, resp.Error)
	require.Equal(t, "0x50e49", resp.Result)

	resp = call(t, s, "eth_blockNumber", []interface{}{})
	require.Nil(t, resp.Error)
	require.Equal(t, "0x0", resp.Result)
}

func TestUnknownMethod(t *testing.T) {
	s, _ := openTestServer(t)
	resp := call(t, s, "eth_doesNotExist", []interface{}{})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestInitialiseMineAndBlockLookup(t *testing.T) {
	s, _ := openTestServer(t)

	resp := call(t, s, "brc20_mine", []map[string]interface{}{{
		"blockCount": 3,
		"timestamp":  42,
		"gasLimit":   30_000_000,
	}})
	require.Nil(t, resp.Error)

	resp = call(t, s, "eth_blockNumber", []interface{}{})
	require.Nil(t, resp.Error)
	require.Equal(t, "0x3", resp.Result)

	resp = call(t, s, "eth_getBlockByNumber", []interface{}{"0x2", false})
	require.Nil(t, resp.Error)
	block, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "0x2", block["number"])
}

func TestBrc20CallDeploysContract(t *testing.T) {
	s, _ := openTestServer(t)

	deployCode := []byte{0x60, 0x2a, 0x60, 0x00, 0x52, 0x60, 0x20, 0x60, 0x00, 0xf3}
	data := base64Payload(deployCode)

	resp := call(t, s, "brc20_call", []map[string]interface{}{{
		"from":      evmtypes.Address{1}.String(),
		"data":      data,
		"timestamp": 42,
		"gasLimit":  1_000_000,
	}})
	require.Nil(t, resp.Error)
	receipt, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "0x1", receipt["status"])
	require.NotNil(t, receipt["contractAddress"])

	resp = call(t, s, "brc20_finaliseBlock", []map[string]interface{}{{"mineTimestampNanos": 1000, "blockTxCount": 1}})
	require.Nil(t, resp.Error)

	resp = call(t, s, "eth_getTransactionCount", []string{evmtypes.Address{1}.String()})
	require.Nil(t, resp.Error)
	require.Equal(t, "0x1", resp.Result)
}

func TestDepositAndWithdraw(t *testing.T) {
	s, _ := openTestServer(t)
	who := evmtypes.Address{9}.String()

	resp := call(t, s, "brc20_deposit", []map[string]interface{}{{"address": who, "amount": "0x64"}})
	require.Nil(t, resp.Error)

	resp = call(t, s, "eth_getBalance", []string{who})
	require.Nil(t, resp.Error)
	require.Equal(t, "0x64", resp.Result)

	resp = call(t, s, "brc20_withdraw", []map[string]interface{}{{"address": who, "amount": "0x64"}})
	require.Nil(t, resp.Error)

	resp = call(t, s, "eth_getBalance", []string{who})
	require.Nil(t, resp.Error)
	require.Equal(t, "0x0", resp.Result)

	resp = call(t, s, "brc20_withdraw", []map[string]interface{}{{"address": who, "amount": "0x1"}})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeServerError, resp.Error.Code)
}

func TestEstimateGasMatchesCallGasUsed(t *testing.T) {
	s, _ := openTestServer(t)

	deployCode := []byte{0x60, 0x2a, 0x60, 0x00, 0x52, 0x60, 0x20, 0x60, 0x00, 0xf3}
	data := hexBytes(deployCode)

	resp := call(t, s, "eth_estimateGas", []map[string]interface{}{{
		"from": evmtypes.Address{1}.String(),
		"data": data,
	}})
	require.Nil(t, resp.Error)
	gasUsed, ok := resp.Result.(string)
	require.True(t, ok)
	require.NotEqual(t, "0x0", gasUsed)
}

func TestClearCaches(t *testing.T) {
	s, _ := openTestServer(t)
	resp := call(t, s, "brc20_clearCaches", []interface{}{})
	require.Nil(t, resp.Error)
	require.Equal(t, true, resp.Result)
}

func TestGetInscriptionIdByTxHashAndContractAddress(t *testing.T) {
	s, _ := openTestServer(t)

	deployCode := []byte{0x60, 0x2a, 0x60, 0x00, 0x52, 0x60, 0x20, 0x60, 0x00, 0xf3}
	data := base64Payload(deployCode)
	inscriptionID := "0000000000000000000000000000000000000000000000000000000000000001i0"

	resp := call(t, s, "brc20_call", []map[string]interface{}{{
		"from":          evmtypes.Address{1}.String(),
		"data":          data,
		"timestamp":     42,
		"gasLimit":      1_000_000,
		"inscriptionId": inscriptionID,
	}})
	require.Nil(t, resp.Error)
	receipt, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	txHash := receipt["transactionHash"].(string)
	contractAddr := receipt["contractAddress"].(string)

	resp = call(t, s, "brc20_getInscriptionIdByTxHash", []string{txHash})
	require.Nil(t, resp.Error)
	require.Equal(t, inscriptionID, resp.Result)

	resp = call(t, s, "brc20_getInscriptionIdByContractAddress", []string{contractAddr})
	require.Nil(t, resp.Error)
	require.Equal(t, inscriptionID, resp.Result)

	resp = call(t, s, "brc20_getInscriptionIdByTxHash", []string{evmtypes.Hash{9}.String()})
	require.Nil(t, resp.Error)
	require.Nil(t, resp.Result)
}

type fakeBalanceIndexer struct{ balance *uint256.Int }

func (f fakeBalanceIndexer) GetBalance(pkscript, ticker string) (*uint256.Int, error) {
	return f.balance, nil
}

func TestBrc20Balance(t *testing.T) {
	env, err := storage.OpenWithTables(t.TempDir(), nil, kvschema.AllTables())
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	pcfg := precompiles.Config{BalanceIndexer: fakeBalanceIndexer{balance: uint256.NewInt(1234)}}
	eng := engine.New(env, engine.Config{ChainID: 331337, MaxReorgHistorySize: 10, GasPerByte: 1}, pcfg)
	s := New(eng, nil, nil)

	resp := call(t, s, "brc20_balance", []map[string]interface{}{{"pkscript": "76a914...", "ticker": "ordi"}})
	require.Nil(t, resp.Error)
	require.Equal(t, "0x4d2", resp.Result)
}

func TestBrc20BalanceUnconfiguredIndexerErrors(t *testing.T) {
	s, _ := openTestServer(t)
	resp := call(t, s, "brc20_balance", []map[string]interface{}{{"pkscript": "76a914...", "ticker": "ordi"}})
	require.NotNil(t, resp.Error)
}

func TestReorgTooDeepMapsToDedicatedCode(t *testing.T) {
	s, _ := openTestServer(t)

	for i := 0; i < 12; i++ {
		resp := call(t, s, "brc20_mine", []map[string]interface{}{{"blockCount": 1, "timestamp": 42, "gasLimit": 30_000_000}})
		require.Nil(t, resp.Error)
	}

	resp := call(t, s, "brc20_reorg", []map[string]interface{}{{"latestValidBlockNumber": 0}})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeReorgTooDeep, resp.Error.Code)
}

func TestMissingParamsIsInvalidParams(t *testing.T) {
	s, _ := openTestServer(t)
	resp := call(t, s, "eth_getBalance", []interface{}{})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func base64Payload(raw []byte) string {
	return base64.StdEncoding.EncodeToString(append([]byte{compressionNone}, raw...))
}
