package rpc

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/erigontech/erigon-lib/log/v3"

	"github.com/erigontech/brc20-prog/internal/engine"
)

// methods wires every supported method name to its handler. Built once at
// package init time; immutable thereafter.
var methods map[string]handler

func init() {
	methods = map[string]handler{
		"eth_chainId":                             handleChainID,
		"eth_blockNumber":                         handleBlockNumber,
		"eth_getBalance":                          handleGetBalance,
		"eth_getTransactionCount":                 handleGetTransactionCount,
		"eth_getCode":                              handleGetCode,
		"eth_getStorageAt":                         handleGetStorageAt,
		"eth_call":                                handleCall,
		"eth_estimateGas":                         handleEstimateGas,
		"eth_getBlockByNumber":                     handleGetBlockByNumber,
		"eth_getBlockByHash":                       handleGetBlockByHash,
		"eth_getTransactionByHash":                 handleGetTransactionByHash,
		"eth_getTransactionReceipt":                handleGetTransactionReceipt,
		"eth_getLogs":                              handleGetLogs,
		"txpool_content":                           handleTxpoolContent,
		"brc20_initialise":                         handleBrc20Initialise,
		"brc20_mine":                               handleBrc20Mine,
		"brc20_deposit":                            handleBrc20Deposit,
		"brc20_withdraw":                           handleBrc20Withdraw,
		"brc20_transact":                           handleBrc20Transact,
		"brc20_call":                               handleBrc20Call,
		"brc20_finaliseBlock":                      handleBrc20FinaliseBlock,
		"brc20_commitToDatabase":                   handleBrc20CommitToDatabase,
		"brc20_reorg":                              handleBrc20Reorg,
		"brc20_clearCaches":                        handleBrc20ClearCaches,
		"brc20_balance":                            handleBrc20Balance,
		"brc20_getTransactionReceiptById":          handleBrc20GetTransactionReceiptById,
		"brc20_getInscriptionIdByTxHash":           handleBrc20GetInscriptionIdByTxHash,
		"brc20_getInscriptionIdByContractAddress":  handleBrc20GetInscriptionIdByContractAddress,
	}
}

// Server serves the JSON-RPC surface over HTTP via go-chi, optionally
// behind a bearer-JWT auth middleware (SPEC_FULL §6.1).
type Server struct {
	engine *engine.BRC20ProgEngine
	log    log.Logger
	router chi.Router
}

// New builds a Server over eng. jwtSecret, if non-nil, requires every
// request to carry a valid HS256 bearer token signed with it.
func New(eng *engine.BRC20ProgEngine, logger log.Logger, jwtSecret []byte) *Server {
	if logger == nil {
		logger = log.Root()
	}
	s := &Server{engine: eng, log: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))
	if jwtSecret != nil {
		r.Use(jwtAuth(jwtSecret))
	}
	r.Post("/", s.handleHTTP)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		writeError(w, nil, &Error{Code: codeParseError, Message: "reading request body"})
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, &Error{Code: codeParseError, Message: "invalid JSON"})
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		writeError(w, req.ID, &Error{Code: codeInvalidRequest, Message: "unsupported jsonrpc version"})
		return
	}

	h, ok := methods[req.Method]
	if !ok {
		writeError(w, req.ID, &Error{Code: codeMethodNotFound, Message: "unknown method " + req.Method})
		return
	}

	result, rpcErr := h(s, req.Params)
	if rpcErr != nil {
		s.log.Debug("rpc call failed", "method", req.Method, "err", rpcErr.Message)
		writeError(w, req.ID, rpcErr)
		return
	}
	writeResult(w, req.ID, result)
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: id, Result: result})
}

func writeError(w http.ResponseWriter, id json.RawMessage, rpcErr *Error) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: id, Error: rpcErr})
}
