// Package rpc implements the node's read/write HTTP adapter (§5.10): a
// chi-routed surface over core/client.Client. It performs no business
// validation of its own — every write goes through Client straight into
// the chain's own admission and processor pipeline.
package rpc

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"opschain/core/client"
	"opschain/core/types"
	"opschain/crypto"
	"opschain/gateway/middleware"
	"opschain/observability/logging"
	"opschain/observability/metrics"
)

// requestIDHeader carries a correlation id through logs and responses. It is
// never consensus-relevant; purely an operational trace aid.
const requestIDHeader = "X-Request-Id"

// requestLogging stamps every response with a correlation id and, when a
// Logger is configured, emits one log line per request tagged with that id
// and the chain height the node was serving at request time (via
// observability/logging.RequestLogger), so an operator can line up an RPC
// call with the block it was answered from.
func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		if s.cfg.Logger != nil {
			var height uint64
			if latest := s.cfg.Client.GetLatestBlock(); latest != nil {
				height = latest.Header.Index + 1
			}
			logging.RequestLogger(s.cfg.Logger, id, height).Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
		}
		next.ServeHTTP(w, r)
	})
}

// Config wires the adapter's dependencies and policy knobs together.
type Config struct {
	Client        *client.Client
	Metrics       *metrics.Metrics
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Logger        *slog.Logger
	Clock         func() int64
}

// Server is the chi handler mounting every §5.10 route.
type Server struct {
	cfg Config
}

// NewRouter builds the full chi.Router for the node's HTTP adapter.
func NewRouter(cfg Config) http.Handler {
	s := &Server{cfg: cfg}
	r := chi.NewRouter()
	r.Use(s.requestLogging)

	if s.cfg.Metrics != nil {
		r.Use(s.cfg.Metrics.Middleware("root"))
	}

	r.Get("/v1/blocks", s.handleListBlocks)
	r.Get("/v1/blocks/{index}", s.handleGetBlock)
	r.Get("/v1/blocks/{index}/proof/{txIndex}", s.handleMerkleProof)
	r.Get("/v1/transactions/{hash}", s.handleGetTransaction)
	r.Get("/v1/mempool", s.handleMempool)
	r.Get("/v1/sop", s.handleSOP)
	r.Get("/v1/sop/events", s.handleSOPEvents)
	r.Get("/v1/accounts/{address}", s.handleGetAccount)
	r.Get("/v1/treasury", s.handleTreasury)
	r.Get("/v1/governance/{proposalId}/tally", s.handleGovernanceTally)

	r.Group(func(sr chi.Router) {
		// Authenticator runs first so the rate limiter can key its bucket
		// off the bound signer (crypto.Address) rather than only source IP.
		if s.cfg.Authenticator != nil {
			sr.Use(s.cfg.Authenticator.Middleware("submit"))
		}
		if s.cfg.RateLimiter != nil {
			sr.Use(s.cfg.RateLimiter.Middleware("submit"))
		}
		sr.Post("/v1/transactions", s.handleSubmitTransaction)
	})

	r.Group(func(sr chi.Router) {
		if s.cfg.Authenticator != nil {
			sr.Use(s.cfg.Authenticator.Middleware("operator"))
		}
		sr.Post("/v1/mine", s.handleMine)
	})

	if s.cfg.Metrics != nil {
		r.Handle("/metrics", s.cfg.Metrics.Handler())
	}

	return r
}

func (s *Server) now() int64 {
	if s.cfg.Clock != nil {
		return s.cfg.Clock()
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func parseIndex(r *http.Request, key string) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, key), 10, 64)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	offset := uint64(queryInt(r, "offset", 0))
	limit := queryInt(r, "limit", 20)
	if limit <= 0 {
		limit = 20
	}

	latest := s.cfg.Client.GetLatestBlock()
	height := latest.Header.Index + 1

	var blocks []*types.Block
	for i := offset; i < height && len(blocks) < limit; i++ {
		if b := s.cfg.Client.GetBlock(i); b != nil {
			blocks = append(blocks, b)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"blocks": blocks, "height": height})
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	index, err := parseIndex(r, "index")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	block := s.cfg.Client.GetBlock(index)
	if block == nil {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, block)
}

func (s *Server) handleMerkleProof(w http.ResponseWriter, r *http.Request) {
	index, err := parseIndex(r, "index")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	txIndex, err := strconv.Atoi(chi.URLParam(r, "txIndex"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	block := s.cfg.Client.GetBlock(index)
	if block == nil {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	proof, err := types.BuildMerkleProof(block.Transactions, txIndex)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"proof": proof,
		"root":  block.Header.MerkleRoot,
	})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	latest := s.cfg.Client.GetLatestBlock()
	for i := uint64(0); i <= latest.Header.Index; i++ {
		block := s.cfg.Client.GetBlock(i)
		if block == nil {
			continue
		}
		for _, tx := range block.Transactions {
			digest, err := tx.Digest()
			if err != nil {
				continue
			}
			if digest.String() == hash {
				writeJSON(w, http.StatusOK, map[string]interface{}{
					"transaction":  tx,
					"block_index":  block.Header.Index,
					"block_hash":   block.Hash(),
				})
				return
			}
		}
	}
	writeError(w, http.StatusNotFound, errNotFound)
}

func (s *Server) handleMempool(w http.ResponseWriter, r *http.Request) {
	pending := s.cfg.Client.GetPendingTransactions()
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": pending})
}

func (s *Server) handleSOP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":              s.cfg.Client.SOPState(),
		"current_proposal_id": s.cfg.Client.SOPCurrentProposalID(),
		"incident_data":      s.cfg.Client.SOPIncidentData(),
	})
}

func (s *Server) handleSOPEvents(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	limit := queryInt(r, "limit", 50)
	events, err := s.cfg.Client.GetEvents("opssop", name, limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	acc, err := s.cfg.Client.GetAccount(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleTreasury(w http.ResponseWriter, r *http.Request) {
	addr := s.cfg.Client.Treasury()
	acc, err := s.cfg.Client.GetAccount(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleGovernanceTally(w http.ResponseWriter, r *http.Request) {
	proposalID := chi.URLParam(r, "proposalId")
	proposal, err := s.cfg.Client.CheckConsensus(proposalID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

type submitRequest struct {
	Type      types.TxType           `json:"tx_type"`
	Sender    string                 `json:"sender"`
	Nonce     uint64                 `json:"nonce"`
	GasPrice  uint64                 `json:"gas_price"`
	GasLimit  uint64                 `json:"gas_limit"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
	Signature string                 `json:"signature"`
}

func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sender, err := crypto.ParseAddress(req.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sig, err := decodeSignature(req.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tx := &types.Transaction{
		Type:      req.Type,
		Sender:    sender,
		Nonce:     req.Nonce,
		GasPrice:  req.GasPrice,
		GasLimit:  req.GasLimit,
		Data:      req.Data,
		Timestamp: req.Timestamp,
		Signature: sig,
	}
	if err := s.cfg.Client.SendTransaction(tx); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	digest, err := tx.Digest()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"tx_hash": digest})
}

func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	allowEmpty := r.URL.Query().Get("allow_empty") == "true"
	block, err := s.cfg.Client.Mine(allowEmpty, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SetChainHeight(s.cfg.Client.GetLatestBlock().Header.Index + 1)
		s.cfg.Metrics.SetMempoolDepth(len(s.cfg.Client.GetPendingTransactions()))
	}
	writeJSON(w, http.StatusOK, block)
}
