// Package api exposes the ledger and the timelock index over HTTP.
package api

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-timelock/pkg/data/timelock"
	"github.com/code-payments/code-timelock/pkg/database/query"
	"github.com/code-payments/code-timelock/pkg/ledger"
	"github.com/code-payments/code-timelock/pkg/pointer"
	"github.com/code-payments/code-timelock/pkg/solana"
	timelock_program "github.com/code-payments/code-timelock/pkg/solana/timelock"
	"github.com/code-payments/code-timelock/pkg/solana/token"
)

const (
	metricsPath = "/metrics"

	defaultPageSize = 100
	maxPageSize     = 1000
)

// maxSubmitRequestSize bounds a submit request body: the base64 encoding of
// the largest wire transaction plus room for the JSON around it.
var maxSubmitRequestSize = int64(base64.StdEncoding.EncodedLen(solana.MaxTransactionSize)) + 1024

// Ledger is the view of the ledger served by the API.
type Ledger interface {
	Execute(ctx context.Context, txn solana.Transaction) (uint64, error)
	GetAccount(ctx context.Context, address ed25519.PublicKey) (*ledger.Account, error)
}

type Server struct {
	log     *logrus.Entry
	ledger  Ledger
	tokens  *token.Client
	records timelock.Store
	metrics *collectors
}

func NewServer(ledger Ledger, records timelock.Store) *Server {
	return &Server{
		log:     logrus.StandardLogger().WithField("type", "api/server"),
		ledger:  ledger,
		tokens:  token.NewClient(ledger, nil),
		records: records,
		metrics: newCollectors(),
	}
}

// Router returns the HTTP routes of the server.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.metrics.instrument)

	r.Handle(metricsPath, s.metrics.handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/transactions", s.handleSubmitTransaction).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods(http.MethodGet)
	v1.HandleFunc("/token-accounts/{address}", s.handleGetTokenAccount).Methods(http.MethodGet)
	v1.HandleFunc("/timelocks", s.handleListTimelocks).Methods(http.MethodGet)
	v1.HandleFunc("/timelocks/{receiver}", s.handleGetTimelock).Methods(http.MethodGet)

	return r
}

type submitTransactionRequest struct {
	// Transaction is the base64 encoded wire transaction.
	Transaction string `json:"transaction"`
}

type submitTransactionResponse struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot,omitempty"`
	Error     string          `json:"error,omitempty"`
	Err       json.RawMessage `json:"err,omitempty"`
	Code      *uint32         `json:"code,omitempty"`
}

func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithField("method", "handleSubmitTransaction")

	var req submitTransactionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitRequestSize)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}

		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.Transaction)
	if err != nil {
		writeError(w, http.StatusBadRequest, "transaction is not base64 encoded")
		return
	}
	if len(raw) > solana.MaxTransactionSize {
		writeError(w, http.StatusBadRequest, "transaction too large")
		return
	}

	var txn solana.Transaction
	if err := txn.Unmarshal(raw); err != nil || len(txn.Signatures) == 0 {
		writeError(w, http.StatusBadRequest, "invalid transaction")
		return
	}

	resp := &submitTransactionResponse{
		Signature: base58.Encode(txn.Signature()),
	}
	log = log.WithField("signature", resp.Signature)

	slot, err := s.ledger.Execute(r.Context(), txn)
	if err == nil {
		s.metrics.recordTransaction("committed")
		resp.Slot = slot
		writeJSON(w, http.StatusOK, resp)
		return
	}

	var txErr *solana.TransactionError
	switch {
	case errors.As(err, &txErr):
		s.metrics.recordTransaction(string(txErr.ErrorKey()))
		resp.Error = txErr.Error()
		resp.Err = json.RawMessage(txErr.JSONString())
		if ixErr := txErr.InstructionError(); ixErr != nil {
			if custom := ixErr.CustomError(); custom != nil {
				resp.Code = pointer.Uint32(custom.ProgramErrorCode())
			}
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case err == ledger.ErrRateLimited:
		s.metrics.recordTransaction("rate_limited")
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		s.metrics.recordTransaction("failed")
		log.WithError(err).Warn("failure executing transaction")
		writeError(w, http.StatusInternalServerError, "failure executing transaction")
	}
}

type accountResponse struct {
	Address  string `json:"address"`
	Owner    string `json:"owner"`
	Lamports uint64 `json:"lamports"`
	Data     string `json:"data"`
	Slot     uint64 `json:"slot"`
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	address, ok := decodeKey(w, mux.Vars(r)["address"])
	if !ok {
		return
	}

	account, err := s.ledger.GetAccount(r.Context(), address)
	if err == ledger.ErrAccountNotFound {
		writeError(w, http.StatusNotFound, "account not found")
		return
	} else if err != nil {
		s.log.WithError(err).Warn("failure getting account")
		writeError(w, http.StatusInternalServerError, "failure getting account")
		return
	}

	writeJSON(w, http.StatusOK, &accountResponse{
		Address:  base58.Encode(account.Address),
		Owner:    base58.Encode(account.Owner),
		Lamports: account.Lamports,
		Data:     base64.StdEncoding.EncodeToString(account.Data),
		Slot:     account.Slot,
	})
}

type tokenAccountResponse struct {
	Address        string `json:"address"`
	Mint           string `json:"mint"`
	Owner          string `json:"owner"`
	Amount         uint64 `json:"amount"`
	CloseAuthority string `json:"close_authority,omitempty"`
}

func (s *Server) handleGetTokenAccount(w http.ResponseWriter, r *http.Request) {
	address, ok := decodeKey(w, mux.Vars(r)["address"])
	if !ok {
		return
	}

	account, err := s.tokens.GetAccount(r.Context(), address)
	switch err {
	case nil:
	case token.ErrAccountNotFound, token.ErrInvalidTokenAccount:
		writeError(w, http.StatusNotFound, "token account not found")
		return
	default:
		s.log.WithError(err).Warn("failure getting token account")
		writeError(w, http.StatusInternalServerError, "failure getting token account")
		return
	}

	resp := &tokenAccountResponse{
		Address: base58.Encode(address),
		Mint:    base58.Encode(account.Mint),
		Owner:   base58.Encode(account.Owner),
		Amount:  account.Amount,
	}
	if len(account.CloseAuthority) > 0 {
		resp.CloseAuthority = base58.Encode(account.CloseAuthority)
	}
	writeJSON(w, http.StatusOK, resp)
}

type timelockResponse struct {
	Address     string `json:"address"`
	Bump        uint8  `json:"bump"`
	Receiver    string `json:"receiver"`
	Initializer string `json:"initializer"`
	Custody     string `json:"custody"`
	Destination string `json:"destination"`
	UnlockTime  int64  `json:"unlock_time"`
	Amount      uint64 `json:"amount"`
	State       string `json:"state"`
	Slot        *uint64 `json:"slot,omitempty"`
	Cursor      *string `json:"cursor,omitempty"`
}

// handleGetTimelock serves the committed timelock of a receiver, falling back
// to the index for receivers whose timelock has since been unlocked.
func (s *Server) handleGetTimelock(w http.ResponseWriter, r *http.Request) {
	receiver, ok := decodeKey(w, mux.Vars(r)["receiver"])
	if !ok {
		return
	}

	state, address, err := timelock_program.GetTimelock(r.Context(), s.ledger, receiver)
	switch err {
	case nil:
		writeJSON(w, http.StatusOK, &timelockResponse{
			Address:     base58.Encode(address),
			Bump:        state.Bump,
			Receiver:    base58.Encode(state.Receiver),
			Initializer: base58.Encode(state.Initializer),
			Custody:     base58.Encode(state.Custody),
			Destination: base58.Encode(state.Destination),
			UnlockTime:  state.UnlockTime,
			Amount:      state.Amount,
			State:       timelock.StateLocked.String(),
		})
		return
	case timelock_program.ErrTimelockAccountNotFound:
	default:
		s.log.WithError(err).Warn("failure getting timelock")
		writeError(w, http.StatusInternalServerError, "failure getting timelock")
		return
	}

	record, err := s.records.GetByReceiver(r.Context(), base58.Encode(receiver))
	if err == timelock.ErrTimelockNotFound {
		writeError(w, http.StatusNotFound, "timelock not found")
		return
	} else if err != nil {
		s.log.WithError(err).Warn("failure getting timelock record")
		writeError(w, http.StatusInternalServerError, "failure getting timelock")
		return
	}

	writeJSON(w, http.StatusOK, toTimelockResponse(record))
}

type listTimelocksResponse struct {
	Timelocks []*timelockResponse `json:"timelocks"`
}

func (s *Server) handleListTimelocks(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	state := timelock.StateLocked
	switch params.Get("state") {
	case "", timelock.StateLocked.String():
	case timelock.StateClosed.String():
		state = timelock.StateClosed
	default:
		writeError(w, http.StatusBadRequest, "invalid state")
		return
	}

	limit := uint64(defaultPageSize)
	if value := params.Get("limit"); value != "" {
		parsed, err := strconv.ParseUint(value, 10, 64)
		if err != nil || parsed == 0 || parsed > maxPageSize {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	direction := query.Ascending
	if value := params.Get("order"); value != "" {
		parsed, err := query.ToOrdering(value)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid order")
			return
		}
		direction = parsed
	}

	cursor := query.EmptyCursor
	if value := params.Get("cursor"); value != "" {
		parsed, err := query.ParseCursor(value)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		cursor = parsed
	}

	resp := &listTimelocksResponse{
		Timelocks: make([]*timelockResponse, 0),
	}

	records, err := s.records.GetAllByState(r.Context(), state, cursor, limit, direction)
	if err == timelock.ErrTimelockNotFound {
		writeJSON(w, http.StatusOK, resp)
		return
	} else if err != nil {
		s.log.WithError(err).Warn("failure getting timelock records")
		writeError(w, http.StatusInternalServerError, "failure getting timelocks")
		return
	}

	for _, record := range records {
		resp.Timelocks = append(resp.Timelocks, toTimelockResponse(record))
	}
	writeJSON(w, http.StatusOK, resp)
}

func toTimelockResponse(record *timelock.Record) *timelockResponse {
	return &timelockResponse{
		Address:     record.Address,
		Bump:        record.Bump,
		Receiver:    record.Receiver,
		Initializer: record.Initializer,
		Custody:     record.Custody,
		Destination: record.Destination,
		UnlockTime:  record.UnlockAt,
		Amount:      record.Amount,
		State:       record.State.String(),
		Slot:        pointer.Uint64IfValid(record.Slot > 0, record.Slot),
		Cursor:      pointer.String(query.ToCursor(record.Id).ToBase58()),
	}
}

func decodeKey(w http.ResponseWriter, value string) (ed25519.PublicKey, bool) {
	decoded, err := base58.Decode(value)
	if err != nil || len(decoded) != ed25519.PublicKeySize {
		writeError(w, http.StatusBadRequest, "invalid public key")
		return nil, false
	}
	return decoded, true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, &errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
