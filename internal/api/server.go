// Package api exposes the vesting engine and token service over HTTP.
// State-changing routes take a signed auth.Request envelope.
package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"presale-vesting/internal/auth"
	"presale-vesting/internal/observability"
	"presale-vesting/internal/pda"
	"presale-vesting/internal/storage"
	"presale-vesting/internal/token"
	"presale-vesting/internal/vesting"
)

const (
	maxBodyBytes      = 1 << 20
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

// Options configures Server.
type Options struct {
	Engine *vesting.Engine
	Tokens *token.Service
	Events storage.EventStore // optional, serves the event history route
	Stream http.Handler       // optional, serves /v1/events
	Now    func() time.Time
	Window time.Duration     // signature freshness window, defaults to auth.DefaultWindow
	Replay *auth.ReplayGuard // defaults to a guard sized for Window
	Logger *log.Logger

	// StoreName and ClientCount feed /status.
	StoreName   string
	ClientCount func() int
}

// Server is the HTTP front end.
type Server struct {
	engine      *vesting.Engine
	tokens      *token.Service
	events      storage.EventStore
	stream      http.Handler
	now         func() time.Time
	window      time.Duration
	replay      *auth.ReplayGuard
	logger      *log.Logger
	storeName   string
	clientCount func() int
	started     time.Time
	mux         *http.ServeMux
}

// NewServer creates a Server and registers its routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	window := opts.Window
	if window <= 0 {
		window = auth.DefaultWindow
	}
	replay := opts.Replay
	if replay == nil {
		replay = auth.NewReplayGuard(window)
	}

	s := &Server{
		engine:      opts.Engine,
		tokens:      opts.Tokens,
		events:      opts.Events,
		stream:      opts.Stream,
		now:         now,
		window:      window,
		replay:      replay,
		logger:      logger,
		storeName:   opts.StoreName,
		clientCount: opts.ClientCount,
		started:     now(),
		mux:         http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	s.mux.Handle("GET /metrics", observability.Handler())
	s.mux.HandleFunc("GET /status", s.handleStatus)

	s.mux.HandleFunc("POST /v1/presales", s.handleInitialize)
	s.mux.HandleFunc("GET /v1/presales/{title}", s.handleGetPresale)
	s.mux.HandleFunc("GET /v1/presales/{title}/addresses", s.handleAddresses)
	s.mux.HandleFunc("GET /v1/presales/{title}/solvency", s.handleSolvency)
	s.mux.HandleFunc("GET /v1/presales/{title}/events", s.handleEventHistory)
	s.mux.HandleFunc("POST /v1/presales/{title}/participants", s.handleInitParticipant)
	s.mux.HandleFunc("GET /v1/presales/{title}/participants/{owner}", s.handleGetParticipant)
	s.mux.HandleFunc("POST /v1/presales/{title}/purchase", s.handlePurchase)
	s.mux.HandleFunc("POST /v1/presales/{title}/claim", s.handleClaim)
	s.mux.HandleFunc("POST /v1/presales/{title}/withdraw/payment", s.handleWithdraw(OpWithdrawPayment))
	s.mux.HandleFunc("POST /v1/presales/{title}/withdraw/sale", s.handleWithdraw(OpWithdrawSale))
	s.mux.HandleFunc("POST /v1/presales/{title}/locks", s.handleSetLock)

	s.mux.HandleFunc("POST /v1/mints", s.handleCreateMint)
	s.mux.HandleFunc("POST /v1/mints/import", s.handleImportMint)
	s.mux.HandleFunc("GET /v1/mints/{mint}", s.handleGetMint)
	s.mux.HandleFunc("POST /v1/mints/{mint}/mint-to", s.handleMintTo)
	s.mux.HandleFunc("POST /v1/transfer", s.handleTransfer)
	s.mux.HandleFunc("GET /v1/accounts/{owner}/{mint}", s.handleGetAccount)

	if s.stream != nil {
		s.mux.Handle("GET /v1/events", s.stream)
	}
}

// ServeHTTP implements http.Handler and records per-route request metrics.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)

	route := r.Pattern
	if route == "" {
		route = "unmatched"
	}
	observability.RecordHTTPRequest(route, rec.status)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController and the websocket upgrader reach the
// underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes through to the underlying writer for websocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// decodeSigned reads a signed envelope for op, verifies it and decodes its
// payload into dst. On failure the response has been written.
func (s *Server) decodeSigned(w http.ResponseWriter, r *http.Request, op string, dst any) (auth.Signer, bool) {
	var req auth.Request
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("decode request: %v", err))
		return auth.Signer{}, false
	}

	signer, err := auth.Verify(&req, op, s.now(), s.window)
	if err != nil {
		code := "invalid_signature"
		switch {
		case errors.Is(err, auth.ErrExpired):
			code = "expired"
		case errors.Is(err, auth.ErrOperationMismatch):
			code = "operation_mismatch"
		}
		writeErrorCode(w, http.StatusUnauthorized, code, err.Error())
		return auth.Signer{}, false
	}
	if err := s.replay.Use(&req); err != nil {
		s.logger.Printf("Rejected replayed %s request from %s", op, signer.Key())
		writeErrorCode(w, http.StatusConflict, "replayed", err.Error())
		return auth.Signer{}, false
	}

	if err := json.Unmarshal(req.Payload, dst); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_payload", fmt.Sprintf("decode payload: %v", err))
		return auth.Signer{}, false
	}
	return signer, true
}

// pathTitle checks that the signed title names the presale in the path and
// returns the canonical title.
func pathTitle(w http.ResponseWriter, r *http.Request, signed string) (string, bool) {
	path, err := pda.PadTitle(r.PathValue("title"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", vesting.ErrInvalidTitle, err))
		return "", false
	}
	payload, err := pda.PadTitle(signed)
	if err != nil || payload != path {
		writeErrorCode(w, http.StatusBadRequest, "title_mismatch",
			fmt.Sprintf("signed title %q does not match %q", signed, path.String()))
		return "", false
	}
	return path.String(), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeError maps err to its status code and error body.
func writeError(w http.ResponseWriter, err error) {
	code := vesting.Code(err)
	status := statusFor(code)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeErrorCode(w, status, code, message)
}

func statusFor(code string) int {
	switch code {
	case "invalid_amount", "invalid_title", "invalid_decimals", "invalid_mint",
		"bump_mismatch", "initialization_mismatch", "invalid_symbol", "mint_mismatch":
		return http.StatusBadRequest
	case "unauthorized":
		return http.StatusForbidden
	case "presale_not_found", "participant_not_found", "mint_not_found", "account_not_found":
		return http.StatusNotFound
	case "already_initialized":
		return http.StatusConflict
	case "insufficient_payment_asset", "insufficient_sale_asset", "insufficient_funds",
		"nothing_to_claim", "not_matured", "pool_undercollateralized", "empty_pool", "overflow":
		return http.StatusUnprocessableEntity
	case "unavailable":
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail logs unexpected errors before writing the response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if vesting.Code(err) == "internal" {
		s.logger.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeError(w, err)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:    "running",
		Uptime:    s.now().Sub(s.started).Round(time.Second).String(),
		ProgramID: s.engine.ProgramID().String(),
		Store:     s.storeName,
		Events:    s.events != nil,
	}
	if s.clientCount != nil {
		resp.WSClients = s.clientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeErrorCode(w, http.StatusServiceUnavailable, "unavailable", "event store not configured")
		return
	}
	title, err := pda.PadTitle(r.PathValue("title"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", vesting.ErrInvalidTitle, err))
		return
	}

	limit := defaultEventLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			writeErrorCode(w, http.StatusBadRequest, "invalid_limit", fmt.Sprintf("invalid limit %q", q))
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := s.events.GetByPresale(r.Context(), title.String(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
