package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"rebase-ledger/internal/accrual"
	"rebase-ledger/internal/domain"
	"rebase-ledger/internal/feed"
	"rebase-ledger/internal/gateway"
	"rebase-ledger/internal/ledger"
	"rebase-ledger/internal/observability"
	"rebase-ledger/internal/roles"
	"rebase-ledger/internal/storage"
)

// authorityHeader identifies the caller on gated endpoints.
const authorityHeader = "X-Authority"

type tokenInfo struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// Server exposes the ledger over HTTP.
type Server struct {
	ledger   *ledger.Ledger
	gateway  *gateway.Gateway
	vault    *gateway.MemoryVault
	registry *roles.Registry
	events   storage.EventStore
	rates    storage.RateUpdateStore
	hub      *feed.Hub
	metrics  *observability.Metrics
	logger   *log.Logger
	token    tokenInfo
	started  time.Time
}

// Routes builds the API mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /token", s.handleToken)
	mux.HandleFunc("GET /rate", s.handleRate)
	mux.HandleFunc("GET /balance", s.handleBalance)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("POST /deposit", s.handleDeposit)
	mux.HandleFunc("POST /redeem", s.handleRedeem)
	mux.HandleFunc("POST /transfer", s.handleTransfer)
	mux.HandleFunc("POST /admin/rate", s.handleSetRate)
	mux.HandleFunc("POST /admin/authority", s.handleAuthority)
	mux.HandleFunc("GET /ws", s.hub.HandleWebSocket)

	return s.instrument(mux)
}

// instrument records request counts and latency per path.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		s.metrics.RequestDuration.WithLabelValues(r.URL.Path, r.Method).
			Observe(time.Since(start).Seconds())
		s.metrics.RequestsTotal.WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(sw.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack keeps the WebSocket upgrade working through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"uptime":      time.Since(s.started).String(),
		"sequence":    s.ledger.Sequence(),
		"subscribers": s.hub.ClientCount(),
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        s.token.Name,
		"symbol":      s.token.Symbol,
		"decimals":    s.token.Decimals,
		"scale":       strconv.FormatUint(accrual.Scale, 10),
		"global_rate": strconv.FormatUint(s.ledger.GlobalRate(), 10),
	})
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"rate": strconv.FormatUint(s.ledger.GlobalRate(), 10),
	}

	history, err := s.rates.History(r.Context())
	if err != nil {
		s.logger.Printf("rate history: %v", err)
	} else if len(history) > 0 {
		entries := make([]map[string]any, 0, len(history))
		for _, u := range history {
			entries = append(entries, map[string]any{
				"sequence":      u.Sequence,
				"rate":          strconv.FormatUint(u.Rate, 10),
				"previous_rate": strconv.FormatUint(u.PreviousRate, 10),
				"updated_by":    u.UpdatedBy,
				"timestamp":     u.Timestamp,
			})
		}
		resp["history"] = entries
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if err := domain.ValidateAddress(address); err != nil {
		writeError(w, err)
		return
	}

	balance, err := s.ledger.CurrentBalance(address)
	if err != nil {
		writeError(w, err)
		return
	}
	info, _ := s.ledger.AccountInfo(address)

	writeJSON(w, http.StatusOK, map[string]any{
		"address":    address,
		"balance":    strconv.FormatUint(balance, 10),
		"principal":  strconv.FormatUint(info.Principal, 10),
		"rate":       strconv.FormatUint(info.Rate, 10),
		"updated_at": info.UpdatedAt,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		events []*domain.Event
		err    error
	)
	switch {
	case q.Get("address") != "":
		events, err = s.events.GetByAccount(r.Context(), q.Get("address"))
	case q.Get("start") != "" || q.Get("end") != "":
		var start, end int64
		if start, err = parseInt64(q.Get("start"), 0); err != nil {
			writeError(w, errBadInput("start"))
			return
		}
		if end, err = parseInt64(q.Get("end"), time.Now().Unix()); err != nil {
			writeError(w, errBadInput("end"))
			return
		}
		events, err = s.events.GetByTimeRange(r.Context(), start, end)
	default:
		// Without filters return the tail of the journal.
		seq := s.ledger.Sequence()
		var from uint64
		if seq > 100 {
			from = seq - 100 + 1
		} else {
			from = 1
		}
		events, err = s.events.GetBySequenceRange(r.Context(), from, seq)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(events))
	for _, e := range events {
		entry := map[string]any{
			"sequence":  e.Sequence,
			"type":      string(e.Type),
			"account":   e.Account,
			"amount":    strconv.FormatUint(e.Amount, 10),
			"rate":      strconv.FormatUint(e.Rate, 10),
			"timestamp": e.Timestamp,
		}
		if e.To != "" {
			entry["to"] = e.To
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

type depositRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	if !s.requireAuthority(w, r) {
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadInput("body"))
		return
	}
	amount, err := parseAmount(req.Amount, false)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.gateway.Deposit(r.Context(), req.Address, amount); err != nil {
		s.countRejection("deposit", err)
		writeError(w, err)
		return
	}

	s.metrics.DepositsTotal.Inc()
	s.metrics.DepositedAmount.Add(float64(amount))
	s.updateLedgerGauges()

	writeJSON(w, http.StatusOK, map[string]any{
		"address": req.Address,
		"minted":  strconv.FormatUint(amount, 10),
		"rate":    strconv.FormatUint(s.ledger.UserRate(req.Address), 10),
	})
}

type redeemRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	if !s.requireAuthority(w, r) {
		return
	}

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadInput("body"))
		return
	}
	amount, err := parseAmount(req.Amount, true)
	if err != nil {
		writeError(w, err)
		return
	}

	redeemed, err := s.gateway.Redeem(r.Context(), req.Address, amount)
	if err != nil {
		s.countRejection("redeem", err)
		writeError(w, err)
		return
	}

	s.metrics.RedeemsTotal.Inc()
	s.metrics.RedeemedAmount.Add(float64(redeemed))
	s.updateLedgerGauges()

	writeJSON(w, http.StatusOK, map[string]any{
		"address":  req.Address,
		"redeemed": strconv.FormatUint(redeemed, 10),
	})
}

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadInput("body"))
		return
	}
	if err := domain.ValidateAddress(req.From); err != nil {
		writeError(w, err)
		return
	}
	if err := domain.ValidateAddress(req.To); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount, true)
	if err != nil {
		writeError(w, err)
		return
	}

	moved, err := s.ledger.Transfer(req.From, req.To, amount)
	if err != nil {
		s.countRejection("transfer", err)
		writeError(w, err)
		return
	}

	s.updateLedgerGauges()

	writeJSON(w, http.StatusOK, map[string]any{
		"from":   req.From,
		"to":     req.To,
		"amount": strconv.FormatUint(moved, 10),
	})
}

type setRateRequest struct {
	Rate string `json:"rate"`
}

func (s *Server) handleSetRate(w http.ResponseWriter, r *http.Request) {
	caller := r.Header.Get(authorityHeader)
	if !s.registry.IsOwner(caller) {
		writeError(w, roles.ErrNotOwner)
		return
	}

	var req setRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadInput("body"))
		return
	}
	rate, err := strconv.ParseUint(req.Rate, 10, 64)
	if err != nil {
		writeError(w, errBadInput("rate"))
		return
	}

	if err := s.ledger.SetGlobalRate(rate, caller); err != nil {
		s.countRejection("rate_update", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rate": strconv.FormatUint(rate, 10),
	})
}

type authorityRequest struct {
	Principal string `json:"principal"`
	Revoke    bool   `json:"revoke"`
}

func (s *Server) handleAuthority(w http.ResponseWriter, r *http.Request) {
	caller := r.Header.Get(authorityHeader)

	var req authorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadInput("body"))
		return
	}
	if err := domain.ValidateAddress(req.Principal); err != nil {
		writeError(w, err)
		return
	}

	var err error
	if req.Revoke {
		err = s.registry.Revoke(caller, req.Principal)
	} else {
		err = s.registry.Grant(caller, req.Principal)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"principal":  req.Principal,
		"authorized": !req.Revoke,
	})
}

// requireAuthority rejects callers that are neither the owner nor a granted
// authority.
func (s *Server) requireAuthority(w http.ResponseWriter, r *http.Request) bool {
	caller := r.Header.Get(authorityHeader)
	if !s.registry.IsAuthorized(caller) {
		writeError(w, errUnauthorized)
		return false
	}
	return true
}

// countRejection counts a refused mutation by operation and reason.
func (s *Server) countRejection(op string, err error) {
	s.metrics.OperationErrors.WithLabelValues(op, rejectionReason(err)).Inc()
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ledger.ErrRateIncrease):
		return "rate_increase"
	case errors.Is(err, gateway.ErrInsufficientReserves):
		return "insufficient_reserves"
	case errors.Is(err, gateway.ErrRedeemTransferFailed):
		return "transfer_failed"
	case errors.Is(err, accrual.ErrOverflow):
		return "overflow"
	case errors.Is(err, domain.ErrInvalidAddress), errors.Is(err, ledger.ErrInvalidAccount):
		return "invalid_address"
	default:
		return "other"
	}
}

// updateLedgerGauges refreshes account-level gauges after a mutation.
func (s *Server) updateLedgerGauges() {
	accounts := s.ledger.Accounts()
	var total uint64
	for _, a := range accounts {
		total += a.Principal
	}
	s.metrics.AccountCount.Set(float64(len(accounts)))
	s.metrics.TotalPrincipal.Set(float64(total))
	s.metrics.FeedSubscribers.Set(float64(s.hub.ClientCount()))
}

var errUnauthorized = errors.New("caller is not authorized")

type badInputError struct {
	field string
}

func (e badInputError) Error() string { return "invalid field: " + e.field }

func errBadInput(field string) error { return badInputError{field: field} }

// parseAmount parses a decimal string amount. "all" maps to the full-balance
// sentinel where allowed.
func parseAmount(s string, allowAll bool) (uint64, error) {
	if allowAll && s == "all" {
		return ledger.AllBalance, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errBadInput("amount")
	}
	return v, nil
}

func parseInt64(s string, fallback int64) (int64, error) {
	if s == "" {
		return fallback, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var badInput badInputError
	switch {
	case errors.As(err, &badInput), errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, ledger.ErrInvalidAccount), errors.Is(err, storage.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, gateway.ErrRedeemTransferFailed):
		status = http.StatusPaymentRequired
	case errors.Is(err, errUnauthorized), errors.Is(err, roles.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, ledger.ErrInsufficientBalance), errors.Is(err, ledger.ErrRateIncrease),
		errors.Is(err, gateway.ErrInsufficientReserves):
		status = http.StatusConflict
	case errors.Is(err, accrual.ErrOverflow):
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}
