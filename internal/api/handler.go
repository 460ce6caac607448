package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/kestrel/internal/banking"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	svc     *banking.Service
	version string
	async   bool
}

// NewHandler creates a new API handler.
func NewHandler(svc *banking.Service, version string, async bool) *Handler {
	return &Handler{
		svc:     svc,
		version: version,
		async:   async,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if err := h.svc.Ping(r.Context()); err != nil {
		slog.Warn("health check degraded", "error", err)
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// OpenAccount handles POST /accounts.
func (h *Handler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req banking.OpenAccountRequest
	if !decode(w, r, &req) {
		return
	}

	acct, err := h.svc.OpenAccount(ctx, GetTenantID(ctx), GetUserID(ctx), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

// ListAccounts handles GET /accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accounts, err := h.svc.ListAccounts(ctx, GetTenantID(ctx), GetUserID(ctx))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// GetAccount handles GET /accounts/{id}.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	acct, err := h.svc.GetAccount(ctx, GetTenantID(ctx), GetUserID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// CreateTransaction handles POST /transactions. A flagged transaction is
// stored but answered with 400 and the fraud analysis.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, userID := GetTenantID(ctx), GetUserID(ctx)

	var req banking.CreateTransactionRequest
	if !decode(w, r, &req) {
		return
	}

	if h.async {
		id, err := h.svc.SubmitTransaction(ctx, tenantID, userID, req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"message": "Transaction accepted for processing",
			"id":      id,
			"status":  string(domain.TxPending),
		})
		return
	}

	out, err := h.svc.CreateTransaction(ctx, tenantID, userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if out.Flagged {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message":       "Transaction flagged for review",
			"transaction":   out.Transaction,
			"fraudAnalysis": out.FraudAnalysis,
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":       "Transaction completed successfully",
		"transaction":   out.Transaction,
		"fraudAnalysis": out.FraudAnalysis,
	})
}

// ListTransactions handles GET /accounts/{id}/transactions.
//
// Query parameters: status, type, startDate, endDate (RFC 3339 or
// YYYY-MM-DD), page, limit.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q, err := parseTransactionQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	page, err := h.svc.ListTransactions(ctx, GetTenantID(ctx), GetUserID(ctx), chi.URLParam(r, "id"), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetTransaction handles GET /transactions/{id}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tx, err := h.svc.GetTransaction(ctx, GetTenantID(ctx), GetUserID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// GetTransactionRisk handles GET /transactions/{id}/risk.
func (h *Handler) GetTransactionRisk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	view, err := h.svc.GetTransactionRisk(ctx, GetTenantID(ctx), GetUserID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ApplyForLoan handles POST /loans/apply.
func (h *Handler) ApplyForLoan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, userID := GetTenantID(ctx), GetUserID(ctx)

	var app banking.LoanApplication
	if !decode(w, r, &app) {
		return
	}

	if h.async {
		id, err := h.svc.SubmitLoan(ctx, tenantID, userID, app)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"message": "Loan application accepted for processing",
			"id":      id,
			"status":  string(domain.LoanPending),
		})
		return
	}

	out, err := h.svc.ApplyForLoan(ctx, tenantID, userID, app)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":        "Loan application processed",
		"loan":           out.Loan,
		"approvalResult": out.ApprovalResult,
	})
}

// ListLoans handles GET /loans.
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	loans, err := h.svc.ListLoans(ctx, GetTenantID(ctx), GetUserID(ctx))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

// GetLoan handles GET /loans/{id}.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	l, err := h.svc.GetLoan(ctx, GetTenantID(ctx), GetUserID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// ListFraudRules handles GET /risk/fraud-rules.
func (h *Handler) ListFraudRules(w http.ResponseWriter, r *http.Request) {
	rules := h.svc.FraudRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// ListLoanFactors handles GET /risk/loan-factors.
func (h *Handler) ListLoanFactors(w http.ResponseWriter, r *http.Request) {
	factors := h.svc.LoanFactors()
	writeJSON(w, http.StatusOK, map[string]any{
		"factors": factors,
		"count":   len(factors),
	})
}

// FraudEvaluateRequest is the body of POST /risk/fraud/evaluate.
type FraudEvaluateRequest struct {
	AccountID   string  `json:"accountId"`
	Amount      float64 `json:"amount"`
	RecentCount int64   `json:"recentCount"`
}

// EvaluateFraud scores a hypothetical transaction without storing it.
func (h *Handler) EvaluateFraud(w http.ResponseWriter, r *http.Request) {
	var req FraudEvaluateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RecentCount < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "recentCount must not be negative",
		})
		return
	}

	d := h.svc.ScoreTransaction(domain.TransactionCandidate{
		AccountID: req.AccountID,
		Amount:    req.Amount,
		CreatedAt: time.Now().UTC(),
	}, req.RecentCount)
	writeJSON(w, http.StatusOK, d)
}

// EvaluateLoan scores a hypothetical loan without storing it.
func (h *Handler) EvaluateLoan(w http.ResponseWriter, r *http.Request) {
	var req domain.LoanCandidate
	if !decode(w, r, &req) {
		return
	}

	writeJSON(w, http.StatusOK, h.svc.ScoreLoan(r.Context(), req))
}

func parseTransactionQuery(r *http.Request) (banking.TransactionQuery, error) {
	values := r.URL.Query()
	q := banking.TransactionQuery{
		Status: domain.TransactionStatus(values.Get("status")),
		Type:   domain.TransactionType(values.Get("type")),
	}

	var err error
	if q.Page, err = intParam(values.Get("page")); err != nil {
		return q, errors.New("page must be an integer")
	}
	if q.Limit, err = intParam(values.Get("limit")); err != nil {
		return q, errors.New("limit must be an integer")
	}
	if q.Start, err = timeParam(values.Get("startDate"), false); err != nil {
		return q, errors.New("startDate must be RFC 3339 or YYYY-MM-DD")
	}
	if q.End, err = timeParam(values.Get("endDate"), true); err != nil {
		return q, errors.New("endDate must be RFC 3339 or YYYY-MM-DD")
	}
	return q, nil
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// timeParam parses an RFC 3339 time or a date. A date used as an end bound
// covers the whole day.
func timeParam(v string, end bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, err
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return false
	}
	return true
}

// writeError maps service errors to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, banking.ErrInvalidRequest),
		errors.Is(err, banking.ErrInsufficientFunds):
		status = http.StatusBadRequest
	case errors.Is(err, banking.ErrAccountNotFound),
		errors.Is(err, banking.ErrReceiverNotFound),
		errors.Is(err, banking.ErrTransactionNotFound),
		errors.Is(err, banking.ErrLoanNotFound):
		status = http.StatusNotFound
	case errors.Is(err, banking.ErrAsyncUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeJSON(w, status, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
