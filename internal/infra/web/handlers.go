package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"telegram-image-ai/internal/domain"
	"telegram-image-ai/internal/domain/model"
	"telegram-image-ai/internal/infra/metrics"
	red "telegram-image-ai/internal/infra/redis"
	"telegram-image-ai/internal/usecase"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain sentinels onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrUnknownPackage):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrInsufficientBalance):
		metrics.IncLedgerRejection("insufficient_balance")
		http.Error(w, "insufficient balance", http.StatusPaymentRequired)
	case errors.Is(err, domain.ErrJobNotCancellable):
		http.Error(w, "job can no longer be cancelled", http.StatusConflict)
	case errors.Is(err, domain.ErrConcurrencyConflict):
		metrics.IncLedgerRejection("conflict")
		http.Error(w, "conflict, retry", http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func limitParam(r *http.Request, def int) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		return def
	}
	return limit
}

// handlePaymentWebhook always answers ok so the gateway stops retrying;
// the real outcome is logged and counted internally.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	outcome, err := s.paymentUC.HandleNotification(r.Context(), body, r.Header.Get("X-Signature"))
	if err != nil {
		s.log.Error().Err(err).Str("outcome", string(outcome)).Msg("payment notification failed")
	}
	metrics.IncPaymentNotification(string(outcome))
	if outcome == usecase.OutcomeAccepted {
		var n usecase.PaymentNotification
		if json.Unmarshal(body, &n) == nil {
			metrics.AddTokensCredited(n.AmountTokens)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	acc, err := s.ledgerUC.Balance(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": acc.UserID,
		"balance": acc.Balance,
	})
}

func (s *Server) handleLedgerHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ledgerUC.History(r.Context(), chi.URLParam(r, "userID"), limitParam(r, 50))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type adjustRequest struct {
	Delta       int64  `json:"delta"`
	ReferenceID string `json:"reference_id"`
}

func (s *Server) handleAdminAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Delta == 0 || req.ReferenceID == "" {
		http.Error(w, "delta and reference_id are required", http.StatusBadRequest)
		return
	}
	acc, err := s.ledgerUC.AdminAdjust(r.Context(), chi.URLParam(r, "userID"), req.Delta, req.ReferenceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": acc.UserID,
		"balance": acc.Balance,
	})
}

type submitJobRequest struct {
	UserID  string           `json:"user_id"`
	Payload model.JobPayload `json:"payload"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if s.rateLimiter != nil {
		ok, rerr := s.rateLimiter.Allow(r.Context(), red.UserActionKey(req.UserID, "submit"), 30, time.Minute)
		if rerr != nil {
			s.log.Warn().Err(rerr).Msg("rate limiter unavailable, allowing request")
		} else if !ok {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
	}
	job, err := s.dispatcherUC.Submit(r.Context(), req.UserID, req.Payload)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.IncJobSubmitted(string(job.Payload.Type))
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.dispatcherUC.JobStatus(r.Context(), r.URL.Query().Get("user_id"), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.dispatcherUC.Cancel(r.Context(), r.URL.Query().Get("user_id"), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.dispatcherUC.ListJobs(r.Context(), chi.URLParam(r, "userID"), limitParam(r, 20))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handlePackages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.paymentUC.Packages())
}

type initiatePaymentRequest struct {
	UserID  string `json:"user_id"`
	Package string `json:"package"`
}

func (s *Server) handleInitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req initiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Package == "" {
		http.Error(w, "user_id and package are required", http.StatusBadRequest)
		return
	}
	p, err := s.paymentUC.Initiate(r.Context(), req.UserID, req.Package)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.statsUC.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type loginRequest struct {
	Key string `json:"key"`
}

// handleLogin exchanges the admin API key for a session cookie. The key is
// only ever presented here; every other admin call rides on the session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if s.adminKey == "" || req.Key != s.adminKey {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if _, err := s.auth.Mint(w); err != nil {
		s.log.Error().Err(err).Msg("minting admin session failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}
