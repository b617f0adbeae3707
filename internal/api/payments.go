package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pipphxntom/AeonPay/internal/auth"
	"github.com/pipphxntom/AeonPay/internal/service"
)

// handleCreateIntent opens a payment intent against a plan and merchant.
func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var params service.IntentParams
	if err := decodeJSON(r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.payments.CreateIntent(r.Context(), auth.CallerID(r.Context()), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleConfirmPayment finalizes a pending intent.
func (s *Server) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var params service.ConfirmParams
	if err := decodeJSON(r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.payments.Confirm(r.Context(), auth.CallerID(r.Context()), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetIntent returns the transaction behind an intent id.
func (s *Server) handleGetIntent(w http.ResponseWriter, r *http.Request) {
	txn, err := s.payments.GetIntent(r.Context(), auth.CallerID(r.Context()), chi.URLParam(r, "intent_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, txn)
}

// handleListTransactions returns the caller's recent transactions.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txns, err := s.payments.ListTransactions(r.Context(), auth.CallerID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, txns)
}
