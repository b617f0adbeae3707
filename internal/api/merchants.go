package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListMerchants lists merchants, optionally filtered by campus.
func (s *Server) handleListMerchants(w http.ResponseWriter, r *http.Request) {
	campusID := r.URL.Query().Get("campus_id")

	merchants, err := s.merchants.ListMerchants(r.Context(), s.db.Postgres, campusID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, merchants)
}

// handleGetMerchant returns one merchant.
func (s *Server) handleGetMerchant(w http.ResponseWriter, r *http.Request) {
	merchant, err := s.merchants.GetMerchant(r.Context(), s.db.Postgres, chi.URLParam(r, "merchant_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, merchant)
}
