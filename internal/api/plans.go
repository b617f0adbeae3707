package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pipphxntom/AeonPay/internal/auth"
	"github.com/pipphxntom/AeonPay/internal/service"
)

// handleCreatePlan creates a plan with its initial members.
func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var params service.PlanParams
	if err := decodeJSON(r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.plans.Create(r.Context(), auth.CallerID(r.Context()), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetPlan returns one plan to its creator or members.
func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.plans.Get(r.Context(), auth.CallerID(r.Context()), chi.URLParam(r, "plan_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, plan)
}

// handleListPlans returns the caller's plans.
func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.plans.ListForUser(r.Context(), auth.CallerID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, plans)
}
