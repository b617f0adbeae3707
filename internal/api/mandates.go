package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pipphxntom/AeonPay/internal/auth"
	"github.com/pipphxntom/AeonPay/internal/service"
)

// handleCreateMandates creates one mandate per known plan member.
func (s *Server) handleCreateMandates(w http.ResponseWriter, r *http.Request) {
	var params service.CreateParams
	if err := decodeJSON(r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}

	mandates, err := s.mandates.Create(r.Context(), auth.CallerID(r.Context()), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"mandates": mandates})
}

// handleExecuteMandate runs one debit attempt through the simulated rail.
func (s *Server) handleExecuteMandate(w http.ResponseWriter, r *http.Request) {
	var params service.ExecuteParams
	if err := decodeJSON(r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.mandates.Execute(r.Context(), auth.CallerID(r.Context()), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

// handlePlanMandates lists a plan's mandates.
func (s *Server) handlePlanMandates(w http.ResponseWriter, r *http.Request) {
	mandates, err := s.mandates.ListByPlan(r.Context(), auth.CallerID(r.Context()), chi.URLParam(r, "plan_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mandates)
}

// handleMandateExecutions returns a mandate's execution trail.
func (s *Server) handleMandateExecutions(w http.ResponseWriter, r *http.Request) {
	executions, err := s.mandates.ExecutionTrail(r.Context(), auth.CallerID(r.Context()), chi.URLParam(r, "mandate_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, executions)
}
