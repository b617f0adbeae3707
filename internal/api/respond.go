package api

import (
	"encoding/json"
	"net/http"

	"github.com/pipphxntom/AeonPay/internal/model"
)

// statusForKind maps domain failure kinds to HTTP status codes.
func statusForKind(kind model.Kind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindUnauthorized:
		return http.StatusForbidden
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindAlreadyProcessed:
		return http.StatusConflict
	case model.KindExpired:
		return http.StatusGone
	case model.KindInsufficientBalance, model.KindCapExceeded:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders a structured error. Internal failures are logged and
// masked; domain failures carry kind, entity id and reason to the caller.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	de := model.AsError(err)
	if de.Kind == model.KindInternal {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		de = model.E(model.KindInternal, "", "internal error")
	}
	writeJSON(w, statusForKind(de.Kind), map[string]*model.Error{"error": de})
}

// decodeJSON parses a request body, reporting malformed input as a
// validation failure.
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return model.E(model.KindValidation, "", "malformed request body: "+err.Error())
	}
	return nil
}
