package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pipphxntom/AeonPay/internal/model"
)

func TestStatusForKind(t *testing.T) {
	cases := map[model.Kind]int{
		model.KindValidation:          http.StatusBadRequest,
		model.KindUnauthorized:        http.StatusForbidden,
		model.KindNotFound:            http.StatusNotFound,
		model.KindAlreadyProcessed:    http.StatusConflict,
		model.KindExpired:             http.StatusGone,
		model.KindInsufficientBalance: http.StatusUnprocessableEntity,
		model.KindCapExceeded:         http.StatusUnprocessableEntity,
		model.KindInternal:            http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusForKind(kind), "kind %s", kind)
	}
}

func TestWriteError_DomainErrorRendered(t *testing.T) {
	s := testServer(newFakeCache())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/vouchers/redeem", nil)
	s.writeError(rec, req, model.E(model.KindInsufficientBalance, "v-1", "insufficient voucher balance"))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t,
		`{"error":{"kind":"insufficient_balance","entity_id":"v-1","reason":"insufficient voucher balance"}}`,
		rec.Body.String())
}

func TestWriteError_InternalErrorMasked(t *testing.T) {
	s := testServer(newFakeCache())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/plans", nil)
	s.writeError(rec, req, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.Contains(t, rec.Body.String(), "internal error")
}
