package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/pipphxntom/AeonPay/internal/auth"
	"github.com/pipphxntom/AeonPay/internal/model"
	"github.com/pipphxntom/AeonPay/internal/service"
)

// handleMintVouchers mints one voucher per known plan member.
func (s *Server) handleMintVouchers(w http.ResponseWriter, r *http.Request) {
	var params service.MintParams
	if err := decodeJSON(r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}

	vouchers, err := s.vouchers.Mint(r.Context(), auth.CallerID(r.Context()), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"vouchers": vouchers})
}

// redeemRequest is the wire shape of a redemption batch: parallel arrays
// of voucher ids and amounts, plus the merchant being paid.
type redeemRequest struct {
	VoucherIDs []string          `json:"voucher_ids"`
	Amounts    []decimal.Decimal `json:"amounts"`
	MerchantID string            `json:"merchant_id"`
}

// handleRedeemVouchers redeems a batch of vouchers with partial-success
// semantics; each leg reports independently.
func (s *Server) handleRedeemVouchers(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.VoucherIDs) != len(req.Amounts) {
		s.writeError(w, r, model.E(model.KindValidation, "", "voucher_ids and amounts must have the same length"))
		return
	}

	legs := make([]service.RedeemLeg, len(req.VoucherIDs))
	for i := range req.VoucherIDs {
		legs[i] = service.RedeemLeg{VoucherID: req.VoucherIDs[i], Amount: req.Amounts[i]}
	}

	result, err := s.vouchers.Redeem(r.Context(), auth.CallerID(r.Context()), service.RedeemParams{
		Legs:       legs,
		MerchantID: req.MerchantID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

// handlePlanVouchers lists a plan's vouchers.
func (s *Server) handlePlanVouchers(w http.ResponseWriter, r *http.Request) {
	vouchers, err := s.vouchers.ListByPlan(r.Context(), auth.CallerID(r.Context()), chi.URLParam(r, "plan_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, vouchers)
}

// handleVoucherRedemptions returns a voucher's redemption trail.
func (s *Server) handleVoucherRedemptions(w http.ResponseWriter, r *http.Request) {
	redemptions, err := s.vouchers.RedemptionTrail(r.Context(), auth.CallerID(r.Context()), chi.URLParam(r, "voucher_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, redemptions)
}
