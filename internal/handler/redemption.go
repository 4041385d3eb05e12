package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/maycafe/internal/auth"
	"github.com/dukerupert/maycafe/internal/ledger"
	"github.com/dukerupert/maycafe/internal/model"
)

type RedemptionHandler struct {
	ledger *ledger.Service
	logger *slog.Logger
}

func NewRedemptionHandler(l *ledger.Service, logger *slog.Logger) *RedemptionHandler {
	return &RedemptionHandler{ledger: l, logger: logger}
}

func (h *RedemptionHandler) Items(w http.ResponseWriter, r *http.Request) {
	items, err := h.ledger.ListRedemptionItems(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []model.RedemptionItem{}
	}
	writeSuccess(w, http.StatusOK, map[string]any{"items": items})
}

type redeemRequest struct {
	ItemID int64 `json:"item_id"`
}

func (h *RedemptionHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ItemID <= 0 {
		writeErrorMsg(w, http.StatusBadRequest, "item_id is required")
		return
	}
	red, err := h.ledger.Redeem(r.Context(), auth.MemberID(r.Context()), req.ItemID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"message": "redeemed " + red.ItemName, "redemption": red})
}

// ListAll is the admin view of every redemption.
func (h *RedemptionHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	list, err := h.ledger.ListAllRedemptions(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []model.Redemption{}
	}
	writeJSON(w, http.StatusOK, list)
}

type redemptionStatusRequest struct {
	Status string `json:"status"`
}

func (h *RedemptionHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req redemptionStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	red, err := h.ledger.SetRedemptionStatus(r.Context(), id, req.Status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"redemption": red})
}
