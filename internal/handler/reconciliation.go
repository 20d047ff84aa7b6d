package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"paygate/internal/repository"
	"paygate/internal/service"
)

// ReconciliationHandler exposes the manual-review side of the ledger:
// listing unlinked entries and attaching a late manual order link.
type ReconciliationHandler struct {
	ledgerRepo repository.LedgerRepository
	reconciler *service.ReconcilerService
}

// NewReconciliationHandler creates a new ReconciliationHandler.
func NewReconciliationHandler(ledgerRepo repository.LedgerRepository, reconciler *service.ReconcilerService) *ReconciliationHandler {
	return &ReconciliationHandler{ledgerRepo: ledgerRepo, reconciler: reconciler}
}

// LedgerEntryResponse is the HTTP shape of a ledger entry.
type LedgerEntryResponse struct {
	ReceiptID     string    `json:"receipt_id"`
	Amount        int64     `json:"amount"`
	PayerPhone    string    `json:"payer_phone"`
	OccurredAt    time.Time `json:"occurred_at"`
	LinkedOrderID string    `json:"linked_order_id,omitempty"`
	Method        string    `json:"method"`
	Status        string    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ListUnlinked handles GET /v1/reconciliation/unlinked
func (h *ReconciliationHandler) ListUnlinked(c *gin.Context) {
	entries, err := h.ledgerRepo.ListUnlinked(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, LedgerEntryResponse{
			ReceiptID:     e.ReceiptID,
			Amount:        e.Amount,
			PayerPhone:    e.PayerPhone,
			OccurredAt:    e.OccurredAt,
			LinkedOrderID: e.LinkedOrderID,
			Method:        string(e.Method),
			Status:        string(e.Status),
			Notes:         e.Notes,
			CreatedAt:     e.CreatedAt,
		})
	}
	respondJSON(c, http.StatusOK, resp)
}

// LinkRequest is the HTTP request body for a manual link.
type LinkRequest struct {
	ReceiptID string `json:"receipt_id"`
	OrderID   string `json:"order_id"`
	Actor     string `json:"actor"`
}

// Link handles POST /v1/reconciliation/link
func (h *ReconciliationHandler) Link(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.reconciler.ManualLink(c.Request.Context(), req.ReceiptID, req.OrderID, req.Actor); err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{
		"receipt_id": req.ReceiptID,
		"order_id":   req.OrderID,
		"linked":     true,
	})
}
