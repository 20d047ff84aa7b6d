package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"paygate/internal/mpesa"
	"paygate/internal/service"
)

// CallbackHandler receives the mobile payment network's asynchronous
// callbacks. Both endpoints acknowledge success in all cases, including
// malformed bodies and internal failures: the provider has no useful
// retry semantics, and retries only create duplicate-delivery pressure
// the ledger then has to absorb.
type CallbackHandler struct {
	callbacks *service.CallbackService
}

// NewCallbackHandler creates a new CallbackHandler.
func NewCallbackHandler(callbacks *service.CallbackService) *CallbackHandler {
	return &CallbackHandler{callbacks: callbacks}
}

// STKResult handles POST /callbacks/mpesa/stk
func (h *CallbackHandler) STKResult(c *gin.Context) {
	ack := func() {
		c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
	}

	var env mpesa.STKCallbackEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		log.Printf("malformed STK callback body: %v", err)
		ack()
		return
	}

	if err := h.callbacks.HandleSTKResult(c.Request.Context(), env.Body.StkCallback); err != nil {
		log.Printf("STK callback processing failed: checkout=%s err=%v",
			env.Body.StkCallback.CheckoutRequestID, err)
	}
	ack()
}

// C2BConfirmation handles POST /callbacks/mpesa/c2b/confirmation
func (h *CallbackHandler) C2BConfirmation(c *gin.Context) {
	ack := func() {
		c.JSON(http.StatusOK, gin.H{"ResultCode": "0", "ResultDesc": "Success"})
	}

	var confirmation mpesa.C2BConfirmation
	if err := c.ShouldBindJSON(&confirmation); err != nil {
		log.Printf("malformed C2B confirmation body: %v", err)
		ack()
		return
	}

	if err := h.callbacks.HandleC2BConfirmation(c.Request.Context(), confirmation); err != nil {
		log.Printf("C2B confirmation processing failed: trans=%s err=%v",
			confirmation.TransID, err)
	}
	ack()
}
