package tests

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"paygate/internal/domain"
	"paygate/internal/mpesa"
	"paygate/internal/service"
)

type pipelineFixture struct {
	orderRepo  *MockOrderRepository
	ledgerRepo *MockLedgerRepository
	auditRepo  *MockAuditRepository
	sms        *MockSMSSender
	callbacks  *service.CallbackService
}

func newPipelineFixture() *pipelineFixture {
	orderRepo := NewMockOrderRepository()
	ledgerRepo := NewMockLedgerRepository()
	auditRepo := NewMockAuditRepository()
	sms := NewMockSMSSender()
	notifier := service.NewNotificationService(sms, time.Second)
	matcher := service.NewMatcherService(orderRepo, 2*time.Hour)
	reconciler := service.NewReconcilerService(orderRepo, ledgerRepo, auditRepo, notifier, NewMockLockStore())

	return &pipelineFixture{
		orderRepo:  orderRepo,
		ledgerRepo: ledgerRepo,
		auditRepo:  auditRepo,
		sms:        sms,
		callbacks:  service.NewCallbackService(orderRepo, ledgerRepo, auditRepo, matcher, reconciler),
	}
}

func c2bConfirmation(transID, amount, billRef string) mpesa.C2BConfirmation {
	return mpesa.C2BConfirmation{
		TransactionType:   "Pay Bill",
		TransID:           transID,
		TransTime:         "20240314153045",
		TransAmount:       amount,
		BusinessShortCode: "600986",
		BillRefNumber:     billRef,
		MSISDN:            "254712345678",
		FirstName:         "JANE",
		LastName:          "DOE",
	}
}

func TestDuplicateDeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture()

	f.orderRepo.AddOrder(&domain.Order{
		ID:               "order-a",
		OrderNumber:      "ORD-1001",
		TotalAmount:      60000,
		RemainingBalance: 60000,
		PaymentStatus:    domain.PaymentStatusUnpaid,
		CreatedAt:        time.Now(),
	})

	confirmation := c2bConfirmation("SBC1XYZ", "600.00", "ORD-1001")

	// Provider delivers the same notification three times.
	for i := 0; i < 3; i++ {
		if err := f.callbacks.HandleC2BConfirmation(ctx, confirmation); err != nil {
			t.Fatalf("delivery %d failed: %v", i+1, err)
		}
	}

	if f.ledgerRepo.Count() != 1 {
		t.Errorf("expected exactly one ledger entry, got %d", f.ledgerRepo.Count())
	}
	if got := f.orderRepo.ApplyPaymentCallCount; got != 1 {
		t.Errorf("expected exactly one balance mutation, got %d", got)
	}

	updated := f.orderRepo.Order("order-a")
	if updated.RemainingBalance != 0 {
		t.Errorf("expected remaining 0, got %d", updated.RemainingBalance)
	}
	if len(updated.PartialPayments) != 1 {
		t.Errorf("expected one applied payment, got %d", len(updated.PartialPayments))
	}
}

func TestRedeliveryAfterSettlementChangesNothing(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture()

	f.orderRepo.AddOrder(&domain.Order{
		ID:               "order-a",
		OrderNumber:      "ORD-1001",
		TotalAmount:      100000,
		RemainingBalance: 100000,
		PaymentStatus:    domain.PaymentStatusUnpaid,
		CreatedAt:        time.Now(),
	})

	if err := f.callbacks.HandleC2BConfirmation(ctx, c2bConfirmation("SBC100", "600.00", "ORD-1001")); err != nil {
		t.Fatalf("first payment failed: %v", err)
	}
	if err := f.callbacks.HandleC2BConfirmation(ctx, c2bConfirmation("SBC200", "400.00", "ORD-1001")); err != nil {
		t.Fatalf("second payment failed: %v", err)
	}

	settled := f.orderRepo.Order("order-a")
	if settled.RemainingBalance != 0 || settled.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected settled order, got remaining=%d status=%s",
			settled.RemainingBalance, settled.PaymentStatus)
	}

	// The second notification is redelivered with the same receipt id.
	if err := f.callbacks.HandleC2BConfirmation(ctx, c2bConfirmation("SBC200", "400.00", "ORD-1001")); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}

	after := f.orderRepo.Order("order-a")
	if after.RemainingBalance != 0 {
		t.Errorf("expected remaining still 0, got %d", after.RemainingBalance)
	}
	if len(after.PartialPayments) != 2 {
		t.Errorf("expected payments unchanged at 2, got %d", len(after.PartialPayments))
	}
	if f.ledgerRepo.Count() != 2 {
		t.Errorf("expected ledger unchanged at 2 entries, got %d", f.ledgerRepo.Count())
	}
}

func TestAmbiguousNotificationMutatesNeitherOrder(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture()

	// Two eligible orders with identical totals inside the window.
	for _, id := range []string{"order-1", "order-2"} {
		f.orderRepo.AddOrder(&domain.Order{
			ID:               id,
			OrderNumber:      "ORD-" + id,
			TotalAmount:      100000,
			RemainingBalance: 100000,
			PaymentStatus:    domain.PaymentStatusUnpaid,
			CreatedAt:        time.Now().Add(-10 * time.Minute),
		})
	}

	// Till payment: no bill reference.
	if err := f.callbacks.HandleC2BConfirmation(ctx, c2bConfirmation("SBC300", "1000.00", "")); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	for _, id := range []string{"order-1", "order-2"} {
		order := f.orderRepo.Order(id)
		if order.RemainingBalance != 100000 || len(order.PartialPayments) != 0 {
			t.Errorf("order %s must be untouched, got remaining=%d payments=%d",
				id, order.RemainingBalance, len(order.PartialPayments))
		}
	}

	entry := f.ledgerRepo.Entry("SBC300")
	if entry == nil {
		t.Fatal("expected unlinked ledger entry")
	}
	if entry.LinkedOrderID != "" {
		t.Errorf("expected entry unlinked, got %q", entry.LinkedOrderID)
	}
	if entry.Status != domain.ConfirmationPending {
		t.Errorf("expected pending entry, got %s", entry.Status)
	}
	if !strings.Contains(entry.Notes, "order-1") || !strings.Contains(entry.Notes, "order-2") {
		t.Errorf("expected both candidates in notes, got %q", entry.Notes)
	}
	if f.auditRepo.LastAction() != domain.AuditAmbiguousMatch {
		t.Errorf("expected ambiguous_match audit, got %s", f.auditRepo.LastAction())
	}
}

func TestUnmatchedNotificationStoredForReview(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture()

	if err := f.callbacks.HandleC2BConfirmation(ctx, c2bConfirmation("SBC400", "250.00", "")); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	entry := f.ledgerRepo.Entry("SBC400")
	if entry == nil {
		t.Fatal("expected durable ledger entry for unmatched payment")
	}
	if entry.LinkedOrderID != "" || entry.Status != domain.ConfirmationPending {
		t.Errorf("expected unlinked pending entry, got linked=%q status=%s",
			entry.LinkedOrderID, entry.Status)
	}
	if f.auditRepo.LastAction() != domain.AuditNoMatch {
		t.Errorf("expected no_match audit, got %s", f.auditRepo.LastAction())
	}
}

func TestUnparseableAmountLeavesOrderUntouched(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture()

	// Fresh order using the remaining-balance-unset convention it is
	// stored with before any payment lands.
	f.orderRepo.AddOrder(&domain.Order{
		ID:               "order-a",
		OrderNumber:      "ORD-1001",
		TotalAmount:      100000,
		RemainingBalance: 0,
		PaymentStatus:    domain.PaymentStatusUnpaid,
		CreatedAt:        time.Now(),
	})

	// Garbage TransAmount parses to zero; it must never match or apply.
	if err := f.callbacks.HandleC2BConfirmation(ctx, c2bConfirmation("SBC500", "garbage", "")); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	order := f.orderRepo.Order("order-a")
	if order.PaymentStatus != domain.PaymentStatusUnpaid {
		t.Errorf("expected order still unpaid, got %s", order.PaymentStatus)
	}
	if len(order.PartialPayments) != 0 {
		t.Errorf("expected no applied payments, got %d", len(order.PartialPayments))
	}
	if got := f.orderRepo.ApplyPaymentCallCount; got != 0 {
		t.Errorf("expected no balance mutation, got %d", got)
	}

	entry := f.ledgerRepo.Entry("SBC500")
	if entry == nil {
		t.Fatal("expected durable ledger entry for unusable amount")
	}
	if entry.LinkedOrderID != "" || entry.Status != domain.ConfirmationPending {
		t.Errorf("expected unlinked pending entry, got linked=%q status=%s",
			entry.LinkedOrderID, entry.Status)
	}
	if f.auditRepo.LastAction() != domain.AuditNoMatch {
		t.Errorf("expected no_match audit, got %s", f.auditRepo.LastAction())
	}
}

func TestNegativeAmountNeverIncreasesBalance(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture()

	f.orderRepo.AddOrder(&domain.Order{
		ID:               "order-a",
		OrderNumber:      "ORD-1001",
		TotalAmount:      60000,
		RemainingBalance: 60000,
		PaymentStatus:    domain.PaymentStatusUnpaid,
		CreatedAt:        time.Now(),
	})

	if err := f.callbacks.HandleC2BConfirmation(ctx, c2bConfirmation("SBC501", "-600.00", "ORD-1001")); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	order := f.orderRepo.Order("order-a")
	if order.RemainingBalance != 60000 || len(order.PartialPayments) != 0 {
		t.Errorf("expected order untouched, got remaining=%d payments=%d",
			order.RemainingBalance, len(order.PartialPayments))
	}

	entry := f.ledgerRepo.Entry("SBC501")
	if entry == nil || entry.Status != domain.ConfirmationPending || entry.LinkedOrderID != "" {
		t.Errorf("expected unlinked pending entry, got %+v", entry)
	}
}

func stkEnvelope(checkoutID string, resultCode int, receipt string, amount float64) mpesa.STKCallback {
	cb := mpesa.STKCallback{
		MerchantRequestID: "29115-34620561-1",
		CheckoutRequestID: checkoutID,
		ResultCode:        resultCode,
		ResultDesc:        "The service request is processed successfully.",
	}
	if resultCode != 0 {
		cb.ResultDesc = "Request cancelled by user"
		return cb
	}
	cb.CallbackMetadata = &mpesa.STKMetadata{Item: []mpesa.STKMetadataItem{
		{Name: "Amount", Value: jsonNumber(amount)},
		{Name: "MpesaReceiptNumber", Value: jsonString(receipt)},
		{Name: "TransactionDate", Value: jsonString("20240314153045")},
		{Name: "PhoneNumber", Value: jsonNumber(254712345678)},
	}}
	return cb
}

func jsonString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func jsonNumber(f float64) json.RawMessage {
	b, _ := json.Marshal(f)
	return b
}

func TestSTKSuccessSettlesPendingOrder(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture()

	f.orderRepo.AddOrder(&domain.Order{
		ID:               "order-b",
		OrderNumber:      "ORD-2001",
		TotalAmount:      150000,
		RemainingBalance: 150000,
		PaymentStatus:    domain.PaymentStatusPending,
		PendingPayment: &domain.PendingPayment{
			CheckoutRequestID: "ws_CO_123",
			ExpectedAmount:    150000,
			Method:            domain.MethodSTKPush,
			Status:            domain.PaymentStatusPending,
		},
		CreatedAt: time.Now(),
	})

	if err := f.callbacks.HandleSTKResult(ctx, stkEnvelope("ws_CO_123", 0, "RCT700", 1500)); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	updated := f.orderRepo.Order("order-b")
	if updated.PaymentStatus != domain.PaymentStatusPaid {
		t.Errorf("expected paid, got %s", updated.PaymentStatus)
	}
	if f.ledgerRepo.Entry("RCT700").Status != domain.ConfirmationConfirmed {
		t.Error("expected confirmed ledger entry")
	}
}

func TestSTKFailureMarksPendingPaymentFailed(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture()

	f.orderRepo.AddOrder(&domain.Order{
		ID:               "order-b",
		TotalAmount:      150000,
		RemainingBalance: 150000,
		PaymentStatus:    domain.PaymentStatusPending,
		PendingPayment: &domain.PendingPayment{
			CheckoutRequestID: "ws_CO_123",
			ExpectedAmount:    150000,
			Method:            domain.MethodSTKPush,
			Status:            domain.PaymentStatusPending,
		},
		CreatedAt: time.Now(),
	})

	if err := f.callbacks.HandleSTKResult(ctx, stkEnvelope("ws_CO_123", 1032, "", 0)); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	updated := f.orderRepo.Order("order-b")
	if updated.PaymentStatus != domain.PaymentStatusFailed {
		t.Errorf("expected failed, got %s", updated.PaymentStatus)
	}
	if f.ledgerRepo.Count() != 0 {
		t.Errorf("failed push has no receipt, expected no ledger entry, got %d", f.ledgerRepo.Count())
	}
}

func TestSTKResultForUnknownCheckoutLeftForReview(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture()

	if err := f.callbacks.HandleSTKResult(ctx, stkEnvelope("ws_CO_nope", 0, "RCT800", 500)); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	entry := f.ledgerRepo.Entry("RCT800")
	if entry == nil {
		t.Fatal("expected durable entry for orphan STK result")
	}
	if entry.Status != domain.ConfirmationPending || entry.LinkedOrderID != "" {
		t.Errorf("expected unlinked pending entry, got status=%s linked=%q",
			entry.Status, entry.LinkedOrderID)
	}
}
