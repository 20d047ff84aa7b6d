package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"paygate/internal/domain"
	"paygate/internal/redis"
	"paygate/internal/repository"
)

const (
	orderLockTTL      = 15 * time.Second
	applyMaxAttempts  = 3
	applyRetryBackoff = 50 * time.Millisecond
)

// paymentClass classifies a payment against the order's remaining balance.
type paymentClass int

const (
	classExact paymentClass = iota
	classPartial
	classOver
)

func classify(amount, remaining int64) paymentClass {
	switch {
	case amount == remaining:
		return classExact
	case amount < remaining:
		return classPartial
	default:
		return classOver
	}
}

// ReconcilerService owns the read-modify-write transition of an order's
// payment fields. Nothing else mutates them.
type ReconcilerService struct {
	orderRepo  repository.OrderRepository
	ledgerRepo repository.LedgerRepository
	auditRepo  repository.AuditRepository
	notifier   *NotificationService
	lockStore  redis.LockStoreInterface
}

// NewReconcilerService creates a new ReconcilerService. lockStore may be
// nil; the conditional order update still serializes concurrent applies.
func NewReconcilerService(
	orderRepo repository.OrderRepository,
	ledgerRepo repository.LedgerRepository,
	auditRepo repository.AuditRepository,
	notifier *NotificationService,
	lockStore redis.LockStoreInterface,
) *ReconcilerService {
	return &ReconcilerService{
		orderRepo:  orderRepo,
		ledgerRepo: ledgerRepo,
		auditRepo:  auditRepo,
		notifier:   notifier,
		lockStore:  lockStore,
	}
}

// Reconcile settles a notification against a resolved order. The ledger
// entry for the notification already exists in pending state; apply
// failure leaves it there with notes, so every notification keeps a
// durable trace regardless of outcome.
func (s *ReconcilerService) Reconcile(ctx context.Context, order *domain.Order, n *domain.PaymentNotification) error {
	if n.Method == domain.MethodSTKPush {
		return s.reconcileSTK(ctx, order, n)
	}
	return s.reconcileC2B(ctx, order, n, domain.ActorSystem)
}

// reconcileSTK auto-confirms only when the paid amount exactly equals the
// amount the system requested for the checkout session. Any deviation,
// including overpayment, routes to manual review; the order is untouched.
func (s *ReconcilerService) reconcileSTK(ctx context.Context, order *domain.Order, n *domain.PaymentNotification) error {
	if order.PendingPayment == nil || n.Amount != order.PendingPayment.ExpectedAmount {
		expected := int64(0)
		if order.PendingPayment != nil {
			expected = order.PendingPayment.ExpectedAmount
		}
		notes := fmt.Sprintf("amount mismatch for order %s: expected %d, got %d", order.ID, expected, n.Amount)
		if err := s.ledgerRepo.UpdateStatus(ctx, n.ReceiptID, domain.ConfirmationPending, notes); err != nil {
			return err
		}
		s.audit(ctx, &domain.AuditRecord{
			Action:         domain.AuditAmountMismatch,
			ReceiptID:      n.ReceiptID,
			OrderID:        order.ID,
			Actor:          domain.ActorSystem,
			Amount:         n.Amount,
			PreviousStatus: order.PaymentStatus,
			NewStatus:      order.PaymentStatus,
			Metadata: map[string]string{
				"expected_amount": fmt.Sprintf("%d", expected),
				"checkout_id":     n.CheckoutRequestID,
			},
		})
		return nil
	}

	return s.apply(ctx, order, n, domain.ActorSystem, true)
}

// reconcileC2B has no prior expected-amount context, so the comparison is
// against the live remaining balance. Exact and partial payments are
// applied immediately; overpayment is applied but audited distinctly.
func (s *ReconcilerService) reconcileC2B(ctx context.Context, order *domain.Order, n *domain.PaymentNotification, actor string) error {
	return s.apply(ctx, order, n, actor, false)
}

// apply performs the balance update, ledger confirmation, audit write and
// best-effort notification. On failure the ledger entry degrades to
// pending with the failure captured in notes.
func (s *ReconcilerService) apply(ctx context.Context, order *domain.Order, n *domain.PaymentNotification, actor string, clearPending bool) error {
	// A zero or negative amount must never touch the balance; a
	// negative one would increase it.
	if n.Amount <= 0 {
		return s.degrade(ctx, order, n, ErrNonPositiveAmount)
	}

	if s.lockStore != nil {
		locked, err := s.lockStore.AcquireOrderLock(ctx, order.ID, orderLockTTL)
		if err != nil {
			// Lock store down: the conditional update below still
			// guarantees no lost update.
			log.Printf("order lock unavailable for %s: %v", order.ID, err)
		} else if !locked {
			return s.degrade(ctx, order, n, ErrOrderLocked)
		} else {
			defer s.lockStore.ReleaseOrderLock(ctx, order.ID)
		}
	}

	applied, class, err := s.applyWithRetry(ctx, order, n, clearPending)
	if err != nil {
		return s.degrade(ctx, order, n, err)
	}

	if err := s.ledgerRepo.LinkOrder(ctx, n.ReceiptID, order.ID); err != nil {
		log.Printf("link ledger entry %s to order %s: %v", n.ReceiptID, order.ID, err)
	}
	if err := s.ledgerRepo.UpdateStatus(ctx, n.ReceiptID, domain.ConfirmationConfirmed, ""); err != nil {
		log.Printf("confirm ledger entry %s: %v", n.ReceiptID, err)
	}

	action := domain.AuditPaymentApplied
	if class == classOver {
		action = domain.AuditOverpaymentApplied
	}
	s.audit(ctx, &domain.AuditRecord{
		Action:         action,
		ReceiptID:      n.ReceiptID,
		OrderID:        order.ID,
		Actor:          actor,
		Amount:         n.Amount,
		PreviousStatus: applied.previousStatus,
		NewStatus:      applied.newStatus,
		Metadata: map[string]string{
			"remaining_balance": fmt.Sprintf("%d", applied.newRemaining),
			"method":            string(n.Method),
		},
	})

	// Financial state is committed; the notification is best-effort and
	// must not roll back or block anything past this point.
	notified := *order
	notified.RemainingBalance = applied.newRemaining
	notified.PaymentStatus = applied.newStatus
	s.notifier.NotifyPaymentReceived(ctx, &notified, domain.PartialPayment{
		Amount:     n.Amount,
		PaidAt:     n.OccurredAt,
		ReceiptID:  n.ReceiptID,
		PayerPhone: n.PayerPhone,
		Method:     n.Method,
	})

	return nil
}

// appliedState is what a successful apply settled on.
type appliedState struct {
	previousStatus domain.PaymentStatus
	newStatus      domain.PaymentStatus
	newRemaining   int64
}

// applyWithRetry runs the conditional balance update, re-reading the
// order when another payment got there first. The balance never goes
// below zero.
func (s *ReconcilerService) applyWithRetry(ctx context.Context, order *domain.Order, n *domain.PaymentNotification, clearPending bool) (appliedState, paymentClass, error) {
	current := order

	for attempt := 1; ; attempt++ {
		observed := current.CurrentRemaining()
		class := classify(n.Amount, observed)

		newRemaining := observed - n.Amount
		if newRemaining < 0 {
			newRemaining = 0
		}
		newStatus := domain.PaymentStatusPartial
		if newRemaining == 0 {
			newStatus = domain.PaymentStatusPaid
		}

		patch := domain.OrderPatch{
			NewRemaining: newRemaining,
			NewStatus:    newStatus,
			ClearPending: clearPending,
			Payment: domain.PartialPayment{
				Amount:     n.Amount,
				PaidAt:     n.OccurredAt,
				ReceiptID:  n.ReceiptID,
				PayerPhone: n.PayerPhone,
				Method:     n.Method,
			},
		}

		err := s.orderRepo.ApplyPayment(ctx, current.ID, observed, patch)
		if err == nil {
			return appliedState{
				previousStatus: current.PaymentStatus,
				newStatus:      newStatus,
				newRemaining:   newRemaining,
			}, class, nil
		}
		if !errors.Is(err, repository.ErrConcurrentUpdate) || attempt >= applyMaxAttempts {
			return appliedState{}, class, err
		}

		time.Sleep(applyRetryBackoff)
		refreshed, rerr := s.orderRepo.GetByID(ctx, current.ID)
		if rerr != nil {
			return appliedState{}, class, rerr
		}
		current = refreshed
	}
}

// degrade records an apply failure without losing the notification: the
// ledger entry stays pending with the failure in notes, an audit record
// captures the attempt, and the callback still acks.
func (s *ReconcilerService) degrade(ctx context.Context, order *domain.Order, n *domain.PaymentNotification, cause error) error {
	log.Printf("payment apply failed: receipt=%s order=%s err=%v", n.ReceiptID, order.ID, cause)

	notes := fmt.Sprintf("apply failed for order %s: %v", order.ID, cause)
	if err := s.ledgerRepo.UpdateStatus(ctx, n.ReceiptID, domain.ConfirmationPending, notes); err != nil {
		log.Printf("record apply failure on ledger entry %s: %v", n.ReceiptID, err)
	}
	s.audit(ctx, &domain.AuditRecord{
		Action:         domain.AuditApplyFailed,
		ReceiptID:      n.ReceiptID,
		OrderID:        order.ID,
		Actor:          domain.ActorSystem,
		Amount:         n.Amount,
		PreviousStatus: order.PaymentStatus,
		NewStatus:      order.PaymentStatus,
		Metadata:       map[string]string{"error": cause.Error()},
	})
	return nil
}

// ManualLink attaches an unlinked ledger entry to an order and settles it
// against the order's live balance, attributed to the given admin actor.
func (s *ReconcilerService) ManualLink(ctx context.Context, receiptID, orderID, actor string) error {
	if receiptID == "" {
		return ErrInvalidReceiptID
	}
	if orderID == "" {
		return ErrInvalidOrderID
	}
	if actor == "" {
		return ErrInvalidActor
	}

	entry, err := s.ledgerRepo.GetByReceiptID(ctx, receiptID)
	if err != nil {
		return err
	}
	if entry.LinkedOrderID != "" {
		return ErrAlreadyLinked
	}
	if entry.Status == domain.ConfirmationConfirmed {
		return ErrAlreadyConfirmed
	}
	if entry.Amount <= 0 {
		return ErrNonPositiveAmount
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	s.audit(ctx, &domain.AuditRecord{
		Action:         domain.AuditManualLink,
		ReceiptID:      receiptID,
		OrderID:        orderID,
		Actor:          actor,
		Amount:         entry.Amount,
		PreviousStatus: order.PaymentStatus,
		NewStatus:      order.PaymentStatus,
	})

	n := &domain.PaymentNotification{
		ReceiptID:  entry.ReceiptID,
		Amount:     entry.Amount,
		OccurredAt: entry.OccurredAt,
		PayerPhone: entry.PayerPhone,
		RawPhone:   entry.PayerPhone,
		Method:     entry.Method,
	}
	return s.reconcileC2B(ctx, order, n, actor)
}

// MarkPushFailed records a failed or cancelled STK push against the
// order's pending payment. The order itself stays re-enterable; only the
// individual notification failed.
func (s *ReconcilerService) MarkPushFailed(ctx context.Context, order *domain.Order, resultCode int, resultDesc string) error {
	if err := s.orderRepo.SetPendingStatus(ctx, order.ID, domain.PaymentStatusFailed, resultDesc); err != nil {
		return err
	}

	checkoutID := ""
	if order.PendingPayment != nil {
		checkoutID = order.PendingPayment.CheckoutRequestID
	}
	newStatus := order.PaymentStatus
	if newStatus == domain.PaymentStatusPending {
		newStatus = domain.PaymentStatusFailed
	}
	s.audit(ctx, &domain.AuditRecord{
		Action:         domain.AuditPushFailed,
		OrderID:        order.ID,
		Actor:          domain.ActorSystem,
		PreviousStatus: order.PaymentStatus,
		NewStatus:      newStatus,
		Metadata: map[string]string{
			"result_code": fmt.Sprintf("%d", resultCode),
			"result_desc": resultDesc,
			"checkout_id": checkoutID,
		},
	})
	return nil
}

// audit writes a record, filling in id and timestamp. Audit failures are
// logged; they never fail the financial transition they describe.
func (s *ReconcilerService) audit(ctx context.Context, record *domain.AuditRecord) {
	record.ID = uuid.New().String()
	record.CreatedAt = time.Now()
	if err := s.auditRepo.Write(ctx, record); err != nil {
		log.Printf("audit write failed: action=%s receipt=%s err=%v", record.Action, record.ReceiptID, err)
	}
}
