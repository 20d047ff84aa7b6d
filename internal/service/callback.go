package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"paygate/internal/domain"
	"paygate/internal/mpesa"
	"paygate/internal/repository"
)

// CallbackService is the ingestion pipeline behind the provider callback
// endpoints: ledger dedup, order matching, then reconciliation. Errors it
// returns are for logging only; the endpoints ack the provider no matter
// what happens here.
type CallbackService struct {
	orderRepo  repository.OrderRepository
	ledgerRepo repository.LedgerRepository
	auditRepo  repository.AuditRepository
	matcher    *MatcherService
	reconciler *ReconcilerService
}

// NewCallbackService creates a new CallbackService.
func NewCallbackService(
	orderRepo repository.OrderRepository,
	ledgerRepo repository.LedgerRepository,
	auditRepo repository.AuditRepository,
	matcher *MatcherService,
	reconciler *ReconcilerService,
) *CallbackService {
	return &CallbackService{
		orderRepo:  orderRepo,
		ledgerRepo: ledgerRepo,
		auditRepo:  auditRepo,
		matcher:    matcher,
		reconciler: reconciler,
	}
}

// HandleSTKResult processes an STK push result callback.
func (s *CallbackService) HandleSTKResult(ctx context.Context, cb mpesa.STKCallback) error {
	if cb.ResultCode != 0 {
		return s.handlePushFailure(ctx, cb)
	}

	n := cb.ToNotification()
	if n.ReceiptID == "" {
		// Successful result without a receipt id cannot be deduped or
		// ledgered; all we can do is log it.
		log.Printf("STK result without receipt: checkout=%s", cb.CheckoutRequestID)
		return nil
	}

	isNew, err := s.record(ctx, &n, fmt.Sprintf("STK push result for checkout %s", n.CheckoutRequestID))
	if err != nil {
		return err
	}
	if !isNew {
		log.Printf("duplicate STK notification skipped: receipt=%s", n.ReceiptID)
		return nil
	}

	if n.Amount <= 0 {
		return s.recordNoMatch(ctx, &n, fmt.Sprintf("unusable amount %d, left for review", n.Amount))
	}

	order, err := s.orderRepo.GetByCheckoutRequestID(ctx, n.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.recordNoMatch(ctx, &n, fmt.Sprintf("no order for checkout %s", n.CheckoutRequestID))
		}
		return err
	}

	return s.reconciler.Reconcile(ctx, order, &n)
}

// handlePushFailure marks the order's pending payment failed. There is no
// receipt on a failed push, so no ledger entry is created; the failure is
// audited against the order instead.
func (s *CallbackService) handlePushFailure(ctx context.Context, cb mpesa.STKCallback) error {
	order, err := s.orderRepo.GetByCheckoutRequestID(ctx, cb.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Printf("STK failure for unknown checkout %s: code=%d desc=%s",
				cb.CheckoutRequestID, cb.ResultCode, cb.ResultDesc)
			return nil
		}
		return err
	}
	return s.reconciler.MarkPushFailed(ctx, order, cb.ResultCode, cb.ResultDesc)
}

// HandleC2BConfirmation processes a C2B confirmation callback.
func (s *CallbackService) HandleC2BConfirmation(ctx context.Context, c mpesa.C2BConfirmation) error {
	n := c.ToNotification()
	if n.ReceiptID == "" {
		log.Printf("C2B confirmation without TransID: ref=%s msisdn=%s", c.BillRefNumber, c.MSISDN)
		return nil
	}

	isNew, err := s.record(ctx, &n, fmt.Sprintf("C2B %s payment", c.TransactionType))
	if err != nil {
		return err
	}
	if !isNew {
		log.Printf("duplicate C2B notification skipped: receipt=%s", n.ReceiptID)
		return nil
	}

	// An unparseable TransAmount degrades to zero; never let that reach
	// the matcher, where it would pair with orders whose remaining
	// balance was stored as zero-meaning-unset.
	if n.Amount <= 0 {
		return s.recordNoMatch(ctx, &n, fmt.Sprintf("unusable amount %q, left for review", c.TransAmount))
	}

	match, err := s.matcher.Resolve(ctx, &n)
	if err != nil {
		return err
	}

	switch match.Outcome {
	case MatchFound:
		return s.reconciler.Reconcile(ctx, match.Order, &n)

	case MatchAmbiguous:
		ids := make([]string, len(match.Candidates))
		for i, o := range match.Candidates {
			ids[i] = o.ID
		}
		notes := "ambiguous match, candidates: " + strings.Join(ids, ", ")
		if err := s.ledgerRepo.UpdateStatus(ctx, n.ReceiptID, domain.ConfirmationPending, notes); err != nil {
			return err
		}
		s.audit(ctx, &domain.AuditRecord{
			Action:    domain.AuditAmbiguousMatch,
			ReceiptID: n.ReceiptID,
			Actor:     domain.ActorSystem,
			Amount:    n.Amount,
			Metadata:  map[string]string{"candidates": strings.Join(ids, ",")},
		})
		return nil

	default:
		return s.recordNoMatch(ctx, &n, "no matching order for amount and window")
	}
}

// record writes the notification's pending, unlinked ledger entry. This
// happens before any matching so that every notification leaves a
// durable trace at first sight.
func (s *CallbackService) record(ctx context.Context, n *domain.PaymentNotification, notes string) (bool, error) {
	entry := &domain.LedgerEntry{
		ReceiptID:  n.ReceiptID,
		Amount:     n.Amount,
		PayerPhone: n.PayerPhone,
		OccurredAt: n.OccurredAt,
		Method:     n.Method,
		Status:     domain.ConfirmationPending,
		Notes:      notes,
		CreatedAt:  time.Now(),
	}

	isNew, _, err := s.ledgerRepo.RecordIfNew(ctx, entry)
	if err != nil {
		return false, err
	}
	return isNew, nil
}

func (s *CallbackService) recordNoMatch(ctx context.Context, n *domain.PaymentNotification, notes string) error {
	if err := s.ledgerRepo.UpdateStatus(ctx, n.ReceiptID, domain.ConfirmationPending, notes); err != nil {
		return err
	}
	s.audit(ctx, &domain.AuditRecord{
		Action:    domain.AuditNoMatch,
		ReceiptID: n.ReceiptID,
		Actor:     domain.ActorSystem,
		Amount:    n.Amount,
		Metadata:  map[string]string{"payer_phone": n.RawPhone},
	})
	return nil
}

func (s *CallbackService) audit(ctx context.Context, record *domain.AuditRecord) {
	record.ID = uuid.New().String()
	record.CreatedAt = time.Now()
	if err := s.auditRepo.Write(ctx, record); err != nil {
		log.Printf("audit write failed: action=%s receipt=%s err=%v", record.Action, record.ReceiptID, err)
	}
}
