package repository

import (
	"context"
	"time"

	"paygate/internal/domain"
)

// OrderRepository defines the persistence operations the reconciliation
// pipeline needs on orders. The wider order lifecycle lives elsewhere;
// only the payment fields are touched here.
type OrderRepository interface {
	// GetByID retrieves an order by internal id.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// GetByReference retrieves an order whose internal id or order
	// number equals ref exactly.
	GetByReference(ctx context.Context, ref string) (*domain.Order, error)

	// GetByCheckoutRequestID retrieves the order holding a pending
	// payment for the given STK checkout request.
	GetByCheckoutRequestID(ctx context.Context, checkoutID string) (*domain.Order, error)

	// FindCandidates returns orders eligible for heuristic matching:
	// total or remaining balance equal to amount, payment status in
	// {unpaid, pending, partial}, created at or after since.
	FindCandidates(ctx context.Context, amount int64, since time.Time) ([]*domain.Order, error)

	// ApplyPayment atomically applies the patch to the order, but only
	// if the order's remaining balance still equals observedRemaining.
	// Returns ErrConcurrentUpdate when it does not.
	ApplyPayment(ctx context.Context, orderID string, observedRemaining int64, patch domain.OrderPatch) error

	// SetPendingStatus updates the status and failure reason of the
	// order's pending payment record.
	SetPendingStatus(ctx context.Context, orderID string, status domain.PaymentStatus, reason string) error
}
