package repository

import (
	"context"

	"paygate/internal/domain"
)

// LedgerRepository defines the persistence operations for the transaction
// ledger. Receipt-id uniqueness is owned here.
type LedgerRepository interface {
	// RecordIfNew inserts the entry unless one already exists for its
	// receipt id. The insert is atomic with respect to concurrent
	// deliveries of the same receipt. On isNew=false the existing entry
	// is returned and the caller must short-circuit.
	RecordIfNew(ctx context.Context, entry *domain.LedgerEntry) (isNew bool, existing *domain.LedgerEntry, err error)

	// GetByReceiptID retrieves an entry by receipt id.
	GetByReceiptID(ctx context.Context, receiptID string) (*domain.LedgerEntry, error)

	// UpdateStatus sets the confirmation status and appends notes.
	UpdateStatus(ctx context.Context, receiptID string, status domain.ConfirmationStatus, notes string) error

	// LinkOrder attaches an order to a previously unlinked entry.
	LinkOrder(ctx context.Context, receiptID, orderID string) error

	// ListUnlinked returns entries awaiting manual reconciliation,
	// newest first.
	ListUnlinked(ctx context.Context) ([]*domain.LedgerEntry, error)
}
