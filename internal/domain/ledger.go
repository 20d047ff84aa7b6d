package domain

import "time"

// ConfirmationStatus is the state of a ledger entry.
type ConfirmationStatus string

const (
	ConfirmationConfirmed ConfirmationStatus = "confirmed"
	ConfirmationPending   ConfirmationStatus = "pending"
)

// LedgerEntry is one provider transaction, keyed by the provider receipt
// id. Entries are created at first sight of a receipt and never deleted;
// updates are limited to confirmation status, notes, and a late manual
// order link. No two entries may share a receipt id.
type LedgerEntry struct {
	ReceiptID     string
	Amount        int64
	PayerPhone    string
	OccurredAt    time.Time
	LinkedOrderID string // empty while unlinked
	Method        PaymentMethod
	Status        ConfirmationStatus
	Notes         string
	CreatedAt     time.Time
}
