package service

import "errors"

var (
	// ErrInvalidReceiptID is returned when a receipt id is empty.
	ErrInvalidReceiptID = errors.New("invalid receipt id")

	// ErrInvalidOrderID is returned when an order id is empty.
	ErrInvalidOrderID = errors.New("invalid order id")

	// ErrInvalidActor is returned when a manual action carries no actor.
	ErrInvalidActor = errors.New("invalid actor")

	// ErrAlreadyLinked is returned when manually linking an entry that
	// already has an order attached.
	ErrAlreadyLinked = errors.New("ledger entry already linked to an order")

	// ErrAlreadyConfirmed is returned when manually applying an entry
	// that was already confirmed.
	ErrAlreadyConfirmed = errors.New("ledger entry already confirmed")

	// ErrNonPositiveAmount is returned when a notification or ledger
	// entry carries an amount of zero or less; such payments are never
	// applied to an order.
	ErrNonPositiveAmount = errors.New("payment amount must be positive")

	// ErrOrderLocked is returned when the per-order lock is held by
	// another payment. There is no lock retry; the payment degrades to
	// manual review and the conditional update guards the balance.
	ErrOrderLocked = errors.New("order is locked by another payment")
)
