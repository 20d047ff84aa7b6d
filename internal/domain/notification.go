package domain

import "time"

// PaymentNotification is a provider payment notification, parsed into a
// typed value at the HTTP boundary. Immutable once built.
type PaymentNotification struct {
	ReceiptID         string
	Amount            int64
	OccurredAt        time.Time
	PayerPhone        string // normalized where possible
	RawPhone          string // exactly as the provider sent it, kept for audit
	PayerName         string
	Reference         string // bill ref / account number; may be empty or opaque
	CheckoutRequestID string // STK flow only
	Method            PaymentMethod
	ResultCode        int
	ResultDesc        string
}
