package domain

import "time"

// AuditAction identifies the state transition an audit record captures.
type AuditAction string

const (
	AuditPaymentApplied     AuditAction = "payment_applied"
	AuditOverpaymentApplied AuditAction = "overpayment_applied"
	AuditAmountMismatch     AuditAction = "amount_mismatch"
	AuditAmbiguousMatch     AuditAction = "ambiguous_match"
	AuditNoMatch            AuditAction = "no_match"
	AuditPushFailed         AuditAction = "push_failed"
	AuditManualLink         AuditAction = "manual_link"
	AuditApplyFailed        AuditAction = "apply_failed"
)

// ActorSystem is the actor recorded for transitions made by the callback
// pipeline itself, as opposed to an admin id.
const ActorSystem = "system"

// AuditRecord is a write-once record of a payment state transition.
type AuditRecord struct {
	ID             string
	Action         AuditAction
	ReceiptID      string
	OrderID        string
	Actor          string
	Amount         int64
	PreviousStatus PaymentStatus
	NewStatus      PaymentStatus
	Metadata       map[string]string
	CreatedAt      time.Time
}
