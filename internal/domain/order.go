package domain

import "time"

// PaymentStatus represents the payment state of an order.
type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// PaymentMethod identifies the flow a payment arrived through.
type PaymentMethod string

const (
	MethodSTKPush PaymentMethod = "STK_PUSH"
	MethodC2B     PaymentMethod = "C2B"
	MethodManual  PaymentMethod = "MANUAL"
)

// PartialPayment is one applied payment against an order. The list on an
// order is append-only.
type PartialPayment struct {
	Amount     int64
	PaidAt     time.Time
	ReceiptID  string
	PayerPhone string
	Method     PaymentMethod
}

// PendingPayment tracks an STK push the system initiated and is waiting on.
type PendingPayment struct {
	CheckoutRequestID string
	ExpectedAmount    int64
	ExpectedPhone     string
	Method            PaymentMethod
	Status            PaymentStatus
	FailureReason     string
}

// Order is the payment-relevant projection of an order. Amounts are in
// minor units. Invariant: RemainingBalance == TotalAmount - sum of
// PartialPayments amounts, clamped at zero, and PaymentStatus is paid
// exactly when RemainingBalance is zero.
type Order struct {
	ID               string
	OrderNumber      string
	CustomerPhone    string
	TotalAmount      int64
	RemainingBalance int64
	PaymentStatus    PaymentStatus
	PartialPayments  []PartialPayment
	PendingPayment   *PendingPayment
	CreatedAt        time.Time
}

// CurrentRemaining returns the live remaining balance, falling back to the
// order total when no payment has ever been applied.
func (o *Order) CurrentRemaining() int64 {
	if o.RemainingBalance > 0 || len(o.PartialPayments) > 0 {
		return o.RemainingBalance
	}
	return o.TotalAmount
}

// SettledBy reports whether the order already carries an applied payment
// from the same method and payer phone.
func (o *Order) SettledBy(method PaymentMethod, phone string) bool {
	for _, p := range o.PartialPayments {
		if p.Method == method && p.PayerPhone == phone {
			return true
		}
	}
	return false
}

// OrderPatch is the full set of changes one applied payment makes to an
// order. It is applied atomically, conditional on the remaining balance
// the caller observed.
type OrderPatch struct {
	NewRemaining int64
	NewStatus    PaymentStatus
	Payment      PartialPayment
	ClearPending bool
}
