package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"paygate/internal/domain"
	"paygate/internal/repository"
)

// OrderRepository is a PostgreSQL implementation of repository.OrderRepository.
type OrderRepository struct {
	db *sql.DB
	q  Querier
}

// NewOrderRepository creates a new PostgreSQL order repository.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db, q: db}
}

const orderColumns = `
	id, order_number, customer_phone, total_amount, remaining_balance,
	payment_status, created_at,
	checkout_request_id, expected_amount, expected_phone, pending_method,
	pending_status, pending_failure_reason
`

// GetByID retrieves an order by internal id.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByReference retrieves an order whose id or order number equals ref.
func (r *OrderRepository) GetByReference(ctx context.Context, ref string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 OR order_number = $1`
	return r.getOne(ctx, query, ref)
}

// GetByCheckoutRequestID retrieves the order awaiting the given STK push.
func (r *OrderRepository) GetByCheckoutRequestID(ctx context.Context, checkoutID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE checkout_request_id = $1`
	return r.getOne(ctx, query, checkoutID)
}

// FindCandidates returns orders eligible for heuristic matching.
func (r *OrderRepository) FindCandidates(ctx context.Context, amount int64, since time.Time) ([]*domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE (total_amount = $1 OR remaining_balance = $1)
		  AND payment_status IN ('unpaid', 'pending', 'partial')
		  AND created_at >= $2
		ORDER BY created_at DESC
	`

	rows, err := r.q.QueryContext(ctx, query, amount, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, order := range orders {
		if err := r.loadPayments(ctx, order); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// ApplyPayment applies the patch atomically, conditional on the remaining
// balance the caller observed. A fresh order may still carry a zero
// remaining_balance column, in which case the observed value is the total.
func (r *OrderRepository) ApplyPayment(ctx context.Context, orderID string, observedRemaining int64, patch domain.OrderPatch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	update := `
		UPDATE orders
		SET remaining_balance = $1, payment_status = $2
		WHERE id = $3
		  AND (remaining_balance = $4
		       OR (remaining_balance = 0 AND total_amount = $4
		           AND payment_status IN ('unpaid', 'pending')))
	`
	result, err := tx.ExecContext(ctx, update,
		patch.NewRemaining, patch.NewStatus, orderID, observedRemaining)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrConcurrentUpdate
	}

	if patch.ClearPending {
		_, err = tx.ExecContext(ctx,
			`UPDATE orders SET pending_status = $1 WHERE id = $2`,
			patch.NewStatus, orderID)
		if err != nil {
			return err
		}
	}

	insert := `
		INSERT INTO order_payments (order_id, amount, paid_at, receipt_id, payer_phone, method)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.ExecContext(ctx, insert,
		orderID,
		patch.Payment.Amount,
		patch.Payment.PaidAt,
		patch.Payment.ReceiptID,
		patch.Payment.PayerPhone,
		patch.Payment.Method,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// SetPendingStatus updates the pending payment's status and failure reason.
func (r *OrderRepository) SetPendingStatus(ctx context.Context, orderID string, status domain.PaymentStatus, reason string) error {
	query := `
		UPDATE orders
		SET pending_status = $1,
		    pending_failure_reason = $2,
		    payment_status = CASE
		        WHEN $1 = 'failed' AND payment_status = 'pending' THEN 'failed'
		        ELSE payment_status END
		WHERE id = $3 AND checkout_request_id IS NOT NULL
	`

	result, err := r.q.ExecContext(ctx, query, status, reason, orderID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) getOne(ctx context.Context, query string, arg any) (*domain.Order, error) {
	order, err := scanOrder(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if err := r.loadPayments(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *OrderRepository) loadPayments(ctx context.Context, order *domain.Order) error {
	query := `
		SELECT amount, paid_at, receipt_id, payer_phone, method
		FROM order_payments
		WHERE order_id = $1
		ORDER BY paid_at ASC
	`

	rows, err := r.q.QueryContext(ctx, query, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.PartialPayment
		if err := rows.Scan(&p.Amount, &p.PaidAt, &p.ReceiptID, &p.PayerPhone, &p.Method); err != nil {
			return err
		}
		order.PartialPayments = append(order.PartialPayments, p)
	}
	return rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var checkoutID, expectedPhone, pendingMethod, pendingStatus, pendingReason sql.NullString
	var expectedAmount sql.NullInt64

	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.CustomerPhone,
		&order.TotalAmount,
		&order.RemainingBalance,
		&order.PaymentStatus,
		&order.CreatedAt,
		&checkoutID,
		&expectedAmount,
		&expectedPhone,
		&pendingMethod,
		&pendingStatus,
		&pendingReason,
	)
	if err != nil {
		return nil, err
	}

	if checkoutID.Valid {
		order.PendingPayment = &domain.PendingPayment{
			CheckoutRequestID: checkoutID.String,
			ExpectedAmount:    expectedAmount.Int64,
			ExpectedPhone:     expectedPhone.String,
			Method:            domain.PaymentMethod(pendingMethod.String),
			Status:            domain.PaymentStatus(pendingStatus.String),
			FailureReason:     pendingReason.String,
		}
	}
	return &order, nil
}
