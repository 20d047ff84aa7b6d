package postgres

import (
	"context"
	"database/sql"
	"errors"

	"paygate/internal/domain"
	"paygate/internal/repository"
)

// LedgerRepository is a PostgreSQL implementation of repository.LedgerRepository.
// The ledger_entries table carries a primary key on receipt_id, which is
// what makes RecordIfNew safe under concurrent duplicate deliveries.
type LedgerRepository struct {
	q Querier
}

// NewLedgerRepository creates a new PostgreSQL ledger repository.
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{q: db}
}

const ledgerColumns = `
	receipt_id, amount, payer_phone, occurred_at, linked_order_id,
	method, status, notes, created_at
`

// RecordIfNew inserts the entry unless its receipt id is already present.
func (r *LedgerRepository) RecordIfNew(ctx context.Context, entry *domain.LedgerEntry) (bool, *domain.LedgerEntry, error) {
	query := `
		INSERT INTO ledger_entries
			(receipt_id, amount, payer_phone, occurred_at, linked_order_id, method, status, notes, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)
		ON CONFLICT (receipt_id) DO NOTHING
	`

	result, err := r.q.ExecContext(ctx, query,
		entry.ReceiptID,
		entry.Amount,
		entry.PayerPhone,
		entry.OccurredAt,
		entry.LinkedOrderID,
		entry.Method,
		entry.Status,
		entry.Notes,
		entry.CreatedAt,
	)
	if err != nil {
		return false, nil, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, nil, err
	}
	if affected > 0 {
		return true, nil, nil
	}

	existing, err := r.GetByReceiptID(ctx, entry.ReceiptID)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

// GetByReceiptID retrieves an entry by receipt id.
func (r *LedgerRepository) GetByReceiptID(ctx context.Context, receiptID string) (*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE receipt_id = $1`

	entry, err := scanLedgerEntry(r.q.QueryRowContext(ctx, query, receiptID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return entry, nil
}

// UpdateStatus sets the confirmation status and appends to the notes.
func (r *LedgerRepository) UpdateStatus(ctx context.Context, receiptID string, status domain.ConfirmationStatus, notes string) error {
	query := `
		UPDATE ledger_entries
		SET status = $1,
		    notes = CASE WHEN $2 = '' THEN notes
		                 WHEN notes = '' THEN $2
		                 ELSE notes || '; ' || $2 END
		WHERE receipt_id = $3
	`

	result, err := r.q.ExecContext(ctx, query, status, notes, receiptID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// LinkOrder attaches an order to an unlinked entry.
func (r *LedgerRepository) LinkOrder(ctx context.Context, receiptID, orderID string) error {
	query := `UPDATE ledger_entries SET linked_order_id = $1 WHERE receipt_id = $2`

	result, err := r.q.ExecContext(ctx, query, orderID, receiptID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ListUnlinked returns entries with no linked order, newest first.
func (r *LedgerRepository) ListUnlinked(ctx context.Context) ([]*domain.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE linked_order_id IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanLedgerEntry(row rowScanner) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	var linked sql.NullString

	err := row.Scan(
		&entry.ReceiptID,
		&entry.Amount,
		&entry.PayerPhone,
		&entry.OccurredAt,
		&linked,
		&entry.Method,
		&entry.Status,
		&entry.Notes,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	entry.LinkedOrderID = linked.String
	return &entry, nil
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
