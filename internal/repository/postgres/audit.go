package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"paygate/internal/domain"
)

// AuditRepository is a PostgreSQL implementation of repository.AuditRepository.
// Rows are insert-only; there are no update or delete paths.
type AuditRepository struct {
	q Querier
}

// NewAuditRepository creates a new PostgreSQL audit repository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{q: db}
}

// Write persists an audit record.
func (r *AuditRepository) Write(ctx context.Context, record *domain.AuditRecord) error {
	metadata := []byte("{}")
	if len(record.Metadata) > 0 {
		b, err := json.Marshal(record.Metadata)
		if err != nil {
			return err
		}
		metadata = b
	}

	query := `
		INSERT INTO audit_records
			(id, action, receipt_id, order_id, actor, amount, previous_status, new_status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.q.ExecContext(ctx, query,
		record.ID,
		record.Action,
		record.ReceiptID,
		record.OrderID,
		record.Actor,
		record.Amount,
		record.PreviousStatus,
		record.NewStatus,
		metadata,
		record.CreatedAt,
	)
	return err
}
