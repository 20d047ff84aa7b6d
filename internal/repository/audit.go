package repository

import (
	"context"

	"paygate/internal/domain"
)

// AuditRepository defines the append-only audit log sink.
type AuditRepository interface {
	// Write persists a record. Records are never updated or deleted.
	Write(ctx context.Context, record *domain.AuditRecord) error
}
