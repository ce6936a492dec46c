package approval

import (
	"context"
	"time"
)

// Repository persists approval records.
type Repository interface {
	// InsertBatch writes all records or none.
	InsertBatch(ctx context.Context, records []Record) error
	// FindByToken returns ErrNotFound for unknown tokens.
	FindByToken(ctx context.Context, token string) (Record, error)
	// UpdateResponse transitions a record that is still Sent. It returns
	// ErrAlreadyProcessed when the record has left Sent.
	UpdateResponse(ctx context.Context, token string, status Status, respondedAt time.Time, comment string) error
	ListByBatch(ctx context.Context, batchID string) ([]Record, error)
	// ListPending returns Sent records sent before the cutoff.
	ListPending(ctx context.Context, sentBefore time.Time) ([]Record, error)
}

// Documents reads and updates the document being approved. A document has at
// most one current batch; responses to older batches do not change its status.
type Documents interface {
	// DocumentURL returns ErrNotFound for unknown documents.
	DocumentURL(ctx context.Context, documentID string) (string, error)
	// StartBatch makes batchID current and sets the status to PendingApproval.
	StartBatch(ctx context.Context, documentID, batchID string) error
	// CurrentBatch returns "" when no batch was started.
	CurrentBatch(ctx context.Context, documentID string) (string, error)
	SetStatus(ctx context.Context, documentID string, status DocumentStatus) error
}

// Recipients lists who receives an approval request.
type Recipients interface {
	ApprovalRecipients(ctx context.Context) ([]Recipient, error)
}
