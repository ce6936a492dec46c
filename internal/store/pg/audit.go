package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"sameieportalen.no/internal/audit"
)

var _ audit.Store = (*Store)(nil)

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	fields := []byte("{}")
	if len(e.Fields) > 0 {
		b, err := json.Marshal(e.Fields)
		if err != nil {
			return fmt.Errorf("marshal audit fields: %w", err)
		}
		fields = b
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log (id, occurred_at, actor, event, fields, request_id)
		values ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.OccurredAt, e.Actor, e.Event, fields, e.RequestID)
	return err
}
