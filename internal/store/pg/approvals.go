package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sameieportalen.no/internal/approval"
)

var (
	_ approval.Repository = (*Store)(nil)
	_ approval.Documents  = (*Store)(nil)
)

const approvalColumns = `approval_id, document_id, name, email, token, sent_date, status, response_date, comment, document_url`

// InsertBatch writes every record of a batch in one transaction.
func (s *Store) InsertBatch(ctx context.Context, records []approval.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		insert into approvals (`+approvalColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, null, '', $8)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.BatchID, r.DocumentID, r.Name, r.Email, r.Token,
			r.SentAt, string(r.Status), r.DocumentURL); err != nil {
			if isPgCode(err, pgErrUniqueViolation) {
				return fmt.Errorf("duplicate approval for %s in %s: %w", r.Email, r.BatchID, err)
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) FindByToken(ctx context.Context, token string) (approval.Record, error) {
	row := s.db.QueryRowContext(ctx, `select `+approvalColumns+` from approvals where token = $1`, token)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return approval.Record{}, approval.ErrNotFound
	}
	return rec, err
}

// UpdateResponse only transitions records that are still Sent.
func (s *Store) UpdateResponse(ctx context.Context, token string, status approval.Status, respondedAt time.Time, comment string) error {
	res, err := s.db.ExecContext(ctx, `
		update approvals
		set status = $2, response_date = $3, comment = case when $4 = '' then comment else $4 end
		where token = $1 and status = 'Sent'
	`, token, string(status), respondedAt, comment)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var current string
		err := s.db.QueryRowContext(ctx, `select status from approvals where token = $1`, token).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return approval.ErrNotFound
		}
		if err != nil {
			return err
		}
		return approval.ErrAlreadyProcessed
	}
	return nil
}

func (s *Store) ListByBatch(ctx context.Context, batchID string) ([]approval.Record, error) {
	return s.queryRecords(ctx, `select `+approvalColumns+` from approvals where approval_id = $1 order by sent_date, email`, batchID)
}

func (s *Store) ListPending(ctx context.Context, sentBefore time.Time) ([]approval.Record, error) {
	return s.queryRecords(ctx, `select `+approvalColumns+` from approvals where status = 'Sent' and sent_date < $1 order by sent_date`, sentBefore)
}

func (s *Store) queryRecords(ctx context.Context, query string, arg any) ([]approval.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []approval.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (approval.Record, error) {
	var (
		rec       approval.Record
		status    string
		responded sql.NullTime
	)
	if err := row.Scan(&rec.BatchID, &rec.DocumentID, &rec.Name, &rec.Email, &rec.Token,
		&rec.SentAt, &status, &responded, &rec.Comment, &rec.DocumentURL); err != nil {
		return approval.Record{}, err
	}
	rec.Status = approval.Status(status)
	rec.SentAt = rec.SentAt.UTC()
	if responded.Valid {
		at := responded.Time.UTC()
		rec.RespondedAt = &at
	}
	return rec, nil
}

// DocumentURL reads the stored link of a meeting protocol.
func (s *Store) DocumentURL(ctx context.Context, documentID string) (string, error) {
	var url string
	err := s.db.QueryRowContext(ctx, `select document_url from meetings where id = $1`, documentID).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) {
		return "", approval.ErrNotFound
	}
	return url, err
}

// StartBatch points the meeting at batchID and resets its status to pending.
func (s *Store) StartBatch(ctx context.Context, documentID, batchID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into meetings (id, status, current_batch, updated_at) values ($1, $2, $3, $4)
		on conflict (id) do update set status = excluded.status, current_batch = excluded.current_batch,
			updated_at = excluded.updated_at
	`, documentID, string(approval.DocumentPendingApproval), batchID, s.now().UTC())
	return err
}

// CurrentBatch returns the meeting's current batch, or "" for unknown meetings.
func (s *Store) CurrentBatch(ctx context.Context, documentID string) (string, error) {
	var batchID string
	err := s.db.QueryRowContext(ctx, `select current_batch from meetings where id = $1`, documentID).Scan(&batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return batchID, err
}

// SetStatus stores the aggregate status, creating the meeting row if needed.
func (s *Store) SetStatus(ctx context.Context, documentID string, status approval.DocumentStatus) error {
	_, err := s.db.ExecContext(ctx, `
		insert into meetings (id, status, updated_at) values ($1, $2, $3)
		on conflict (id) do update set status = excluded.status, updated_at = excluded.updated_at
	`, documentID, string(status), s.now().UTC())
	return err
}

// UpsertMeeting creates or updates a meeting's title and document link.
func (s *Store) UpsertMeeting(ctx context.Context, doc approval.Document) error {
	_, err := s.db.ExecContext(ctx, `
		insert into meetings (id, title, document_url, updated_at) values ($1, $2, $3, $4)
		on conflict (id) do update set title = excluded.title, document_url = excluded.document_url, updated_at = excluded.updated_at
	`, doc.ID, doc.Title, doc.URL, s.now().UTC())
	return err
}
