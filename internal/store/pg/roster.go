package pg

import (
	"context"
	"database/sql"
	"errors"

	"sameieportalen.no/internal/admin"
	"sameieportalen.no/internal/auth"
)

var (
	_ auth.RosterRepository = (*Store)(nil)
	_ admin.Store           = (*Store)(nil)
)

// ListRoster returns every roster row. A missing table yields an empty roster.
func (s *Store) ListRoster(ctx context.Context) ([]auth.RosterEntry, error) {
	rows, err := s.db.QueryContext(ctx, `select name, email, role from roster order by id`)
	if err != nil {
		if isPgCode(err, pgErrUndefinedTable) {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var out []auth.RosterEntry
	for rows.Next() {
		var e auth.RosterEntry
		if err := rows.Scan(&e.Name, &e.Email, &e.RoleCell); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AdminAllowlist returns the raw admin allow-list cell from settings.
func (s *Store) AdminAllowlist(ctx context.Context) ([]string, error) {
	value, err := s.Setting(ctx, auth.AdminEmailsKey)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return []string{value}, nil
}

// Setting reads one configuration value. Unknown keys return auth.ErrNotFound.
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `select value from settings where key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) || isPgCode(err, pgErrUndefinedTable) {
		return "", auth.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// PutSetting inserts or replaces a configuration value.
func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into settings (key, value, updated_at) values ($1, $2, now())
		on conflict (key) do update set value = excluded.value, updated_at = now()
	`, key, value)
	return err
}

// AddRosterEntry appends a roster row.
func (s *Store) AddRosterEntry(ctx context.Context, e auth.RosterEntry) error {
	_, err := s.db.ExecContext(ctx, `insert into roster (name, email, role) values ($1, $2, $3)`,
		e.Name, auth.NormalizeIdentity(e.Email), e.RoleCell)
	return err
}
