package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"sameieportalen.no/internal/auth"
	"sameieportalen.no/internal/obs"
)

// ErrNothingApplied is returned by Down when no migration has run.
var ErrNothingApplied = errors.New("migrate: no migrations applied")

const (
	kindMigration = "migration"
	kindSeed      = "seed"
)

const historyDDL = `create table if not exists schema_history (
	kind text not null,
	name text not null,
	applied_at timestamptz not null,
	primary key (kind, name)
)`

// Applied is one row of schema_history.
type Applied struct {
	Name      string
	AppliedAt time.Time
}

// Manager applies the bundled schema and seed files. Each file runs in its
// own transaction together with its schema_history row, so a failed file
// leaves no trace.
type Manager struct {
	db         *sql.DB
	migrations fs.FS
	seeds      fs.FS
	now        func() time.Time
	log        *logrus.Entry
}

// NewManager constructs a Manager. A nil file system counts as empty.
func NewManager(db *sql.DB, migrations, seeds fs.FS) *Manager {
	return &Manager{
		db:         db,
		migrations: migrations,
		seeds:      seeds,
		now:        time.Now,
		log:        obs.Component("migrate"),
	}
}

// migration pairs NNNN_name.up.sql with NNNN_name.down.sql.
type migration struct {
	name string
	up   string
	down string
}

// Up applies pending migrations in name order and reports how many ran.
func (m *Manager) Up(ctx context.Context) (int, error) {
	migs, err := loadMigrations(m.migrations)
	if err != nil {
		return 0, err
	}
	done, err := m.appliedSet(ctx, kindMigration)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, mig := range migs {
		if done[mig.name] {
			continue
		}
		if err := m.apply(ctx, m.migrations, mig.up, recordHistory(kindMigration, mig.name, m.now())); err != nil {
			return n, fmt.Errorf("migrate: apply %s: %w", mig.name, err)
		}
		m.log.WithField("migration", mig.name).Info("applied")
		n++
	}
	return n, nil
}

// Down reverts the highest applied migration and returns its name.
func (m *Manager) Down(ctx context.Context) (string, error) {
	history, err := m.Status(ctx)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "", ErrNothingApplied
	}
	last := history[len(history)-1].Name

	migs, err := loadMigrations(m.migrations)
	if err != nil {
		return "", err
	}
	idx := sort.Search(len(migs), func(i int) bool { return migs[i].name >= last })
	if idx == len(migs) || migs[idx].name != last {
		return "", fmt.Errorf("migrate: %s is applied but not bundled", last)
	}
	if err := m.apply(ctx, m.migrations, migs[idx].down, forgetHistory(kindMigration, last)); err != nil {
		return "", fmt.Errorf("migrate: revert %s: %w", last, err)
	}
	m.log.WithField("migration", last).Info("reverted")
	return last, nil
}

// Status lists applied migrations in name order.
func (m *Manager) Status(ctx context.Context) ([]Applied, error) {
	if _, err := m.db.ExecContext(ctx, historyDDL); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx,
		`select name, applied_at from schema_history where kind = $1 order by name`, kindMigration)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Applied
	for rows.Next() {
		var a Applied
		if err := rows.Scan(&a.Name, &a.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Seed runs seed files that have not run before, then stores adminEmails
// as the admin allow-list unless an operator has already set one.
func (m *Manager) Seed(ctx context.Context, adminEmails []string) (int, error) {
	files, err := listSQL(m.seeds, "*.sql")
	if err != nil {
		return 0, err
	}
	done, err := m.appliedSet(ctx, kindSeed)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, name := range files {
		if done[name] {
			continue
		}
		if err := m.apply(ctx, m.seeds, name, recordHistory(kindSeed, name, m.now())); err != nil {
			return n, fmt.Errorf("migrate: seed %s: %w", name, err)
		}
		n++
	}
	if len(adminEmails) == 0 {
		return n, nil
	}

	res, err := m.db.ExecContext(ctx, `
		insert into settings (key, value, updated_at) values ($1, $2, $3)
		on conflict (key) do update set value = excluded.value, updated_at = excluded.updated_at
		where settings.value = ''
	`, auth.AdminEmailsKey, strings.Join(adminEmails, ","), m.now().UTC())
	if err != nil {
		return n, fmt.Errorf("migrate: seed admin allow-list: %w", err)
	}
	if changed, _ := res.RowsAffected(); changed == 0 {
		m.log.Info("admin allow-list already set, keeping it")
	}
	return n, nil
}

func (m *Manager) appliedSet(ctx context.Context, kind string) (map[string]bool, error) {
	if _, err := m.db.ExecContext(ctx, historyDDL); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, `select name from schema_history where kind = $1`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		set[name] = true
	}
	return set, rows.Err()
}

type historyStep func(ctx context.Context, tx *sql.Tx) error

func recordHistory(kind, name string, at time.Time) historyStep {
	return func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`insert into schema_history (kind, name, applied_at) values ($1, $2, $3)`, kind, name, at.UTC())
		return err
	}
}

func forgetHistory(kind, name string) historyStep {
	return func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `delete from schema_history where kind = $1 and name = $2`, kind, name)
		return err
	}
}

// apply runs one file as a single multi-statement exec. Without arguments
// pgx uses the simple query protocol, which accepts several statements.
func (m *Manager) apply(ctx context.Context, fsys fs.FS, file string, step historyStep) error {
	body, err := fs.ReadFile(fsys, file)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return err
	}
	if err := step(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func loadMigrations(fsys fs.FS) ([]migration, error) {
	ups, err := listSQL(fsys, "*.up.sql")
	if err != nil {
		return nil, err
	}
	out := make([]migration, 0, len(ups))
	for _, up := range ups {
		name := strings.TrimSuffix(up, ".up.sql")
		down := name + ".down.sql"
		if _, err := fs.Stat(fsys, down); err != nil {
			return nil, fmt.Errorf("migrate: %s has no down file", name)
		}
		out = append(out, migration{name: name, up: up, down: down})
	}
	return out, nil
}

func listSQL(fsys fs.FS, pattern string) ([]string, error) {
	if fsys == nil {
		return nil, nil
	}
	names, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
