package migrate

import (
	"context"
	"errors"
	"io/fs"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"sameieportalen.no/internal/auth"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"0001_a.up.sql":   {Data: []byte("create table a (id int);")},
		"0001_a.down.sql": {Data: []byte("drop table a;")},
		"0002_b.up.sql":   {Data: []byte("create table b (v text);\ncreate index b_idx on b (v);")},
		"0002_b.down.sql": {Data: []byte("drop table b;")},
	}
}

func newTestManager(t *testing.T, migrations, seeds fs.FS) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	m := NewManager(db, migrations, seeds)
	m.now = func() time.Time { return fixedNow }
	return m, mock
}

func expectHistoryTable(mock sqlmock.Sqlmock) {
	mock.ExpectExec("create table if not exists schema_history").WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUpAppliesPendingMigrations(t *testing.T) {
	m, mock := newTestManager(t, testFS(), nil)

	expectHistoryTable(mock)
	mock.ExpectQuery("select name from schema_history where kind").
		WithArgs(kindMigration).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("create table b (v text);\ncreate index b_idx on b (v);")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into schema_history").
		WithArgs(kindMigration, "0002_b", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	n, err := m.Up(context.Background())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if n != 1 {
		t.Fatalf("applied %d migrations, want 1", n)
	}
}

func TestUpRollsBackFailedMigration(t *testing.T) {
	m, mock := newTestManager(t, testFS(), nil)

	expectHistoryTable(mock)
	mock.ExpectQuery("select name from schema_history where kind").
		WithArgs(kindMigration).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("create table a").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	n, err := m.Up(context.Background())
	if err == nil || !strings.Contains(err.Error(), "0001_a") {
		t.Fatalf("expected failure naming 0001_a, got %v", err)
	}
	if n != 0 {
		t.Fatalf("applied %d migrations, want 0", n)
	}
}

func TestDownRevertsLatest(t *testing.T) {
	m, mock := newTestManager(t, testFS(), nil)

	expectHistoryTable(mock)
	mock.ExpectQuery("select name, applied_at from schema_history").
		WithArgs(kindMigration).
		WillReturnRows(sqlmock.NewRows([]string{"name", "applied_at"}).
			AddRow("0001_a", fixedNow).
			AddRow("0002_b", fixedNow))
	mock.ExpectBegin()
	mock.ExpectExec("drop table b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("delete from schema_history").
		WithArgs(kindMigration, "0002_b").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	name, err := m.Down(context.Background())
	if err != nil {
		t.Fatalf("Down: %v", err)
	}
	if name != "0002_b" {
		t.Fatalf("reverted %q, want 0002_b", name)
	}
}

func TestDownWithEmptyHistory(t *testing.T) {
	m, mock := newTestManager(t, testFS(), nil)

	expectHistoryTable(mock)
	mock.ExpectQuery("select name, applied_at from schema_history").
		WithArgs(kindMigration).
		WillReturnRows(sqlmock.NewRows([]string{"name", "applied_at"}))

	if _, err := m.Down(context.Background()); !errors.Is(err, ErrNothingApplied) {
		t.Fatalf("expected ErrNothingApplied, got %v", err)
	}
}

func TestSeedWritesAdminAllowlist(t *testing.T) {
	seeds := fstest.MapFS{
		"0001_settings.sql": {Data: []byte("insert into settings (key, value) values ('ADMIN_EMAILS', '');")},
		"0002_roster.sql":   {Data: []byte("insert into roster (email) values ('a@x.org');")},
	}
	m, mock := newTestManager(t, nil, seeds)

	expectHistoryTable(mock)
	mock.ExpectQuery("select name from schema_history where kind").
		WithArgs(kindSeed).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_settings.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("insert into roster").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into schema_history").
		WithArgs(kindSeed, "0002_roster.sql", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("where settings.value = ''")).
		WithArgs(auth.AdminEmailsKey, "leder@x.org,kasserer@x.org", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := m.Seed(context.Background(), []string{"leder@x.org", "kasserer@x.org"})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if n != 1 {
		t.Fatalf("ran %d seed files, want 1", n)
	}
}

func TestSeedWithoutAdminsSkipsSettings(t *testing.T) {
	m, mock := newTestManager(t, nil, fstest.MapFS{})

	expectHistoryTable(mock)
	mock.ExpectQuery("select name from schema_history where kind").
		WithArgs(kindSeed).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	if _, err := m.Seed(context.Background(), nil); err != nil {
		t.Fatalf("Seed: %v", err)
	}
}

func TestUnpairedMigrationIsRejected(t *testing.T) {
	fsys := fstest.MapFS{"0001_a.up.sql": {Data: []byte("create table a (id int);")}}
	if _, err := loadMigrations(fsys); err == nil || !strings.Contains(err.Error(), "no down file") {
		t.Fatalf("expected missing down error, got %v", err)
	}
}

func TestBundledFiles(t *testing.T) {
	migs, err := loadMigrations(Migrations())
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(migs) < 3 {
		t.Fatalf("expected bundled migrations, got %d", len(migs))
	}
	var sawApprovals bool
	for _, mig := range migs {
		data, err := fs.ReadFile(Migrations(), mig.up)
		if err != nil {
			t.Fatalf("read %s: %v", mig.up, err)
		}
		if strings.Contains(string(data), "create table if not exists approvals") {
			sawApprovals = true
		}
	}
	if !sawApprovals {
		t.Fatal("approvals table migration missing")
	}
	if seeds, _ := listSQL(Seeds(), "*.sql"); len(seeds) == 0 {
		t.Fatal("expected bundled seeds")
	}
}
