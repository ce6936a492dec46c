package admin

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"sameieportalen.no/internal/approval"
	"sameieportalen.no/internal/auth"
)

type recordingAuditor struct {
	mu     sync.Mutex
	events []string
}

func (a *recordingAuditor) LogEvent(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

type fixture struct {
	svc      *Service
	store    MemoryStore
	resolver *auth.Resolver
	auditor  *recordingAuditor
	root     context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := NewMemoryStore()
	store.Entries = []auth.RosterEntry{{Name: "Anne", Email: "anne@x.org", RoleCell: "Styremedlem"}}
	resolver := auth.NewResolver(auth.NewRosterAdapter(store, []string{"root@x.org"}))
	auditor := &recordingAuditor{}
	return &fixture{
		svc:      NewService(store, auth.NewEngine(resolver, nil), resolver, auditor),
		store:    store,
		resolver: resolver,
		auditor:  auditor,
		root:     auth.ContextWithUser(context.Background(), "root@x.org"),
	}
}

func TestAddMemberRefreshesCachedRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if got := f.resolver.ResolveRoles(ctx, "erik@x.org"); got != auth.NewRoleSet(auth.RoleResident) {
		t.Fatalf("unexpected roles before edit: %s", got)
	}
	err := f.svc.AddMember(f.root, Member{Name: "Erik", Email: " Erik@X.org ", Role: "Styremedlem"})
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	want := auth.NewRoleSet(auth.RoleResident, auth.RoleBoardMember)
	if got := f.resolver.ResolveRoles(ctx, "erik@x.org"); got != want {
		t.Fatalf("roles after edit = %s, want %s", got, want)
	}
	if len(f.auditor.events) != 1 || f.auditor.events[0] != "roster.entry.added" {
		t.Fatalf("unexpected audit events %v", f.auditor.events)
	}
}

func TestAddMemberValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]Member{
		"missing name": {Email: "x@x.org", Role: "Beboer"},
		"bad email":    {Name: "X", Email: "not-an-email", Role: "Beboer"},
		"unknown role": {Name: "X", Email: "x@x.org", Role: "Astronaut"},
	}
	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			err := f.svc.AddMember(f.root, m)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
	err := f.svc.AddMember(f.root, Member{Name: "X", Email: "x@x.org", Role: "Astronaut"})
	if !strings.Contains(err.Error(), "Styremedlem") {
		t.Fatalf("error should list known roles: %v", err)
	}
	if n := len(f.store.Entries); n != 1 {
		t.Fatalf("invalid members stored: %d rows", n)
	}
}

func TestAdminEditsRequireEditConfig(t *testing.T) {
	f := newFixture(t)
	board := auth.ContextWithUser(context.Background(), "anne@x.org")

	if err := f.svc.AddMember(board, Member{Name: "X", Email: "x@x.org", Role: "Admin"}); !errors.Is(err, auth.ErrPermissionDenied) {
		t.Fatalf("board member added roster row: %v", err)
	}
	if _, err := f.svc.SetAdmins(board, []string{"anne@x.org"}); !errors.Is(err, auth.ErrPermissionDenied) {
		t.Fatalf("board member changed admins: %v", err)
	}
}

func TestSetAdminsPurgesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if got := f.resolver.ResolveRoles(ctx, "anne@x.org"); got.Has(auth.RoleAdmin) {
		t.Fatalf("anne is not admin yet: %s", got)
	}

	admins, err := f.svc.SetAdmins(f.root, []string{"Anne@x.org", "anne@x.org"})
	if err != nil {
		t.Fatalf("SetAdmins: %v", err)
	}
	if len(admins) != 1 || admins[0] != "anne@x.org" {
		t.Fatalf("unexpected admins %v", admins)
	}
	if got := f.resolver.ResolveRoles(ctx, "anne@x.org"); !got.Has(auth.RoleAdmin) {
		t.Fatalf("cache not purged: %s", got)
	}
	if got := f.resolver.ResolveRoles(ctx, "root@x.org"); !got.Has(auth.RoleAdmin) {
		t.Fatalf("static admin lost: %s", got)
	}

	if _, err := f.svc.SetAdmins(f.root, []string{"nope"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSaveMeetingKeepsApprovalState(t *testing.T) {
	f := newFixture(t)
	board := auth.ContextWithUser(context.Background(), "anne@x.org")
	ctx := context.Background()

	if err := f.store.StartBatch(ctx, "M-1", "APR-1"); err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	err := f.svc.SaveMeeting(board, Meeting{ID: "M-1", Title: "Styremøte", DocumentURL: "https://docs.example.com/document/1"})
	if err != nil {
		t.Fatalf("SaveMeeting: %v", err)
	}
	d, _ := f.store.Get("M-1")
	if d.URL != "https://docs.example.com/document/1" || d.Status != approval.DocumentPendingApproval || d.CurrentBatch != "APR-1" {
		t.Fatalf("unexpected document %+v", d)
	}

	tenant := auth.ContextWithUser(context.Background(), "dag@x.org")
	if err := f.svc.SaveMeeting(tenant, Meeting{ID: "M-2", DocumentURL: "https://x.org"}); !errors.Is(err, auth.ErrPermissionDenied) {
		t.Fatalf("tenant saved meeting: %v", err)
	}
	if err := f.svc.SaveMeeting(board, Meeting{ID: "M-2", DocumentURL: "not a url"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
