package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

type recordingAuditor struct {
	mu     sync.Mutex
	events []string
	fields []map[string]any
}

func (a *recordingAuditor) LogEvent(_ context.Context, event string, fields map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	a.fields = append(a.fields, fields)
	return nil
}

func newTestEngine(repo *StaticRoster, auditor Auditor) *Engine {
	return NewEngine(NewResolver(NewRosterAdapter(repo, nil)), auditor)
}

func TestHasPermissionBoardMember(t *testing.T) {
	repo := &StaticRoster{Entries: []RosterEntry{
		{Name: "Jane Doe", Email: "jane@x.org", RoleCell: "Styremedlem"},
	}}
	e := newTestEngine(repo, nil)
	ctx := ContextWithUser(context.Background(), "jane@x.org")

	if !e.HasPermission(ctx, PermViewPersonRegister) {
		t.Fatal("board member should view the person register")
	}
	if !e.HasPermission(ctx, PermSendProtocolApproval) {
		t.Fatal("board member should send protocol approvals")
	}
	if e.HasPermission(ctx, PermViewAdminMenu) {
		t.Fatal("board member must not see the admin menu")
	}
}

func TestAdminBypassesEveryRule(t *testing.T) {
	repo := &StaticRoster{Admins: []string{"root@x.org"}}
	e := newTestEngine(repo, nil)
	ctx := ContextWithUser(context.Background(), "root@x.org")

	for _, p := range Catalog() {
		if !e.HasPermission(ctx, p) {
			t.Fatalf("admin denied %s", p)
		}
	}
}

func TestUnknownPermissionIsDenied(t *testing.T) {
	repo := &StaticRoster{Admins: []string{"root@x.org"}}
	e := newTestEngine(repo, nil)
	ctx := ContextWithUser(context.Background(), "root@x.org")

	if e.HasPermission(ctx, Permission("LAUNCH_ROCKETS")) {
		t.Fatal("unknown permission must be denied even for admins")
	}
	if e.HasPermissionNamed(ctx, "launch_rockets") {
		t.Fatal("unknown named permission must be denied")
	}
	if !e.HasPermissionNamed(ctx, "view_admin_menu") {
		t.Fatal("known named permission should be allowed for admin")
	}
}

func TestGuestAndResidentHaveNoCatalogPermissions(t *testing.T) {
	e := newTestEngine(&StaticRoster{}, nil)
	for _, ctx := range []context.Context{
		context.Background(),
		ContextWithUser(context.Background(), "resident@x.org"),
	} {
		for _, p := range Catalog() {
			if e.HasPermission(ctx, p) {
				t.Fatalf("unexpected grant of %s", p)
			}
		}
	}
}

func TestRequirePermissionDeniedAudits(t *testing.T) {
	auditor := &recordingAuditor{}
	repo := &StaticRoster{Entries: []RosterEntry{
		{Email: "kari@x.org", RoleCell: "Leietaker"},
	}}
	e := newTestEngine(repo, auditor)
	ctx := ContextWithUser(context.Background(), "kari@x.org")

	err := e.RequirePermission(ctx, PermEditConfig, "endre konfigurasjon")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	var denied *PermissionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected *PermissionDeniedError, got %T", err)
	}
	if denied.Permission != PermEditConfig || denied.Identity != "kari@x.org" {
		t.Fatalf("unexpected error details: %+v", denied)
	}
	if !strings.Contains(denied.Message(), "endre konfigurasjon") {
		t.Fatalf("unexpected message: %q", denied.Message())
	}
	if len(auditor.events) != 1 || auditor.events[0] != "permission.denied" {
		t.Fatalf("expected one deny audit event, got %v", auditor.events)
	}
	if auditor.fields[0]["permission"] != string(PermEditConfig) {
		t.Fatalf("unexpected audit fields: %v", auditor.fields[0])
	}
}

func TestRequirePermissionAllowed(t *testing.T) {
	auditor := &recordingAuditor{}
	repo := &StaticRoster{Entries: []RosterEntry{
		{Email: "per@x.org", RoleCell: "Vaktmester"},
	}}
	e := newTestEngine(repo, auditor)
	ctx := ContextWithUser(context.Background(), "per@x.org")

	if err := e.RequirePermission(ctx, PermViewCaretakerUI, "åpne vaktmestervisningen"); err != nil {
		t.Fatalf("RequirePermission: %v", err)
	}
	if len(auditor.events) != 0 {
		t.Fatalf("allowed checks must not audit: %v", auditor.events)
	}
}

func TestPermissionDeniedGenericMessage(t *testing.T) {
	err := &PermissionDeniedError{Permission: PermExportData}
	if err.Message() != "Du har ikke tilgang til denne funksjonen." {
		t.Fatalf("unexpected message %q", err.Message())
	}
}

func TestExplain(t *testing.T) {
	repo := &StaticRoster{Entries: []RosterEntry{
		{Email: "jane@x.org", RoleCell: "Kjernebruker"},
	}}
	e := newTestEngine(repo, nil)
	access := e.Explain(ContextWithUser(context.Background(), "jane@x.org"))

	if access.Identity != "jane@x.org" {
		t.Fatalf("identity = %q", access.Identity)
	}
	if access.Roles != NewRoleSet(RoleResident, RolePowerUser) {
		t.Fatalf("roles = %s", access.Roles)
	}
	if len(access.Permissions) != len(Catalog()) {
		t.Fatalf("expected full catalog, got %d entries", len(access.Permissions))
	}
	if !access.Permissions[PermGenerateReports] || access.Permissions[PermViewBudgetMenu] {
		t.Fatalf("unexpected permissions: %v", access.Permissions)
	}
}
