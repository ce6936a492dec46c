package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingSource struct {
	entries []RosterEntry
	admins  map[string]struct{}
	err     error
	panics  bool
	calls   int
}

func (s *countingSource) FetchRoster(context.Context) ([]RosterEntry, error) {
	s.calls++
	if s.panics {
		panic("bad row")
	}
	return s.entries, s.err
}

func (s *countingSource) FetchAdminAllowlist(context.Context) (map[string]struct{}, error) {
	if s.admins == nil {
		return map[string]struct{}{}, nil
	}
	return s.admins, nil
}

func TestResolveRolesScenarioRosterAdmin(t *testing.T) {
	repo := &StaticRoster{Entries: []RosterEntry{
		{Name: "Jane Doe", Email: "jane@x.org", RoleCell: "Styremedlem, Admin"},
	}}
	r := NewResolver(NewRosterAdapter(repo, nil))

	got := r.ResolveRoles(context.Background(), "jane@x.org")
	want := NewRoleSet(RoleResident, RoleBoardMember, RoleAdmin)
	if got != want {
		t.Fatalf("ResolveRoles = %s, want %s", got, want)
	}
}

func TestResolveRolesScenarioAllowlistOnly(t *testing.T) {
	repo := &StaticRoster{Admins: []string{"root@x.org"}}
	r := NewResolver(NewRosterAdapter(repo, nil))
	ctx := context.Background()

	if got := r.ResolveRoles(ctx, "root@x.org"); got != NewRoleSet(RoleResident, RoleAdmin) {
		t.Fatalf("root roles = %s", got)
	}
	if got := r.ResolveRoles(ctx, "nobody@x.org"); got != NewRoleSet(RoleResident) {
		t.Fatalf("nobody roles = %s", got)
	}
}

func TestResolveRolesBaseline(t *testing.T) {
	repo := &StaticRoster{Entries: []RosterEntry{
		{Name: "Other", Email: "other@x.org", RoleCell: "Styremedlem"},
	}}
	r := NewResolver(NewRosterAdapter(repo, nil))
	ctx := context.Background()

	for _, identity := range []string{"a@x.org", "b@y.com", "OTHER@x.org.evil"} {
		if got := r.ResolveRoles(ctx, identity); got != NewRoleSet(RoleResident) {
			t.Fatalf("%s resolved to %s, want {Beboer}", identity, got)
		}
	}
	for _, identity := range []string{"", "   "} {
		if got := r.ResolveRoles(ctx, identity); got != NewRoleSet(RoleGuest) {
			t.Fatalf("%q resolved to %s, want {Gjest}", identity, got)
		}
	}
}

func TestResolveRolesAdminUnionIgnoresRoster(t *testing.T) {
	repo := &StaticRoster{
		Entries: []RosterEntry{{Name: "Kari", Email: "kari@x.org", RoleCell: "Leietaker"}},
		Admins:  []string{"KARI@x.org; ola@x.org"},
	}
	r := NewResolver(NewRosterAdapter(repo, []string{"static@x.org"}))
	ctx := context.Background()

	for _, identity := range []string{"kari@x.org", "ola@x.org", "Static@X.org"} {
		if !r.ResolveRoles(ctx, identity).Has(RoleAdmin) {
			t.Fatalf("expected %s to be admin", identity)
		}
	}
	if got := r.ResolveRoles(ctx, "kari@x.org"); !got.Has(RoleTenant) {
		t.Fatalf("roster roles lost: %s", got)
	}
}

func TestResolveRolesCaseInsensitiveRosterMatch(t *testing.T) {
	repo := &StaticRoster{Entries: []RosterEntry{
		{Name: "Per", Email: " Per@X.org ", RoleCell: "vaktmester"},
		{Name: "Per again", Email: "per@x.org", RoleCell: "kjernebruker"},
	}}
	r := NewResolver(NewRosterAdapter(repo, nil))

	got := r.ResolveRoles(context.Background(), "PER@x.org")
	if got != NewRoleSet(RoleResident, RoleCaretaker, RolePowerUser) {
		t.Fatalf("ResolveRoles = %s", got)
	}
}

func TestResolveRolesCachesWithinWindow(t *testing.T) {
	src := &countingSource{entries: []RosterEntry{{Email: "jane@x.org", RoleCell: "Styremedlem"}}}
	r := NewResolver(src)
	ctx := context.Background()

	first := r.ResolveRoles(ctx, "jane@x.org")
	src.entries = nil
	second := r.ResolveRoles(ctx, "Jane@x.org")

	if first != second {
		t.Fatalf("cached roles differ: %s vs %s", first, second)
	}
	if src.calls != 1 {
		t.Fatalf("expected one roster read, got %d", src.calls)
	}

	r.Invalidate("jane@x.org")
	if got := r.ResolveRoles(ctx, "jane@x.org"); got != NewRoleSet(RoleResident) {
		t.Fatalf("invalidate did not force a re-read: %s", got)
	}
}

func TestResolveRolesCacheIsPerIdentity(t *testing.T) {
	src := &countingSource{entries: []RosterEntry{
		{Email: "a@x.org", RoleCell: "Styremedlem"},
		{Email: "b@x.org", RoleCell: "Vaktmester"},
	}}
	r := NewResolver(src)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r.ResolveRoles(ctx, "a@x.org")
		r.ResolveRoles(ctx, "b@x.org")
	}
	if src.calls != 2 {
		t.Fatalf("expected one read per identity, got %d", src.calls)
	}
}

func TestResolveRolesCacheExpires(t *testing.T) {
	src := &countingSource{}
	r := NewResolver(src, WithCacheTTL(20*time.Millisecond))
	ctx := context.Background()

	r.ResolveRoles(ctx, "a@x.org")
	time.Sleep(60 * time.Millisecond)
	r.ResolveRoles(ctx, "a@x.org")
	if src.calls != 2 {
		t.Fatalf("expected re-read after expiry, got %d reads", src.calls)
	}
}

func TestResolveRolesFailuresDegradeToGuest(t *testing.T) {
	ctx := context.Background()

	failing := &countingSource{err: errors.New("sheet unavailable")}
	r := NewResolver(failing)
	if got := r.ResolveRoles(ctx, "a@x.org"); got != NewRoleSet(RoleGuest) {
		t.Fatalf("error should degrade to guest, got %s", got)
	}
	failing.err = nil
	if got := r.ResolveRoles(ctx, "a@x.org"); got != NewRoleSet(RoleResident) {
		t.Fatalf("failure must not be cached, got %s", got)
	}

	panicking := NewResolver(&countingSource{panics: true})
	if got := panicking.ResolveRoles(ctx, "a@x.org"); got != NewRoleSet(RoleGuest) {
		t.Fatalf("panic should degrade to guest, got %s", got)
	}
}

func TestRosterAdapterSwallowsRepositoryErrors(t *testing.T) {
	repo := &StaticRoster{Err: errors.New("boom")}
	adapter := NewRosterAdapter(repo, []string{"root@x.org"})
	ctx := context.Background()

	rows, err := adapter.FetchRoster(ctx)
	if !errors.Is(err, ErrDegraded) || len(rows) != 0 {
		t.Fatalf("FetchRoster = %v, %v", rows, err)
	}
	admins, err := adapter.FetchAdminAllowlist(ctx)
	if !errors.Is(err, ErrDegraded) {
		t.Fatalf("FetchAdminAllowlist: %v", err)
	}
	if _, ok := admins["root@x.org"]; !ok || len(admins) != 1 {
		t.Fatalf("static admins lost: %v", admins)
	}

	r := NewResolver(adapter)
	if got := r.ResolveRoles(ctx, "root@x.org"); got != NewRoleSet(RoleResident, RoleAdmin) {
		t.Fatalf("ResolveRoles = %s", got)
	}
}

func TestRosterOutageIsNotCached(t *testing.T) {
	repo := &StaticRoster{
		Entries: []RosterEntry{{Name: "Anne", Email: "anne@x.org", RoleCell: "Styremedlem"}},
		Err:     errors.New("read tcp: connection reset by peer"),
	}
	r := NewResolver(NewRosterAdapter(repo, nil))
	ctx := context.Background()

	if got := r.ResolveRoles(ctx, "anne@x.org"); got != NewRoleSet(RoleResident) {
		t.Fatalf("during outage = %s, want {Beboer}", got)
	}

	repo.Err = nil
	want := NewRoleSet(RoleResident, RoleBoardMember)
	if got := r.ResolveRoles(ctx, "anne@x.org"); got != want {
		t.Fatalf("after recovery = %s, want %s", got, want)
	}
	repo.Err = errors.New("down again")
	if got := r.ResolveRoles(ctx, "anne@x.org"); got != want {
		t.Fatalf("healthy result should be cached, got %s", got)
	}
}
