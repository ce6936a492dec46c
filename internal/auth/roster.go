package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"sameieportalen.no/internal/obs"
)

// RosterEntry is one raw, un-normalized row of the roster table.
type RosterEntry struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	RoleCell string `json:"role"`
}

// Roles parses the entry's role cell.
func (e RosterEntry) Roles() RoleSet { return ParseRoleCell(e.RoleCell) }

// AdminEmailsKey is the settings key holding the admin allow-list.
const AdminEmailsKey = "ADMIN_EMAILS"

// RosterRepository reads the roster and the admin allow-list from storage.
type RosterRepository interface {
	ListRoster(ctx context.Context) ([]RosterEntry, error)
	AdminAllowlist(ctx context.Context) ([]string, error)
}

// RosterSource is what the resolver consumes. An error matching ErrDegraded
// comes with usable fallback data that must not be cached.
type RosterSource interface {
	FetchRoster(ctx context.Context) ([]RosterEntry, error)
	FetchAdminAllowlist(ctx context.Context) (map[string]struct{}, error)
}

// RosterAdapter turns repository failures into empty results so that role
// resolution degrades instead of failing. Static admins from configuration are
// unioned into the allow-list.
type RosterAdapter struct {
	repo         RosterRepository
	staticAdmins []string
	log          *logrus.Entry
}

var _ RosterSource = (*RosterAdapter)(nil)

// NewRosterAdapter wraps repo. repo may be nil, in which case only static admins exist.
func NewRosterAdapter(repo RosterRepository, staticAdmins []string) *RosterAdapter {
	return &RosterAdapter{
		repo:         repo,
		staticAdmins: staticAdmins,
		log:          obs.Component("roster"),
	}
}

func (a *RosterAdapter) FetchRoster(ctx context.Context) ([]RosterEntry, error) {
	if a.repo == nil {
		return nil, nil
	}
	rows, err := a.repo.ListRoster(ctx)
	if err != nil {
		a.log.WithError(err).Warn("roster read failed, continuing without roster")
		return nil, fmt.Errorf("%w: roster: %v", ErrDegraded, err)
	}
	return rows, nil
}

func (a *RosterAdapter) FetchAdminAllowlist(ctx context.Context) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	addAll(out, a.staticAdmins)
	if a.repo == nil {
		return out, nil
	}
	list, err := a.repo.AdminAllowlist(ctx)
	if err != nil {
		a.log.WithError(err).Warn("admin allow-list read failed, using static admins only")
		return out, fmt.Errorf("%w: admin allow-list: %v", ErrDegraded, err)
	}
	addAll(out, list)
	return out, nil
}

func addAll(set map[string]struct{}, emails []string) {
	for _, raw := range emails {
		for _, e := range splitEmails(raw) {
			set[e] = struct{}{}
		}
	}
}

// splitEmails splits a configuration cell on commas, semicolons and whitespace.
func splitEmails(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\t', '\n', '\r':
			return true
		}
		return false
	})
	out := fields[:0]
	for _, f := range fields {
		if f = NormalizeIdentity(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// StaticRoster is an in-memory RosterRepository, used by tests and when the
// service runs without a database.
type StaticRoster struct {
	mu      sync.RWMutex
	Entries []RosterEntry
	Admins  []string
	Err     error
}

func (s *StaticRoster) ListRoster(context.Context) ([]RosterEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]RosterEntry, len(s.Entries))
	copy(out, s.Entries)
	return out, nil
}

func (s *StaticRoster) AdminAllowlist(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]string, len(s.Admins))
	copy(out, s.Admins)
	return out, nil
}

func (s *StaticRoster) AddRosterEntry(_ context.Context, e RosterEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Email = NormalizeIdentity(e.Email)
	s.Entries = append(s.Entries, e)
	return nil
}

// PutSetting supports AdminEmailsKey only.
func (s *StaticRoster) PutSetting(_ context.Context, key, value string) error {
	if key != AdminEmailsKey {
		return fmt.Errorf("%w: unknown setting %q", ErrInvalidInput, key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Admins = []string{value}
	return nil
}
