// Package admin maintains the roster, the admin allow-list and the meeting
// documents that the approval workflow reads.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"sameieportalen.no/internal/approval"
	"sameieportalen.no/internal/auth"
	"sameieportalen.no/internal/obs"
)

const (
	actionEditRoster   = "endre beboerregisteret"
	actionEditAdmins   = "endre administratorlisten"
	actionEditMeetings = "registrere møtedokumenter"
)

var ErrValidation = errors.New("admin: validation failed")

// Store writes the data behind role resolution and approvals.
type Store interface {
	AddRosterEntry(ctx context.Context, e auth.RosterEntry) error
	PutSetting(ctx context.Context, key, value string) error
	UpsertMeeting(ctx context.Context, doc approval.Document) error
}

// RoleCache is the part of the resolver that must see roster edits.
type RoleCache interface {
	Invalidate(identity string)
	Purge()
}

// Service applies permission-checked edits and keeps the role cache fresh.
type Service struct {
	store    Store
	gate     approval.Gate
	cache    RoleCache
	audit    auth.Auditor
	validate *validator.Validate
	log      *logrus.Entry
}

func NewService(store Store, gate approval.Gate, cache RoleCache, auditor auth.Auditor) *Service {
	return &Service{
		store:    store,
		gate:     gate,
		cache:    cache,
		audit:    auditor,
		validate: validator.New(),
		log:      obs.Component("admin"),
	}
}

// Member is a roster row to add.
type Member struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email,max=320"`
	Role  string `json:"role" validate:"required,max=500"`
}

// AddMember appends a roster row and drops the member's cached roles.
func (s *Service) AddMember(ctx context.Context, m Member) error {
	if err := s.gate.RequirePermission(ctx, auth.PermEditConfig, actionEditRoster); err != nil {
		return err
	}
	m.Name = strings.TrimSpace(m.Name)
	m.Email = auth.NormalizeIdentity(m.Email)
	m.Role = strings.TrimSpace(m.Role)
	if err := s.validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if auth.ParseRoleCell(m.Role).Empty() {
		return fmt.Errorf("%w: role %q names no known role (known: %s)", ErrValidation, m.Role, knownRoles())
	}
	if err := s.store.AddRosterEntry(ctx, auth.RosterEntry{Name: m.Name, Email: m.Email, RoleCell: m.Role}); err != nil {
		return fmt.Errorf("admin: add roster entry: %w", err)
	}
	s.cache.Invalidate(m.Email)
	s.event(ctx, "roster.entry.added", map[string]any{"email": m.Email, "role": m.Role})
	return nil
}

// SetAdmins replaces the stored admin allow-list. Every cached role set is
// dropped because any identity may have gained or lost Admin.
func (s *Service) SetAdmins(ctx context.Context, emails []string) ([]string, error) {
	if err := s.gate.RequirePermission(ctx, auth.PermEditConfig, actionEditAdmins); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, raw := range emails {
		e := auth.NormalizeIdentity(raw)
		if err := s.validate.Var(e, "required,email"); err != nil {
			return nil, fmt.Errorf("%w: invalid email %q", ErrValidation, raw)
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	if err := s.store.PutSetting(ctx, auth.AdminEmailsKey, strings.Join(out, ",")); err != nil {
		return nil, fmt.Errorf("admin: store admin list: %w", err)
	}
	s.cache.Purge()
	s.event(ctx, "admins.updated", map[string]any{"count": len(out)})
	return out, nil
}

// Meeting registers the document of a meeting.
type Meeting struct {
	ID          string `json:"id" validate:"required,max=200"`
	Title       string `json:"title" validate:"max=500"`
	DocumentURL string `json:"document_url" validate:"required,url,max=2048"`
}

// SaveMeeting creates or updates a meeting document. Its approval state is kept.
func (s *Service) SaveMeeting(ctx context.Context, m Meeting) error {
	if err := s.gate.RequirePermission(ctx, auth.PermOpenMeetingsUI, actionEditMeetings); err != nil {
		return err
	}
	m.ID = strings.TrimSpace(m.ID)
	m.Title = strings.TrimSpace(m.Title)
	m.DocumentURL = strings.TrimSpace(m.DocumentURL)
	if err := s.validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.store.UpsertMeeting(ctx, approval.Document{ID: m.ID, Title: m.Title, URL: m.DocumentURL}); err != nil {
		return fmt.Errorf("admin: save meeting: %w", err)
	}
	s.event(ctx, "meeting.saved", map[string]any{"document_id": m.ID})
	return nil
}

func (s *Service) event(ctx context.Context, name string, fields map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogEvent(ctx, name, fields); err != nil {
		s.log.WithError(err).WithField("event", name).Error("audit event failed")
	}
}

func knownRoles() string {
	roles := auth.AllRoles()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return strings.Join(names, ", ")
}
