package auth

import (
	"context"

	"github.com/sirupsen/logrus"

	"sameieportalen.no/internal/obs"
)

// Auditor receives security-relevant events.
type Auditor interface {
	LogEvent(ctx context.Context, event string, fields map[string]any) error
}

// Engine decides permission checks for the caller identity found in the context.
type Engine struct {
	resolver *Resolver
	audit    Auditor
	log      *logrus.Entry
}

// NewEngine constructs an Engine. auditor may be nil.
func NewEngine(resolver *Resolver, auditor Auditor) *Engine {
	return &Engine{
		resolver: resolver,
		audit:    auditor,
		log:      obs.Component("permissions"),
	}
}

// Roles resolves the roles of the caller in ctx.
func (e *Engine) Roles(ctx context.Context) RoleSet {
	identity, _ := UserIDFromContext(ctx)
	return e.resolver.ResolveRoles(ctx, identity)
}

// HasPermission reports whether the caller may perform p. Unknown permissions are denied.
func (e *Engine) HasPermission(ctx context.Context, p Permission) bool {
	rule, ok := Rule(p)
	if !ok {
		e.log.WithField("permission", string(p)).Warn("unknown permission requested")
		obs.ObservePermission("unknown", false)
		return false
	}
	allowed := rule.Allows(e.Roles(ctx))
	obs.ObservePermission(string(p), allowed)
	return allowed
}

// HasPermissionNamed checks a permission given by external name.
func (e *Engine) HasPermissionNamed(ctx context.Context, name string) bool {
	p, ok := ParsePermission(name)
	if !ok {
		e.log.WithField("permission", name).Warn("unknown permission requested")
		obs.ObservePermission("unknown", false)
		return false
	}
	return e.HasPermission(ctx, p)
}

// RequirePermission returns a *PermissionDeniedError when the caller lacks p.
// action is a short user-facing description of the attempted action.
func (e *Engine) RequirePermission(ctx context.Context, p Permission, action string) error {
	if e.HasPermission(ctx, p) {
		return nil
	}
	identity, _ := UserIDFromContext(ctx)
	e.log.WithFields(logrus.Fields{
		"permission": string(p),
		"identity":   identity,
		"action":     action,
	}).Warn("permission denied")
	if e.audit != nil {
		if err := e.audit.LogEvent(ctx, "permission.denied", map[string]any{
			"permission": string(p),
			"identity":   identity,
			"action":     action,
		}); err != nil {
			e.log.WithError(err).Error("audit deny event failed")
		}
	}
	return &PermissionDeniedError{Permission: p, Identity: identity, Action: action}
}

// Access summarizes what the caller may do.
type Access struct {
	Identity    string              `json:"identity"`
	Roles       RoleSet             `json:"roles"`
	Permissions map[Permission]bool `json:"permissions"`
}

// Explain resolves the caller's roles and evaluates the whole catalog.
func (e *Engine) Explain(ctx context.Context) Access {
	identity, _ := UserIDFromContext(ctx)
	roles := e.Roles(ctx)
	perms := make(map[Permission]bool, len(permissionRules))
	for _, p := range Catalog() {
		rule, _ := Rule(p)
		perms[p] = rule.Allows(roles)
	}
	return Access{Identity: identity, Roles: roles, Permissions: perms}
}
