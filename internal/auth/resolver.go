package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"sameieportalen.no/internal/obs"
)

const (
	DefaultRoleCacheTTL  = 2 * time.Minute
	DefaultRoleCacheSize = 256
)

// Resolver merges roster roles, admin allow-list membership and the resident
// baseline for an identity, caching the result per identity.
type Resolver struct {
	source RosterSource
	cache  *lru.LRU[string, RoleSet]
	log    *logrus.Entry
}

// ResolverOption configures Resolver.
type ResolverOption func(*resolverConfig)

type resolverConfig struct {
	ttl  time.Duration
	size int
}

// WithCacheTTL overrides how long resolved roles are reused. Zero disables caching.
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(c *resolverConfig) {
		if ttl >= 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheSize bounds the number of cached identities.
func WithCacheSize(n int) ResolverOption {
	return func(c *resolverConfig) {
		if n > 0 {
			c.size = n
		}
	}
}

// NewResolver constructs a Resolver over source.
func NewResolver(source RosterSource, opts ...ResolverOption) *Resolver {
	cfg := resolverConfig{ttl: DefaultRoleCacheTTL, size: DefaultRoleCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	r := &Resolver{source: source, log: obs.Component("resolver")}
	if cfg.ttl > 0 {
		r.cache = lru.NewLRU[string, RoleSet](cfg.size, nil, cfg.ttl)
	}
	return r
}

// ResolveRoles returns the roles of identity. It never fails: an empty identity
// is a guest and any lookup failure degrades to guest.
func (r *Resolver) ResolveRoles(ctx context.Context, identity string) RoleSet {
	identity = NormalizeIdentity(identity)
	if identity == "" {
		return NewRoleSet(RoleGuest)
	}
	if r.cache != nil {
		if roles, ok := r.cache.Get(identity); ok {
			obs.ObserveRoleCache(true)
			return roles
		}
		obs.ObserveRoleCache(false)
	}

	roles, degraded, err := r.lookup(ctx, identity)
	if err != nil {
		r.log.WithError(err).WithField("identity", identity).Error("role resolution failed, treating caller as guest")
		return NewRoleSet(RoleGuest)
	}
	if degraded {
		r.log.WithField("identity", identity).Warn("roles resolved from degraded roster, not caching")
		return roles
	}
	if r.cache != nil {
		r.cache.Add(identity, roles)
	}
	return roles
}

// Invalidate drops the cached roles of identity.
func (r *Resolver) Invalidate(identity string) {
	if r.cache != nil {
		r.cache.Remove(NormalizeIdentity(identity))
	}
}

// Purge drops every cached entry, e.g. after a roster edit.
func (r *Resolver) Purge() {
	if r.cache != nil {
		r.cache.Purge()
	}
}

func (r *Resolver) lookup(ctx context.Context, identity string) (roles RoleSet, degraded bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("roster parsing panicked: %v", p)
		}
	}()

	roles = NewRoleSet(RoleResident)
	if r.source == nil {
		return roles, false, nil
	}

	admins, err := r.source.FetchAdminAllowlist(ctx)
	if err != nil {
		if !errors.Is(err, ErrDegraded) {
			return 0, false, fmt.Errorf("fetch admin allow-list: %w", err)
		}
		degraded = true
	}
	if _, ok := admins[identity]; ok {
		roles = roles.With(RoleAdmin)
	}

	rows, err := r.source.FetchRoster(ctx)
	if err != nil {
		if !errors.Is(err, ErrDegraded) {
			return 0, false, fmt.Errorf("fetch roster: %w", err)
		}
		degraded = true
	}
	for _, row := range rows {
		if NormalizeIdentity(row.Email) != identity {
			continue
		}
		roles = roles.Union(row.Roles())
	}

	if roles.Empty() {
		roles = NewRoleSet(RoleGuest)
	}
	return roles, degraded, nil
}
