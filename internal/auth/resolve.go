package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Resolver computes a user's effective permission set: the union of
// role-derived grants and individually assigned grants, deduplicated by
// exact value. A wildcard and a specific grant on the same resource are
// distinct members even though one subsumes the other at check time.
type Resolver struct {
	store      Store
	invalidate func(userID string)
}

// ResolverOption configures Resolver behavior.
type ResolverOption func(*Resolver)

// WithInvalidationHook installs the seam for an external permission cache.
// The hook runs whenever a user's memberships change.
func WithInvalidationHook(fn func(userID string)) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.invalidate = fn
		}
	}
}

// NewResolver constructs a Resolver over the given store.
func NewResolver(store Store, opts ...ResolverOption) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	r := &Resolver{store: store, invalidate: func(string) {}}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// EffectivePermissions returns the user's deduplicated grants sorted by name.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID string) ([]Grant, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if _, err := r.store.Users().Find(ctx, userID); err != nil {
		return nil, err
	}

	permIDs := make(map[string]struct{})
	roleIDs, err := r.store.Users().RoleIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, roleID := range roleIDs {
		ids, err := r.store.Roles().PermissionIDs(ctx, roleID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			permIDs[id] = struct{}{}
		}
	}
	individual, err := r.store.Users().PermissionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, id := range individual {
		permIDs[id] = struct{}{}
	}

	ids := make([]string, 0, len(permIDs))
	for id := range permIDs {
		ids = append(ids, id)
	}
	perms, err := r.store.Permissions().FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	set := make(map[string]Grant, len(perms))
	for _, p := range perms {
		g := p.Grant()
		set[g.Name()] = g
	}
	grants := make([]Grant, 0, len(set))
	for _, g := range set {
		grants = append(grants, g)
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].Name() < grants[j].Name() })
	return grants, nil
}

// HasPermission reports whether any held grant satisfies the requested name.
// An unparseable name fails closed.
func (r *Resolver) HasPermission(ctx context.Context, userID, name string) (bool, error) {
	requested, err := ParseGrant(name)
	if err != nil {
		return false, nil
	}
	held, err := r.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, g := range held {
		if g.Grants(requested) {
			return true, nil
		}
	}
	return false, nil
}

// HasAnyPermission short-circuits on the first satisfied name. An empty list
// is never satisfied.
func (r *Resolver) HasAnyPermission(ctx context.Context, userID string, names []string) (bool, error) {
	for _, name := range names {
		ok, err := r.HasPermission(ctx, userID, name)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAllPermissions short-circuits on the first unsatisfied name. An empty
// list is vacuously satisfied.
func (r *Resolver) HasAllPermissions(ctx context.Context, userID string, names []string) (bool, error) {
	for _, name := range names {
		ok, err := r.HasPermission(ctx, userID, name)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// InvalidateUserPermissions notifies the cache seam that the user's
// memberships changed. The default hook is a no-op.
func (r *Resolver) InvalidateUserPermissions(userID string) {
	r.invalidate(userID)
}
