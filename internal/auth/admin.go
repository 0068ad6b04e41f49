package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"coursebase.org/internal/ids"
)

var roleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,49}$`)

// AdminService implements role and permission administration. Every
// operation requires the acting user to hold the admin role; authorization
// failures are ErrUnauthorized and stay distinct from not-found, conflict
// and validation errors so the boundary can map them to 403 vs 404/409/400.
type AdminService struct {
	store    Store
	resolver *Resolver
	events   Publisher
	now      func() time.Time
}

// NewAdminService constructs the administration service. The resolver is
// used only for cache invalidation after membership changes.
func NewAdminService(store Store, resolver *Resolver, events Publisher) (*AdminService, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if resolver == nil {
		return nil, errors.New("auth: resolver is required")
	}
	if events == nil {
		events = NopPublisher{}
	}
	return &AdminService{store: store, resolver: resolver, events: events, now: time.Now}, nil
}

func normalizeRoleName(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if !roleNamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: invalid role name %q", ErrInvalidInput, name)
	}
	return name, nil
}

// requireAdmin checks live store state, not token claims, so a demoted admin
// loses administrative access as soon as the membership row is gone.
func (s *AdminService) requireAdmin(ctx context.Context, actorID string) error {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return ErrUnauthorized
	}
	roleIDs, err := s.store.Users().RoleIDs(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUnauthorized
		}
		return err
	}
	for _, roleID := range roleIDs {
		role, err := s.store.Roles().Find(ctx, roleID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return err
		}
		if role.Name == RoleAdmin {
			return nil
		}
	}
	return ErrUnauthorized
}

// CreateRole creates a role. Only the admin role may carry the system flag.
func (s *AdminService) CreateRole(ctx context.Context, actorID, name, description string, system bool) (*Role, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	name, err := normalizeRoleName(name)
	if err != nil {
		return nil, err
	}
	if system && name != RoleAdmin {
		return nil, fmt.Errorf("%w: only the %s role may be a system role", ErrInvalidInput, RoleAdmin)
	}
	now := s.now().UTC()
	role := &Role{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(description),
		System:      system,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Roles().Create(ctx, role); err != nil {
		return nil, err
	}
	s.events.Publish(ctx, RoleCreated{RoleID: role.ID, Name: role.Name})
	return role, nil
}

// RenameRole renames a non-system role. Renaming a role to its current name
// succeeds without touching the store.
func (s *AdminService) RenameRole(ctx context.Context, actorID, roleID, newName string) (*Role, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	role, err := s.store.Roles().Find(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role.System {
		return nil, fmt.Errorf("%w: %s cannot be renamed", ErrSystemRole, role.Name)
	}
	newName, err = normalizeRoleName(newName)
	if err != nil {
		return nil, err
	}
	if newName == role.Name {
		return role, nil
	}
	if existing, err := s.store.Roles().FindByName(ctx, newName); err == nil && existing.ID != role.ID {
		return nil, fmt.Errorf("%w: role %q", ErrAlreadyExists, newName)
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	role.Name = newName
	role.UpdatedAt = s.now().UTC()
	if err := s.store.Roles().Update(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// UpdateRoleDescription changes the free-form description of any role,
// system roles included.
func (s *AdminService) UpdateRoleDescription(ctx context.Context, actorID, roleID, description string) (*Role, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	role, err := s.store.Roles().Find(ctx, roleID)
	if err != nil {
		return nil, err
	}
	role.Description = strings.TrimSpace(description)
	role.UpdatedAt = s.now().UTC()
	if err := s.store.Roles().Update(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// DeleteRole deletes a non-system role.
func (s *AdminService) DeleteRole(ctx context.Context, actorID, roleID string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	role, err := s.store.Roles().Find(ctx, roleID)
	if err != nil {
		return err
	}
	if role.System {
		return fmt.Errorf("%w: %s cannot be deleted", ErrSystemRole, role.Name)
	}
	if err := s.store.Roles().Delete(ctx, roleID); err != nil {
		return err
	}
	s.events.Publish(ctx, RoleDeleted{RoleID: role.ID, Name: role.Name})
	return nil
}

// ListRoles returns every role.
func (s *AdminService) ListRoles(ctx context.Context, actorID string) ([]*Role, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	return s.store.Roles().List(ctx)
}

// CreatePermission registers a resource:action capability. The name is
// validated and normalized through the grant parser and is immutable after
// creation.
func (s *AdminService) CreatePermission(ctx context.Context, actorID, name, description string) (*Permission, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	grant, err := ParseGrant(name)
	if err != nil {
		return nil, err
	}
	perm := &Permission{
		ID:          ids.New(),
		Name:        grant.Name(),
		Resource:    grant.Resource,
		Action:      grant.Action,
		Description: strings.TrimSpace(description),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Permissions().Create(ctx, perm); err != nil {
		return nil, err
	}
	return perm, nil
}

// DeletePermission removes a permission from the catalog.
func (s *AdminService) DeletePermission(ctx context.Context, actorID, permissionID string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if _, err := s.store.Permissions().Find(ctx, permissionID); err != nil {
		return err
	}
	return s.store.Permissions().Delete(ctx, permissionID)
}

// ListPermissions returns the full permission catalog.
func (s *AdminService) ListPermissions(ctx context.Context, actorID string) ([]*Permission, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	return s.store.Permissions().List(ctx)
}

// AssignPermissionToRole attaches a permission (by exact name) to a role.
func (s *AdminService) AssignPermissionToRole(ctx context.Context, actorID, roleID, permissionName string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	role, err := s.store.Roles().Find(ctx, roleID)
	if err != nil {
		return err
	}
	perm, err := s.store.Permissions().FindByName(ctx, permissionName)
	if err != nil {
		return err
	}
	if err := s.store.Roles().AddPermission(ctx, role.ID, perm.ID); err != nil {
		return err
	}
	return nil
}

// RemovePermissionFromRole detaches a permission (by exact name) from a role.
func (s *AdminService) RemovePermissionFromRole(ctx context.Context, actorID, roleID, permissionName string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	role, err := s.store.Roles().Find(ctx, roleID)
	if err != nil {
		return err
	}
	perm, err := s.store.Permissions().FindByName(ctx, permissionName)
	if err != nil {
		return err
	}
	return s.store.Roles().RemovePermission(ctx, role.ID, perm.ID)
}

// GrantPermissionToUser attaches an individual permission to a user.
func (s *AdminService) GrantPermissionToUser(ctx context.Context, actorID, userID, permissionName string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if _, err := s.store.Users().Find(ctx, userID); err != nil {
		return err
	}
	perm, err := s.store.Permissions().FindByName(ctx, permissionName)
	if err != nil {
		return err
	}
	if err := s.store.Users().GrantPermission(ctx, userID, perm.ID); err != nil {
		return err
	}
	s.resolver.InvalidateUserPermissions(userID)
	s.events.Publish(ctx, PermissionGranted{UserID: userID, Permission: perm.Name, ActorID: actorID})
	return nil
}

// RevokePermissionFromUser removes an individual permission from a user.
func (s *AdminService) RevokePermissionFromUser(ctx context.Context, actorID, userID, permissionName string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if _, err := s.store.Users().Find(ctx, userID); err != nil {
		return err
	}
	perm, err := s.store.Permissions().FindByName(ctx, permissionName)
	if err != nil {
		return err
	}
	if err := s.store.Users().RevokePermission(ctx, userID, perm.ID); err != nil {
		return err
	}
	s.resolver.InvalidateUserPermissions(userID)
	s.events.Publish(ctx, PermissionRevoked{UserID: userID, Permission: perm.Name, ActorID: actorID})
	return nil
}

// AssignRoleToUser adds a role membership. Assigning a role the user already
// holds fails with a conflict from the store.
func (s *AdminService) AssignRoleToUser(ctx context.Context, actorID, userID, roleID string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if _, err := s.store.Users().Find(ctx, userID); err != nil {
		return err
	}
	role, err := s.store.Roles().Find(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.store.Users().AssignRole(ctx, userID, role.ID); err != nil {
		return err
	}
	s.resolver.InvalidateUserPermissions(userID)
	s.events.Publish(ctx, RoleAssigned{UserID: userID, RoleID: role.ID, Role: role.Name, ActorID: actorID})
	return nil
}

// RemoveRoleFromUser removes a role membership. Check order matters: when
// the actor targets themselves and the role is admin, the own-admin rule
// fires before the missing-membership and last-role checks.
func (s *AdminService) RemoveRoleFromUser(ctx context.Context, actorID, userID, roleID string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if _, err := s.store.Users().Find(ctx, userID); err != nil {
		return err
	}
	role, err := s.store.Roles().Find(ctx, roleID)
	if err != nil {
		return err
	}
	if userID == actorID && role.Name == RoleAdmin {
		return ErrOwnAdminRole
	}
	held, err := s.store.Users().RoleIDs(ctx, userID)
	if err != nil {
		return err
	}
	found := false
	for _, id := range held {
		if id == role.ID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: user does not have role %q", ErrNotFound, role.Name)
	}
	if len(held) == 1 {
		return ErrLastRole
	}
	if err := s.store.Users().RemoveRole(ctx, userID, role.ID); err != nil {
		return err
	}
	s.resolver.InvalidateUserPermissions(userID)
	s.events.Publish(ctx, RoleRemoved{UserID: userID, RoleID: role.ID, Role: role.Name, ActorID: actorID})
	return nil
}
