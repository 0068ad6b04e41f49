package auth

import (
	"context"
	"testing"
	"time"

	"coursebase.org/internal/ids"
)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{t: t, ctx: context.Background(), store: NewMemoryStore()}
}

func (f *fixture) addUser(email string) *User {
	f.t.Helper()
	now := time.Now().UTC()
	u := &User{ID: ids.New(), Email: email, Active: true, CreatedAt: now, UpdatedAt: now}
	if err := f.store.Users().Create(f.ctx, u); err != nil {
		f.t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func (f *fixture) addRole(name string, system bool) *Role {
	f.t.Helper()
	now := time.Now().UTC()
	r := &Role{ID: ids.New(), Name: name, System: system, CreatedAt: now, UpdatedAt: now}
	if err := f.store.Roles().Create(f.ctx, r); err != nil {
		f.t.Fatalf("create role %s: %v", name, err)
	}
	return r
}

func (f *fixture) addPermission(name string) *Permission {
	f.t.Helper()
	g, err := ParseGrant(name)
	if err != nil {
		f.t.Fatalf("parse grant %s: %v", name, err)
	}
	p := &Permission{
		ID: ids.New(), Name: g.Name(),
		Resource: g.Resource, Action: g.Action,
		CreatedAt: time.Now().UTC(),
	}
	if err := f.store.Permissions().Create(f.ctx, p); err != nil {
		f.t.Fatalf("create permission %s: %v", name, err)
	}
	return p
}

func (f *fixture) assignRole(userID, roleID string) {
	f.t.Helper()
	if err := f.store.Users().AssignRole(f.ctx, userID, roleID); err != nil {
		f.t.Fatalf("assign role: %v", err)
	}
}

func (f *fixture) attachToRole(roleID, permID string) {
	f.t.Helper()
	if err := f.store.Roles().AddPermission(f.ctx, roleID, permID); err != nil {
		f.t.Fatalf("attach permission: %v", err)
	}
}

func (f *fixture) grantToUser(userID, permID string) {
	f.t.Helper()
	if err := f.store.Users().GrantPermission(f.ctx, userID, permID); err != nil {
		f.t.Fatalf("grant permission: %v", err)
	}
}

func (f *fixture) resolver() *Resolver {
	f.t.Helper()
	r, err := NewResolver(f.store)
	if err != nil {
		f.t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func TestEffectivePermissionsUnionAndDedupe(t *testing.T) {
	f := newFixture(t)
	user := f.addUser("u@example.com")
	editor := f.addRole("editor", false)
	viewer := f.addRole("viewer", false)
	f.assignRole(user.ID, editor.ID)
	f.assignRole(user.ID, viewer.ID)

	read := f.addPermission("course:read")
	write := f.addPermission("course:write")
	wild := f.addPermission("course:*")

	// Both roles carry course:read; the user also holds it individually.
	f.attachToRole(editor.ID, read.ID)
	f.attachToRole(editor.ID, write.ID)
	f.attachToRole(viewer.ID, read.ID)
	f.grantToUser(user.ID, read.ID)
	f.grantToUser(user.ID, wild.ID)

	grants, err := f.resolver().EffectivePermissions(f.ctx, user.ID)
	if err != nil {
		t.Fatalf("EffectivePermissions: %v", err)
	}
	want := []string{"course:*", "course:read", "course:write"}
	if len(grants) != len(want) {
		t.Fatalf("got %d grants %v, want %v", len(grants), grants, want)
	}
	for i, name := range want {
		if grants[i].Name() != name {
			t.Errorf("grants[%d] = %s, want %s", i, grants[i].Name(), name)
		}
	}
}

func TestEffectivePermissionsUnknownUser(t *testing.T) {
	f := newFixture(t)
	if _, err := f.resolver().EffectivePermissions(f.ctx, "missing"); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestHasPermissionWildcard(t *testing.T) {
	f := newFixture(t)
	user := f.addUser("u@example.com")
	role := f.addRole("editor", false)
	f.assignRole(user.ID, role.ID)
	wild := f.addPermission("course:*")
	f.attachToRole(role.ID, wild.ID)

	r := f.resolver()
	ok, err := r.HasPermission(f.ctx, user.ID, "course:delete")
	if err != nil || !ok {
		t.Fatalf("HasPermission(course:delete) = %v, %v; want true", ok, err)
	}
	ok, err = r.HasPermission(f.ctx, user.ID, "video:read")
	if err != nil || ok {
		t.Fatalf("HasPermission(video:read) = %v, %v; want false", ok, err)
	}
}

func TestHasPermissionIndividualWildcard(t *testing.T) {
	f := newFixture(t)
	user := f.addUser("u@example.com")
	wild := f.addPermission("report:*")
	f.grantToUser(user.ID, wild.ID)

	ok, err := f.resolver().HasPermission(f.ctx, user.ID, "report:export")
	if err != nil || !ok {
		t.Fatalf("individually granted wildcard should satisfy: %v, %v", ok, err)
	}
}

func TestHasPermissionSpecificNeverSatisfiesWildcard(t *testing.T) {
	f := newFixture(t)
	user := f.addUser("u@example.com")
	read := f.addPermission("course:read")
	f.grantToUser(user.ID, read.ID)

	ok, err := f.resolver().HasPermission(f.ctx, user.ID, "course:*")
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if ok {
		t.Fatal("specific grant must not satisfy a wildcard request")
	}
}

func TestHasPermissionMalformedFailsClosed(t *testing.T) {
	f := newFixture(t)
	user := f.addUser("u@example.com")

	ok, err := f.resolver().HasPermission(f.ctx, user.ID, "not-a-grant")
	if err != nil {
		t.Fatalf("malformed name must not error: %v", err)
	}
	if ok {
		t.Fatal("malformed name must fail closed")
	}
}

func TestHasAnyAndAllPermissions(t *testing.T) {
	f := newFixture(t)
	user := f.addUser("u@example.com")
	read := f.addPermission("course:read")
	f.grantToUser(user.ID, read.ID)

	r := f.resolver()

	ok, err := r.HasAnyPermission(f.ctx, user.ID, []string{"video:read", "course:read"})
	if err != nil || !ok {
		t.Fatalf("HasAnyPermission = %v, %v; want true", ok, err)
	}
	ok, err = r.HasAnyPermission(f.ctx, user.ID, nil)
	if err != nil || ok {
		t.Fatalf("empty any-list must be false, got %v, %v", ok, err)
	}

	ok, err = r.HasAllPermissions(f.ctx, user.ID, []string{"course:read", "video:read"})
	if err != nil || ok {
		t.Fatalf("HasAllPermissions with a missing grant must be false, got %v, %v", ok, err)
	}
	ok, err = r.HasAllPermissions(f.ctx, user.ID, nil)
	if err != nil || !ok {
		t.Fatalf("empty all-list must be vacuously true, got %v, %v", ok, err)
	}
}

func TestInvalidationHook(t *testing.T) {
	f := newFixture(t)
	var invalidated []string
	r, err := NewResolver(f.store, WithInvalidationHook(func(userID string) {
		invalidated = append(invalidated, userID)
	}))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	r.InvalidateUserPermissions("u1")
	r.InvalidateUserPermissions("u2")
	if len(invalidated) != 2 || invalidated[0] != "u1" || invalidated[1] != "u2" {
		t.Fatalf("invalidated = %v", invalidated)
	}
}
