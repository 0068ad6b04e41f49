package auth

import "context"

// Store describes persistence operations required by the identity core.
// Membership mutations surface uniqueness violations as ErrAlreadyExists and
// missing rows as ErrNotFound; no implementation performs silent overwrites.
type Store interface {
	Users() UserStore
	Roles() RoleStore
	Permissions() PermissionStore
	OAuthConnections() OAuthConnectionStore
	RefreshTokens() RefreshTokenStore
}

// UserStore manages accounts and their role/permission membership sets.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	SetPassword(ctx context.Context, userID, passwordHash string) error

	AssignRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error
	RoleIDs(ctx context.Context, userID string) ([]string, error)

	GrantPermission(ctx context.Context, userID, permissionID string) error
	RevokePermission(ctx context.Context, userID, permissionID string) error
	PermissionIDs(ctx context.Context, userID string) ([]string, error)
}

// RoleStore manages roles and their permission assignments. Name lookups are
// case-insensitive.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Update(ctx context.Context, role *Role) error
	Delete(ctx context.Context, id string) error

	AddPermission(ctx context.Context, roleID, permissionID string) error
	RemovePermission(ctx context.Context, roleID, permissionID string) error
	PermissionIDs(ctx context.Context, roleID string) ([]string, error)
}

// PermissionStore manages the permission catalog.
type PermissionStore interface {
	Create(ctx context.Context, perm *Permission) error
	Find(ctx context.Context, id string) (*Permission, error)
	FindByName(ctx context.Context, name string) (*Permission, error)
	FindByIDs(ctx context.Context, ids []string) ([]*Permission, error)
	List(ctx context.Context) ([]*Permission, error)
	Delete(ctx context.Context, id string) error
}

// OAuthConnectionStore manages external identity links.
type OAuthConnectionStore interface {
	Create(ctx context.Context, conn *OAuthConnection) error
	FindByProviderIdentity(ctx context.Context, provider Provider, providerUserID string) (*OAuthConnection, error)
	FindByUserAndProvider(ctx context.Context, userID string, provider Provider) (*OAuthConnection, error)
	ListByUser(ctx context.Context, userID string) ([]*OAuthConnection, error)
	Update(ctx context.Context, conn *OAuthConnection) error
	Delete(ctx context.Context, id string) error
}

// RefreshTokenStore manages refresh token lifecycle.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	MarkRevoked(ctx context.Context, id string) error
	MarkRevokedByUser(ctx context.Context, userID string) error
}
