package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and the no-database demo
// mode of the api binary. All methods are safe for concurrent use.
type MemoryStore struct {
	mu sync.RWMutex

	users       map[string]*User
	roles       map[string]*Role
	permissions map[string]*Permission
	connections map[string]*OAuthConnection
	refresh     map[string]*RefreshToken

	userRoles map[string][]string // userID -> roleIDs, assignment order
	userPerms map[string][]string // userID -> permissionIDs
	rolePerms map[string][]string // roleID -> permissionIDs
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*User),
		roles:       make(map[string]*Role),
		permissions: make(map[string]*Permission),
		connections: make(map[string]*OAuthConnection),
		refresh:     make(map[string]*RefreshToken),
		userRoles:   make(map[string][]string),
		userPerms:   make(map[string][]string),
		rolePerms:   make(map[string][]string),
	}
}

func (m *MemoryStore) Users() UserStore                       { return (*memUserStore)(m) }
func (m *MemoryStore) Roles() RoleStore                       { return (*memRoleStore)(m) }
func (m *MemoryStore) Permissions() PermissionStore           { return (*memPermissionStore)(m) }
func (m *MemoryStore) OAuthConnections() OAuthConnectionStore { return (*memConnectionStore)(m) }
func (m *MemoryStore) RefreshTokens() RefreshTokenStore       { return (*memRefreshStore)(m) }

var _ Store = (*MemoryStore)(nil)

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func remove(ids []string, id string) ([]string, bool) {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...), true
		}
	}
	return ids, false
}

// Users ---------------------------------------------------------------------

type memUserStore MemoryStore

func (m *memUserStore) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("%w: user %q", ErrAlreadyExists, u.Email)
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUserStore) Find(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	cp := *u
	return &cp, nil
}

func (m *memUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: user %q", ErrNotFound, email)
}

func (m *memUserStore) SetPassword(_ context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *memUserStore) AssignRole(_ context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if contains(m.userRoles[userID], roleID) {
		return fmt.Errorf("%w: user already has role", ErrAlreadyExists)
	}
	m.userRoles[userID] = append(m.userRoles[userID], roleID)
	return nil
}

func (m *memUserStore) RemoveRole(_ context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, ok := remove(m.userRoles[userID], roleID)
	if !ok {
		return fmt.Errorf("%w: role assignment", ErrNotFound)
	}
	m.userRoles[userID] = ids
	return nil
}

func (m *memUserStore) RoleIDs(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.users[userID]; !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	out := make([]string, len(m.userRoles[userID]))
	copy(out, m.userRoles[userID])
	return out, nil
}

func (m *memUserStore) GrantPermission(_ context.Context, userID, permissionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if contains(m.userPerms[userID], permissionID) {
		return fmt.Errorf("%w: user already has permission", ErrAlreadyExists)
	}
	m.userPerms[userID] = append(m.userPerms[userID], permissionID)
	return nil
}

func (m *memUserStore) RevokePermission(_ context.Context, userID, permissionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, ok := remove(m.userPerms[userID], permissionID)
	if !ok {
		return fmt.Errorf("%w: permission assignment", ErrNotFound)
	}
	m.userPerms[userID] = ids
	return nil
}

func (m *memUserStore) PermissionIDs(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.userPerms[userID]))
	copy(out, m.userPerms[userID])
	return out, nil
}

// Roles ---------------------------------------------------------------------

type memRoleStore MemoryStore

func (m *memRoleStore) Create(_ context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.roles {
		if strings.EqualFold(existing.Name, role.Name) {
			return fmt.Errorf("%w: role %q", ErrAlreadyExists, role.Name)
		}
	}
	cp := *role
	m.roles[role.ID] = &cp
	return nil
}

func (m *memRoleStore) Find(_ context.Context, id string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	role, ok := m.roles[id]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", ErrNotFound, id)
	}
	cp := *role
	return &cp, nil
}

func (m *memRoleStore) FindByName(_ context.Context, name string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, role := range m.roles {
		if strings.EqualFold(role.Name, name) {
			cp := *role
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: role %q", ErrNotFound, name)
}

func (m *memRoleStore) List(_ context.Context) ([]*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Role, 0, len(m.roles))
	for _, role := range m.roles {
		cp := *role
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memRoleStore) Update(_ context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[role.ID]; !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, role.ID)
	}
	for _, existing := range m.roles {
		if existing.ID != role.ID && strings.EqualFold(existing.Name, role.Name) {
			return fmt.Errorf("%w: role %q", ErrAlreadyExists, role.Name)
		}
	}
	cp := *role
	m.roles[role.ID] = &cp
	return nil
}

func (m *memRoleStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, id)
	}
	delete(m.roles, id)
	delete(m.rolePerms, id)
	for userID, ids := range m.userRoles {
		if updated, ok := remove(ids, id); ok {
			m.userRoles[userID] = updated
		}
	}
	return nil
}

func (m *memRoleStore) AddPermission(_ context.Context, roleID, permissionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if contains(m.rolePerms[roleID], permissionID) {
		return fmt.Errorf("%w: role already has permission", ErrAlreadyExists)
	}
	m.rolePerms[roleID] = append(m.rolePerms[roleID], permissionID)
	return nil
}

func (m *memRoleStore) RemovePermission(_ context.Context, roleID, permissionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, ok := remove(m.rolePerms[roleID], permissionID)
	if !ok {
		return fmt.Errorf("%w: permission assignment", ErrNotFound)
	}
	m.rolePerms[roleID] = ids
	return nil
}

func (m *memRoleStore) PermissionIDs(_ context.Context, roleID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.rolePerms[roleID]))
	copy(out, m.rolePerms[roleID])
	return out, nil
}

// Permissions ---------------------------------------------------------------

type memPermissionStore MemoryStore

func (m *memPermissionStore) Create(_ context.Context, perm *Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.permissions {
		if existing.Name == perm.Name {
			return fmt.Errorf("%w: permission %q", ErrAlreadyExists, perm.Name)
		}
	}
	cp := *perm
	m.permissions[perm.ID] = &cp
	return nil
}

func (m *memPermissionStore) Find(_ context.Context, id string) (*Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	perm, ok := m.permissions[id]
	if !ok {
		return nil, fmt.Errorf("%w: permission %s", ErrNotFound, id)
	}
	cp := *perm
	return &cp, nil
}

func (m *memPermissionStore) FindByName(_ context.Context, name string) (*Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, perm := range m.permissions {
		if perm.Name == name {
			cp := *perm
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: permission %q", ErrNotFound, name)
}

func (m *memPermissionStore) FindByIDs(_ context.Context, ids []string) ([]*Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Permission, 0, len(ids))
	for _, id := range ids {
		if perm, ok := m.permissions[id]; ok {
			cp := *perm
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPermissionStore) List(_ context.Context) ([]*Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Permission, 0, len(m.permissions))
	for _, perm := range m.permissions {
		cp := *perm
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memPermissionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.permissions[id]; !ok {
		return fmt.Errorf("%w: permission %s", ErrNotFound, id)
	}
	delete(m.permissions, id)
	for roleID, ids := range m.rolePerms {
		if updated, ok := remove(ids, id); ok {
			m.rolePerms[roleID] = updated
		}
	}
	for userID, ids := range m.userPerms {
		if updated, ok := remove(ids, id); ok {
			m.userPerms[userID] = updated
		}
	}
	return nil
}

// OAuth connections ---------------------------------------------------------

type memConnectionStore MemoryStore

func (m *memConnectionStore) Create(_ context.Context, conn *OAuthConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.connections {
		if existing.Provider == conn.Provider && existing.ProviderUserID == conn.ProviderUserID {
			return fmt.Errorf("%w: provider identity", ErrAlreadyExists)
		}
		if existing.Provider == conn.Provider && existing.UserID == conn.UserID {
			return fmt.Errorf("%w: user connection for %s", ErrAlreadyExists, conn.Provider)
		}
	}
	cp := *conn
	m.connections[conn.ID] = &cp
	return nil
}

func (m *memConnectionStore) FindByProviderIdentity(_ context.Context, provider Provider, providerUserID string) (*OAuthConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, conn := range m.connections {
		if conn.Provider == provider && conn.ProviderUserID == providerUserID {
			cp := *conn
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: connection", ErrNotFound)
}

func (m *memConnectionStore) FindByUserAndProvider(_ context.Context, userID string, provider Provider) (*OAuthConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, conn := range m.connections {
		if conn.UserID == userID && conn.Provider == provider {
			cp := *conn
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: connection", ErrNotFound)
}

func (m *memConnectionStore) ListByUser(_ context.Context, userID string) ([]*OAuthConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*OAuthConnection
	for _, conn := range m.connections {
		if conn.UserID == userID {
			cp := *conn
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (m *memConnectionStore) Update(_ context.Context, conn *OAuthConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[conn.ID]; !ok {
		return fmt.Errorf("%w: connection %s", ErrNotFound, conn.ID)
	}
	cp := *conn
	m.connections[conn.ID] = &cp
	return nil
}

func (m *memConnectionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[id]; !ok {
		return fmt.Errorf("%w: connection %s", ErrNotFound, id)
	}
	delete(m.connections, id)
	return nil
}

// Refresh tokens ------------------------------------------------------------

type memRefreshStore MemoryStore

func (m *memRefreshStore) Create(_ context.Context, tok *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.refresh[tok.ID]; ok {
		return fmt.Errorf("%w: refresh token %s", ErrAlreadyExists, tok.ID)
	}
	cp := *tok
	m.refresh[tok.ID] = &cp
	return nil
}

func (m *memRefreshStore) Find(_ context.Context, id string) (*RefreshToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.refresh[id]
	if !ok {
		return nil, fmt.Errorf("%w: refresh token %s", ErrNotFound, id)
	}
	cp := *tok
	return &cp, nil
}

func (m *memRefreshStore) MarkRevoked(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.refresh[id]
	if !ok {
		return fmt.Errorf("%w: refresh token %s", ErrNotFound, id)
	}
	tok.Revoked = true
	return nil
}

func (m *memRefreshStore) MarkRevokedByUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tok := range m.refresh {
		if tok.UserID == userID {
			tok.Revoked = true
		}
	}
	return nil
}
