package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"coursebase.org/internal/audit"
	"coursebase.org/internal/auth"
)

func actorID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

// Roles ------------------------------------------------------------------

func (a *API) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.admin.ListRoles(r.Context(), actorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (a *API) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	role, err := a.admin.CreateRole(r.Context(), actorID(r), req.Name, req.Description, false)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.created", map[string]string{"role_id": role.ID, "role": role.Name})
	writeJSON(w, http.StatusCreated, role)
}

type updateRoleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (a *API) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "roleID")
	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == nil && req.Description == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	var (
		role *auth.Role
		err  error
	)
	if req.Name != nil {
		role, err = a.admin.RenameRole(r.Context(), actorID(r), roleID, *req.Name)
		if err != nil {
			writeDomainError(w, err)
			return
		}
	}
	if req.Description != nil {
		role, err = a.admin.UpdateRoleDescription(r.Context(), actorID(r), roleID, *req.Description)
		if err != nil {
			writeDomainError(w, err)
			return
		}
	}
	_ = audit.LogEvent(r.Context(), "role.updated", map[string]string{"role_id": role.ID, "role": role.Name})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "roleID")
	if err := a.admin.DeleteRole(r.Context(), actorID(r), roleID); err != nil {
		writeDomainError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.deleted", map[string]string{"role_id": roleID})
	w.WriteHeader(http.StatusNoContent)
}

type rolePermissionRequest struct {
	Permission string `json:"permission"`
}

func (a *API) handleAssignRolePermission(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "roleID")
	var req rolePermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.admin.AssignPermissionToRole(r.Context(), actorID(r), roleID, req.Permission); err != nil {
		writeDomainError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.permission_assigned", map[string]string{
		"role_id": roleID, "permission": req.Permission,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRemoveRolePermission(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "roleID")
	permission := chi.URLParam(r, "permission")
	if err := a.admin.RemovePermissionFromRole(r.Context(), actorID(r), roleID, permission); err != nil {
		writeDomainError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.permission_removed", map[string]string{
		"role_id": roleID, "permission": permission,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Permissions ------------------------------------------------------------

func (a *API) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := a.admin.ListPermissions(r.Context(), actorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

type createPermissionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (a *API) handleCreatePermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	perm, err := a.admin.CreatePermission(r.Context(), actorID(r), req.Name, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "permission.created", map[string]string{
		"permission_id": perm.ID, "permission": perm.Name,
	})
	writeJSON(w, http.StatusCreated, perm)
}

func (a *API) handleDeletePermission(w http.ResponseWriter, r *http.Request) {
	permissionID := chi.URLParam(r, "permissionID")
	if err := a.admin.DeletePermission(r.Context(), actorID(r), permissionID); err != nil {
		writeDomainError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "permission.deleted", map[string]string{"permission_id": permissionID})
	w.WriteHeader(http.StatusNoContent)
}

// User memberships -------------------------------------------------------

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (a *API) handleAssignUserRole(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req assignRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.admin.AssignRoleToUser(r.Context(), actorID(r), userID, req.RoleID); err != nil {
		writeDomainError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.role_assigned", map[string]string{
		"user_id": userID, "role_id": req.RoleID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRemoveUserRole(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	roleID := chi.URLParam(r, "roleID")
	if err := a.admin.RemoveRoleFromUser(r.Context(), actorID(r), userID, roleID); err != nil {
		writeDomainError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.role_removed", map[string]string{
		"user_id": userID, "role_id": roleID,
	})
	w.WriteHeader(http.StatusNoContent)
}

type userPermissionRequest struct {
	Permission string `json:"permission"`
}

func (a *API) handleGrantUserPermission(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req userPermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.admin.GrantPermissionToUser(r.Context(), actorID(r), userID, req.Permission); err != nil {
		writeDomainError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.permission_granted", map[string]string{
		"user_id": userID, "permission": req.Permission,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRevokeUserPermission(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	permission := chi.URLParam(r, "permission")
	if err := a.admin.RevokePermissionFromUser(r.Context(), actorID(r), userID, permission); err != nil {
		writeDomainError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.permission_revoked", map[string]string{
		"user_id": userID, "permission": permission,
	})
	w.WriteHeader(http.StatusNoContent)
}

type effectivePermissionsResponse struct {
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`
}

// handleEffectivePermissions resolves the target user's deduplicated grant
// set. Users may inspect themselves; anyone else requires admin.
func (a *API) handleEffectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	actor := actorID(r)
	if userID != actor && !auth.HasRole(r.Context(), auth.RoleAdmin) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	grants, err := a.resolver.EffectivePermissions(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	names := make([]string, 0, len(grants))
	for _, g := range grants {
		names = append(names, g.Name())
	}
	writeJSON(w, http.StatusOK, effectivePermissionsResponse{UserID: userID, Permissions: names})
}
