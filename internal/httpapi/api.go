package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"

	"coursebase.org/internal/auth"
	"coursebase.org/internal/obs"
)

// ReadyProbe reports whether downstream dependencies answer. With no
// database configured the probe always passes.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the identity core.
type API struct {
	router     chi.Router
	readyProbe ReadyProbe
	version    string

	tokens   *auth.TokenService
	authSvc  *auth.Service
	admin    *auth.AdminService
	resolver *auth.Resolver
	oauth    *auth.OAuthService
}

// Options carries the collaborators the API needs.
type Options struct {
	ReadyProbe ReadyProbe
	Version    string

	Tokens   *auth.TokenService
	Auth     *auth.Service
	Admin    *auth.AdminService
	Resolver *auth.Resolver
	OAuth    *auth.OAuthService
}

// New wires routes and middleware.
func New(opts Options) *API {
	a := &API{
		router:     chi.NewRouter(),
		readyProbe: opts.ReadyProbe,
		version:    opts.Version,
		tokens:     opts.Tokens,
		authSvc:    opts.Auth,
		admin:      opts.Admin,
		resolver:   opts.Resolver,
		oauth:      opts.OAuth,
	}

	r := a.router
	r.Use(RequestID)
	r.Use(Logging)
	r.Use(SecurityHeaders)
	r.Use(MaxBodyBytes(1 << 20))
	r.Use(RateLimit(20, 40))

	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReadyz)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/register", a.handleRegister)
		r.Post("/login", a.handleLogin)
		r.Post("/refresh", a.handleRefresh)
		r.Get("/oauth/{provider}/callback", a.handleOAuthCallback)

		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)
			r.Post("/logout", a.handleLogout)
			r.Post("/password", a.handleSetPassword)
			r.Get("/oauth/{provider}/start", a.handleOAuthStart)
			r.Delete("/oauth/{provider}", a.handleOAuthUnlink)
			r.Get("/oauth/connections", a.handleOAuthConnections)
			r.Post("/oauth/{provider}/refresh", a.handleOAuthRefresh)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(a.withAuth)

		r.Route("/v1/roles", func(r chi.Router) {
			r.Get("/", a.handleListRoles)
			r.Post("/", a.handleCreateRole)
			r.Patch("/{roleID}", a.handleUpdateRole)
			r.Delete("/{roleID}", a.handleDeleteRole)
			r.Post("/{roleID}/permissions", a.handleAssignRolePermission)
			r.Delete("/{roleID}/permissions/{permission}", a.handleRemoveRolePermission)
		})

		r.Route("/v1/permissions", func(r chi.Router) {
			r.Get("/", a.handleListPermissions)
			r.Post("/", a.handleCreatePermission)
			r.Delete("/{permissionID}", a.handleDeletePermission)
		})

		r.Route("/v1/users/{userID}", func(r chi.Router) {
			r.Post("/roles", a.handleAssignUserRole)
			r.Delete("/roles/{roleID}", a.handleRemoveUserRole)
			r.Post("/permissions", a.handleGrantUserPermission)
			r.Delete("/permissions/{permission}", a.handleRevokeUserPermission)
			r.Get("/effective-permissions", a.handleEffectivePermissions)
		})
	})

	return a
}

// Handler returns the fully instrumented root handler.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}
