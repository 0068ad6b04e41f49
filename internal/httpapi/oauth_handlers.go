package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"coursebase.org/internal/audit"
	"coursebase.org/internal/auth"
	"coursebase.org/internal/oauth"
)

const (
	stateCookie    = "cb_oauth_state"
	verifierCookie = "cb_oauth_verifier"
	sessionCookie  = "cb_oauth_session"

	oauthCookieTTL = 600 // seconds
)

func setFlowCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/v1/auth/oauth",
		MaxAge:   oauthCookieTTL,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearFlowCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/v1/auth/oauth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// handleOAuthStart begins the linking flow for the authenticated user. The
// CSRF state, PKCE verifier and the caller's own access token travel to the
// callback in short-lived HttpOnly cookies, since the provider redirect
// carries no Authorization header.
func (a *API) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	provider, err := auth.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	state, err := oauth.NewState()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	verifier := ""
	if oauth.SupportsPKCE(provider) {
		verifier, err = oauth.NewCodeVerifier()
		if err != nil {
			writeDomainError(w, err)
			return
		}
	}
	authURL, err := a.oauth.Begin(provider, state, verifier)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	setFlowCookie(w, stateCookie, state)
	if verifier != "" {
		setFlowCookie(w, verifierCookie, verifier)
	}
	if token, ok := auth.TokenFromContext(r.Context()); ok {
		setFlowCookie(w, sessionCookie, token)
	}
	writeJSON(w, http.StatusOK, map[string]string{"authorization_url": authURL})
}

// handleOAuthCallback completes the linking flow. All provider and exchange
// failures surface as one generic message so the response leaks nothing
// about which step failed.
func (a *API) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider, err := auth.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// The flow cookies are single use either way; expire them before any
	// response body is written.
	clearFlowCookie(w, stateCookie)
	clearFlowCookie(w, verifierCookie)
	clearFlowCookie(w, sessionCookie)

	stateC, err := r.Cookie(stateCookie)
	if err != nil || stateC.Value == "" {
		writeError(w, http.StatusBadRequest, "authentication failed")
		return
	}
	state := r.URL.Query().Get("state")
	if subtle.ConstantTimeCompare([]byte(state), []byte(stateC.Value)) != 1 {
		writeError(w, http.StatusBadRequest, "authentication failed")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "authentication failed")
		return
	}

	sessC, err := r.Cookie(sessionCookie)
	if err != nil || sessC.Value == "" {
		writeError(w, http.StatusUnauthorized, "Authorization header required")
		return
	}
	claims := a.tokens.VerifyAccessToken(sessC.Value)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Token expired or invalid")
		return
	}

	verifier := ""
	if c, err := r.Cookie(verifierCookie); err == nil {
		verifier = c.Value
	}

	conn, err := a.oauth.CompleteLink(r.Context(), claims.UserID, provider, code, verifier)
	if err != nil {
		// Provider-stage failures collapse into the same generic message as
		// the pre-exchange checks; only linking-rule violations keep their
		// own status.
		if providerStageError(err) {
			zap.L().Warn("oauth code exchange failed",
				zap.String("provider", string(provider)),
				zap.Error(err))
			writeError(w, http.StatusBadRequest, "authentication failed")
			return
		}
		writeDomainError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "oauth.linked", map[string]string{
		"user_id": claims.UserID, "provider": string(provider),
	})
	writeJSON(w, http.StatusOK, conn)
}

// providerStageError reports whether the error came from the provider side
// of the exchange (unconfigured provider, failed code exchange, unusable
// provider response) rather than from a linking rule of our own.
func providerStageError(err error) bool {
	if errors.Is(err, auth.ErrProviderNotConfigured) {
		return true
	}
	for _, sentinel := range []error{
		auth.ErrAlreadyLinked,
		auth.ErrInvalidInput,
		auth.ErrNotFound,
		auth.ErrAlreadyExists,
	} {
		if errors.Is(err, sentinel) {
			return false
		}
	}
	return true
}

func (a *API) handleOAuthUnlink(w http.ResponseWriter, r *http.Request) {
	provider, err := auth.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Token expired or invalid")
		return
	}
	if err := a.oauth.Unlink(r.Context(), userID, provider); err != nil {
		writeDomainError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "oauth.unlinked", map[string]string{
		"user_id": userID, "provider": string(provider),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleOAuthConnections(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Token expired or invalid")
		return
	}
	conns, err := a.oauth.Connections(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conns)
}

func (a *API) handleOAuthRefresh(w http.ResponseWriter, r *http.Request) {
	provider, err := auth.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Token expired or invalid")
		return
	}
	conn, err := a.oauth.RefreshConnectionToken(r.Context(), userID, provider)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}
