package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"coursebase.org/internal/auth"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeDomainError maps service-layer sentinels to HTTP statuses. Unexpected
// errors are logged server-side and surface as an opaque 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "Token expired or invalid")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, errMessage(err, "not found"))
	case errors.Is(err, auth.ErrAlreadyExists),
		errors.Is(err, auth.ErrAlreadyLinked),
		errors.Is(err, auth.ErrLastRole),
		errors.Is(err, auth.ErrOwnAdminRole),
		errors.Is(err, auth.ErrSystemRole),
		errors.Is(err, auth.ErrLastAuthMethod):
		writeError(w, http.StatusConflict, errMessage(err, "conflict"))
	case errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, auth.ErrProviderNotConfigured),
		errors.Is(err, auth.ErrRefreshNotSupported):
		writeError(w, http.StatusBadRequest, errMessage(err, "invalid request"))
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// errMessage strips the package prefix from sentinel-wrapped errors so the
// response body reads cleanly.
func errMessage(err error, fallback string) string {
	msg := strings.TrimPrefix(err.Error(), "auth: ")
	if msg == "" {
		return fallback
	}
	return msg
}

func (a *API) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": a.version})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
