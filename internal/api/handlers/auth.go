package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"

	"github.com/autobrr/litebase/internal/apierr"
	"github.com/autobrr/litebase/internal/auth"
)

const oidcStateCookie = "litebase_oidc_state"

// AuthHandler implements spec.md §6's setup/login/logout/change-password
// and API key management endpoints, plus the OIDC callback path described
// in SPEC_FULL.md's DOMAIN STACK entry for coreos/go-oidc. Grounded on the
// teacher's internal/api/handlers/auth.go shape (one handler struct per
// resource, method-per-route).
type AuthHandler struct {
	auth           *auth.Service
	sessionManager *scs.SessionManager
	oidc           *auth.OIDCProvider // nil when OIDC is not configured
}

func NewAuthHandler(authService *auth.Service, sessionManager *scs.SessionManager, oidcProvider *auth.OIDCProvider) *AuthHandler {
	return &AuthHandler{auth: authService, sessionManager: sessionManager, oidc: oidcProvider}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Setup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apierr.BadRequest("invalid request body"))
		return
	}

	user, err := h.auth.SetupUser(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, translateAuthError(err))
		return
	}

	if err := h.startSession(r, user.Username); err != nil {
		writeError(w, apierr.Internal(err))
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) CheckSetupRequired(w http.ResponseWriter, r *http.Request) {
	complete, err := h.auth.IsSetupComplete(r.Context())
	if err != nil {
		writeError(w, apierr.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"setupRequired": !complete})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apierr.BadRequest("invalid request body"))
		return
	}

	user, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, translateAuthError(err))
		return
	}

	if err := h.startSession(r, user.Username); err != nil {
		writeError(w, apierr.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) startSession(r *http.Request, username string) error {
	if err := h.sessionManager.RenewToken(r.Context()); err != nil {
		return err
	}
	h.sessionManager.Put(r.Context(), "authenticated", true)
	h.sessionManager.Put(r.Context(), "username", username)
	return nil
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessionManager.Destroy(r.Context()); err != nil {
		writeError(w, apierr.Internal(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	username := h.sessionManager.GetString(r.Context(), "username")
	writeJSON(w, http.StatusOK, map[string]string{"username": username})
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apierr.BadRequest("invalid request body"))
		return
	}
	if err := h.auth.ChangePassword(r.Context(), req.OldPassword, req.NewPassword); err != nil {
		writeError(w, translateAuthError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.auth.ListAPIKeys(r.Context())
	if err != nil {
		writeError(w, apierr.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

type createAPIKeyRequest struct {
	Name string `json:"name"`
}

func (h *AuthHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apierr.BadRequest("invalid request body"))
		return
	}
	raw, key, err := h.auth.CreateAPIKey(r.Context(), req.Name)
	if err != nil {
		writeError(w, apierr.Internal(err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"key":     raw,
		"id":      key.ID,
		"name":    key.Name,
		"created": key.CreatedAt,
	})
}

func (h *AuthHandler) DeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, apierr.BadRequest("invalid api key id"))
		return
	}
	if err := h.auth.DeleteAPIKey(r.Context(), id); err != nil {
		writeError(w, translateAuthError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OIDCLogin redirects the caller to the configured provider's consent
// screen. Serving the provider-side UI itself is out of scope per spec.md
// §6; this only builds and issues the redirect.
func (h *AuthHandler) OIDCLogin(w http.ResponseWriter, r *http.Request) {
	if h.oidc == nil {
		writeError(w, apierr.NotFound("oidc is not configured"))
		return
	}
	state, err := randomState()
	if err != nil {
		writeError(w, apierr.Internal(err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oidcStateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int((5 * time.Minute).Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.oidc.AuthCodeURL(state), http.StatusFound)
}

// OIDCCallback exchanges the authorization code, verifies the ID token,
// and starts a session the same way a password login does.
func (h *AuthHandler) OIDCCallback(w http.ResponseWriter, r *http.Request) {
	if h.oidc == nil {
		writeError(w, apierr.NotFound("oidc is not configured"))
		return
	}

	stateCookie, err := r.Cookie(oidcStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		writeError(w, apierr.BadRequest("invalid oidc state"))
		return
	}

	claims, err := h.oidc.ExchangeAndVerify(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		writeError(w, apierr.Unauthorized("oidc exchange failed"))
		return
	}

	user, err := h.auth.LoginWithOIDC(r.Context(), h.oidc, claims)
	if err != nil {
		writeError(w, translateAuthError(err))
		return
	}

	if err := h.startSession(r, user.Username); err != nil {
		writeError(w, apierr.Internal(err))
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func translateAuthError(err error) error {
	switch {
	case errors.Is(err, auth.ErrNotSetup):
		return apierr.BadRequest("initial setup required")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return apierr.Unauthorized("invalid username or password")
	case errors.Is(err, auth.ErrUserAlreadyExists):
		return apierr.Conflict("user already exists")
	case errors.Is(err, auth.ErrInvalidAPIKey):
		return apierr.Unauthorized("invalid api key")
	case errors.Is(err, auth.ErrAPIKeyNotFound):
		return apierr.NotFound("api key not found")
	default:
		return apierr.Internal(err)
	}
}
