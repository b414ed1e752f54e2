package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/joestump/joe-contact/internal/store"
)

const (
	cookieState        = "__auth_state"
	cookieCodeVerifier = "__auth_pkce"
	cookieRedirect     = "__auth_redirect"
)

// Handlers signs administrators in and out. provider is nil when single
// sign-on is not configured.
type Handlers struct {
	provider     *Provider
	sessions     *scs.SessionManager
	admins       *store.AdminStore
	adminEmail   string
	secureCookie bool
}

// NewHandlers creates a new Handlers with the given dependencies.
func NewHandlers(p *Provider, sm *scs.SessionManager, as *store.AdminStore, adminEmail string, secureCookie bool) *Handlers {
	return &Handlers{provider: p, sessions: sm, admins: as, adminEmail: adminEmail, secureCookie: secureCookie}
}

// OIDCEnabled reports whether the single sign-on routes are usable.
func (h *Handlers) OIDCEnabled() bool { return h.provider != nil }

// SignIn checks a local username/password and starts a session.
func (h *Handlers) SignIn(ctx context.Context, username, password string) (*store.Admin, error) {
	admin, err := h.admins.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, store.ErrNotFound) {
		// Spend the same time as a real comparison.
		VerifyPassword(dummyHash, password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if admin.Provider != store.ProviderLocal || !VerifyPassword(admin.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if err := h.startSession(ctx, admin); err != nil {
		return nil, err
	}
	return admin, nil
}

// dummyHash is a bcrypt hash of a random string, used to equalize timing.
const dummyHash = "$2a$12$C6UzMDM.H6dfI/f/IKcEeO5Ht/iH5tWQ9SxC.Y4uPOyMdfVg2jM6e"

func (h *Handlers) startSession(ctx context.Context, admin *store.Admin) error {
	if err := h.sessions.RenewToken(ctx); err != nil {
		return err
	}
	h.sessions.Put(ctx, SessionAdminIDKey, admin.ID)
	h.sessions.Put(ctx, SessionRoleKey, admin.Role)
	return nil
}

// OIDCLogin initiates the OIDC authorization code flow with PKCE.
func (h *Handlers) OIDCLogin(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		http.NotFound(w, r)
		return
	}
	state, err := randomString(32)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	verifier, challenge, err := GeneratePKCE()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.setPreAuthCookie(w, cookieState, state)
	h.setPreAuthCookie(w, cookieCodeVerifier, verifier)
	h.setPreAuthCookie(w, cookieRedirect, SafeRedirect(r.URL.Query().Get("redirect")))

	http.Redirect(w, r, h.provider.AuthCodeURL(state, challenge), http.StatusFound)
}

// Callback handles the OIDC provider redirect after authentication.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		http.NotFound(w, r)
		return
	}
	stateCookie, err := r.Cookie(cookieState)
	if err != nil || stateCookie.Value != r.URL.Query().Get("state") {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	verifierCookie, err := r.Cookie(cookieCodeVerifier)
	if err != nil {
		http.Error(w, "missing code verifier", http.StatusBadRequest)
		return
	}

	idToken, err := h.provider.Exchange(r.Context(), r.URL.Query().Get("code"), verifierCookie.Value)
	if err != nil {
		slog.Warn("oidc exchange failed", "error", err)
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		http.Error(w, "invalid claims", http.StatusUnauthorized)
		return
	}

	admin, err := h.admins.UpsertOIDC(r.Context(), idToken.Issuer, idToken.Subject, claims.Email, h.adminEmail)
	if err != nil {
		slog.Error("upsert oidc admin", "error", err)
		http.Error(w, "account record error", http.StatusInternalServerError)
		return
	}
	if err := h.startSession(r.Context(), admin); err != nil {
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}

	clearCookie(w, cookieState)
	clearCookie(w, cookieCodeVerifier)

	redirect := "/messages"
	if c, err := r.Cookie(cookieRedirect); err == nil {
		redirect = SafeRedirect(c.Value)
	}
	clearCookie(w, cookieRedirect)

	http.Redirect(w, r, redirect, http.StatusFound)
}

// Logout destroys the session and redirects to the contact page.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(r.Context()); err != nil {
		http.Error(w, "logout error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// SafeRedirect keeps post-login redirects on this site. Anything that is not
// a plain absolute path becomes /messages.
func SafeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/messages"
	}
	return target
}

func (h *Handlers) setPreAuthCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   300, // 5 minutes
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:    name,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	})
}
