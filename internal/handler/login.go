package handler

import (
	"errors"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/httplog/v2"

	"github.com/joestump/joe-contact/internal/auth"
)

// LoginHandler serves the inbox sign-in form.
type LoginHandler struct {
	sessions *scs.SessionManager
	auth     *auth.Handlers
}

// NewLoginHandler creates a new LoginHandler.
func NewLoginHandler(sm *scs.SessionManager, ah *auth.Handlers) *LoginHandler {
	return &LoginHandler{sessions: sm, auth: ah}
}

// LoginPage is the template data for the sign-in form.
type LoginPage struct {
	BasePage
	Username    string
	Redirect    string
	Error       string
	OIDCEnabled bool
}

// Show serves GET /login. Signed-in admins go straight to the inbox.
func (h *LoginHandler) Show(w http.ResponseWriter, r *http.Request) {
	redirect := auth.SafeRedirect(r.URL.Query().Get("redirect"))
	if h.sessions.GetString(r.Context(), auth.SessionAdminIDKey) != "" {
		http.Redirect(w, r, redirect, http.StatusFound)
		return
	}
	render(w, "login.html", LoginPage{
		BasePage:    newBasePage(r, h.sessions),
		Redirect:    redirect,
		OIDCEnabled: h.auth.OIDCEnabled(),
	})
}

// Submit handles POST /login.
func (h *LoginHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	username := r.PostFormValue("username")
	redirect := auth.SafeRedirect(r.PostFormValue("redirect"))

	admin, err := h.auth.SignIn(r.Context(), username, r.PostFormValue("password"))
	if errors.Is(err, auth.ErrInvalidCredentials) {
		renderStatus(w, http.StatusUnauthorized, "login.html", LoginPage{
			BasePage:    newBasePage(r, h.sessions),
			Username:    username,
			Redirect:    redirect,
			Error:       "Invalid username or password",
			OIDCEnabled: h.auth.OIDCEnabled(),
		})
		return
	}
	if err != nil {
		httplog.LogEntry(r.Context()).Error("sign in", httplog.ErrAttr(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	httplog.LogEntry(r.Context()).Info("admin signed in", "admin_id", admin.ID)
	http.Redirect(w, r, redirect, http.StatusSeeOther)
}
