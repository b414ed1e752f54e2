package auth

import (
	"context"
	"net/http"
	"net/url"

	"github.com/alexedwards/scs/v2"

	"github.com/joestump/joe-contact/internal/store"
)

type contextKey string

const AdminContextKey contextKey = "admin"

// Middleware provides HTTP middleware for authentication and authorization.
type Middleware struct {
	sessions *scs.SessionManager
	admins   *store.AdminStore
}

// NewMiddleware creates a new auth Middleware.
func NewMiddleware(sm *scs.SessionManager, as *store.AdminStore) *Middleware {
	return &Middleware{sessions: sm, admins: as}
}

// RequireAuth redirects to /login if no valid session exists.
// On success, sets the *store.Admin on the request context.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adminID := m.sessions.GetString(r.Context(), SessionAdminIDKey)
		if adminID == "" {
			http.Redirect(w, r, "/login?redirect="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
			return
		}

		admin, err := m.admins.GetByID(r.Context(), adminID)
		if err != nil {
			// Session references a deleted account
			_ = m.sessions.Destroy(r.Context())
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		ctx := context.WithValue(r.Context(), AdminContextKey, admin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole returns a middleware that requires the account to have the given role.
// Must be used after RequireAuth.
func (m *Middleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			admin := AdminFromContext(r.Context())
			if admin == nil || admin.Role != role {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OptionalAdmin loads the signed-in account when there is one, without
// requiring it.
func (m *Middleware) OptionalAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if adminID := m.sessions.GetString(r.Context(), SessionAdminIDKey); adminID != "" {
			if admin, err := m.admins.GetByID(r.Context(), adminID); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), AdminContextKey, admin))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// AdminFromContext retrieves the signed-in account from the context.
func AdminFromContext(ctx context.Context) *store.Admin {
	a, _ := ctx.Value(AdminContextKey).(*store.Admin)
	return a
}
