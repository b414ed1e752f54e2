// Package api serves the small JSON surface the contact page script talks to.
package api

import (
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/joestump/joe-contact/internal/upload"
	"github.com/joestump/joe-contact/internal/validate"
)

// Deps holds all dependencies required to build the API router.
type Deps struct {
	Sessions *scs.SessionManager
	Rules    *validate.RuleSet
	Policy   *upload.Policy

	SubmitDelay    time.Duration
	BannerDuration time.Duration

	// AllowedOrigins enables CORS for the listed origins. Empty means
	// same-origin only.
	AllowedOrigins []string
}

// NewRouter creates the chi sub-router mounted at /api. Every route
// answers with application/json.
func NewRouter(deps Deps) chi.Router {
	h := &handlers{deps: deps, validate: newValidator()}

	r := chi.NewRouter()
	if len(deps.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(jsonContentType)

	r.Post("/set-theme", h.SetTheme)
	r.Post("/validate", h.ValidateField)
	r.Post("/check-file", h.CheckFile)
	r.Get("/limits", h.Limits)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found", "NOT_FOUND")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "METHOD_NOT_ALLOWED")
	})
	return r
}

type handlers struct {
	deps     Deps
	validate *validator
}

// jsonContentType sets Content-Type: application/json on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
