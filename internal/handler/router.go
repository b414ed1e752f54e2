// Package handler serves the contact form, the theme toggle and the admin
// inbox as server-rendered pages.
package handler

import (
	"io/fs"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joestump/joe-contact/internal/auth"
	mw "github.com/joestump/joe-contact/internal/middleware"
	"github.com/joestump/joe-contact/internal/store"
	"github.com/joestump/joe-contact/internal/upload"
	"github.com/joestump/joe-contact/internal/validate"
	"github.com/joestump/joe-contact/web"
)

// Deps holds all dependencies required to build the HTTP router.
type Deps struct {
	DB             *sqlx.DB
	Logger         *httplog.Logger // nil disables request logging
	SessionManager *scs.SessionManager
	AuthHandlers   *auth.Handlers
	AuthMiddleware *auth.Middleware
	MessageStore   *store.MessageStore
	FileStore      *upload.Store
	Rules          *validate.RuleSet
	Limiter        *mw.IPLimiter
	API            http.Handler // mounted at /api

	SubmitDelay    time.Duration
	BannerDuration time.Duration
}

// NewRouter assembles the full chi router with all middleware and routes.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	if deps.Logger != nil {
		// RequestLogger brings chi's RequestID and Recoverer with it.
		r.Use(httplog.RequestLogger(deps.Logger, []string{"/healthz", "/metrics"}))
	} else {
		r.Use(middleware.Recoverer)
	}
	r.Use(mw.SecurityHeaders)
	r.Use(deps.SessionManager.LoadAndSave)

	staticSub, err := fs.Sub(web.StaticFS, "static")
	if err != nil {
		panic("failed to sub static FS: " + err.Error())
	}
	r.Handle("/static/*", http.StripPrefix("/static", http.FileServerFS(staticSub)))

	r.Get("/healthz", Healthz(deps.DB))
	r.Handle("/metrics", promhttp.Handler())

	contact := NewContactHandler(deps.SessionManager, deps.MessageStore, deps.FileStore, deps.Rules, deps.SubmitDelay, deps.BannerDuration)
	r.With(deps.AuthMiddleware.OptionalAdmin).Get("/", contact.Show)
	r.With(deps.Limiter.Limit, deps.AuthMiddleware.OptionalAdmin).Post("/", contact.Submit)

	themes := NewThemeHandler(deps.SessionManager)
	r.Post("/theme/toggle", themes.Toggle)

	login := NewLoginHandler(deps.SessionManager, deps.AuthHandlers)
	r.Get("/login", login.Show)
	r.With(deps.Limiter.Limit).Post("/login", login.Submit)
	r.Get("/auth/oidc/login", deps.AuthHandlers.OIDCLogin)
	r.Get("/auth/callback", deps.AuthHandlers.Callback)
	r.Get("/logout", deps.AuthHandlers.Logout)
	r.Post("/logout", deps.AuthHandlers.Logout)

	inbox := NewMessagesHandler(deps.SessionManager, deps.MessageStore, deps.FileStore)
	r.Group(func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)
		r.Get("/messages", inbox.List)
		r.Get("/messages/{id}/attachment", inbox.Attachment)
		r.With(deps.AuthMiddleware.RequireRole(store.RoleAdmin)).Post("/messages/{id}/delete", inbox.Delete)
	})

	if deps.API != nil {
		r.Mount("/api", deps.API)
	}

	return r
}
