package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/joestump/joe-contact/internal/api"
	"github.com/joestump/joe-contact/internal/auth"
	"github.com/joestump/joe-contact/internal/build"
	"github.com/joestump/joe-contact/internal/config"
	"github.com/joestump/joe-contact/internal/db"
	"github.com/joestump/joe-contact/internal/handler"
	"github.com/joestump/joe-contact/internal/metrics"
	"github.com/joestump/joe-contact/internal/middleware"
	"github.com/joestump/joe-contact/internal/store"
	"github.com/joestump/joe-contact/internal/upload"
	"github.com/joestump/joe-contact/internal/validate"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logger := httplog.NewLogger("joe-contact", httplog.Options{
				JSON:             cfg.Env == "production",
				Concise:          cfg.Env != "production",
				LogLevel:         slog.LevelInfo,
				MessageFieldName: "message",
				Tags: map[string]string{
					"version": build.Version,
					"env":     cfg.Env,
				},
			})
			slog.SetDefault(logger.Logger)

			database, err := db.New(cfg.DB.Driver, cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			if err := db.Migrate(database, cfg.DB.Driver); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := newServer(ctx, cfg, database, logger)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() {
				slog.Info("listening", "addr", cfg.HTTP.Addr, "contact_mode", cfg.Form.ContactMode)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			slog.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return <-errCh
		},
	}
}

// newServer wires stores, sessions, and routes into an unstarted server.
func newServer(ctx context.Context, cfg *config.Config, database *sqlx.DB, logger *httplog.Logger) (*http.Server, error) {
	sessionManager := auth.NewSessionManager(database, cfg.DB.Driver, cfg.SessionLifetime, !cfg.InsecureCookies)
	oidcProvider, err := auth.NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	adminStore := store.NewAdminStore(database)
	messageStore := store.NewMessageStore(database)
	if n, err := messageStore.Count(ctx); err == nil {
		metrics.MessagesTotal.Set(float64(n))
	}
	if n, err := adminStore.Count(ctx); err == nil && n == 0 && !cfg.OIDCEnabled() {
		slog.Warn("no inbox accounts yet; create one with `joe-contact admin create <username>`")
	}

	policy := upload.NewPolicy(cfg.Upload.Extensions, cfg.Upload.MaxBytes)
	fileStore, err := upload.NewStore(cfg.Upload.Dir, policy)
	if err != nil {
		return nil, err
	}
	rules := validate.NewRuleSet(validate.Options{
		Mode:       cfg.Form.ContactMode,
		LooseName:  cfg.Form.LooseName,
		MessageMax: cfg.Form.MessageMax,
	})

	router := handler.NewRouter(handler.Deps{
		DB:             database,
		Logger:         logger,
		SessionManager: sessionManager,
		AuthHandlers:   auth.NewHandlers(oidcProvider, sessionManager, adminStore, cfg.AdminEmail, !cfg.InsecureCookies),
		AuthMiddleware: auth.NewMiddleware(sessionManager, adminStore),
		MessageStore:   messageStore,
		FileStore:      fileStore,
		Rules:          rules,
		Limiter:        middleware.NewIPLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst),
		API: api.NewRouter(api.Deps{
			Sessions:       sessionManager,
			Rules:          rules,
			Policy:         policy,
			SubmitDelay:    cfg.Form.SubmitDelay,
			BannerDuration: cfg.Form.BannerDuration,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
		}),
		SubmitDelay:    cfg.Form.SubmitDelay,
		BannerDuration: cfg.Form.BannerDuration,
	})

	return &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}
