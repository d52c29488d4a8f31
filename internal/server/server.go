// ABOUTME: Server construction, route registration and graceful shutdown
// ABOUTME: Protected routes sit behind the auth enforcement middleware

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/squall-im/squall/internal/auth"
	"github.com/squall-im/squall/internal/config"
	"github.com/squall-im/squall/internal/store"
	"github.com/squall-im/squall/internal/tokens"
)

// Server serves the client-server authentication API.
type Server struct {
	cfg         *config.Config
	store       store.Store
	codec       *tokens.Codec
	interactive *auth.Interactive
	metrics     *collector
	throttle    *throttle
	logger      *slog.Logger
}

// New builds a server from configuration, loading the signing key from
// auth.key_file.
func New(cfg *config.Config, st store.Store, logger *slog.Logger) (*Server, error) {
	key, err := tokens.LoadSigningKey(cfg.Auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading signing key: %w", err)
	}
	codec := tokens.NewCodec(key, cfg.Server.Hostname, cfg.Auth.AuthTokenTTL, cfg.Auth.SessionTTL)
	return NewWithCodec(cfg, st, codec, logger), nil
}

// NewWithCodec builds a server around an existing codec. Used by tests that
// generate throwaway keys.
func NewWithCodec(cfg *config.Config, st store.Store, codec *tokens.Codec, logger *slog.Logger) *Server {
	s := &Server{
		cfg:         cfg,
		store:       st,
		codec:       codec,
		interactive: auth.NewInteractive(codec, cfg.Auth.InteractiveLoginFlows(), cfg.Auth.StageParams(), logger),
		metrics:     newCollector(),
		logger:      logger.With("component", "server"),
	}
	if cfg.RateLimit.Enabled {
		s.throttle = newThrottle(cfg.RateLimit)
	}
	return s
}

// Router assembles the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errCodeUnrecognized, "Unrecognized request.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errCodeUnrecognized, "Unrecognized request.")
	})
	if s.cfg.Metrics.Enabled {
		r.Use(s.metrics.middleware)
	}
	if s.throttle != nil {
		r.Use(s.throttle.middleware)
	}
	if s.cfg.Metrics.Enabled {
		r.Handle(s.cfg.Metrics.Path, promhttp.Handler())
	}

	r.Get("/_matrix/client/versions", s.handleVersions)
	r.Get("/.well-known/matrix/client", s.handleWellKnown)

	r.Route("/_matrix/client/r0", func(r chi.Router) {
		r.Get("/login", s.handleLoginInfo)
		r.Post("/login", s.handleLogin)
		r.Post("/register", s.handleRegister)
		r.Get("/register/available", s.handleUsernameAvailable)
		r.Get("/profile/{userID}/displayname", s.handleGetDisplayName)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.codec, s.store, s.logger))
			r.Post("/logout", s.handleLogout)
			r.Post("/logout/all", s.handleLogoutAll)
			r.Get("/account/whoami", s.handleWhoami)
			r.Put("/profile/{userID}/displayname", s.handleSetDisplayName)
		})
	})

	return r
}

// ListenAndServe runs the server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
