// Package server wires the HTTP router and owns the process lifecycle:
// serve, reload policy on SIGHUP, shut down gracefully on SIGINT/SIGTERM.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/arefin/codelab/internal/auth"
	"github.com/arefin/codelab/internal/handler"
	"github.com/arefin/codelab/internal/middleware"
	"github.com/arefin/codelab/internal/policy"
)

const shutdownTimeout = 10 * time.Second

// Handlers groups the HTTP handlers the router mounts.
type Handlers struct {
	Auth     *handler.AuthHandler
	Execute  *handler.ExecuteHandler
	Snippets *handler.SnippetHandler
}

type Server struct {
	httpServer *http.Server
	policies   *policy.Store
	logger     *slog.Logger
}

// New builds the router and the server around it.
func New(addr string, h Handlers, tokens *auth.TokenService, policies *policy.Store, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.Auth.HandleRegister)
		r.Post("/auth/login", h.Auth.HandleLogin)
		r.Post("/auth/logout", h.Auth.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Get("/auth/me", h.Auth.HandleMe)

			r.Post("/execute", h.Execute.HandleExecute)
			r.Get("/executions", h.Execute.HandleList)
			r.Get("/executions/{id}", h.Execute.HandleGet)
			r.Get("/stats/today", h.Execute.HandleStatsToday)

			r.Post("/snippets", h.Snippets.HandleCreate)
			r.Get("/snippets", h.Snippets.HandleList)
			r.Get("/snippets/{id}", h.Snippets.HandleGet)
			r.Put("/snippets/{id}", h.Snippets.HandleUpdate)
			r.Delete("/snippets/{id}", h.Snippets.HandleDelete)
		})
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		policies: policies,
		logger:   logger,
	}
}

// Run serves until SIGINT or SIGTERM, then drains in-flight requests for up
// to shutdownTimeout. SIGHUP reloads the security policy without a restart.
func (s *Server) Run() error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if err := s.policies.Reload(); err != nil {
					s.logger.Error("policy reload failed, keeping previous policy",
						slog.String("error", err.Error()),
					)
				}
				continue
			}

			s.logger.Info("shutting down", slog.String("signal", sig.String()))
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return s.httpServer.Shutdown(ctx)
		}
	}
}
