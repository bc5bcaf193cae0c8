// Package server exposes glean's operations to the browser extension over a
// loopback JSON API.
package server

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/hpungsan/glean/internal/assistant"
	"github.com/hpungsan/glean/internal/config"
	"github.com/hpungsan/glean/internal/retention"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 5 * time.Second

// NewRouter builds the API routes. gen may be nil when no assistant is configured;
// generation requests then fail with INVALID_REQUEST.
func NewRouter(db *sql.DB, cfg *config.Config, gen assistant.Generator) http.Handler {
	h := &Handlers{db: db, cfg: cfg, gen: gen}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(securityHeaders)
	r.Use(newOriginPolicy(cfg.ExtensionIDs).guard)

	r.Get("/healthz", h.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/captures", h.HandleCapture)
		r.Get("/pages", h.HandleListPages)
		r.Post("/sweep", h.HandleSweep)

		r.Route("/kb", func(r chi.Router) {
			r.Get("/", h.HandleListKnowledge)
			r.Post("/", h.HandleAddKnowledge)
			r.Delete("/{id}", h.HandleDeleteKnowledge)
		})

		r.Route("/ideas", func(r chi.Router) {
			r.Get("/", h.HandleListIdeas)
			r.Post("/", h.HandleAddIdea)
			r.Post("/generate", h.HandleGenerate)
			r.Post("/{id}/star", h.HandleStarIdea)
			r.Patch("/{id}", h.HandleEditIdea)
			r.Delete("/{id}", h.HandleDeleteIdea)
		})

		r.Get("/settings", h.HandleGetSettings)
		r.Patch("/settings", h.HandleUpdateSettings)
		r.Delete("/settings", h.HandleClearSettings)
	})

	return r
}

// NewServer creates the HTTP server for the extension API.
func NewServer(db *sql.DB, cfg *config.Config, gen assistant.Generator) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           NewRouter(db, cfg, gen),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Run starts the HTTP server and the retention scheduler, and shuts both down
// gracefully on SIGINT/SIGTERM or when ctx is done.
func Run(ctx context.Context, srv *http.Server, sched *retention.Scheduler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if sched != nil {
		go sched.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info().Str("addr", srv.Addr).Msg("Glean API listening")

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Warn().Msg("Server is binding to all interfaces; only loopback Host headers are accepted")
	}

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down...")
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}
