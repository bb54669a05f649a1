// Package gwserver wires the gateway's dependencies into a runnable
// HTTP server, in the shape of the teacher's hub.Server: NewServer
// validates config, opens stores, and mounts routes; Serve blocks
// until ctx is cancelled, then drains and closes everything in order.
package gwserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cdpfleet/cdpfleet/internal/gwconfig"
	"github.com/cdpfleet/cdpfleet/internal/gwhttp"
	"github.com/cdpfleet/cdpfleet/internal/gwrelay"
	"github.com/cdpfleet/cdpfleet/internal/gwservice"
	"github.com/cdpfleet/cdpfleet/internal/logging"
	"github.com/cdpfleet/cdpfleet/internal/metrics"
	"github.com/cdpfleet/cdpfleet/internal/reaper"
	"github.com/cdpfleet/cdpfleet/internal/registry"
	"github.com/cdpfleet/cdpfleet/internal/registry/memstore"
	"github.com/cdpfleet/cdpfleet/internal/registry/relstore"
	"github.com/cdpfleet/cdpfleet/internal/scheduler"
	"github.com/cdpfleet/cdpfleet/internal/tenant"
	"github.com/cdpfleet/cdpfleet/internal/tenant/devfixed"
	"github.com/cdpfleet/cdpfleet/internal/tenant/jwtprovider"
	"github.com/cdpfleet/cdpfleet/internal/workerclient"
)

// shutdownTimeout bounds how long Serve waits for in-flight HTTP
// requests to drain on shutdown. Open relay tunnels are hijacked
// WebSocket connections, which http.Server.Shutdown does not wait for.
const shutdownTimeout = 10 * time.Second

// Server owns every dependency the gateway needs and the http.Server
// that fronts them.
type Server struct {
	cfg *gwconfig.Config

	db  *sql.DB
	mem *memstore.Store
	reg *registry.Registry

	svc    *gwservice.SessionService
	reaper *reaper.Reaper

	httpServer *http.Server
}

// NewServer validates cfg, opens the relational and in-memory stores,
// runs migrations, and wires every service, in the order the teacher's
// hub.NewServer follows: validate -> open DB -> migrate -> wire.
func NewServer(cfg *gwconfig.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, dialect, err := relstore.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open relational store: %w", err)
	}
	if err := relstore.Migrate(db, dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate relational store: %w", err)
	}

	mem, err := memstore.New(cfg.RedisURL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}

	reg := registry.New(relstore.NewQueries(db, dialect), mem)
	sched := scheduler.New(mem, cfg.MaxLoadPerWorker)
	workers := workerclient.New()
	svc := gwservice.New(reg, sched, workers, cfg.PublicGatewayHost)

	verifier, err := buildVerifier(cfg)
	if err != nil {
		_ = mem.Close()
		_ = db.Close()
		return nil, err
	}

	r := reaper.New(reg, svc, cfg.IdleTimeout, cfg.SessionTimeout, cfg.ReaperInterval)

	mux := http.NewServeMux()
	mountRoutes(mux, verifier, svc, reg, mem)

	s := &Server{
		cfg:    cfg,
		db:     db,
		mem:    mem,
		reg:    reg,
		svc:    svc,
		reaper: r,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           logging.HTTPMiddleware(metrics.HTTPMiddleware(mux)),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	return s, nil
}

func buildVerifier(cfg *gwconfig.Config) (tenant.Verifier, error) {
	switch cfg.AuthProvider {
	case "jwt":
		return jwtprovider.New([]byte(cfg.JWTSecret), cfg.JWTClaimName), nil
	case "devfixed":
		return devfixed.New(), nil
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.AuthProvider)
	}
}

func mountRoutes(mux *http.ServeMux, verifier tenant.Verifier, svc *gwservice.SessionService, reg *registry.Registry, mem *memstore.Store) {
	h := gwhttp.New(svc)
	relayHandler := gwrelay.New(reg, svc)

	protected := http.NewServeMux()
	protected.HandleFunc("POST /sessions", h.CreateSession)
	protected.HandleFunc("GET /sessions", h.ListSessions)
	protected.HandleFunc("DELETE /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		h.CloseSession(w, r, r.PathValue("id"))
	})
	protected.HandleFunc("GET /session/{id}", func(w http.ResponseWriter, r *http.Request) {
		relayHandler.ServeSession(w, r, r.PathValue("id"))
	})

	mux.Handle("/sessions", gwhttp.WithAuth(verifier, protected))
	mux.Handle("/sessions/", gwhttp.WithAuth(verifier, protected))
	mux.Handle("/session/", gwhttp.WithAuth(verifier, protected))

	mux.HandleFunc("/admin/log-level", gwhttp.LogLevel)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthzHandler(reg, mem))
}

func healthzHandler(reg *registry.Registry, mem *memstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := mem.Ping(ctx); err != nil {
			http.Error(w, "redis unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		activeSessions, activeWorkers, err := reg.Stats(ctx)
		if err != nil {
			http.Error(w, "relational store unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		metrics.ActiveSessions.Set(float64(activeSessions))
		metrics.ActiveWorkers.Set(float64(activeWorkers))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// Serve starts the reaper and the HTTP listener, blocking until ctx is
// cancelled, then drains both in order: stop accepting new HTTP work,
// let the reaper's current pass finish, close the stores last.
func (s *Server) Serve(ctx context.Context) error {
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	reaperDone := make(chan struct{})
	go func() {
		s.reaper.Run(reaperCtx)
		close(reaperDone)
	}()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", "addr", s.cfg.Addr)
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	}()

	select {
	case err := <-serveErr:
		stopReaper()
		<-reaperDone
		s.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		stopReaper()
		<-reaperDone
		<-serveErr
		s.cleanup()
		return err
	}
}

func (s *Server) cleanup() {
	if err := s.mem.Close(); err != nil {
		slog.Warn("gateway shutdown: close redis client failed", "error", err)
	}
	if err := s.db.Close(); err != nil {
		slog.Warn("gateway shutdown: close database failed", "error", err)
	}
}
