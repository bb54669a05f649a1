// Package wserver wires a worker process's dependencies into a runnable
// HTTP server: the browser manager, the proxy relay, and the small RPC
// surface the gateway calls, symmetric to gwserver's wiring.
package wserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cdpfleet/cdpfleet/internal/logging"
	"github.com/cdpfleet/cdpfleet/internal/metrics"
	"github.com/cdpfleet/cdpfleet/internal/registry/memstore"
	"github.com/cdpfleet/cdpfleet/internal/wbrowser"
	"github.com/cdpfleet/cdpfleet/internal/wconfig"
	"github.com/cdpfleet/cdpfleet/internal/wrelay"
)

const shutdownTimeout = 10 * time.Second

// Server owns a worker's dependencies and the http.Server fronting them.
type Server struct {
	cfg      *wconfig.Config
	mem      *memstore.Store
	browsers *wbrowser.Manager

	httpServer *http.Server
}

// NewServer validates cfg and wires the browser manager and relay onto
// a mux. Self-registration into the load set happens in Serve, not
// here, so construction never has side effects on shared state.
func NewServer(cfg *wconfig.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	mem, err := memstore.New(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}

	browsers := wbrowser.NewManager(wbrowser.Config{
		BrowserBin:     cfg.BrowserBin,
		BrowserArgs:    cfg.BrowserArgs,
		LaunchTimeout:  cfg.LaunchTimeout,
		ShutdownGrace:  cfg.ShutdownGrace,
		PortRangeStart: cfg.PortRangeStart,
		PortRangeEnd:   cfg.PortRangeEnd,
	})

	mux := http.NewServeMux()
	mountRoutes(mux, browsers, mem)

	s := &Server{
		cfg:      cfg,
		mem:      mem,
		browsers: browsers,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           logging.HTTPMiddleware(metrics.HTTPMiddleware(mux)),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	return s, nil
}

type newBrowserRequest struct {
	SessionID string `json:"session_id"`
}

func mountRoutes(mux *http.ServeMux, browsers *wbrowser.Manager, mem *memstore.Store) {
	relayHandler := wrelay.New(browsers)

	mux.HandleFunc("POST /browser", func(w http.ResponseWriter, r *http.Request) {
		var req newBrowserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		proc, err := browsers.NewBrowser(r.Context(), req.SessionID)
		if err != nil {
			metrics.BrowserLaunchFailuresTotal.Inc()
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"browserId": proc.BrowserGUID,
			"port":      proc.Port,
		})
	})

	mux.HandleFunc("DELETE /browser/{id}", func(w http.ResponseWriter, r *http.Request) {
		browsers.CloseBrowser(r.PathValue("id"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "closed"})
	})

	mux.HandleFunc("GET /proxy/{id}", func(w http.ResponseWriter, r *http.Request) {
		relayHandler.ServeProxy(w, r, r.PathValue("id"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := mem.Ping(ctx); err != nil {
			http.Error(w, "redis unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// Serve self-registers into the load set, serves until ctx is
// cancelled, then deregisters and tears down every tracked browser
// process before closing the store connections, per spec.md §4.6
// "Self-registration" and its symmetric deregistration on shutdown.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.mem.RegisterWorker(ctx, s.cfg.WorkerHost); err != nil {
		return fmt.Errorf("self-register: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("worker listening", "addr", s.cfg.Addr, "worker_host", s.cfg.WorkerHost)
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	}()

	select {
	case err := <-serveErr:
		s.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		<-serveErr
		s.cleanup()
		return err
	}
}

func (s *Server) cleanup() {
	deregisterCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.mem.DeregisterWorker(deregisterCtx, s.cfg.WorkerHost); err != nil {
		slog.Warn("worker shutdown: deregister failed", "error", err)
	}

	s.browsers.CloseAll()

	if err := s.mem.Close(); err != nil {
		slog.Warn("worker shutdown: close redis client failed", "error", err)
	}
}
