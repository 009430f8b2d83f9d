package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/d21d3q/golora/internal/config"
	"github.com/d21d3q/golora/internal/session"
)

// Server exposes scrape and health endpoints.
type Server struct {
	router          *mux.Router
	srv             *http.Server
	sessions        session.Store
	gatherer        prometheus.Gatherer
	shutdownTimeout time.Duration
}

// New creates a server for cfg.
func New(cfg config.HTTPConfig, sessions session.Store, gatherer prometheus.Gatherer) *Server {
	router := mux.NewRouter()
	s := &Server{
		router:   router,
		sessions: sessions,
		gatherer: gatherer,
		srv: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	s.setupRoutes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/nodes", s.handleNodes()).Methods(http.MethodGet)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", s.srv.Addr).Info("starting metrics server")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	logrus.Info("shutting down metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"status": "ok",
			"nodes":  s.sessions.Len(),
		})
	}
}

type nodeView struct {
	NodeID     string    `json:"node_id"`
	DeviceType string    `json:"device_type"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	Packets    uint64    `json:"packets"`
	Last       any       `json:"last,omitempty"`
}

func (s *Server) handleNodes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := s.sessions.Snapshot()
		out := make([]nodeView, 0, len(snap))
		for _, sess := range snap {
			last, seen := sess.Last()
			out = append(out, nodeView{
				NodeID:     sess.NodeID.String(),
				DeviceType: sess.DeviceType.String(),
				FirstSeen:  sess.FirstSeen,
				LastSeen:   seen,
				Packets:    sess.Packets(),
				Last:       last,
			})
		}
		writeJSON(w, out)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("writing response failed")
	}
}
