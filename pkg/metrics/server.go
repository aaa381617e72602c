// HTTP exposure for session metrics
//
// Handler serves /metrics for Prometheus scraping plus /health and /ready;
// it is mounted on the status server, or run on its own listener by Server.
// Optional basic authentication.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerConfig holds listener and auth settings.
type ServerConfig struct {
	// Address to listen on (e.g. ":9100" or "127.0.0.1:9100")
	Address string

	// Optional basic auth credentials
	Username string
	Password string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns the default listener settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:      ":9100",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Handler serves the metrics endpoints.
type Handler struct {
	m        *Metrics
	mux      *http.ServeMux
	username string
	password string

	mu    sync.RWMutex
	ready bool
}

// NewHandler returns a handler for m. Empty credentials disable auth.
func NewHandler(m *Metrics, username, password string) *Handler {
	h := &Handler{
		m:        m,
		mux:      http.NewServeMux(),
		username: username,
		password: password,
	}
	prom := promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})
	h.mux.Handle("/metrics", h.auth(prom))
	h.mux.HandleFunc("/health", h.handleHealth)
	h.mux.HandleFunc("/ready", h.handleReady)
	return h
}

// Metrics returns the endpoint for /metrics alone.
func (h *Handler) Metrics() http.Handler {
	return h.auth(promhttp.HandlerFor(h.m.Registry(), promhttp.HandlerOpts{}))
}

// SetReady flips the /ready answer.
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	h.ready = ready
	h.mu.Unlock()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK\n"))
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	ready := h.ready
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain")
	if ready {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ready\n"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("Not Ready\n"))
}

func (h *Handler) auth(next http.Handler) http.Handler {
	if h.username == "" && h.password == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(username), []byte(h.username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(password), []byte(h.password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="lcdprint metrics"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Server runs a Handler on its own listener.
type Server struct {
	h      *Handler
	addr   string
	server *http.Server
}

// NewServer creates a metrics server for m.
func NewServer(m *Metrics, config ServerConfig) *Server {
	h := NewHandler(m, config.Username, config.Password)
	return &Server{
		h:    h,
		addr: config.Address,
		server: &http.Server{
			Addr:         config.Address,
			Handler:      h,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
		},
	}
}

// Address returns the listen address.
func (s *Server) Address() string { return s.addr }

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.h.SetReady(true)
	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server error: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.h.SetReady(false)
	return s.server.Shutdown(ctx)
}
