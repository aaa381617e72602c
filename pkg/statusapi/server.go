// Package statusapi mirrors the front panel over HTTP: the latest view as
// JSON, a websocket stream of view changes, the job history and metrics.
// It is read-only; nothing here drives the session.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"lcdprint-go/pkg/display"
	"lcdprint-go/pkg/log"
	"lcdprint-go/pkg/session"
)

// Config holds server configuration.
type Config struct {
	// HTTP address to listen on (e.g. ":7125")
	Addr string

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	// History is created when nil.
	History *History
}

// HeaterStatus is one heater in a Status.
type HeaterStatus struct {
	Temperature float64 `json:"temperature"`
	Target      float64 `json:"target"`
}

// Status is the JSON form of a view.
type Status struct {
	Phase     string       `json:"phase"`
	Title     string       `json:"title"`
	Panel     []string     `json:"panel"`
	File      string       `json:"file,omitempty"`
	Progress  float64      `json:"progress"`
	Remaining *float64     `json:"remaining"`
	Hotend    HeaterStatus `json:"hotend"`
	Bed       HeaterStatus `json:"bed"`
	Queue     struct {
		Pending  int `json:"pending"`
		Capacity int `json:"capacity"`
	} `json:"queue"`
	Lamp    int      `json:"lamp"`
	Buttons []string `json:"buttons"`
}

// NewStatus converts a view.
func NewStatus(v session.View) Status {
	s := Status{
		Phase: v.Phase.String(),
		Title: v.Title,
		Panel: display.Frame(v),
		File:  v.File,
		Hotend: HeaterStatus{
			Temperature: v.HotendTemp,
			Target:      v.HotendTarget,
		},
		Bed: HeaterStatus{
			Temperature: v.BedTemp,
			Target:      v.BedTarget,
		},
		Lamp:    v.Lamp,
		Buttons: []string{},
	}
	if v.ProgressMax > 0 {
		s.Progress = float64(v.Progress) / float64(v.ProgressMax)
	}
	if v.RemainingKnown {
		r := v.Remaining.Seconds()
		s.Remaining = &r
	}
	s.Queue.Pending = v.QueuePending
	s.Queue.Capacity = v.QueueCapacity
	for _, b := range v.Buttons {
		if b != "" {
			s.Buttons = append(s.Buttons, b)
		}
	}
	return s
}

// Server is the status mirror. It is a session.Sink.
type Server struct {
	addr       string
	router     chi.Router
	httpServer *http.Server
	history    *History
	logger     *log.Logger

	wsUpgrader websocket.Upgrader
	wsClients  map[*wsClient]struct{}
	wsClientMu sync.RWMutex

	mu        sync.RWMutex
	status    Status
	have      bool
	startTime time.Time
}

// New creates a status server.
func New(cfg Config) *Server {
	s := &Server{
		addr:      cfg.Addr,
		history:   cfg.History,
		logger:    log.GetLogger("statusapi"),
		wsClients: make(map[*wsClient]struct{}),
		startTime: time.Now(),
	}
	if s.history == nil {
		s.history = NewHistory()
	}
	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Get("/server/info", s.handleServerInfo)
	r.Get("/printer/status", s.handleStatus)
	r.Get("/websocket", s.handleWebSocket)
	r.Route("/server/history", s.history.routes)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	s.router = r
	return s
}

// History returns the job history, for registering as an observer.
func (s *Server) History() *History { return s.history }

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Render stores v and pushes it to websocket clients when it changed.
func (s *Server) Render(v session.View) {
	st := NewStatus(v)

	s.mu.Lock()
	changed := !s.have || !sameStatus(s.status, st)
	s.status = st
	s.have = true
	s.mu.Unlock()

	if changed {
		s.broadcast(map[string]any{
			"method": "notify_status_update",
			"params": []any{st},
		})
	}
}

// Status returns the last rendered status.
func (s *Server) Status() (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.have
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening on %s", s.addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.closeClients()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	s.wsClientMu.RLock()
	clients := len(s.wsClients)
	s.wsClientMu.RUnlock()

	st, _ := s.Status()
	writeJSON(w, map[string]any{
		"state":             st.Phase,
		"uptime":            time.Since(s.startTime).Seconds(),
		"websocket_clients": clients,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := s.Status()
	if !ok {
		writeJSONError(w, http.StatusServiceUnavailable, "no view rendered yet")
		return
	}
	writeJSON(w, map[string]any{"status": st})
}

func sameStatus(a, b Status) bool {
	x, _ := json.Marshal(a)
	y, _ := json.Marshal(b)
	return string(x) == string(y)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": message,
		},
	})
}
