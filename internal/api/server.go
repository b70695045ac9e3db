package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/config"
	"github.com/bryanchriswhite/FocusRecorder/internal/logger"
	"github.com/bryanchriswhite/FocusRecorder/internal/output"
	"github.com/bryanchriswhite/FocusRecorder/internal/recorder"
	"github.com/bryanchriswhite/FocusRecorder/internal/timing"
	"github.com/bryanchriswhite/FocusRecorder/internal/window"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	session   *recorder.Session
	configMgr *config.Manager
	preview   *output.MJPEGOutput
	windows   window.Finder
	upgrader  websocket.Upgrader
	http      *http.Server
}

// NewServer creates a new API server. preview may be nil.
func NewServer(session *recorder.Session, configMgr *config.Manager, preview *output.MJPEGOutput) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		session:   session,
		configMgr: configMgr,
		preview:   preview,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
	}

	s.setupRoutes()
	return s
}

// SetWindowFinder enables window lookup for GET /api/windows and the
// window field of the start request.
func (s *Server) SetWindowFinder(f window.Finder) {
	s.windows = f
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Recording control
	rec := api.PathPrefix("/recording").Subrouter()
	rec.HandleFunc("/start", s.handleStart).Methods("POST")
	rec.HandleFunc("/pause", s.handlePause).Methods("POST")
	rec.HandleFunc("/resume", s.handleResume).Methods("POST")
	rec.HandleFunc("/snap", s.handleSnap).Methods("POST")
	rec.HandleFunc("/stop", s.handleStop).Methods("POST")
	rec.HandleFunc("/discard", s.handleDiscard).Methods("POST")
	rec.HandleFunc("/status", s.handleStatus).Methods("GET")
	rec.HandleFunc("/progress", s.handleProgressStream)

	// Windows
	api.HandleFunc("/windows", s.handleListWindows).Methods("GET")

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleUpdateConfig).Methods("PUT")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Live preview
	if s.preview != nil {
		s.router.HandleFunc("/stream", s.preview.GetHTTPHandler()).Methods("GET")
		s.router.HandleFunc("/stream/stats", s.preview.GetStatsHandler()).Methods("GET")
		s.router.HandleFunc("/", s.preview.GetViewerHandler()).Methods("GET")
	}
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.WithComponent("api").Info().Msgf("Starting server on http://localhost%s", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, recorder.ErrBusy),
		errors.Is(err, recorder.ErrNotRecording),
		errors.Is(err, recorder.ErrNotPaused),
		errors.Is(err, timing.ErrNotTriggered),
		errors.Is(err, timing.ErrStopped):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// startRequest is the optional body of POST /api/recording/start.
type startRequest struct {
	Automatic *bool   `json:"automatic"`
	DelayMs   int     `json:"delay_ms"`
	Region    string  `json:"region"`
	Scale     float64 `json:"scale"`
	// Window is a class or title pattern, or "focused".
	Window string `json:"window"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	req := startRequest{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if req.DelayMs < 0 {
		http.Error(w, "delay_ms must not be negative", http.StatusBadRequest)
		return
	}

	opts := recorder.StartOptions{
		Automatic: true,
		Delay:     time.Duration(req.DelayMs) * time.Millisecond,
		Scale:     req.Scale,
	}
	if req.Automatic != nil {
		opts.Automatic = *req.Automatic
	}
	if req.Region != "" {
		region, err := config.ParseRegion(req.Region)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		opts.Region = region
	}
	if req.Window != "" {
		if s.windows == nil {
			http.Error(w, "window lookup is not available", http.StatusBadRequest)
			return
		}
		win, err := window.Resolve(s.windows, req.Window)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		opts.Region = win.Bounds
	}

	if err := s.session.Start(opts); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Progress())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.control(w, s.session.Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.control(w, s.session.Resume)
}

func (s *Server) handleSnap(w http.ResponseWriter, r *http.Request) {
	s.control(w, s.session.Snap)
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	s.control(w, s.session.Discard)
}

func (s *Server) control(w http.ResponseWriter, action func() error) {
	if err := action(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Progress())
}

// stopResponse reports where the finished recording landed.
type stopResponse struct {
	recorder.Progress
	Recording string `json:"recording,omitempty"`
	Project   string `json:"project,omitempty"`
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	res, err := s.session.Stop(r.Context())
	if err != nil && res == nil {
		writeError(w, err)
		return
	}

	resp := stopResponse{Progress: s.session.Progress()}
	if res.Project != nil {
		resp.Project = res.Project.Root
	} else {
		resp.Recording = res.Recording.Root
	}
	if err != nil {
		// The recording is kept even when conversion fails.
		logger.WithComponent("api").Error().Err(err).Msg("Failed to convert recording")
		resp.LastError = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Progress())
}

func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	updates := s.session.Subscribe()
	defer s.session.Unsubscribe(updates)

	// Detect client close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(s.session.Progress()); err != nil {
		log.Debug().Err(err).Msg("WebSocket write error")
		return
	}

	for {
		select {
		case <-closed:
			return
		case p, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(p); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		}
	}
}

func (s *Server) handleListWindows(w http.ResponseWriter, r *http.Request) {
	if s.windows == nil {
		http.Error(w, "window lookup is not available", http.StatusServiceUnavailable)
		return
	}
	windows, err := s.windows.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, windows)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg config.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cc, err := cfg.CaptureConfig()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.configMgr.Update(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.session.SetConfig(cc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}
