// Package server exposes the install manager to a desktop UI over HTTP and
// streams progress snapshots to websocket subscribers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jaa/deckload/internal/install"
	"github.com/jaa/deckload/internal/target"
)

const maxRequestBody = 1 << 20

// Controller is the subset of *install.Manager the server drives.
type Controller interface {
	Start(req install.Request) error
	Cancel()
	Pause()
	Resume()
	Snapshot() install.Snapshot
}

type ProbeFunc func(ctx context.Context, d target.Destination, timeout time.Duration) error

type Options struct {
	Logger *zap.Logger
	// Defaults fills fields a UI request leaves empty.
	Defaults install.Request
	Probe    ProbeFunc
}

type Server struct {
	logger   *zap.Logger
	installs Controller
	hub      *Hub
	defaults install.Request
	probe    ProbeFunc
}

func New(installs Controller, hub *Hub, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	probe := opts.Probe
	if probe == nil {
		probe = target.Probe
	}
	return &Server{
		logger:   logger,
		installs: installs,
		hub:      hub,
		defaults: opts.Defaults,
		probe:    probe,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/install", localJSON(s.handleStart))
	mux.HandleFunc("GET /api/install", s.handleSnapshot)
	mux.HandleFunc("POST /api/install/cancel", localJSON(s.handleControl(s.installs.Cancel)))
	mux.HandleFunc("POST /api/install/pause", localJSON(s.handleControl(s.installs.Pause)))
	mux.HandleFunc("POST /api/install/resume", localJSON(s.handleControl(s.installs.Resume)))
	mux.HandleFunc("GET /api/target/status", s.handleTargetStatus)
	mux.HandleFunc("GET /ws", s.hub.ServeWS)
	return mux
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
// ready, when non-nil, receives the bound address.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if ready != nil {
		ready(listener.Addr())
	}
	s.logger.Info("server listening", zap.String("addr", listener.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// startBody accepts either a depots list or the parallel id arrays a UI
// form produces.
type startBody struct {
	install.Request
	DepotIDs      []string `json:"depot_ids"`
	ManifestIDs   []string `json:"manifest_ids"`
	ManifestFiles []string `json:"manifest_files"`
}

type errorBody struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}

type targetStatus struct {
	Reachable bool   `json:"reachable"`
	Target    string `json:"target"`
	Error     string `json:"error,omitempty"`
}

// localJSON guards state-changing endpoints against browser pages on other
// origins. A cross-origin page cannot send application/json without a CORS
// preflight, which this server never answers, and a browser always labels
// such a request with its Origin.
func localJSON(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && !sameOrigin(origin, r.Host) {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "cross-origin request rejected"})
			return
		}
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			writeJSON(w, http.StatusUnsupportedMediaType, errorBody{Error: "Content-Type must be application/json"})
			return
		}
		next(w, r)
	}
}

func sameOrigin(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var body startBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return
	}
	req := body.Request
	if len(req.Depots) == 0 && (len(body.DepotIDs) > 0 || len(body.ManifestIDs) > 0 || len(body.ManifestFiles) > 0) {
		depots, err := install.NewDepots(body.DepotIDs, body.ManifestIDs, body.ManifestFiles)
		if err != nil {
			s.writeStartError(w, err)
			return
		}
		req.Depots = depots
	}
	req = s.withDefaults(req)

	if err := s.installs.Start(req); err != nil {
		s.writeStartError(w, err)
		return
	}
	s.logger.Info("install accepted", zap.String("app_id", req.AppID), zap.String("target", req.Destination.Label()))
	writeJSON(w, http.StatusAccepted, s.installs.Snapshot())
}

func (s *Server) writeStartError(w http.ResponseWriter, err error) {
	var validation *install.ValidationError
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Problems: validation.Problems})
	case errors.Is(err, install.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		s.logger.Error("install start failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

// withDefaults fills the destination a request leaves empty. Tool paths
// always come from the server's configuration, never from the request.
func (s *Server) withDefaults(req install.Request) install.Request {
	req.DownloaderPath = s.defaults.DownloaderPath
	req.RsyncPath = s.defaults.RsyncPath
	if strings.TrimSpace(req.TargetDir) == "" {
		req.TargetDir = s.defaults.TargetDir
	}
	if req.Destination == (target.Destination{}) {
		req.Destination = s.defaults.Destination
	}
	return req
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.installs.Snapshot())
}

func (s *Server) handleControl(action func()) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		action()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleTargetStatus(w http.ResponseWriter, r *http.Request) {
	dest := s.defaults.Destination
	if host := strings.TrimSpace(r.URL.Query().Get("host")); host != "" {
		dest = target.Destination{Host: host, User: dest.User, Port: dest.Port}
	}
	status := targetStatus{Reachable: true, Target: dest.Label()}
	if err := s.probe(r.Context(), dest, target.DefaultProbeTimeout); err != nil {
		status.Reachable = false
		status.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
