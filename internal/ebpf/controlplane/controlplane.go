// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package controlplane serves the local HTTP API that reads and changes the
// blocked port while the XDP program is running.
package controlplane

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"grimm.is/portgate/internal/ebpf/interfaces"
	"grimm.is/portgate/internal/ebpf/programs"
	"grimm.is/portgate/internal/errors"
	"grimm.is/portgate/internal/logging"
	"grimm.is/portgate/internal/portcfg"
)

const apiPrefix = "/api/v1"

// PortResponse is the body of every /port response.
type PortResponse struct {
	Configured bool   `json:"configured"`
	Port       uint16 `json:"port"`
}

// PortRequest is the body of PUT /port.
type PortRequest struct {
	Port *int `json:"port"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Healthy     bool                    `json:"healthy"`
	Loaded      bool                    `json:"loaded"`
	Attachments []interfaces.Attachment `json:"attachments"`
	Program     *interfaces.ProgramInfo `json:"program,omitempty"`
	Map         *interfaces.MapInfo     `json:"map,omitempty"`
	Timestamp   int64                   `json:"timestamp"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Options configures a ControlPlane.
type Options struct {
	Store  interfaces.PortStore
	Status interfaces.Status
	Logger *logging.Logger
	Listen string
}

// ControlPlane serves the port API.
type ControlPlane struct {
	store      interfaces.PortStore
	status     interfaces.Status
	logger     *logging.Logger
	listen     string
	router     *mux.Router
	httpServer *http.Server
	listener   net.Listener
	mutex      sync.Mutex
}

// NewControlPlane creates a control plane over opts.Store. Status may be
// nil, in which case /health reports unhealthy.
func NewControlPlane(opts Options) (*ControlPlane, error) {
	if opts.Store == nil {
		return nil, errors.New(errors.KindValidation, "control plane requires a port store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	cp := &ControlPlane{
		store:  opts.Store,
		status: opts.Status,
		logger: logger.WithComponent("controlplane"),
		listen: opts.Listen,
		router: mux.NewRouter(),
	}
	cp.setupRoutes()
	return cp, nil
}

// Handler returns the API router.
func (cp *ControlPlane) Handler() http.Handler {
	return cp.router
}

// setupRoutes sets up HTTP routes for the control plane API
func (cp *ControlPlane) setupRoutes() {
	// Full paths on the root router so a wrong method gets 405, not 404.
	r := cp.router
	r.HandleFunc(apiPrefix+"/port", cp.handleGetPort).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/port", cp.handleSetPort).Methods(http.MethodPut)
	r.HandleFunc(apiPrefix+"/port", cp.handleClearPort).Methods(http.MethodDelete)

	r.HandleFunc(apiPrefix+"/health", cp.handleHealth).Methods(http.MethodGet)
}

// Start binds the listen address and serves in the background.
func (cp *ControlPlane) Start() error {
	cp.mutex.Lock()
	defer cp.mutex.Unlock()

	if cp.httpServer != nil {
		return errors.New(errors.KindInternal, "control plane already started")
	}

	ln, err := net.Listen("tcp", cp.listen)
	if err != nil {
		return errors.Attr(errors.Wrap(err, errors.KindUnavailable, "failed to listen"), "listen", cp.listen)
	}

	cp.listener = ln
	cp.httpServer = &http.Server{
		Handler:           cp.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv := cp.httpServer
	go func() {
		cp.logger.Info("Starting control plane API server", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			cp.logger.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (cp *ControlPlane) Addr() string {
	cp.mutex.Lock()
	defer cp.mutex.Unlock()
	if cp.listener == nil {
		return ""
	}
	return cp.listener.Addr().String()
}

// Stop shuts the server down, waiting up to five seconds for requests in
// flight.
func (cp *ControlPlane) Stop() error {
	cp.mutex.Lock()
	defer cp.mutex.Unlock()

	if cp.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := cp.httpServer.Shutdown(ctx)

	cp.httpServer = nil
	cp.listener = nil
	cp.logger.Info("Control plane API server stopped")
	return err
}

func (cp *ControlPlane) handleGetPort(w http.ResponseWriter, r *http.Request) {
	port, ok, err := cp.store.BlockedPort()
	if err != nil {
		cp.writeError(w, errors.Wrap(err, errors.KindInternal, "failed to read blocked port"))
		return
	}
	writeJSON(w, http.StatusOK, PortResponse{Configured: ok, Port: port})
}

func (cp *ControlPlane) handleSetPort(w http.ResponseWriter, r *http.Request) {
	var req PortRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		cp.writeError(w, errors.Wrap(err, errors.KindValidation, "invalid JSON"))
		return
	}
	if req.Port == nil {
		cp.writeError(w, errors.New(errors.KindValidation, "port is required"))
		return
	}
	port, err := portcfg.CheckPort(*req.Port)
	if err != nil {
		cp.writeError(w, err)
		return
	}

	if err := cp.store.SetBlockedPort(port); err != nil {
		cp.writeError(w, errors.Wrap(err, errors.KindInternal, "failed to set blocked port"))
		return
	}
	cp.logger.Info("Blocked port set", "port", port, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, PortResponse{Configured: true, Port: port})
}

func (cp *ControlPlane) handleClearPort(w http.ResponseWriter, r *http.Request) {
	if err := cp.store.ClearBlockedPort(); err != nil {
		cp.writeError(w, errors.Wrap(err, errors.KindInternal, "failed to clear blocked port"))
		return
	}
	cp.logger.Info("Blocked port cleared", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, PortResponse{})
}

// handleHealth reports healthy once the program is loaded and attached
// somewhere.
func (cp *ControlPlane) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Attachments: []interfaces.Attachment{},
		Timestamp:   time.Now().Unix(),
	}

	if cp.status != nil {
		resp.Loaded = cp.status.IsLoaded()
		if a := cp.status.Attachments(); a != nil {
			resp.Attachments = a
		}
		if resp.Loaded {
			if info, err := cp.status.GetProgramInfo(programs.DropPortProgram); err == nil {
				resp.Program = &info
			} else {
				cp.logger.Debug("Program info unavailable", errors.LogArgs(err)...)
			}
			if info, err := cp.status.GetMapInfo(programs.DropPortMap); err == nil {
				resp.Map = &info
			} else {
				cp.logger.Debug("Map info unavailable", errors.LogArgs(err)...)
			}
		}
	}
	resp.Healthy = resp.Loaded && len(resp.Attachments) > 0

	code := http.StatusOK
	if !resp.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (cp *ControlPlane) writeError(w http.ResponseWriter, err error) {
	code := statusForKind(errors.GetKind(err))
	if code >= http.StatusInternalServerError {
		cp.logger.Error("API request failed", errors.LogArgs(err)...)
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func statusForKind(kind errors.Kind) int {
	switch kind {
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindPermission:
		return http.StatusForbidden
	case errors.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
