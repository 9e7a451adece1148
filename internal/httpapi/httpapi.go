// Package httpapi binds the stable HTTP contract to the orchestrator and
// executor. Handlers hold no business logic: decode the request, call into
// the orchestrator/executor, encode the response.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/srg/aquabled/internal/apperr"
	"github.com/srg/aquabled/internal/driver"
	"github.com/srg/aquabled/internal/executor"
	"github.com/srg/aquabled/internal/orchestrator"
)

// Server wires the orchestrator and executor behind a gorilla/mux router.
type Server struct {
	orch   *orchestrator.Orchestrator
	exec   *executor.Executor
	logger *logrus.Logger
	router *mux.Router
}

// New builds a Server with all routes registered.
func New(orch *orchestrator.Orchestrator, exec *executor.Executor, logger *logrus.Logger) *Server {
	s := &Server{orch: orch, exec: exec, logger: logger, router: mux.NewRouter()}
	s.routes()
	return s
}

// ServeHTTP makes Server usable directly as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/debug/live-status", s.handleLiveStatus).Methods(http.MethodPost)
	api.HandleFunc("/scan", s.handleScan).Methods(http.MethodGet)

	api.HandleFunc("/devices/{addr}/status", s.handleDeviceStatus).Methods(http.MethodPost)
	api.HandleFunc("/devices/{addr}/connect", s.handleConnect).Methods(http.MethodPost)
	api.HandleFunc("/devices/{addr}/disconnect", s.handleDisconnect).Methods(http.MethodPost)
	api.HandleFunc("/devices/{addr}/commands", s.handleSubmitCommand).Methods(http.MethodPost)
	api.HandleFunc("/devices/{addr}/commands", s.handleListCommands).Methods(http.MethodGet)
	api.HandleFunc("/devices/{addr}/commands/{id}", s.handleGetCommand).Methods(http.MethodGet)

	api.HandleFunc("/configurations/doser", s.handleListDoserConfigs).Methods(http.MethodGet)
	api.HandleFunc("/configurations/doser/{addr}", s.handleGetDoserConfig).Methods(http.MethodGet)
	api.HandleFunc("/configurations/doser/{addr}", s.handlePutDoserConfig).Methods(http.MethodPut)
	api.HandleFunc("/configurations/doser/{addr}", s.handleDeleteDoserConfig).Methods(http.MethodDelete)

	api.HandleFunc("/configurations/light", s.handleListLightConfigs).Methods(http.MethodGet)
	api.HandleFunc("/configurations/light/{addr}", s.handleGetLightConfig).Methods(http.MethodGet)
	api.HandleFunc("/configurations/light/{addr}", s.handlePutLightConfig).Methods(http.MethodPut)
	api.HandleFunc("/configurations/light/{addr}", s.handleDeleteLightConfig).Methods(http.MethodDelete)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("failed to encode response body")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	s.writeJSON(w, status, map[string]string{"detail": err.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.orch.StatusSnapshot())
}

func (s *Server) handleLiveStatus(w http.ResponseWriter, r *http.Request) {
	statuses, errs := s.orch.GetLiveStatuses(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"statuses": statuses, "errors": errs})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	timeout := 5 * time.Second
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		if seconds, err := strconv.ParseFloat(raw, 64); err == nil && seconds > 0 {
			timeout = time.Duration(seconds * float64(time.Second))
		}
	}
	results, err := s.orch.ScanDevices(r.Context(), timeout)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	status, err := s.orch.RequestStatus(r.Context(), addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	kind := driver.Kind(r.URL.Query().Get("device_type"))
	if kind == "" {
		kind = driver.KindPump
	}
	status, err := s.orch.ConnectDevice(r.Context(), addr, kind)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	if err := s.orch.DisconnectDevice(addr); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"detail": "disconnected"})
}

// commandRequestBody mirrors the CommandRequest DTO: id and timeout are
// optional, args are action-specific.
type commandRequestBody struct {
	ID      string                 `json:"id"`
	Action  string                 `json:"action"`
	Args    map[string]interface{} `json:"args"`
	Timeout float64                `json:"timeout"`
}

func (s *Server) handleSubmitCommand(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	var body commandRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, apperr.Wrap(apperr.KindInvalidArgs, err, "malformed command request body"))
		return
	}

	req := executor.Request{ID: body.ID, Action: body.Action, Args: body.Args}
	if body.Timeout > 0 {
		req.Timeout = time.Duration(body.Timeout * float64(time.Second))
	}

	record := s.exec.Execute(r.Context(), addr, req)
	s.writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	s.writeJSON(w, http.StatusOK, s.orch.GetCommands(addr, limit))
}

func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	record, ok := s.orch.GetCommand(vars["addr"], vars["id"])
	if !ok {
		s.writeError(w, apperr.New(apperr.KindUnknownDevice, "no command %q for device %q", vars["id"], vars["addr"]))
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}
