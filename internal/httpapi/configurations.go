package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/srg/aquabled/internal/apperr"
	"github.com/srg/aquabled/internal/config"
)

func (s *Server) handleListDoserConfigs(w http.ResponseWriter, r *http.Request) {
	devices, err := s.orch.DoserConfigs().ListDevices()
	if err != nil {
		s.writeError(w, apperr.Wrap(apperr.KindConfigUpdateFailed, err, "failed to list doser configurations"))
		return
	}
	s.writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleGetDoserConfig(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	device, err := s.orch.DoserConfigs().GetDevice(addr)
	if err != nil {
		s.writeError(w, apperr.Wrap(apperr.KindConfigUpdateFailed, err, "failed to read configuration for %s", addr))
		return
	}
	if device == nil {
		s.writeError(w, apperr.New(apperr.KindUnknownDevice, "no doser configuration for %s", addr))
		return
	}
	s.writeJSON(w, http.StatusOK, device)
}

func (s *Server) handlePutDoserConfig(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	var device config.DoserDevice
	if err := json.NewDecoder(r.Body).Decode(&device); err != nil {
		s.writeError(w, apperr.Wrap(apperr.KindInvalidArgs, err, "malformed doser configuration body"))
		return
	}
	device.ID = addr
	if err := device.Validate(); err != nil {
		s.writeError(w, apperr.Wrap(apperr.KindInvalidArgs, err, "invalid doser configuration"))
		return
	}
	if err := s.orch.DoserConfigs().UpsertDevice(&device); err != nil {
		s.writeError(w, apperr.Wrap(apperr.KindConfigUpdateFailed, err, "failed to save configuration for %s", addr))
		return
	}
	s.writeJSON(w, http.StatusOK, device)
}

func (s *Server) handleDeleteDoserConfig(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	found, err := s.orch.DoserConfigs().DeleteDevice(addr)
	if err != nil {
		s.writeError(w, apperr.Wrap(apperr.KindConfigUpdateFailed, err, "failed to delete configuration for %s", addr))
		return
	}
	if !found {
		s.writeError(w, apperr.New(apperr.KindUnknownDevice, "no doser configuration for %s", addr))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"detail": "deleted"})
}

func (s *Server) handleListLightConfigs(w http.ResponseWriter, r *http.Request) {
	devices, err := s.orch.LightConfigs().ListDevices()
	if err != nil {
		s.writeError(w, apperr.Wrap(apperr.KindConfigUpdateFailed, err, "failed to list light configurations"))
		return
	}
	s.writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleGetLightConfig(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	device, err := s.orch.LightConfigs().GetDevice(addr)
	if err != nil {
		s.writeError(w, apperr.Wrap(apperr.KindConfigUpdateFailed, err, "failed to read configuration for %s", addr))
		return
	}
	if device == nil {
		s.writeError(w, apperr.New(apperr.KindUnknownDevice, "no light configuration for %s", addr))
		return
	}
	s.writeJSON(w, http.StatusOK, device)
}

func (s *Server) handlePutLightConfig(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	var device config.LightDevice
	if err := json.NewDecoder(r.Body).Decode(&device); err != nil {
		s.writeError(w, apperr.Wrap(apperr.KindInvalidArgs, err, "malformed light configuration body"))
		return
	}
	device.ID = addr
	if err := device.Validate(); err != nil {
		s.writeError(w, apperr.Wrap(apperr.KindInvalidArgs, err, "invalid light configuration"))
		return
	}
	if err := s.orch.LightConfigs().UpsertDevice(&device); err != nil {
		s.writeError(w, apperr.Wrap(apperr.KindConfigUpdateFailed, err, "failed to save configuration for %s", addr))
		return
	}
	s.writeJSON(w, http.StatusOK, device)
}

func (s *Server) handleDeleteLightConfig(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	found, err := s.orch.LightConfigs().DeleteDevice(addr)
	if err != nil {
		s.writeError(w, apperr.Wrap(apperr.KindConfigUpdateFailed, err, "failed to delete configuration for %s", addr))
		return
	}
	if !found {
		s.writeError(w, apperr.New(apperr.KindUnknownDevice, "no light configuration for %s", addr))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"detail": "deleted"})
}
