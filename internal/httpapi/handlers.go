package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hamed0406/healthwatch/internal/domain"
	"github.com/hamed0406/healthwatch/internal/engine"
	"github.com/hamed0406/healthwatch/internal/incident"
	"github.com/hamed0406/healthwatch/internal/maintenance"
)

const (
	defaultResultLimit = 50
	maxResultLimit     = 1000
)

func checkID(r *http.Request) domain.CheckID {
	return domain.CheckID(chi.URLParam(r, "id"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Engine.StatusPage(r.Context()))
}

// ---- checks ----

func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	checks := s.Engine.Checks()
	out := make([]checkView, 0, len(checks))
	for _, c := range checks {
		out = append(out, toView(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	c, ok := s.Engine.Check(checkID(r))
	if !ok {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}
	writeJSON(w, http.StatusOK, toView(c))
}

func (s *Server) handleAddCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !isValidHTTPURL(req.URL) {
		writeError(w, http.StatusBadRequest, "url must be an absolute http(s) url")
		return
	}
	def, err := req.definition()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := s.Engine.RegisterCheck(def)
	switch {
	case errors.Is(err, engine.ErrDuplicateCheck):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, domain.ErrInvalidCheck):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.Logger.Error("add_check_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not add check")
		return
	}
	s.Logger.Info("added_check", zap.String("check_id", string(c.ID)), zap.String("url", c.URL))
	writeJSON(w, http.StatusCreated, toView(c))
}

func (s *Server) handlePatchCheck(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := req.patch()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, found, err := s.Engine.UpdateCheck(checkID(r), p)
	if !found {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toView(c))
}

func (s *Server) handleDeleteCheck(w http.ResponseWriter, r *http.Request) {
	if !s.Engine.UnregisterCheck(r.Context(), checkID(r)) {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckMetrics(w http.ResponseWriter, r *http.Request) {
	m, ok := s.Engine.Metrics(r.Context(), checkID(r))
	if !ok {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleCheckResults(w http.ResponseWriter, r *http.Request) {
	limit := defaultResultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxResultLimit)
	}
	res, ok := s.Engine.Results(r.Context(), checkID(r), limit)
	if !ok {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}
	if res == nil {
		res = []domain.ProbeResult{}
	}
	writeJSON(w, http.StatusOK, res)
}

// ---- incidents ----

// handleListIncidents serves retained incidents, or with ?since=RFC3339 the
// history from that time, including archived incidents.
func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	var list []*domain.Incident
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
			return
		}
		list = s.Engine.IncidentHistory(r.Context(), since)
	} else {
		list = s.Engine.Incidents()
	}
	if list == nil {
		list = []*domain.Incident{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	inc, ok := s.Engine.Incident(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "incident not found")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (s *Server) handleCreateIncident(w http.ResponseWriter, r *http.Request) {
	var req incident.NewIncident
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	inc, ok := s.Engine.CreateIncident(req)
	if !ok {
		writeError(w, http.StatusBadRequest, "title is required and severity must be low, medium, high or critical")
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

func (s *Server) handleIncidentUpdate(w http.ResponseWriter, r *http.Request) {
	var c incident.Change
	if err := decode(w, r, &c); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if c.Status != "" && !c.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown incident status")
		return
	}
	id := chi.URLParam(r, "id")
	if _, ok := s.Engine.Incident(id); !ok {
		writeError(w, http.StatusNotFound, "incident not found")
		return
	}
	inc, ok := s.Engine.UpdateIncident(id, c)
	if !ok {
		writeError(w, http.StatusConflict, "incident is already resolved")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// ---- maintenance ----

func (s *Server) handleListMaintenance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Engine.Maintenance())
}

func (s *Server) handleScheduleMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mw, err := s.Engine.ScheduleMaintenance(domain.MaintenanceWindow{
		Name:             req.Name,
		Description:      req.Description,
		Start:            req.Start,
		End:              req.End,
		AffectedServices: req.AffectedServices,
	})
	if errors.Is(err, maintenance.ErrInvalidWindow) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.Logger.Error("schedule_maintenance_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not schedule maintenance")
		return
	}
	writeJSON(w, http.StatusCreated, mw)
}

func (s *Server) handleMaintenanceAction(w http.ResponseWriter, r *http.Request) {
	var transition func(string) (domain.MaintenanceWindow, bool)
	switch chi.URLParam(r, "action") {
	case "start":
		transition = s.Engine.StartMaintenance
	case "complete":
		transition = s.Engine.CompleteMaintenance
	case "cancel":
		transition = s.Engine.CancelMaintenance
	default:
		writeError(w, http.StatusNotFound, "unknown maintenance action")
		return
	}
	id := chi.URLParam(r, "id")
	cur, ok := s.Engine.MaintenanceWindow(id)
	if !ok {
		writeError(w, http.StatusNotFound, "maintenance window not found")
		return
	}
	mw, ok := transition(id)
	if !ok {
		writeError(w, http.StatusConflict, "cannot "+chi.URLParam(r, "action")+" a "+string(cur.Status)+" window")
		return
	}
	writeJSON(w, http.StatusOK, mw)
}
