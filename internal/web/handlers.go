package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/smukkama/solar-watch/internal/alerting"
	"github.com/smukkama/solar-watch/internal/database"
)

// GET /api/alerts?status=&date=&pod_code=
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, err := alerting.ParseStatus(q.Get("status"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	alerts, err := s.service.List(r.Context(), status, q.Get("date"), q.Get("pod_code"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlert(a))
	}
	respondJSON(w, http.StatusOK, out)
}

// GET /api/alerts/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.service.Stats(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

// POST /api/alerts/acknowledge?pod_code=&date=
func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Acknowledge(r.Context(), scopeFrom(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondAction(w, result)
}

// POST /api/alerts/reset?pod_code=&date=
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Reset(r.Context(), scopeFrom(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondAction(w, result)
}

// GET /api/summary?days=7
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	days := alerting.DefaultSummaryDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondJSON(w, http.StatusBadRequest, ActionResponse{Message: "days must be a positive integer"})
			return
		}
		days = n
	}

	rows, err := s.service.Summary(r.Context(), days, s.now())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]SummaryRow, 0, len(rows))
	for _, o := range rows {
		out = append(out, toSummaryRow(o))
	}
	respondJSON(w, http.StatusOK, out)
}

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Timestamp: s.now().Format(time.RFC3339)}
	if s.pinger != nil {
		if err := s.pinger.PingContext(r.Context()); err != nil {
			s.logger.Error("health check failed", "error", err)
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func scopeFrom(r *http.Request) alerting.Scope {
	q := r.URL.Query()
	return alerting.Scope{PodCode: q.Get("pod_code"), Date: q.Get("date")}
}

func respondAction(w http.ResponseWriter, result *alerting.ActionResult) {
	affected := result.Affected
	respondJSON(w, http.StatusOK, ActionResponse{
		Success:         true,
		Message:         result.Message,
		AffectedRecords: &affected,
	})
}

// respondError maps malformed input to 400 and everything else to 500
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, database.ErrInvalidDate) || errors.Is(err, database.ErrInvalidStatus) {
		respondJSON(w, http.StatusBadRequest, ActionResponse{Message: err.Error()})
		return
	}
	s.logger.Error("request failed",
		"path", r.URL.Path,
		"request_id", r.Header.Get(RequestIDHeader),
		"error", err,
	)
	respondJSON(w, http.StatusInternalServerError, ActionResponse{Message: err.Error()})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
