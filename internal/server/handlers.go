package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/control"
	engageotel "github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/otel"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/pipeline"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/requestctx"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/tenant"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/rules"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.startTime).String(),
	}
	if r.URL.Query().Get("detail") == "true" {
		components := map[string]string{
			"pipeline":      "ok",
			"control_queue": "ok",
		}
		if b := s.rt.Brain.Breaker(); b != nil {
			components["generation_breaker"] = b.State().String()
		}
		if ks := s.killSwitchState(); ks.Global {
			components["kill_switch"] = "global"
		} else if len(ks.Platforms) > 0 {
			components["kill_switch"] = strings.Join(ks.Platforms, ",")
		} else {
			components["kill_switch"] = "off"
		}
		resp["components"] = components
		resp["tracked_actors"] = s.rt.Tracker.Actors()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEngage(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, pipeline.ErrorResponse(requestID, err))
		return
	}
	if err := rules.ValidateJSON(rules.Request, body); err != nil {
		writeJSON(w, http.StatusBadRequest, pipeline.ErrorResponse(requestID, err))
		return
	}
	var req pipeline.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, pipeline.ErrorResponse(requestID, err))
		return
	}

	tenantID := requestctx.TenantID(r.Context())
	if req.TenantID == "" {
		req.TenantID = tenantID
	}
	if req.TenantID != tenantID {
		writeError(w, http.StatusForbidden, "forbidden", "tenant_id does not match API key")
		return
	}

	resp, err := s.rt.Pipeline.Process(r.Context(), &req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, pipeline.ErrInvalidRequest):
			status = http.StatusBadRequest
		case errors.Is(err, tenant.ErrTenantNotFound):
			status = http.StatusForbidden
		case errors.Is(err, tenant.ErrRateLimitExceeded):
			w.Header().Set("Retry-After", "1")
			status = http.StatusTooManyRequests
		default:
			log.Error().Err(err).Str("tenant_id", req.TenantID).Str("request_id", requestID).
				Func(engageotel.LogTraceFields(r.Context())).Msg("engage_failed")
		}
		writeJSON(w, status, pipeline.ErrorResponse(requestID, err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseLimit(r *http.Request) int {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}

func (s *Server) handleActionsList(w http.ResponseWriter, r *http.Request) {
	status := control.Status(strings.ToUpper(r.URL.Query().Get("status")))
	if status == "" {
		status = control.StatusPending
	}
	actions, err := s.rt.Control.List(r.Context(), control.ListFilter{
		TenantID: requestctx.TenantID(r.Context()),
		Status:   status,
		Limit:    parseLimit(r),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if actions == nil {
		actions = []*control.Action{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"actions": actions, "count": len(actions)})
}

// tenantAction loads the action named in the URL, hiding other tenants' actions as 404.
func (s *Server) tenantAction(w http.ResponseWriter, r *http.Request) (*control.Action, bool) {
	a, err := s.rt.Control.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil || a.Plan.TenantID != requestctx.TenantID(r.Context()) {
		if err != nil && !errors.Is(err, control.ErrActionNotFound) {
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
			return nil, false
		}
		writeError(w, http.StatusNotFound, "not_found", control.ErrActionNotFound.Error())
		return nil, false
	}
	return a, true
}

func (s *Server) handleActionGet(w http.ResponseWriter, r *http.Request) {
	a, ok := s.tenantAction(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type decisionRequest struct {
	Decision string `json:"decision"`
	Message  string `json:"message"`
	Reviewer string `json:"reviewer"`
}

func (s *Server) handleActionDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	a, ok := s.tenantAction(w, r)
	if !ok {
		return
	}
	reviewer := req.Reviewer
	if reviewer == "" {
		reviewer = requestctx.Reviewer(r.Context())
	}
	updated, err := s.rt.Control.Decide(r.Context(), a.ID(), control.Decision{
		Type:     control.DecisionType(req.Decision),
		Message:  req.Message,
		Reviewer: reviewer,
	})
	if err != nil {
		writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleActionExecuted(w http.ResponseWriter, r *http.Request) {
	a, ok := s.tenantAction(w, r)
	if !ok {
		return
	}
	updated, err := s.rt.Control.MarkExecuted(r.Context(), a.ID())
	if err != nil {
		writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func writeControlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, control.ErrActionNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, control.ErrActionConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, control.ErrEditMessageRequired), errors.Is(err, control.ErrInvalidDecision):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.rt.Control.Audit(r.Context(), requestctx.TenantID(r.Context()),
		r.URL.Query().Get("plan_id"), parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if entries == nil {
		entries = []control.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries, "count": len(entries)})
}

type killSwitchState struct {
	Global    bool     `json:"global"`
	Platforms []string `json:"platforms"`
}

type killSwitchUpdate struct {
	Platform string `json:"platform"`
	Active   bool   `json:"active"`
}

func (s *Server) killSwitchState() killSwitchState {
	global, platforms := s.rt.Safety.KillSwitch().Snapshot()
	if platforms == nil {
		platforms = []string{}
	}
	sort.Strings(platforms)
	return killSwitchState{Global: global, Platforms: platforms}
}

func (s *Server) handleKillSwitchGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.killSwitchState())
}

func (s *Server) handleKillSwitchPut(w http.ResponseWriter, r *http.Request) {
	var req killSwitchUpdate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	s.rt.Safety.KillSwitch().Set(req.Platform, req.Active)
	log.Warn().Str("platform", req.Platform).Bool("active", req.Active).Msg("kill_switch_changed")
	writeJSON(w, http.StatusOK, s.killSwitchState())
}
