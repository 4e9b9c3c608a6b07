package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type setTenantPlanRequest struct {
	Plan string `json:"plan"`
}

func (s *Server) handleSetTenantPlan(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	ctx := r.Context()

	var req setTenantPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Plan == "" {
		RespondDetail(w, http.StatusBadRequest, "plan is required")
		return
	}

	t, err := s.deps.Tenants.Get(ctx, tenantID)
	if err != nil {
		s.logger.Error("loading tenant", "error", err)
		RespondDetail(w, http.StatusServiceUnavailable, "tenant catalog unavailable")
		return
	}
	if t == nil {
		RespondDetail(w, http.StatusNotFound, "unknown tenant")
		return
	}

	pl, err := s.deps.Plans.Get(ctx, req.Plan)
	if err != nil {
		s.logger.Error("loading plan", "error", err)
		RespondDetail(w, http.StatusServiceUnavailable, "plan catalog unavailable")
		return
	}
	if pl == nil || !pl.Active {
		RespondDetail(w, http.StatusBadRequest, "unknown or inactive plan")
		return
	}

	if err := s.deps.Tenants.SetPlan(ctx, tenantID, req.Plan); err != nil {
		s.logger.Error("setting tenant plan", "error", err)
		RespondDetail(w, http.StatusServiceUnavailable, "tenant catalog unavailable")
		return
	}

	t.Plan = req.Plan
	Respond(w, http.StatusOK, t)
}
