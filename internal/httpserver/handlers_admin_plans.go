package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleetgate/agentctl/pkg/plan"
)

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.deps.Plans.List(r.Context())
	if err != nil {
		s.logger.Error("listing plans", "error", err)
		RespondDetail(w, http.StatusServiceUnavailable, "plan catalog unavailable")
		return
	}
	Respond(w, http.StatusOK, plans)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "plan_id")

	pl, err := s.deps.Plans.Get(r.Context(), planID)
	if err != nil {
		s.logger.Error("loading plan", "error", err)
		RespondDetail(w, http.StatusServiceUnavailable, "plan catalog unavailable")
		return
	}
	if pl == nil {
		RespondDetail(w, http.StatusNotFound, "unknown plan")
		return
	}
	Respond(w, http.StatusOK, pl)
}

type createPlanRequest struct {
	PlanID          string `json:"plan_id"`
	DisplayName     string `json:"display_name"`
	MonthlyMessages int    `json:"monthly_messages"`
	MonthlyTokenCap int    `json:"monthly_token_cap"`
	MaxAgents       int    `json:"max_agents"`
	Active          bool   `json:"active"`
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlanID == "" || req.DisplayName == "" {
		RespondDetail(w, http.StatusBadRequest, "plan_id and display_name are required")
		return
	}
	if req.MonthlyMessages < 0 || req.MonthlyTokenCap < 0 || req.MaxAgents < 0 {
		RespondDetail(w, http.StatusBadRequest, "monthly_messages, monthly_token_cap, and max_agents must be non-negative")
		return
	}

	p := plan.Plan{
		PlanID:          req.PlanID,
		DisplayName:     req.DisplayName,
		MonthlyMessages: req.MonthlyMessages,
		MonthlyTokenCap: req.MonthlyTokenCap,
		MaxAgents:       req.MaxAgents,
		Active:          req.Active,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.deps.Plans.Create(r.Context(), p); err != nil {
		s.logger.Error("creating plan", "error", err)
		RespondDetail(w, http.StatusServiceUnavailable, "plan catalog unavailable")
		return
	}

	Respond(w, http.StatusCreated, p)
}
