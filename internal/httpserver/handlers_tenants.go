package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fleetgate/agentctl/internal/admission"
	"github.com/fleetgate/agentctl/pkg/provisioning"
	"github.com/fleetgate/agentctl/pkg/tenant"
)

type createTenantRequest struct {
	Name string `json:"name"`
	Plan string `json:"plan"`
}

type createTenantResponse struct {
	TenantID          string `json:"tenant_id"`
	Status            string `json:"status"`
	ProvisioningJobID string `json:"provisioning_job_id"`
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Plan == "" {
		RespondDetail(w, http.StatusBadRequest, "name and plan are required")
		return
	}

	ctx := r.Context()

	pl, err := s.deps.Plans.Get(ctx, req.Plan)
	if err != nil {
		s.logger.Error("loading plan for tenant creation", "error", err)
		RespondDetail(w, http.StatusServiceUnavailable, "plan catalog unavailable")
		return
	}
	if pl == nil || !pl.Active {
		RespondDetail(w, http.StatusBadRequest, "unknown or inactive plan")
		return
	}

	now := time.Now().UTC()
	t := tenant.Tenant{
		TenantID:  uuid.NewString(),
		Name:      req.Name,
		Plan:      req.Plan,
		Status:    tenant.StatusPending,
		CreatedAt: now,
	}
	if err := s.deps.Tenants.Create(ctx, t); err != nil {
		s.logger.Error("creating tenant", "error", err)
		RespondDetail(w, http.StatusServiceUnavailable, "tenant catalog unavailable")
		return
	}

	job := provisioning.Job{
		JobID:          uuid.NewString(),
		TenantID:       t.TenantID,
		Step:           provisioning.StepBootstrap,
		IdempotencyKey: "bootstrap:" + t.TenantID,
		State:          provisioning.StateQueued,
		MaxAttempts:    s.deps.DefaultMaxAttempts,
		AvailableAt:    now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.deps.ProvisioningQ.Enqueue(ctx, job); err != nil {
		s.logger.Error("enqueuing bootstrap job", "error", err)
		RespondDetail(w, http.StatusServiceUnavailable, "provisioning queue unavailable")
		return
	}

	Respond(w, http.StatusCreated, createTenantResponse{
		TenantID:          t.TenantID,
		Status:            t.Status,
		ProvisioningJobID: job.JobID,
	})
}

func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")

	t, err := s.deps.Tenants.Get(r.Context(), tenantID)
	if err != nil {
		s.logger.Error("loading tenant", "error", err)
		RespondDetail(w, http.StatusServiceUnavailable, "tenant catalog unavailable")
		return
	}
	if t == nil {
		RespondDetail(w, http.StatusNotFound, "unknown tenant")
		return
	}

	Respond(w, http.StatusOK, t)
}

type executeRunRequest struct {
	AgentID string `json:"agent_id"`
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type executeRunResponse struct {
	TenantID   string `json:"tenant_id"`
	RequestID  string `json:"request_id"`
	OutputText string `json:"output_text"`
}

func (s *Server) handleExecuteRun(w http.ResponseWriter, r *http.Request) {
	var body executeRunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		RespondDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req := admission.Request{
		PathTenantID:    chi.URLParam(r, "tenant_id"),
		XTenantID:       r.Header.Get("X-Tenant-Id"),
		XCustomerUserID: r.Header.Get("X-Customer-User-Id"),
		XAPIKey:         r.Header.Get("X-Api-Key"),
		Authorization:   r.Header.Get("Authorization"),
		AgentID:         body.AgentID,
		Message:         body.Message,
	}

	result, err := s.deps.Pipeline.Run(r.Context(), req)
	if err != nil {
		RespondError(w, err)
		return
	}

	Respond(w, http.StatusOK, executeRunResponse{
		TenantID:   result.TenantID,
		RequestID:  result.RequestID,
		OutputText: result.OutputText,
	})
}
