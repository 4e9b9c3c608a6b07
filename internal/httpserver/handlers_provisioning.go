package httpserver

import (
	"net/http"

	"github.com/fleetgate/agentctl/pkg/provisioning"
)

func (s *Server) handleRunNextProvisioningJob(w http.ResponseWriter, r *http.Request) {
	processed, err := provisioning.ProcessNext(
		r.Context(),
		s.deps.ProvisioningQ,
		s.deps.Tenants,
		s.deps.DefaultMaxAttempts,
		s.deps.DefaultRetryBaseSecs,
		s.logger,
	)
	if err != nil {
		s.logger.Error("provisioning tick failed", "error", err)
		RespondDetail(w, http.StatusServiceUnavailable, "provisioning worker unavailable")
		return
	}

	Respond(w, http.StatusOK, map[string]bool{"processed": processed})
}
