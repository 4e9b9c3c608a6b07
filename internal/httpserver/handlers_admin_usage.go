package httpserver

import (
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
)

var monthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

func resolveMonth(r *http.Request) (string, bool) {
	month := r.URL.Query().Get("month")
	if month == "" {
		return time.Now().UTC().Format("2006-01"), true
	}
	return month, monthPattern.MatchString(month)
}

func (s *Server) handleTenantUsage(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")

	month, ok := resolveMonth(r)
	if !ok {
		RespondDetail(w, http.StatusBadRequest, "month must match YYYY-MM")
		return
	}

	ctx := r.Context()

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

	summary, err := s.deps.Usage.SummarizeTenantMonth(ctx, tenantID, month)
	if err != nil {
		s.logger.Error("summarizing tenant usage", "error", err)
		RespondDetail(w, http.StatusServiceUnavailable, "usage meter unavailable")
		return
	}

	Respond(w, http.StatusOK, summary)
}

func (s *Server) handleUsageExport(w http.ResponseWriter, r *http.Request) {
	month, ok := resolveMonth(r)
	if !ok {
		RespondDetail(w, http.StatusBadRequest, "month must match YYYY-MM")
		return
	}

	summaries, err := s.deps.Usage.SummarizeAllTenantsMonth(r.Context(), month)
	if err != nil {
		s.logger.Error("exporting usage", "error", err)
		RespondDetail(w, http.StatusServiceUnavailable, "usage meter unavailable")
		return
	}

	Respond(w, http.StatusOK, summaries)
}
