package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/openprocure/harrier/internal/domain"
	"github.com/openprocure/harrier/internal/health"
	"github.com/openprocure/harrier/internal/queue"
	"github.com/openprocure/harrier/internal/ratelimit"
	"github.com/openprocure/harrier/internal/repository"
	"github.com/openprocure/harrier/internal/scheduler"
	"github.com/openprocure/harrier/internal/scoring"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	checker   *health.Checker
	scheduler *scheduler.Scheduler
	queue     *queue.Queue
	limiter   *ratelimit.Limiter
	engine    *scoring.Engine
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(
	repo domain.Repository,
	cache domain.Cache,
	checker *health.Checker,
	sched *scheduler.Scheduler,
	q *queue.Queue,
	limiter *ratelimit.Limiter,
	engine *scoring.Engine,
	version string,
) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		checker:   checker,
		scheduler: sched,
		queue:     q,
		limiter:   limiter,
		engine:    engine,
		version:   version,
	}
}

// Health returns liveness plus per-component degradation.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.checker != nil && !h.checker.Healthy(r.Context()) {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// Status returns the operational aggregate: job counts, source health,
// rate-limit state, and credential expiry.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	summary, err := h.repo.StatusSummary(r.Context())
	if err != nil {
		slog.Error("failed to build status summary", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to build status summary",
		})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListSchedules returns all per-source schedules.
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.repo.ListSchedules(r.Context())
	if err != nil {
		slog.Error("failed to list schedules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list schedules",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schedules": schedules,
	})
}

// SaveSchedule creates or updates one source's schedule.
func (h *Handler) SaveSchedule(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	var sched domain.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	sched.Source = source

	if sched.CronExpr == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "cronExpr is required",
		})
		return
	}

	if err := h.scheduler.Save(r.Context(), &sched); err != nil {
		slog.Error("failed to save schedule", "source", source, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	slog.Info("schedule saved", "source", source, "cron", sched.CronExpr)
	writeJSON(w, http.StatusOK, sched)
}

// TriggerRequest is the body for POST /sources/{source}/trigger.
type TriggerRequest struct {
	RunType  string `json:"runType,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

// TriggerSource enqueues a manual job for a source.
func (h *Handler) TriggerSource(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	var req TriggerRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	job, err := h.scheduler.TriggerNow(r.Context(), source, req.RunType, req.Priority)
	if err != nil {
		slog.Error("failed to trigger source", "source", source, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to enqueue job",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

// LimitsRequest is the body for PUT /sources/{source}/limits.
type LimitsRequest struct {
	DailyLimit  *int `json:"dailyLimit"`
	HourlyLimit *int `json:"hourlyLimit"`
}

// SetLimits configures a source's rate-limit quotas. Null means unlimited.
func (h *Handler) SetLimits(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	var req LimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.limiter.Configure(r.Context(), source, req.DailyLimit, req.HourlyLimit); err != nil {
		slog.Error("failed to set rate limits", "source", source, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to set rate limits",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"source": source,
	})
}

// GetJob retrieves a job by ID, including its result counts.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := h.queue.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "job not found",
			})
			return
		}
		slog.Error("failed to get job", "job_id", jobID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get job",
		})
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// CancelJob cancels a pending or running job.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	if err := h.queue.Cancel(r.Context(), jobID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "job not found",
			})
			return
		}
		if errors.Is(err, repository.ErrInvalidInput) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("failed to cancel job", "job_id", jobID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to cancel job",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"jobId":  jobID,
		"status": domain.JobCancelled,
	})
}

// JobCounts returns job counts grouped by status.
func (h *Handler) JobCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.queue.Counts(r.Context())
	if err != nil {
		slog.Error("failed to count jobs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to count jobs",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"counts": counts,
	})
}

// ListRules returns the currently loaded scoring rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules := h.engine.LoadedRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// CreateRule validates and persists a scoring rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.ScoringRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if rule.Factor == "" || rule.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "factor and expression are required",
		})
		return
	}

	if err := h.engine.ValidateRule(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.repo.SaveScoringRule(r.Context(), &rule); err != nil {
		slog.Error("failed to save scoring rule", "factor", rule.Factor, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save scoring rule",
		})
		return
	}

	slog.Info("scoring rule saved", "factor", rule.Factor, "max_points", rule.MaxPoints)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule saved. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules hot-reloads scoring rules from the database into the engine.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.repo.ListScoringRules(r.Context())
	if err != nil {
		slog.Error("failed to list scoring rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load scoring rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(rules); err != nil {
		slog.Error("failed to reload scoring rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
		return
	}

	slog.Info("scoring rules reloaded", "count", len(rules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "scoring rules reloaded successfully",
		"count":   len(rules),
	})
}

// CreateTenant registers a tenant.
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var tenant domain.Tenant
	if err := json.NewDecoder(r.Body).Decode(&tenant); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if tenant.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id is required",
		})
		return
	}
	if tenant.Status == "" {
		tenant.Status = domain.TenantStatusActive
	}

	if err := h.repo.SaveTenant(r.Context(), &tenant); err != nil {
		slog.Error("failed to save tenant", "tenant_id", tenant.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save tenant",
		})
		return
	}

	writeJSON(w, http.StatusCreated, tenant)
}

// SaveProfile writes a tenant's scoring profile and invalidates its cached
// copy so the next scoring pass sees the change.
func (h *Handler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")

	var profile domain.TenantProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	profile.TenantID = tenantID

	if err := h.repo.SaveTenantProfile(r.Context(), &profile); err != nil {
		slog.Error("failed to save profile", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save profile",
		})
		return
	}

	if h.cache != nil {
		_ = h.cache.Delete(r.Context(), "profile:"+tenantID)
	}

	writeJSON(w, http.StatusOK, profile)
}

// feedEntry is one row of a tenant's scored feed.
type feedEntry struct {
	*domain.TenantOpportunity
	Tier string `json:"tier"`
}

// ListOpportunities returns the calling tenant's scored feed, highest score
// first, with the derived priority tier attached.
func (h *Handler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	feed, err := h.repo.ListTenantOpportunities(ctx, tenantID, limit)
	if err != nil {
		slog.Error("failed to list tenant opportunities", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list opportunities",
		})
		return
	}

	entries := make([]feedEntry, 0, len(feed))
	for _, to := range feed {
		entries = append(entries, feedEntry{TenantOpportunity: to, Tier: to.Tier()})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": entries,
		"count":         len(entries),
	})
}

// GetOpportunity returns one scored copy with its amendment history.
func (h *Handler) GetOpportunity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	oppID := chi.URLParam(r, "id")

	to, err := h.repo.GetTenantOpportunity(ctx, tenantID, oppID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "opportunity not found",
			})
			return
		}
		slog.Error("failed to get tenant opportunity", "tenant_id", tenantID, "opportunity_id", oppID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get opportunity",
		})
		return
	}

	amendments, err := h.repo.ListAmendments(ctx, oppID)
	if err != nil {
		slog.Error("failed to list amendments", "opportunity_id", oppID, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"opportunity": feedEntry{TenantOpportunity: to, Tier: to.Tier()},
		"amendments":  amendments,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
