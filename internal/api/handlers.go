package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/inkpress/inkpress-backend/internal/audit"
	"github.com/inkpress/inkpress-backend/internal/config"
	"github.com/inkpress/inkpress-backend/internal/content"
	"github.com/inkpress/inkpress-backend/internal/monitor"
	"github.com/inkpress/inkpress-backend/internal/notify"
	"github.com/inkpress/inkpress-backend/internal/repository"
	"github.com/inkpress/inkpress-backend/internal/scheduler"
	"github.com/inkpress/inkpress-backend/internal/store"
	"github.com/inkpress/inkpress-backend/internal/ws"
	"go.uber.org/zap"
)

// MetricsInterface defines the interface for metrics recording
type MetricsInterface interface {
	RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration)
}

// CronActorID is the audit actor for external cron trigger runs.
const CronActorID = "system:cron"

type Handler struct {
	engine   *scheduler.Engine
	mon      *monitor.Monitor
	repo     *repository.Repository
	notifier *notify.Notifier
	auditor  *audit.Recorder
	hub      *ws.Hub
	cache    *store.Cache
	config   *config.Config
	logger   *zap.SugaredLogger
	metrics  MetricsInterface
}

func NewHandler(
	engine *scheduler.Engine,
	mon *monitor.Monitor,
	repo *repository.Repository,
	notifier *notify.Notifier,
	auditor *audit.Recorder,
	hub *ws.Hub,
	cache *store.Cache,
	config *config.Config,
	logger *zap.SugaredLogger,
	metrics MetricsInterface,
) *Handler {
	return &Handler{
		engine:   engine,
		mon:      mon,
		repo:     repo,
		notifier: notifier,
		auditor:  auditor,
		hub:      hub,
		cache:    cache,
		config:   config,
		logger:   logger,
		metrics:  metrics,
	}
}

// Public content endpoints. These sit behind the passive-trigger middleware,
// so every list render opportunistically ticks the scheduler.

func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	h.listPublished(w, r, content.KindPost)
}

func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	h.listPublished(w, r, content.KindReview)
}

func (h *Handler) listPublished(w http.ResponseWriter, r *http.Request, kind content.Kind) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	items, err := h.repo.ListPublished(r.Context(), kind, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "LIST_ERROR", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, ItemListResponse{Items: items})
}

// CronTrigger is the external time-based trigger. Authorization precedence:
// Authorization: Bearer, then X-Cron-Secret, then the secret query
// parameter. With no secret configured the trigger is open outside prod.
func (h *Handler) CronTrigger(w http.ResponseWriter, r *http.Request) {
	if !h.cronAuthorized(r) {
		h.auditor.Record(r.Context(), CronActorID, audit.ActionCronUnauthorized, "", map[string]any{
			"remote_addr": r.RemoteAddr,
		})
		h.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid cron secret")
		return
	}

	summary, err := h.engine.RunWithRetry(r.Context(), "cron")
	if err != nil {
		h.logger.Errorw("Cron scheduler run failed after retries", "error", err)
		h.writeError(w, http.StatusInternalServerError, "SCHEDULER_ERROR", err.Error())
		return
	}

	h.auditor.Record(r.Context(), CronActorID, audit.ActionSchedulerCronRun, "", map[string]any{
		"published_posts":   summary.PublishedPosts,
		"published_reviews": summary.PublishedReviews,
		"errors":            len(summary.Errors),
	})
	h.cacheRunSummary(r.Context(), summary)

	h.writeJSON(w, http.StatusOK, CronRunResponse{
		Success: true,
		Summary: summary,
		RanAt:   summary.RanAt,
	})
}

func (h *Handler) cronAuthorized(r *http.Request) bool {
	secret := h.config.Cron.Secret
	if secret == "" {
		return !h.config.IsProd()
	}

	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ") == secret
	}
	if header := r.Header.Get("X-Cron-Secret"); header != "" {
		return header == secret
	}
	return r.URL.Query().Get("secret") == secret
}

// ManualRun is the authenticated admin "Run Now" action. The audit event is
// written whether the run succeeds or fails; a failure additionally raises
// a critical admin alert since an operator explicitly asked for this run.
func (h *Handler) ManualRun(w http.ResponseWriter, r *http.Request) {
	actor := "unknown"
	if user, ok := AdminFromContext(r.Context()); ok {
		actor = user.ID
	}

	summary, err := h.engine.Run(r.Context(), "manual")

	detail := map[string]any{"failed": err != nil}
	if summary != nil {
		detail["published_posts"] = summary.PublishedPosts
		detail["published_reviews"] = summary.PublishedReviews
	}
	h.auditor.Record(r.Context(), actor, audit.ActionSchedulerManualRun, "", detail)

	if err != nil {
		alert := monitor.NewAlert(
			monitor.AlertManualRunFailed,
			"Manual scheduler run failed",
			fmt.Sprintf("A manual scheduled-publishing run triggered by %s failed: %v", actor, err),
			"/admin/scheduler",
			map[string]any{"actor": actor, "error": err.Error()},
		)
		if _, alertErr := h.notifier.NotifyAdminUsers(r.Context(), alert); alertErr != nil {
			h.logger.Errorw("Failed to raise manual-run alert", "error", alertErr)
		}

		h.writeError(w, http.StatusInternalServerError, "SCHEDULER_ERROR", err.Error())
		return
	}

	h.cacheRunSummary(r.Context(), summary)
	h.writeJSON(w, http.StatusOK, ManualRunResponse{Summary: summary})
}

// Schedule management.

func (h *Handler) SetSchedule(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromURL(r)
	if !ok {
		h.writeError(w, http.StatusNotFound, "UNKNOWN_KIND", "unknown content kind")
		return
	}
	id := chi.URLParam(r, "id")

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	if req.ScheduledAt.IsZero() {
		h.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "scheduled_at is required")
		return
	}

	actor := "unknown"
	if user, ok := AdminFromContext(r.Context()); ok {
		actor = user.ID
	}

	// Distinguish first schedule from a reschedule for the revision reason.
	prior, err := h.repo.GetItem(r.Context(), kind, id)
	if err != nil {
		h.writeItemError(w, kind, id, err)
		return
	}

	item, err := h.repo.SetSchedule(r.Context(), kind, id, req.ScheduledAt.UTC(), actor)
	if err != nil {
		h.writeItemError(w, kind, id, err)
		return
	}

	reason := content.ReasonPostScheduled
	if prior.Scheduled() {
		reason = content.ReasonPostRescheduled
	}
	if kind == content.KindReview {
		reason = content.ReasonReviewScheduled
		if prior.Scheduled() {
			reason = content.ReasonReviewRescheduled
		}
	}
	h.recordRevision(r.Context(), item, reason, actor)
	h.auditor.Record(r.Context(), actor, audit.ActionScheduleSet, id, map[string]any{
		"kind":         kind,
		"scheduled_at": req.ScheduledAt.UTC(),
		"rescheduled":  prior.Scheduled(),
	})

	h.writeJSON(w, http.StatusOK, ItemResponse{Item: item})
}

func (h *Handler) ClearSchedule(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromURL(r)
	if !ok {
		h.writeError(w, http.StatusNotFound, "UNKNOWN_KIND", "unknown content kind")
		return
	}
	id := chi.URLParam(r, "id")

	actor := "unknown"
	if user, ok := AdminFromContext(r.Context()); ok {
		actor = user.ID
	}

	item, err := h.repo.ClearSchedule(r.Context(), kind, id)
	if err != nil {
		h.writeItemError(w, kind, id, err)
		return
	}

	reason := content.ReasonPostScheduleCleared
	if kind == content.KindReview {
		reason = content.ReasonReviewScheduleCleared
	}
	h.recordRevision(r.Context(), item, reason, actor)
	h.auditor.Record(r.Context(), actor, audit.ActionScheduleCleared, id, map[string]any{"kind": kind})

	h.writeJSON(w, http.StatusOK, ItemResponse{Item: item})
}

// Monitor endpoints.

func (h *Handler) RunMonitor(w http.ResponseWriter, r *http.Request) {
	summary, err := h.mon.Run(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "MONITOR_ERROR", err.Error())
		return
	}

	if err := h.cache.Set(r.Context(), store.KeyMonitorLastRun, summary, 24*time.Hour); err != nil {
		h.logger.Warnw("Failed to cache monitor summary", "error", err)
	}

	h.writeJSON(w, http.StatusOK, MonitorRunResponse{Summary: summary})
}

func (h *Handler) MonitorSummary(w http.ResponseWriter, r *http.Request) {
	var summary monitor.Summary
	if err := h.cache.Get(r.Context(), store.KeyMonitorLastRun, &summary); err != nil {
		if err == store.ErrCacheMiss {
			h.writeError(w, http.StatusNotFound, "NO_SUMMARY", "no monitor run recorded yet")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "CACHE_ERROR", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, MonitorRunResponse{Summary: &summary})
}

// Notification endpoints.

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := AdminFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no authenticated user")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	notifications, err := h.repo.RecentNotifications(r.Context(), user.ID, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "LIST_ERROR", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, NotificationListResponse{Notifications: notifications})
}

func (h *Handler) NotificationsFeed(w http.ResponseWriter, r *http.Request) {
	h.hub.HandleWebSocket(w, r)
}

// Health and ops endpoints
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "NOT_READY", err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

// Utility methods

func (h *Handler) cacheRunSummary(ctx context.Context, summary *content.RunSummary) {
	if err := h.cache.Set(ctx, store.KeySchedulerLastRun, summary, 24*time.Hour); err != nil {
		h.logger.Warnw("Failed to cache run summary", "error", err)
	}
}

func (h *Handler) recordRevision(ctx context.Context, item *content.Item, reason, actor string) {
	snapshot, err := json.Marshal(item)
	if err != nil {
		h.logger.Errorw("Failed to marshal revision snapshot", "id", item.ID, "error", err)
		return
	}
	if _, err := h.repo.CreateRevision(ctx, item.ID, reason, actor, snapshot); err != nil {
		h.logger.Errorw("Failed to record revision", "id", item.ID, "reason", reason, "error", err)
	}
}

func (h *Handler) writeItemError(w http.ResponseWriter, kind content.Kind, id string, err error) {
	switch err {
	case repository.ErrNotFound:
		h.writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("%s %s not found", kind, id))
	case repository.ErrNotDraft:
		h.writeError(w, http.StatusConflict, "NOT_DRAFT", fmt.Sprintf("%s %s is not a draft", kind, id))
	default:
		h.writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
	}
}

func kindFromURL(r *http.Request) (content.Kind, bool) {
	switch chi.URLParam(r, "kind") {
	case "posts":
		return content.KindPost, true
	case "reviews":
		return content.KindReview, true
	default:
		return "", false
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.logger.Errorw("API error", "code", code, "message", message, "status", status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := ErrorResponse{
		Code:    code,
		Message: message,
	}
	json.NewEncoder(w).Encode(err)
}
