package audit

import (
	"context"
	"encoding/json"

	"github.com/inkpress/inkpress-backend/internal/repository"
	"go.uber.org/zap"
)

// Actions recorded by the scheduler trigger surfaces and the schedule API.
const (
	ActionSchedulerManualRun = "scheduler_manual_run"
	ActionSchedulerCronRun   = "scheduler_cron_run"
	ActionScheduleSet        = "schedule_set"
	ActionScheduleCleared    = "schedule_cleared"
	ActionCronUnauthorized   = "scheduler_cron_unauthorized"
)

// Store is the persistence half of the recorder.
type Store interface {
	InsertAuditEvent(ctx context.Context, e *repository.AuditEvent) error
}

// Recorder writes audit events. A failed write is logged and swallowed so
// auditing never breaks the operation being audited.
type Recorder struct {
	store  Store
	logger *zap.SugaredLogger
}

func NewRecorder(store Store, logger *zap.SugaredLogger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, actorID, action, entityID string, detail map[string]any) {
	var detailJSON []byte
	if detail != nil {
		var err error
		detailJSON, err = json.Marshal(detail)
		if err != nil {
			r.logger.Warnw("Failed to marshal audit detail", "action", action, "error", err)
		}
	}

	event := &repository.AuditEvent{
		ActorID:  actorID,
		Action:   action,
		EntityID: entityID,
		Detail:   detailJSON,
	}

	if err := r.store.InsertAuditEvent(ctx, event); err != nil {
		r.logger.Errorw("Failed to record audit event", "action", action, "actor", actorID, "error", err)
		return
	}

	r.logger.Infow("Audit event recorded", "action", action, "actor", actorID, "entity", entityID)
}
