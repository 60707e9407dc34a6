package api

import (
	"time"

	"github.com/inkpress/inkpress-backend/internal/content"
	"github.com/inkpress/inkpress-backend/internal/monitor"
	"github.com/inkpress/inkpress-backend/internal/repository"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CronRunResponse struct {
	Success bool                `json:"success"`
	Summary *content.RunSummary `json:"summary"`
	RanAt   time.Time           `json:"ranAt"`
}

type ManualRunResponse struct {
	Summary *content.RunSummary `json:"summary"`
}

type MonitorRunResponse struct {
	Summary *monitor.Summary `json:"summary"`
}

type ScheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

type ItemResponse struct {
	Item *content.Item `json:"item"`
}

type ItemListResponse struct {
	Items []content.Item `json:"items"`
}

type NotificationListResponse struct {
	Notifications []repository.Notification `json:"notifications"`
}
