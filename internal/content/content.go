package content

import (
	"time"
)

// Status is the editorial lifecycle state of a publishable item.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Kind distinguishes the two publishable item tables. They are structurally
// identical as far as scheduling is concerned.
type Kind string

const (
	KindPost   Kind = "post"
	KindReview Kind = "review"
)

// Item is a publishable record (a post or a review).
//
// Invariants maintained by the repository layer:
//   - status=published implies published_at is set
//   - scheduled_at set implies status=draft
//   - clearing a schedule nulls scheduled_at and scheduled_by_id together
type Item struct {
	ID            string     `json:"id" db:"id"`
	Kind          Kind       `json:"kind" db:"-"`
	Title         string     `json:"title" db:"title"`
	Slug          string     `json:"slug" db:"slug"`
	Body          string     `json:"body" db:"body"`
	Status        Status     `json:"status" db:"status"`
	ScheduledAt   *time.Time `json:"scheduled_at,omitempty" db:"scheduled_at"`
	ScheduledByID *string    `json:"scheduled_by_id,omitempty" db:"scheduled_by_id"`
	PublishedAt   *time.Time `json:"published_at,omitempty" db:"published_at"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty" db:"reviewed_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Scheduled reports whether the item currently carries a publish schedule.
func (i *Item) Scheduled() bool {
	return i.ScheduledAt != nil
}

// Due reports whether the item should be published at or before now.
func (i *Item) Due(now time.Time) bool {
	return i.Status == StatusDraft && i.ScheduledAt != nil && !i.ScheduledAt.After(now)
}

// Revision is an append-only snapshot written alongside every content state
// transition. Versions are monotonic per entity.
type Revision struct {
	ID        string    `json:"id" db:"id"`
	EntityID  string    `json:"entity_id" db:"entity_id"`
	Version   int       `json:"version" db:"version"`
	Snapshot  []byte    `json:"snapshot" db:"snapshot"`
	Reason    string    `json:"reason" db:"reason"`
	ActorID   string    `json:"actor_id" db:"actor_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Revision reasons written by the scheduler and the schedule-management API.
const (
	ReasonPostScheduledPublish   = "post_scheduled_publish"
	ReasonReviewScheduledPublish = "review_scheduled_publish"
	ReasonPostScheduled          = "post_scheduled"
	ReasonReviewScheduled        = "review_scheduled"
	ReasonPostRescheduled        = "post_rescheduled"
	ReasonReviewRescheduled      = "review_rescheduled"
	ReasonPostScheduleCleared    = "post_schedule_cleared"
	ReasonReviewScheduleCleared  = "review_schedule_cleared"
)

// ScheduledPublishReason returns the revision reason for a scheduler-driven
// publish of the given kind.
func ScheduledPublishReason(k Kind) string {
	if k == KindReview {
		return ReasonReviewScheduledPublish
	}
	return ReasonPostScheduledPublish
}

// ItemError records a single failed item inside a batch run. One bad item
// must not block its siblings, so these are collected rather than returned.
type ItemError struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
	Err  string `json:"error"`
}

// RunSummary is the outcome of one scheduled-publishing invocation. It is
// returned to callers and logged, never persisted.
type RunSummary struct {
	PublishedPosts   int         `json:"published_posts"`
	PublishedReviews int         `json:"published_reviews"`
	Errors           []ItemError `json:"errors,omitempty"`
	RanAt            time.Time   `json:"ran_at"`
}

// Total returns the number of items published in the run.
func (s *RunSummary) Total() int {
	return s.PublishedPosts + s.PublishedReviews
}
