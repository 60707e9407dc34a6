package content

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestItemDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name string
		item Item
		due  bool
	}{
		{"unscheduled draft", Item{Status: StatusDraft}, false},
		{"scheduled in the future", Item{Status: StatusDraft, ScheduledAt: &future}, false},
		{"scheduled in the past", Item{Status: StatusDraft, ScheduledAt: &past}, true},
		{"due exactly now", Item{Status: StatusDraft, ScheduledAt: &now}, true},
		{"published item with stale schedule", Item{Status: StatusPublished, ScheduledAt: &past}, false},
		{"archived item", Item{Status: StatusArchived, ScheduledAt: &past}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.due, tc.item.Due(now))
		})
	}
}

func TestItemScheduled(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	unscheduled := Item{Status: StatusDraft}
	scheduled := Item{Status: StatusDraft, ScheduledAt: &at}
	assert.False(t, unscheduled.Scheduled())
	assert.True(t, scheduled.Scheduled())
}

func TestScheduledPublishReason(t *testing.T) {
	assert.Equal(t, ReasonPostScheduledPublish, ScheduledPublishReason(KindPost))
	assert.Equal(t, ReasonReviewScheduledPublish, ScheduledPublishReason(KindReview))
}

func TestRunSummaryTotal(t *testing.T) {
	s := RunSummary{PublishedPosts: 2, PublishedReviews: 3}
	assert.Equal(t, 5, s.Total())
}
