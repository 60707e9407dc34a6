package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inkpress/inkpress-backend/internal/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockContentStore struct {
	mock.Mock
}

func (m *MockContentStore) DueItems(ctx context.Context, kind content.Kind, now time.Time) ([]content.Item, error) {
	args := m.Called(ctx, kind, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]content.Item), args.Error(1)
}

func (m *MockContentStore) PublishDueItem(ctx context.Context, kind content.Kind, id string, now time.Time) (bool, error) {
	args := m.Called(ctx, kind, id, now)
	return args.Bool(0), args.Error(1)
}

type MockRevisionWriter struct {
	mock.Mock
}

func (m *MockRevisionWriter) CreateRevision(ctx context.Context, entityID, reason, actorID string, snapshot []byte) (*content.Revision, error) {
	args := m.Called(ctx, entityID, reason, actorID, snapshot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*content.Revision), args.Error(1)
}

type MockPublishNotifier struct {
	mock.Mock
}

func (m *MockPublishNotifier) NotifyOnPublish(ctx context.Context, item PublishedItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

var _ ContentStore = (*MockContentStore)(nil)
var _ RevisionWriter = (*MockRevisionWriter)(nil)
var _ PublishNotifier = (*MockPublishNotifier)(nil)

func testEngine(store *MockContentStore, revisions *MockRevisionWriter, notifier *MockPublishNotifier) *Engine {
	logger := zap.NewNop().Sugar()
	return NewEngine(store, revisions, notifier, logger, nil, EngineConfig{
		Cooldown:      5 * time.Minute,
		RetryAttempts: 3,
		RetryBackoff:  time.Millisecond,
	})
}

func dueItem(kind content.Kind, id string, scheduledAt time.Time) content.Item {
	actor := "admin-1"
	return content.Item{
		ID:            id,
		Kind:          kind,
		Title:         "Title " + id,
		Slug:          "slug-" + id,
		Status:        content.StatusDraft,
		ScheduledAt:   &scheduledAt,
		ScheduledByID: &actor,
	}
}

func TestRun_PublishesDueItem(t *testing.T) {
	store := &MockContentStore{}
	revisions := &MockRevisionWriter{}
	notifier := &MockPublishNotifier{}
	engine := testEngine(store, revisions, notifier)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine.SetClock(func() time.Time { return now })

	item := dueItem(content.KindPost, "post-1", now.Add(-time.Second))
	store.On("DueItems", mock.Anything, content.KindPost, now).Return([]content.Item{item}, nil)
	store.On("DueItems", mock.Anything, content.KindReview, now).Return([]content.Item{}, nil)
	store.On("PublishDueItem", mock.Anything, content.KindPost, "post-1", now).Return(true, nil)
	revisions.On("CreateRevision", mock.Anything, "post-1", content.ReasonPostScheduledPublish, SystemActorID, mock.Anything).
		Return(&content.Revision{EntityID: "post-1", Version: 1}, nil)
	notifier.On("NotifyOnPublish", mock.Anything, PublishedItem{ID: "post-1", Title: "Title post-1", Slug: "slug-post-1"}).
		Return(nil)

	summary, err := engine.Run(context.Background(), "manual")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.PublishedPosts)
	assert.Equal(t, 0, summary.PublishedReviews)
	assert.Empty(t, summary.Errors)

	store.AssertExpectations(t)
	revisions.AssertExpectations(t)
	notifier.AssertNumberOfCalls(t, "NotifyOnPublish", 1)
}

func TestRun_SecondRunFindsNothing(t *testing.T) {
	store := &MockContentStore{}
	revisions := &MockRevisionWriter{}
	notifier := &MockPublishNotifier{}
	engine := testEngine(store, revisions, notifier)

	// After a publish the item no longer matches draft+due, so the second
	// scan comes back empty and nothing fires twice.
	store.On("DueItems", mock.Anything, mock.Anything, mock.Anything).Return([]content.Item{}, nil)

	summary, err := engine.Run(context.Background(), "manual")
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Total())
	revisions.AssertNotCalled(t, "CreateRevision")
	notifier.AssertNotCalled(t, "NotifyOnPublish")
}

func TestRun_LostRaceIsNotCounted(t *testing.T) {
	store := &MockContentStore{}
	revisions := &MockRevisionWriter{}
	notifier := &MockPublishNotifier{}
	engine := testEngine(store, revisions, notifier)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine.SetClock(func() time.Time { return now })

	item := dueItem(content.KindPost, "post-1", now.Add(-time.Minute))
	store.On("DueItems", mock.Anything, content.KindPost, now).Return([]content.Item{item}, nil)
	store.On("DueItems", mock.Anything, content.KindReview, now).Return([]content.Item{}, nil)
	// Another instance already won the conditional update.
	store.On("PublishDueItem", mock.Anything, content.KindPost, "post-1", now).Return(false, nil)

	summary, err := engine.Run(context.Background(), "cron")
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Total())
	assert.Empty(t, summary.Errors)
	revisions.AssertNotCalled(t, "CreateRevision")
	notifier.AssertNotCalled(t, "NotifyOnPublish")
}

func TestRun_PerItemErrorIsolation(t *testing.T) {
	store := &MockContentStore{}
	revisions := &MockRevisionWriter{}
	notifier := &MockPublishNotifier{}
	engine := testEngine(store, revisions, notifier)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine.SetClock(func() time.Time { return now })

	bad := dueItem(content.KindPost, "post-bad", now.Add(-time.Hour))
	good := dueItem(content.KindPost, "post-good", now.Add(-time.Minute))
	store.On("DueItems", mock.Anything, content.KindPost, now).Return([]content.Item{bad, good}, nil)
	store.On("DueItems", mock.Anything, content.KindReview, now).Return([]content.Item{}, nil)
	store.On("PublishDueItem", mock.Anything, content.KindPost, "post-bad", now).Return(false, errors.New("write failed"))
	store.On("PublishDueItem", mock.Anything, content.KindPost, "post-good", now).Return(true, nil)
	revisions.On("CreateRevision", mock.Anything, "post-good", content.ReasonPostScheduledPublish, SystemActorID, mock.Anything).
		Return(&content.Revision{EntityID: "post-good", Version: 3}, nil)
	notifier.On("NotifyOnPublish", mock.Anything, mock.Anything).Return(nil)

	summary, err := engine.Run(context.Background(), "manual")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.PublishedPosts)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "post-bad", summary.Errors[0].ID)
}

func TestRun_SideEffectFailureDoesNotUndoPublish(t *testing.T) {
	store := &MockContentStore{}
	revisions := &MockRevisionWriter{}
	notifier := &MockPublishNotifier{}
	engine := testEngine(store, revisions, notifier)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine.SetClock(func() time.Time { return now })

	item := dueItem(content.KindReview, "rev-1", now)
	store.On("DueItems", mock.Anything, content.KindPost, now).Return([]content.Item{}, nil)
	store.On("DueItems", mock.Anything, content.KindReview, now).Return([]content.Item{item}, nil)
	store.On("PublishDueItem", mock.Anything, content.KindReview, "rev-1", now).Return(true, nil)
	revisions.On("CreateRevision", mock.Anything, "rev-1", content.ReasonReviewScheduledPublish, SystemActorID, mock.Anything).
		Return(&content.Revision{EntityID: "rev-1", Version: 1}, nil)
	notifier.On("NotifyOnPublish", mock.Anything, mock.Anything).Return(errors.New("newsletter down"))

	summary, err := engine.Run(context.Background(), "manual")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.PublishedReviews)
	assert.Empty(t, summary.Errors)
}

func TestRun_ScanErrorPropagates(t *testing.T) {
	store := &MockContentStore{}
	engine := testEngine(store, &MockRevisionWriter{}, &MockPublishNotifier{})

	store.On("DueItems", mock.Anything, content.KindPost, mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := engine.Run(context.Background(), "manual")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "due-item scan failed")
}

func TestMaybeRun_CooldownSkipsStoreEntirely(t *testing.T) {
	store := &MockContentStore{}
	engine := testEngine(store, &MockRevisionWriter{}, &MockPublishNotifier{})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base
	engine.SetClock(func() time.Time { return current })

	store.On("DueItems", mock.Anything, mock.Anything, mock.Anything).Return([]content.Item{}, nil)

	first, err := engine.MaybeRun(context.Background())
	require.NoError(t, err)
	assert.False(t, first.Skipped)

	// Ten seconds later, well inside the 5m cooldown: no store access.
	current = base.Add(10 * time.Second)
	second, err := engine.MaybeRun(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, SkipCooldown, second.Reason)

	store.AssertNumberOfCalls(t, "DueItems", 2) // one run, two kinds
}

func TestRunWithRetry_SucceedsOnThirdAttempt(t *testing.T) {
	store := &MockContentStore{}
	engine := testEngine(store, &MockRevisionWriter{}, &MockPublishNotifier{})

	store.On("DueItems", mock.Anything, content.KindPost, mock.Anything).Return(nil, errors.New("boom")).Twice()
	store.On("DueItems", mock.Anything, content.KindPost, mock.Anything).Return([]content.Item{}, nil).Once()
	store.On("DueItems", mock.Anything, content.KindReview, mock.Anything).Return([]content.Item{}, nil)

	summary, err := engine.RunWithRetry(context.Background(), "cron")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total())
	store.AssertNumberOfCalls(t, "DueItems", 4) // 2 failures + 1 full run over both kinds
}

func TestRunWithRetry_ExhaustsAttempts(t *testing.T) {
	store := &MockContentStore{}
	engine := testEngine(store, &MockRevisionWriter{}, &MockPublishNotifier{})

	store.On("DueItems", mock.Anything, content.KindPost, mock.Anything).Return(nil, errors.New("boom"))

	_, err := engine.RunWithRetry(context.Background(), "cron")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
}
