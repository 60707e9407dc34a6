package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inkpress/inkpress-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) AdminRecipients(ctx context.Context) ([]repository.AdminUser, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]repository.AdminUser)
	return users, args.Error(1)
}

func (m *MockStore) LastAlertOfType(ctx context.Context, alertType string) (*time.Time, error) {
	args := m.Called(ctx, alertType)
	last, _ := args.Get(0).(*time.Time)
	return last, args.Error(1)
}

func (m *MockStore) InsertNotification(ctx context.Context, n *repository.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockStore) RecordEmailDelivery(ctx context.Context, recipient, subject, outcome, deliveryErr string) error {
	args := m.Called(ctx, recipient, subject, outcome, deliveryErr)
	return args.Error(0)
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

var _ Store = (*MockStore)(nil)
var _ Mailer = (*MockMailer)(nil)

func testAlert() Alert {
	return Alert{
		Type:         "SYSTEM_SCHEDULER_BACKLOG",
		Title:        "Scheduled publishing backlog",
		Message:      "2 scheduled items are overdue.",
		Href:         "/admin/scheduler",
		Severity:     SeverityWarning,
		DedupeWindow: 45 * time.Minute,
		Payload:      map[string]any{"overdueScheduledPosts": 2},
	}
}

func admins() []repository.AdminUser {
	return []repository.AdminUser{
		{ID: "adm-1", Email: "one@inkpress.dev", Role: repository.RoleAdmin},
		{ID: "adm-2", Email: "two@inkpress.dev", Role: repository.RoleAdmin},
	}
}

func TestNotifyAdminUsers_FansOutToEveryAdmin(t *testing.T) {
	store := &MockStore{}
	mailer := &MockMailer{}
	n := NewNotifier(store, mailer, nil, zap.NewNop().Sugar())

	store.On("LastAlertOfType", mock.Anything, "SYSTEM_SCHEDULER_BACKLOG").Return((*time.Time)(nil), nil)
	store.On("AdminRecipients", mock.Anything).Return(admins(), nil)
	store.On("InsertNotification", mock.Anything, mock.Anything).Return(nil)
	store.On("RecordEmailDelivery", mock.Anything, mock.Anything, mock.Anything, repository.DeliverySent, "").Return(nil)
	mailer.On("Send", mock.Anything, mock.Anything, "[warning] Scheduled publishing backlog", mock.Anything).Return(nil)

	raised, err := n.NotifyAdminUsers(context.Background(), testAlert())
	require.NoError(t, err)
	assert.True(t, raised)

	store.AssertNumberOfCalls(t, "InsertNotification", 2)
	mailer.AssertNumberOfCalls(t, "Send", 2)
}

func TestNotifyAdminUsers_DedupeSuppresses(t *testing.T) {
	store := &MockStore{}
	mailer := &MockMailer{}
	n := NewNotifier(store, mailer, nil, zap.NewNop().Sugar())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n.SetClock(func() time.Time { return base })

	last := base.Add(-10 * time.Minute)
	store.On("LastAlertOfType", mock.Anything, "SYSTEM_SCHEDULER_BACKLOG").Return(&last, nil)

	raised, err := n.NotifyAdminUsers(context.Background(), testAlert())
	require.NoError(t, err)
	assert.False(t, raised)

	store.AssertNotCalled(t, "AdminRecipients")
	mailer.AssertNotCalled(t, "Send")
}

func TestNotifyAdminUsers_WindowElapsedRaisesAgain(t *testing.T) {
	store := &MockStore{}
	mailer := &MockMailer{}
	n := NewNotifier(store, mailer, nil, zap.NewNop().Sugar())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n.SetClock(func() time.Time { return base })

	last := base.Add(-46 * time.Minute)
	store.On("LastAlertOfType", mock.Anything, mock.Anything).Return(&last, nil)
	store.On("AdminRecipients", mock.Anything).Return(admins()[:1], nil)
	store.On("InsertNotification", mock.Anything, mock.Anything).Return(nil)
	store.On("RecordEmailDelivery", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	raised, err := n.NotifyAdminUsers(context.Background(), testAlert())
	require.NoError(t, err)
	assert.True(t, raised)
}

func TestNotifyAdminUsers_EmailFailureIsToleratedAndRecorded(t *testing.T) {
	store := &MockStore{}
	mailer := &MockMailer{}
	n := NewNotifier(store, mailer, nil, zap.NewNop().Sugar())

	store.On("LastAlertOfType", mock.Anything, mock.Anything).Return((*time.Time)(nil), nil)
	store.On("AdminRecipients", mock.Anything).Return(admins(), nil)
	store.On("InsertNotification", mock.Anything, mock.Anything).Return(nil)

	// First recipient's SMTP send fails, second succeeds. Both get rows.
	mailer.On("Send", mock.Anything, "one@inkpress.dev", mock.Anything, mock.Anything).Return(errors.New("smtp: connection refused"))
	mailer.On("Send", mock.Anything, "two@inkpress.dev", mock.Anything, mock.Anything).Return(nil)
	store.On("RecordEmailDelivery", mock.Anything, "one@inkpress.dev", mock.Anything, repository.DeliveryFailed, mock.Anything).Return(nil)
	store.On("RecordEmailDelivery", mock.Anything, "two@inkpress.dev", mock.Anything, repository.DeliverySent, "").Return(nil)

	raised, err := n.NotifyAdminUsers(context.Background(), testAlert())
	require.NoError(t, err)
	assert.True(t, raised)

	store.AssertNumberOfCalls(t, "InsertNotification", 2)
	store.AssertCalled(t, "RecordEmailDelivery", mock.Anything, "one@inkpress.dev", mock.Anything, repository.DeliveryFailed, mock.Anything)
}

func TestNotifyAdminUsers_RowInsertFailureFailsTheCall(t *testing.T) {
	store := &MockStore{}
	mailer := &MockMailer{}
	n := NewNotifier(store, mailer, nil, zap.NewNop().Sugar())

	store.On("LastAlertOfType", mock.Anything, mock.Anything).Return((*time.Time)(nil), nil)
	store.On("AdminRecipients", mock.Anything).Return(admins(), nil)
	store.On("InsertNotification", mock.Anything, mock.Anything).Return(errors.New("insert failed"))

	raised, err := n.NotifyAdminUsers(context.Background(), testAlert())
	require.Error(t, err)
	assert.False(t, raised)
}

func TestNotifyAdminUsers_NoRecipients(t *testing.T) {
	store := &MockStore{}
	mailer := &MockMailer{}
	n := NewNotifier(store, mailer, nil, zap.NewNop().Sugar())

	store.On("LastAlertOfType", mock.Anything, mock.Anything).Return((*time.Time)(nil), nil)
	store.On("AdminRecipients", mock.Anything).Return([]repository.AdminUser{}, nil)

	raised, err := n.NotifyAdminUsers(context.Background(), testAlert())
	require.NoError(t, err)
	assert.False(t, raised)
	mailer.AssertNotCalled(t, "Send")
}
