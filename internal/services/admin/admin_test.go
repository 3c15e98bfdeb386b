package admin

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gigwise/entitlement-service/internal/events"
	"github.com/gigwise/entitlement-service/internal/models"
	"github.com/gigwise/entitlement-service/internal/storage/repository"
)

// MockIdentityStore реализует интерфейс admin.IdentityStore
type MockIdentityStore struct {
	mock.Mock
}

func (m *MockIdentityStore) ListUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	if res := args.Get(0); res != nil {
		return res.([]models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityStore) ReplaceUserMetadata(ctx context.Context, userID string, md map[string]any) error {
	args := m.Called(ctx, userID, md)
	return args.Error(0)
}

// MockAuditLog реализует интерфейс admin.AuditLog
type MockAuditLog struct {
	mock.Mock
}

func (m *MockAuditLog) RecordEntitlementChange(ctx context.Context, rec repository.AuditRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

// MockEventPublisher реализует интерфейс admin.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishChange(ev events.EntitlementChanged) error {
	args := m.Called(ev)
	return args.Error(0)
}

func newTestService(ids *MockIdentityStore, audit *MockAuditLog, ev *MockEventPublisher) *Service {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(logger, ids, audit, ev)
}

func TestSearch(t *testing.T) {
	now := time.Now()
	users := []models.User{
		{ID: "user-1", Email: "drummer@example.com", CreatedAt: now},
		{ID: "user-2", Email: "Vocalist@Example.Com", CreatedAt: now,
			Metadata: map[string]any{"isPremium": true, "tier": "pro"}},
	}

	tests := []struct {
		name    string
		email   string
		wantID  string
		wantErr error
	}{
		{
			name:   "точное совпадение",
			email:  "drummer@example.com",
			wantID: "user-1",
		},
		{
			name:   "совпадение без учёта регистра",
			email:  "vocalist@example.com",
			wantID: "user-2",
		},
		{
			name:    "не найден",
			email:   "nobody@example.com",
			wantErr: ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := new(MockIdentityStore)
			ids.On("ListUsers", mock.Anything).Return(users, nil)

			svc := newTestService(ids, new(MockAuditLog), new(MockEventPublisher))
			got, err := svc.Search(context.Background(), tt.email)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestGrantOverwritesMetadata(t *testing.T) {
	ids := new(MockIdentityStore)
	audit := new(MockAuditLog)
	ev := new(MockEventPublisher)

	var gotMd map[string]any
	ids.On("ReplaceUserMetadata", mock.Anything, "user-1", mock.Anything).
		Run(func(args mock.Arguments) {
			gotMd = args.Get(2).(map[string]any)
		}).Return(nil)
	audit.On("RecordEntitlementChange", mock.Anything, mock.Anything).Return(nil)
	ev.On("PublishChange", mock.Anything).Return(nil)

	svc := newTestService(ids, audit, ev)
	err := svc.Grant(context.Background(), "admin@gigwise.app", "user-1", models.TierPro, models.ProSourcePromoTrial)
	require.NoError(t, err)

	assert.Equal(t, true, gotMd["isPremium"])
	assert.Equal(t, "pro", gotMd["tier"])
	assert.Equal(t, "promo_trial", gotMd["proSource"])
	// Полная перезапись обнуляет usage.
	assert.Equal(t, map[string]any{"count": 0, "windowKey": ""}, gotMd["usage"])

	ids.AssertExpectations(t)
	audit.AssertExpectations(t)
	ev.AssertExpectations(t)
}

func TestRevokeResetsTier(t *testing.T) {
	ids := new(MockIdentityStore)
	audit := new(MockAuditLog)
	ev := new(MockEventPublisher)

	var gotMd map[string]any
	ids.On("ReplaceUserMetadata", mock.Anything, "user-1", mock.Anything).
		Run(func(args mock.Arguments) {
			gotMd = args.Get(2).(map[string]any)
		}).Return(nil)
	audit.On("RecordEntitlementChange", mock.Anything, mock.Anything).Return(nil)
	ev.On("PublishChange", mock.Anything).Return(nil)

	svc := newTestService(ids, audit, ev)
	require.NoError(t, svc.Revoke(context.Background(), "admin@gigwise.app", "user-1"))

	assert.Equal(t, false, gotMd["isPremium"])
	assert.Equal(t, "free", gotMd["tier"])
	assert.Nil(t, gotMd["proSource"])
}

func TestGrantThenSearchReflectsEntitlement(t *testing.T) {
	// После grant поиск возвращает выданные tier/proSource/isPremium:
	// провайдер хранит то, что записал ReplaceUserMetadata.
	ids := new(MockIdentityStore)
	audit := new(MockAuditLog)
	ev := new(MockEventPublisher)

	stored := map[string]any{}
	ids.On("ReplaceUserMetadata", mock.Anything, "user-1", mock.Anything).
		Run(func(args mock.Arguments) {
			for k, v := range args.Get(2).(map[string]any) {
				stored[k] = v
			}
		}).Return(nil)
	ids.On("ListUsers", mock.Anything).Return(func() []models.User {
		return []models.User{{ID: "user-1", Email: "drummer@example.com", Metadata: stored}}
	}(), nil)
	audit.On("RecordEntitlementChange", mock.Anything, mock.Anything).Return(nil)
	ev.On("PublishChange", mock.Anything).Return(nil)

	svc := newTestService(ids, audit, ev)
	require.NoError(t, svc.Grant(context.Background(), "admin@gigwise.app", "user-1", models.TierProPlus, models.ProSourcePaid))

	got, err := svc.Search(context.Background(), "drummer@example.com")
	require.NoError(t, err)

	ent := models.EntitlementFromMetadata(got.Metadata)
	assert.True(t, ent.IsPremium)
	assert.Equal(t, models.TierProPlus, ent.Tier)
	assert.Equal(t, models.ProSourcePaid, ent.ProSource)
}

func TestGrantProviderFailure(t *testing.T) {
	ids := new(MockIdentityStore)
	ids.On("ReplaceUserMetadata", mock.Anything, "user-1", mock.Anything).
		Return(errors.New("provider down"))

	svc := newTestService(ids, new(MockAuditLog), new(MockEventPublisher))
	err := svc.Grant(context.Background(), "admin@gigwise.app", "user-1", models.TierPro, models.ProSourcePaid)
	assert.Error(t, err)
}

func TestGrantSucceedsWhenAuditFails(t *testing.T) {
	// Аудит best-effort: его сбой не откатывает уже применённый grant.
	ids := new(MockIdentityStore)
	audit := new(MockAuditLog)
	ev := new(MockEventPublisher)

	ids.On("ReplaceUserMetadata", mock.Anything, "user-1", mock.Anything).Return(nil)
	audit.On("RecordEntitlementChange", mock.Anything, mock.Anything).Return(errors.New("db down"))
	ev.On("PublishChange", mock.Anything).Return(errors.New("broker down"))

	svc := newTestService(ids, audit, ev)
	assert.NoError(t, svc.Grant(context.Background(), "admin@gigwise.app", "user-1", models.TierPro, models.ProSourcePaid))
}
