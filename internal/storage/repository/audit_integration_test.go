package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gigwise/entitlement-service/internal/migrations"
)

func setupTestDatabase(t *testing.T) (*Storage, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second),
		),
	)
	require.NoError(t, err)

	dsn, err := pgContainer.ConnectionString(ctx)
	require.NoError(t, err)

	storage, err := New(dsn)
	require.NoError(t, err)

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, migrationsPath))

	cleanup := func() {
		_ = storage.DB.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return storage, cleanup
}

func TestStorage_RecordAndListEntitlementChanges(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	userID := uuid.New().String()
	otherID := uuid.New().String()

	records := []AuditRecord{
		{
			Actor:  "admin@gigwise.app",
			Action: AuditActionGrant,
			UserID: userID,
			Detail: map[string]any{"tier": "pro", "proSource": "promo_trial"},
		},
		{
			Actor:  "billing_webhook",
			Action: AuditActionWebhookPremium,
			UserID: userID,
			Detail: map[string]any{"isPremium": false, "event": "subscription_cancelled"},
		},
		{
			Actor:  "admin@gigwise.app",
			Action: AuditActionRevoke,
			UserID: otherID,
		},
	}
	for _, rec := range records {
		require.NoError(t, storage.RecordEntitlementChange(ctx, rec))
	}

	got, err := storage.ListByUser(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Новые записи идут первыми.
	assert.Equal(t, AuditActionWebhookPremium, got[0].Action)
	assert.Equal(t, "billing_webhook", got[0].Actor)
	assert.Equal(t, "subscription_cancelled", got[0].Detail["event"])
	assert.Equal(t, AuditActionGrant, got[1].Action)
	assert.Equal(t, "pro", got[1].Detail["tier"])
	assert.WithinDuration(t, time.Now(), got[0].CreatedAt, time.Minute)
}

func TestStorage_ListByUserEmpty(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	got, err := storage.ListByUser(context.Background(), uuid.New().String(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStorage_RecordCancelledContext(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := storage.RecordEntitlementChange(ctx, AuditRecord{
		Actor:  "admin@gigwise.app",
		Action: AuditActionGrant,
		UserID: uuid.New().String(),
	})
	require.Error(t, err)
}
