package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/coinwatch-gateway/internal/config"
	"github.com/smartdevs17/coinwatch-gateway/internal/metrics"
	"github.com/smartdevs17/coinwatch-gateway/internal/models"
	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

func openTestStorage(t *testing.T) Storage {
	t.Helper()

	store, err := Open(config.StorageConfig{
		Enabled:          true,
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "journal", "coinwatch.db"),
		MaxConnections:   4,
	}, metrics.NewManager())
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() { store.Close() })
	return store
}

func newSubmission(kind models.SubmissionKind, address string, createdAt time.Time) *models.WatchSubmission {
	return &models.WatchSubmission{
		ID:         uuid.NewString(),
		Kind:       kind,
		Contract:   "0x83c5541a6c8d2dbad642f385d8d06ca9b6c731ee",
		Address:    address,
		AddressHex: "0x62e907b15cbf27d5425399ebf6f0fb50ebb88f18",
		TxHash:     "0x" + uuid.NewString(),
		Status:     models.SubmissionStatusSubmitted,
		CreatedAt:  createdAt,
	}
}

func TestSubmissionLifecycle(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	submission := newSubmission(models.SubmissionKindWatch, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", now)
	require.NoError(t, store.SaveSubmission(ctx, submission))

	got, err := store.GetSubmission(ctx, submission.ID)
	require.NoError(t, err)
	assert.Equal(t, submission.TxHash, got.TxHash)
	assert.Equal(t, models.SubmissionKindWatch, got.Kind)
	assert.Equal(t, models.SubmissionStatusSubmitted, got.Status)
	assert.True(t, now.Equal(got.CreatedAt))
	assert.Nil(t, got.AcceptedAt)
	assert.Nil(t, got.Error)

	acceptedAt := now.Add(2 * time.Second)
	require.NoError(t, store.MarkSubmissionAccepted(ctx, submission.ID, acceptedAt))

	got, err = store.GetSubmission(ctx, submission.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusAccepted, got.Status)
	require.NotNil(t, got.AcceptedAt)
	assert.True(t, acceptedAt.Equal(*got.AcceptedAt))

	_, err = store.GetSubmission(ctx, "missing")
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))
	err = store.MarkSubmissionAccepted(ctx, "missing", now)
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))
}

func TestGetSubmissionsFilter(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	first := newSubmission(models.SubmissionKindWatch, "addr-a", base)
	second := newSubmission(models.SubmissionKindUpdate, "addr-a", base.Add(time.Second))
	third := newSubmission(models.SubmissionKindWatch, "addr-b", base.Add(2*time.Second))
	for _, s := range []*models.WatchSubmission{first, second, third} {
		require.NoError(t, store.SaveSubmission(ctx, s))
	}
	require.NoError(t, store.MarkSubmissionFailed(ctx, second.ID, "nonce too low"))

	all, err := store.GetSubmissions(ctx, models.SubmissionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, third.ID, all[0].ID)
	assert.Equal(t, first.ID, all[2].ID)

	kind := models.SubmissionKindWatch
	watches, err := store.GetSubmissions(ctx, models.SubmissionFilter{Kind: &kind})
	require.NoError(t, err)
	assert.Len(t, watches, 2)

	address := "addr-a"
	byAddress, err := store.GetSubmissions(ctx, models.SubmissionFilter{Address: &address, Limit: 1})
	require.NoError(t, err)
	require.Len(t, byAddress, 1)
	assert.Equal(t, second.ID, byAddress[0].ID)
	require.NotNil(t, byAddress[0].Error)
	assert.Equal(t, "nonce too low", *byAddress[0].Error)

	status := models.SubmissionStatusFailed
	failed, err := store.GetSubmissions(ctx, models.SubmissionFilter{Status: &status})
	require.NoError(t, err)
	assert.Len(t, failed, 1)

	stats, err := store.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalSubmissions)
	assert.Equal(t, int64(2), stats.PendingSubmissions)
	assert.Equal(t, int64(1), stats.FailedSubmissions)
	assert.Equal(t, "002", stats.SchemaVersion)
	require.NotNil(t, stats.LatestSubmission)
	assert.True(t, third.CreatedAt.Equal(*stats.LatestSubmission))
}

func TestNotifications(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.SaveNotification(ctx, &models.Notification{
		ID:        uuid.NewString(),
		Level:     models.NotificationLevelInfo,
		Title:     "Address watched",
		Message:   "Address 1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa is now watched",
		Data:      map[string]interface{}{"tx_hash": "0xabc"},
		CreatedAt: now,
	}))
	require.NoError(t, store.SaveNotification(ctx, &models.Notification{
		ID:        uuid.NewString(),
		Level:     models.NotificationLevelError,
		Title:     "Watch failed",
		Message:   "invalid address",
		CreatedAt: now.Add(time.Second),
	}))

	notifications, err := store.GetNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, notifications, 2)
	assert.Equal(t, models.NotificationLevelError, notifications[0].Level)
	assert.Equal(t, "0xabc", notifications[1].Data["tx_hash"])

	stats, err := store.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalNotifications)
	assert.Nil(t, stats.LatestSubmission)
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := NewSQLiteStorage(&StorageConfig{ConnectionString: ":memory:"})
	require.NoError(t, store.Connect())
	defer store.Close()

	require.NoError(t, store.Migrate())
	require.NoError(t, store.Migrate())
	require.NoError(t, store.Ping(context.Background()))

	stats, err := store.GetStorageStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "002", stats.SchemaVersion)
}

func TestNotConnected(t *testing.T) {
	store := NewSQLiteStorage(&StorageConfig{ConnectionString: ":memory:"})
	assert.True(t, utils.IsCode(store.Ping(context.Background()), utils.ErrCodeDatabase))
	assert.True(t, utils.IsCode(store.Migrate(), utils.ErrCodeDatabase))
	assert.NoError(t, store.Close())
}

func TestNewStorage(t *testing.T) {
	disabled, err := NewStorage(config.StorageConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, disabled)

	pg, err := NewStorage(config.StorageConfig{Enabled: true, Type: "postgresql", ConnectionString: "postgres://localhost/coinwatch"})
	require.NoError(t, err)
	assert.IsType(t, &PostgreSQLStorage{}, pg)

	_, err = NewStorage(config.StorageConfig{Enabled: true, Type: "mysql"})
	assert.True(t, utils.IsCode(err, utils.ErrCodeConfiguration))
}

func TestDollarPlaceholders(t *testing.T) {
	assert.Equal(t, "UPDATE t SET a = $1 WHERE id = $2", dollarPlaceholders("UPDATE t SET a = ? WHERE id = ?"))
	assert.Equal(t, "SELECT 1", dollarPlaceholders("SELECT 1"))
	assert.Equal(t, "SELECT '?', 'it''s?' FROM t WHERE a = $1", dollarPlaceholders("SELECT '?', 'it''s?' FROM t WHERE a = ?"))
}

func TestPingAfterClose(t *testing.T) {
	store := NewSQLiteStorage(&StorageConfig{ConnectionString: ":memory:"})
	require.NoError(t, store.Connect())
	require.NoError(t, store.Ping(context.Background()))

	require.NoError(t, store.Close())
	assert.True(t, utils.IsCode(store.Ping(context.Background()), utils.ErrCodeDatabase))
}
