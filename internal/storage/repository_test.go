package storage

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"paper-trading-go/internal/database"
	"paper-trading-go/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupRepository(t *testing.T) *Repository {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	return NewRepository(db)
}

func seedTrade(t *testing.T, repo *Repository, status string) *models.Trade {
	t.Helper()

	trade := &models.Trade{
		ID:           uuid.NewString(),
		UserID:       "alice",
		Symbol:       "NSEI",
		Direction:    models.DirectionBuy,
		Quantity:     10,
		EntryPrice:   100,
		CurrentPrice: 100,
		MarginUsed:   200,
		Status:       status,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, repo.CreateTrade(trade))
	return trade
}

func TestCloseTradeIfActive_WinsOnce(t *testing.T) {
	repo := setupRepository(t)
	trade := seedTrade(t, repo, models.StatusActive)
	closedAt := time.Now().UTC()

	won, err := repo.CloseTradeIfActive(trade.ID, models.StatusClosed, 106, 60, closedAt)
	require.NoError(t, err)
	assert.True(t, won)

	// The second closer loses the transition and must leave the row alone.
	won, err = repo.CloseTradeIfActive(trade.ID, models.StatusStopLossHit, 94, -60, closedAt)
	require.NoError(t, err)
	assert.False(t, won)

	stored, err := repo.GetTrade(trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, stored.Status)
	assert.Equal(t, 106.0, stored.CurrentPrice)
	assert.Equal(t, 60.0, stored.PnL)
	require.NotNil(t, stored.ClosedAt)
}

func TestUpdateTradePrice_OnlyWhileActive(t *testing.T) {
	repo := setupRepository(t)
	active := seedTrade(t, repo, models.StatusActive)
	closed := seedTrade(t, repo, models.StatusClosed)

	require.NoError(t, repo.UpdateTradePrice(active.ID, 101))
	require.NoError(t, repo.UpdateTradePrice(closed.ID, 101))

	stored, err := repo.GetTrade(active.ID)
	require.NoError(t, err)
	assert.Equal(t, 101.0, stored.CurrentPrice)

	stored, err = repo.GetTrade(closed.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, stored.CurrentPrice)
}

func TestListAllActiveTrades(t *testing.T) {
	repo := setupRepository(t)
	active := seedTrade(t, repo, models.StatusActive)
	seedTrade(t, repo, models.StatusClosed)
	seedTrade(t, repo, models.StatusTargetHit)

	trades, err := repo.ListAllActiveTrades()
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, active.ID, trades[0].ID)
}

func TestUserExists_IgnoresInactive(t *testing.T) {
	repo := setupRepository(t)
	require.NoError(t, repo.CreateUser(&models.User{
		ClientID: "alice", Name: "Alice", Email: "alice@example.com", IsActive: true,
	}))
	require.NoError(t, repo.CreateUser(&models.User{
		ClientID: "bob", Name: "Bob", Email: "bob@example.com", IsActive: true,
	}))
	// The default:true column tag swallows a zero-value create, so deactivate
	// explicitly.
	require.NoError(t, repo.db.Model(&models.User{}).
		Where("client_id = ?", "bob").Update("is_active", false).Error)

	exists, err := repo.UserExists("alice")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.UserExists("bob")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNotifications_ReadFlow(t *testing.T) {
	repo := setupRepository(t)
	n := &models.Notification{
		ID:      uuid.NewString(),
		UserID:  "alice",
		Kind:    "TRADE_OPENED",
		Message: "Trade created: BUY 10 NSEI at 100.00",
		SentAt:  time.Now().UTC(),
	}
	require.NoError(t, repo.CreateNotification(n))

	count, err := repo.UnreadNotificationCount("alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	ok, err := repo.MarkNotificationRead("alice", n.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Another user cannot mark it, and the count stays at zero.
	ok, err = repo.MarkNotificationRead("mallory", n.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	count, err = repo.UnreadNotificationCount("alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	listed, err := repo.ListNotifications("alice", 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].IsRead)
}
