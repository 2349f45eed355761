package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/pkg/logger"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) HistoryRepository {
	t.Helper()
	logger.SetNewNop()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err)
	repo := NewHistoryRepository(db)
	require.NoError(t, repo.AutoMigrate())
	return repo
}

func seedMessages(t *testing.T, repo HistoryRepository, conversationID string, n int) {
	t.Helper()
	db := repo.(*historyRepository).db
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		require.NoError(t, db.Create(&domain.Message{
			EventID:        fmt.Sprintf("%s-e%03d", conversationID, i),
			ConversationID: conversationID,
			SenderID:       "u1",
			SenderType:     domain.SenderUser,
			Content:        fmt.Sprintf("msg %d", i),
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}).Error)
	}
}

func TestFindMessagesNewestFirst(t *testing.T) {
	repo := openTestDB(t)
	seedMessages(t, repo, "c1", 5)
	seedMessages(t, repo, "c2", 2)

	list, err := repo.FindMessages(context.Background(), "c1", 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 5)
	require.Equal(t, "msg 4", list[0].Content)
	require.Equal(t, "msg 0", list[4].Content)
	for _, m := range list {
		require.Equal(t, "c1", m.ConversationID)
	}
}

func TestFindMessagesPagination(t *testing.T) {
	repo := openTestDB(t)
	seedMessages(t, repo, "c1", 7)

	first, err := repo.FindMessages(context.Background(), "c1", 0, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)

	second, err := repo.FindMessages(context.Background(), "c1", first[2].ID, 3)
	require.NoError(t, err)
	require.Len(t, second, 3)
	require.Less(t, second[0].ID, first[2].ID)

	// no overlap between pages
	seen := map[uint64]bool{}
	for _, m := range append(first, second...) {
		require.False(t, seen[m.ID])
		seen[m.ID] = true
	}
}

func TestFindMessagesClampsLimit(t *testing.T) {
	repo := openTestDB(t)
	seedMessages(t, repo, "c1", 40)

	list, err := repo.FindMessages(context.Background(), "c1", 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 30)

	list, err = repo.FindMessages(context.Background(), "c1", 0, 500)
	require.NoError(t, err)
	require.Len(t, list, 30)
}

func TestLastMessage(t *testing.T) {
	repo := openTestDB(t)

	m, err := repo.LastMessage(context.Background(), "c1")
	require.NoError(t, err)
	require.Nil(t, m)

	seedMessages(t, repo, "c1", 3)
	m, err = repo.LastMessage(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Equal(t, "msg 2", m.Content)
}

func TestListConversationsByKind(t *testing.T) {
	repo := openTestDB(t)
	db := repo.(*historyRepository).db
	now := time.Now().UTC()

	require.NoError(t, db.Create(&domain.Conversation{
		ID: "c1", UserID: "u1", SellerID: "s1", LastMessageAt: now.Add(-time.Hour),
	}).Error)
	require.NoError(t, db.Create(&domain.Conversation{
		ID: "c2", UserID: "u1", SellerID: "s2", LastMessageAt: now,
	}).Error)
	require.NoError(t, db.Create(&domain.Conversation{
		ID: "c3", UserID: "u2", SellerID: "s1", LastMessageAt: now.Add(-time.Minute),
	}).Error)

	asUser, err := repo.ListConversations(context.Background(), domain.SenderUser, "u1")
	require.NoError(t, err)
	require.Len(t, asUser, 2)
	// most recent activity first
	require.Equal(t, "c2", asUser[0].ID)
	require.Equal(t, "c1", asUser[1].ID)

	asSeller, err := repo.ListConversations(context.Background(), domain.SenderSeller, "s1")
	require.NoError(t, err)
	require.Len(t, asSeller, 2)
	require.Equal(t, "c3", asSeller[0].ID)
	require.Equal(t, "c1", asSeller[1].ID)
}
