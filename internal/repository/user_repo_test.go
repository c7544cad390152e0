package repository

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tgcircle/tgcircle/internal/models"
)

func setupUserTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.User{}, &models.Event{})
	require.NoError(t, err)

	return db
}

func TestUserRepo_UpsertSeen(t *testing.T) {
	db := setupUserTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	err := repo.UpsertSeen(ctx, 100, "alice", "Alice A.", 1000)
	require.NoError(t, err)

	user, err := repo.GetByID(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "alice", *user.Username)
	assert.Equal(t, int64(1000), user.FirstSeenTS)
	assert.Equal(t, int64(1000), user.LastSeenTS)

	// Second contact refreshes profile and last_seen but not first_seen.
	err = repo.UpsertSeen(ctx, 100, "alice2", "Alice B.", 2000)
	require.NoError(t, err)

	user, err = repo.GetByID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "alice2", *user.Username)
	assert.Equal(t, "Alice B.", *user.FullName)
	assert.Equal(t, int64(1000), user.FirstSeenTS)
	assert.Equal(t, int64(2000), user.LastSeenTS)
}

func TestUserRepo_UpsertSeen_PreservesBan(t *testing.T) {
	db := setupUserTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertSeen(ctx, 200, "bob", "Bob", 1000))

	ok, err := repo.SetBanned(ctx, 200, true)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.UpsertSeen(ctx, 200, "bob", "Bob", 2000))

	banned, err := repo.IsBanned(ctx, 200)
	require.NoError(t, err)
	assert.True(t, banned)
}

func TestUserRepo_GetByID_Unknown(t *testing.T) {
	db := setupUserTestDB(t)
	repo := NewUserRepository(db)

	user, err := repo.GetByID(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestUserRepo_IsBanned_UnknownUser(t *testing.T) {
	db := setupUserTestDB(t)
	repo := NewUserRepository(db)

	banned, err := repo.IsBanned(context.Background(), 999)
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestUserRepo_SetBanned_UnknownUser(t *testing.T) {
	db := setupUserTestDB(t)
	repo := NewUserRepository(db)

	ok, err := repo.SetBanned(context.Background(), 999, true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserRepo_GetBanned(t *testing.T) {
	db := setupUserTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertSeen(ctx, 1, "a", "A", 100))
	require.NoError(t, repo.UpsertSeen(ctx, 2, "b", "B", 200))
	require.NoError(t, repo.UpsertSeen(ctx, 3, "c", "C", 300))

	_, err := repo.SetBanned(ctx, 1, true)
	require.NoError(t, err)
	_, err = repo.SetBanned(ctx, 3, true)
	require.NoError(t, err)

	banned, err := repo.GetBanned(ctx)
	require.NoError(t, err)
	require.Len(t, banned, 2)
	// Newest last_seen first.
	assert.Equal(t, int64(3), banned[0].UserID)
	assert.Equal(t, int64(1), banned[1].UserID)

	// Unban removes from the list.
	_, err = repo.SetBanned(ctx, 3, false)
	require.NoError(t, err)
	banned, err = repo.GetBanned(ctx)
	require.NoError(t, err)
	require.Len(t, banned, 1)
	assert.Equal(t, int64(1), banned[0].UserID)
}

func TestUserRepo_Counts(t *testing.T) {
	db := setupUserTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertSeen(ctx, 1, "a", "A", 100))
	require.NoError(t, repo.UpsertSeen(ctx, 2, "b", "B", 500))
	require.NoError(t, repo.UpsertSeen(ctx, 3, "c", "C", 900))

	total, err := repo.CountTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	newUsers, err := repo.CountFirstSeenSince(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(2), newUsers)

	seen, err := repo.GetSeenSince(ctx, 500)
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Equal(t, int64(3), seen[0].UserID)
}
