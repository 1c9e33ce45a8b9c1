package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"expensetracker/internal/db"
	"expensetracker/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := db.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))
	return gormDB
}

func createUser(t *testing.T, repo UserRepository, username string) *model.User {
	t.Helper()
	user := &model.User{Username: username, PasswordHash: "hash"}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func TestUserRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	user := createUser(t, repo, "alice")
	assert.NotEqual(t, uuid.Nil, user.ID)

	byName, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	byID, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	_, err = repo.FindByUsername(ctx, "Alice")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUserRepository_DuplicateUsername(t *testing.T) {
	ctx := context.Background()
	gormDB := newTestDB(t)
	repo := NewUserRepository(gormDB)

	createUser(t, repo, "alice")
	err := repo.Create(ctx, &model.User{Username: "alice", PasswordHash: "other"})
	assert.Error(t, err)

	var count int64
	require.NoError(t, gormDB.Model(&model.User{}).Where("username = ?", "alice").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestExpenseRepository_ListByOwnerOrdersByDateDesc(t *testing.T) {
	ctx := context.Background()
	gormDB := newTestDB(t)
	users := NewUserRepository(gormDB)
	repo := NewExpenseRepository(gormDB)

	alice := createUser(t, users, "alice")
	bob := createUser(t, users, "bob")

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, desc := range []string{"rent", "coffee", "lunch"} {
		require.NoError(t, repo.Create(ctx, &model.Expense{
			OwnerID:     alice.ID,
			Description: desc,
			Amount:      decimal.NewFromInt(int64(i + 1)),
			Date:        base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, repo.Create(ctx, &model.Expense{
		OwnerID:     bob.ID,
		Description: "books",
		Amount:      decimal.NewFromInt(20),
		Date:        base,
	}))

	list, err := repo.ListByOwner(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "lunch", list[0].Description)
	assert.Equal(t, "coffee", list[1].Description)
	assert.Equal(t, "rent", list[2].Description)
	for _, e := range list {
		assert.Equal(t, alice.ID, e.OwnerID)
	}

	empty, err := repo.ListByOwner(ctx, uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestExpenseRepository_DeleteOwned(t *testing.T) {
	ctx := context.Background()
	gormDB := newTestDB(t)
	users := NewUserRepository(gormDB)
	repo := NewExpenseRepository(gormDB)

	alice := createUser(t, users, "alice")
	bob := createUser(t, users, "bob")

	expense := &model.Expense{
		OwnerID:     alice.ID,
		Description: "coffee",
		Amount:      decimal.RequireFromString("3.50"),
		Date:        time.Now(),
	}
	require.NoError(t, repo.Create(ctx, expense))

	_, err := repo.DeleteOwned(ctx, expense.ID, bob.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	still, err := repo.FindOwned(ctx, expense.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("3.5").Equal(still.Amount))

	removed, err := repo.DeleteOwned(ctx, expense.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, expense.ID, removed.ID)
	assert.Equal(t, "coffee", removed.Description)

	_, err = repo.DeleteOwned(ctx, expense.ID, alice.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
