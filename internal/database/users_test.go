package database

import (
	"context"
	"testing"

	"courtbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	u := &models.User{
		Email:             " Alice@Example.com ",
		PasswordHash:      "hash",
		FullName:          "Alice",
		Role:              models.RoleUser,
		IsActive:          true,
		VerificationToken: "tok-1",
	}
	require.NoError(t, db.CreateUser(ctx, u))
	assert.Equal(t, "alice@example.com", u.Email)

	dup := &models.User{Email: "ALICE@example.com", PasswordHash: "h", FullName: "A2", Role: models.RoleUser}
	assert.ErrorIs(t, db.CreateUser(ctx, dup), ErrDuplicate)

	byEmail, err := db.GetUserByEmail(ctx, "ALICE@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
	assert.False(t, byEmail.IsVerified)

	byToken, err := db.GetUserByVerificationToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byToken.ID)

	require.NoError(t, db.MarkUserVerified(ctx, u.ID))
	_, err = db.GetUserByVerificationToken(ctx, "tok-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.GetUserByVerificationToken(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.SetUserActive(ctx, u.ID, false, "spam"))
	banned, err := db.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, banned.IsActive)
	assert.True(t, banned.IsVerified)
	assert.Equal(t, "spam", banned.BannedReason)

	require.NoError(t, db.SetUserActive(ctx, u.ID, true, "ignored"))
	restored, err := db.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, restored.IsActive)
	assert.Empty(t, restored.BannedReason)

	assert.ErrorIs(t, db.SetUserActive(ctx, 999, false, ""), ErrNotFound)
	_, err = db.GetUserByID(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListUsers(t *testing.T) {
	db := setupTestDB(t)
	fx := seedFixture(t, db)
	ctx := context.Background()

	require.NoError(t, db.SetUserActive(ctx, fx.player.ID, false, "abuse"))

	owners, total, err := db.ListUsers(ctx, models.UserFilter{Role: models.RoleOwner}, models.NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, owners, 1)
	assert.Equal(t, fx.owner.ID, owners[0].ID)

	inactive := false
	banned, total, err := db.ListUsers(ctx, models.UserFilter{Active: &inactive}, models.NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, banned, 1)
	assert.Equal(t, fx.player.ID, banned[0].ID)

	search, _, err := db.ListUsers(ctx, models.UserFilter{Query: "olga"}, models.NewPage(1, 10))
	require.NoError(t, err)
	assert.Len(t, search, 1)
}
