package gormstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenauth/warden"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func createUser(t *testing.T, b *Backend, username, email string) *warden.User {
	t.Helper()
	user, err := b.CreateUser(context.Background(), warden.UserCreate{
		Username: username,
		Role:     warden.RoleRegular,
		Email:    email,
	}, "$argon2id$stub")
	require.NoError(t, err)
	return user
}

func TestCreateAndLookup(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	created := createUser(t, b, "alice", "alice@example.com")

	require.NotEmpty(t, created.ID)
	assert.True(t, created.IsActive)

	byName, err := b.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)
	assert.Equal(t, "$argon2id$stub", byName.PasswordHash)
	assert.Equal(t, warden.RoleRegular, byName.Role)

	byID, err := b.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	byEmail, err := b.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	_, err = b.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, warden.ErrUserNotFound)
}

func TestCreateUniqueness(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	createUser(t, b, "alice", "alice@example.com")

	_, err := b.CreateUser(ctx, warden.UserCreate{Username: "alice", Email: "other@example.com"}, "h")
	assert.ErrorIs(t, err, warden.ErrUsernameTaken)

	_, err = b.CreateUser(ctx, warden.UserCreate{Username: "bob", Email: "alice@example.com"}, "h")
	assert.ErrorIs(t, err, warden.ErrEmailTaken)
}

func TestCreateUsersWithoutEmail(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	// Email is optional; uniqueness only applies among users that have one.
	alice, err := b.CreateUser(ctx, warden.UserCreate{Username: "alice"}, "h")
	require.NoError(t, err)
	bob, err := b.CreateUser(ctx, warden.UserCreate{Username: "bob"}, "h")
	require.NoError(t, err)
	assert.Empty(t, alice.Email)
	assert.Empty(t, bob.Email)

	got, err := b.GetUserByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, got.Email)

	// Clearing an email must not collide with other email-less users either.
	createUser(t, b, "carol", "carol@example.com")
	empty := ""
	updated, err := b.UpdateUser(ctx, "carol", warden.UserUpdate{Email: &empty})
	require.NoError(t, err)
	assert.Empty(t, updated.Email)

	taken, err := b.IsEmailTaken(ctx, "")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestMetadataRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	createUser(t, b, "alice", "alice@example.com")

	require.NoError(t, b.UpdateUserMetadata(ctx, "alice", map[string]string{
		"reset_token": "abc",
		"theme":       "dark",
	}))

	got, err := b.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "abc", got.Metadata["reset_token"])
	assert.Equal(t, "dark", got.Metadata["theme"])

	require.NoError(t, b.UpdateUserMetadata(ctx, "alice", map[string]string{}))
	got, err = b.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, got.Metadata)
}

func TestUpdateUser(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	createUser(t, b, "alice", "alice@example.com")

	email := "new@example.com"
	inactive := false
	updated, err := b.UpdateUser(ctx, "alice", warden.UserUpdate{
		Email:    &email,
		IsActive: &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, email, updated.Email)
	assert.False(t, updated.IsActive)

	_, err = b.UpdateUser(ctx, "nobody", warden.UserUpdate{Email: &email})
	assert.ErrorIs(t, err, warden.ErrUserNotFound)
}

func TestUpdateColumns(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	createUser(t, b, "alice", "alice@example.com")

	require.NoError(t, b.UpdateUserPassword(ctx, "alice", "new-hash"))
	require.NoError(t, b.UpdateUserRole(ctx, "alice", warden.RoleAdmin))
	require.NoError(t, b.UpdateUserBalance(ctx, "alice", 100))
	require.NoError(t, b.UpdateUserBalance(ctx, "alice", -30))

	got, err := b.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
	assert.Equal(t, warden.RoleAdmin, got.Role)
	assert.EqualValues(t, 70, got.Balance)

	assert.ErrorIs(t, b.UpdateUserPassword(ctx, "nobody", "h"), warden.ErrUserNotFound)
	assert.ErrorIs(t, b.UpdateUserBalance(ctx, "nobody", 1), warden.ErrUserNotFound)
}

func TestDeleteUser(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	createUser(t, b, "alice", "alice@example.com")

	require.NoError(t, b.DeleteUser(ctx, "alice"))
	assert.ErrorIs(t, b.DeleteUser(ctx, "alice"), warden.ErrUserNotFound)

	_, err := b.GetUserByUsername(ctx, "alice")
	assert.ErrorIs(t, err, warden.ErrUserNotFound)
}

func TestListAndSearch(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	createUser(t, b, "alice", "alice@example.com")
	createUser(t, b, "bob", "bob@example.com")
	createUser(t, b, "carol", "carol@other.org")

	all, err := b.ListUsers(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	page, err := b.ListUsers(ctx, 1, 1)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	matched, err := b.SearchUsers(ctx, "example.com", 0, 0)
	require.NoError(t, err)
	assert.Len(t, matched, 2)

	matched, err = b.SearchUsers(ctx, "carol", 0, 0)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "carol", matched[0].Username)
}

func TestCountAndTaken(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	createUser(t, b, "alice", "alice@example.com")

	n, err := b.CountUsers(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	taken, err := b.IsUsernameTaken(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = b.IsEmailTaken(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestHealthCheck(t *testing.T) {
	b := newTestBackend(t)
	assert.NoError(t, b.HealthCheck(context.Background()))
}

func TestManagerOnGormBackend(t *testing.T) {
	b := newTestBackend(t)
	mgr, err := warden.New().
		WithBackend(b).
		WithTokenSecret("0123456789abcdef0123456789abcdef").
		Build()
	require.NoError(t, err)

	ctx := context.Background()
	_, err = mgr.CreateUser(ctx, warden.UserCreate{
		Username: "alice",
		Password: "Str0ng!Pass",
		Email:    "alice@example.com",
	})
	require.NoError(t, err)

	pair, err := mgr.Authenticate(ctx, "alice", "Str0ng!Pass", "")
	require.NoError(t, err)

	current, err := mgr.CurrentUser(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", current.Username)
}
