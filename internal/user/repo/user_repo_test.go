package repo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-member-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-member-go/pkg/utilities"
)

func openTestRepo(t *testing.T) *UserRepo {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := database.Connect(database.NewConfig(dsn, "", ""))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	r := NewUserRepo(db)
	require.NoError(t, r.EnsureTable(context.Background()))
	return r
}

func newTestUser(id int64) *entity.User {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &entity.User{
		ID:             id,
		FullName:       "Repo Test",
		Username:       "repo-test-" + time.Now().Format("150405.000000"),
		Email:          "repo-test-" + time.Now().Format("150405.000000") + "@example.com",
		PasswordHash:   "x",
		FamilyMembers:  entity.FamilyMembers{},
		MembershipType: entity.MembershipGeneral,
		AccountStatus:  entity.StatusPending,
		Role:           entity.RoleUser,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestFailedLoginLocksAtThreshold(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()
	u := newTestUser(time.Now().UnixNano())
	require.NoError(t, r.Create(ctx, u))
	t.Cleanup(func() { _, _ = r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, u.ID) })

	for i := 1; i <= 4; i++ {
		n, locked, err := r.RecordFailedLogin(ctx, u.ID, 5)
		require.NoError(t, err)
		require.Equal(t, i, n)
		require.False(t, locked)
	}
	n, locked, err := r.RecordFailedLogin(ctx, u.ID, 5)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.True(t, locked)

	require.NoError(t, r.RecordLogin(ctx, u.ID, entity.LoginLog{Timestamp: time.Now(), IP: "127.0.0.1", UserAgent: "test"}))
	got, err := r.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Zero(t, got.LoginAttempts)
	require.False(t, got.AccountLocked)
	require.Len(t, got.LoginLogs, 1)

	_, _, err = r.RecordFailedLogin(ctx, -1, 5)
	require.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestAdjustDonatedIsRelative(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()
	u := newTestUser(time.Now().UnixNano())
	require.NoError(t, r.Create(ctx, u))
	t.Cleanup(func() { _, _ = r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, u.ID) })

	require.NoError(t, r.AdjustDonated(ctx, u.ID, utilities.Cents(5000), nil))
	require.NoError(t, r.AdjustDonated(ctx, u.ID, utilities.Cents(-2000), nil))
	got, err := r.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, utilities.Cents(3000), got.DonatedAmount)

	require.ErrorIs(t, r.AdjustDonated(ctx, -1, 1, nil), apperror.ErrNotFound)
}
