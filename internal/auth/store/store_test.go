package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apierr "github.com/akilapilapitiya/TrueGate-sub001/internal/auth"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUser(t *testing.T, s *SQLiteStore, email string) {
	t.Helper()

	err := s.Insert(context.Background(), &models.User{
		Email:          email,
		FirstName:      "Test",
		LastName:       "User",
		Role:           models.RoleUser,
		HashedPassword: "$2a$10$fakehashfakehashfakehash",
	})
	require.NoError(t, err)
}

func TestInsertDuplicateEmail(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedUser(t, s, "alice@example.com")

	err := s.Insert(context.Background(), &models.User{
		Email:          "alice@example.com",
		HashedPassword: "hash",
	})
	assert.ErrorIs(t, err, apierr.ErrUserExists)

	// Key is case-normalized, so a re-cased duplicate collides too.
	err = s.Insert(context.Background(), &models.User{
		Email:          "ALICE@Example.COM",
		HashedPassword: "hash",
	})
	assert.ErrorIs(t, err, apierr.ErrUserExists)
}

func TestFindByEmailNormalizes(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedUser(t, s, "alice@example.com")

	user, err := s.FindByEmail(context.Background(), "  ALICE@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)

	_, err = s.FindByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, apierr.ErrUserNotFound)
}

func TestRecordLoginFailureLocksAtThreshold(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedUser(t, s, "alice@example.com")
	ctx := context.Background()

	for i := 1; i < 5; i++ {
		attempts, locked, err := s.RecordLoginFailure(ctx, "alice@example.com", 5)
		require.NoError(t, err)
		assert.Equal(t, i, attempts)
		assert.False(t, locked, "attempt %d should not lock", i)
	}

	attempts, locked, err := s.RecordLoginFailure(ctx, "alice@example.com", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, attempts)
	assert.True(t, locked)

	// Lock is sticky once set even though the counter keeps climbing.
	_, locked, err = s.RecordLoginFailure(ctx, "alice@example.com", 5)
	require.NoError(t, err)
	assert.True(t, locked)

	user, err := s.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, user.Locked)
}

func TestRecordLoginFailureConcurrent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedUser(t, s, "alice@example.com")

	const failures = 10
	var wg sync.WaitGroup
	for i := 0; i < failures; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.RecordLoginFailure(context.Background(), "alice@example.com", 5)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	user, err := s.FindByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, failures, user.LoginAttempts)
	assert.True(t, user.Locked)
}

func TestRecordLoginSuccessResetsCounter(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedUser(t, s, "alice@example.com")
	ctx := context.Background()

	_, _, err := s.RecordLoginFailure(ctx, "alice@example.com", 5)
	require.NoError(t, err)

	at := time.Now()
	require.NoError(t, s.RecordLoginSuccess(ctx, "alice@example.com", at))

	user, err := s.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, user.LoginAttempts)
	require.NotNil(t, user.LastLogin)
	assert.WithinDuration(t, at, *user.LastLogin, time.Second)
}

func TestUnlockClearsLockAndCounter(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedUser(t, s, "alice@example.com")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, err := s.RecordLoginFailure(ctx, "alice@example.com", 5)
		require.NoError(t, err)
	}

	require.NoError(t, s.Unlock(ctx, "alice@example.com"))

	user, err := s.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, user.Locked)
	assert.Equal(t, 0, user.LoginAttempts)

	assert.ErrorIs(t, s.Unlock(ctx, "nobody@example.com"), apierr.ErrUserNotFound)
}

func TestConsumeResetTokenSingleUse(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedUser(t, s, "alice@example.com")
	ctx := context.Background()

	expires := time.Now().Add(time.Hour)
	require.NoError(t, s.SetResetToken(ctx, "alice@example.com", "secret-1", expires))

	user, err := s.FindByResetToken(ctx, "secret-1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)

	consumed, err := s.ConsumeResetToken(ctx, "alice@example.com", "secret-1", "newhash")
	require.NoError(t, err)
	assert.True(t, consumed)

	// Second presentation of the same secret loses.
	consumed, err = s.ConsumeResetToken(ctx, "alice@example.com", "secret-1", "otherhash")
	require.NoError(t, err)
	assert.False(t, consumed)

	user, err = s.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "newhash", user.HashedPassword)
	assert.Empty(t, user.ResetToken)
	assert.Nil(t, user.ResetExpires)
}

func TestConsumeResetTokenConcurrent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedUser(t, s, "alice@example.com")
	ctx := context.Background()

	require.NoError(t, s.SetResetToken(ctx, "alice@example.com", "secret-1", time.Now().Add(time.Hour)))

	const callers = 8
	wins := make(chan bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumed, err := s.ConsumeResetToken(ctx, "alice@example.com", "secret-1", "newhash")
			assert.NoError(t, err)
			wins <- consumed
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for consumed := range wins {
		if consumed {
			won++
		}
	}
	assert.Equal(t, 1, won, "exactly one caller may consume the secret")
}

func TestConsumeResetTokenExpired(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedUser(t, s, "alice@example.com")
	ctx := context.Background()

	require.NoError(t, s.SetResetToken(ctx, "alice@example.com", "secret-1", time.Now().Add(-time.Minute)))

	consumed, err := s.ConsumeResetToken(ctx, "alice@example.com", "secret-1", "newhash")
	require.NoError(t, err)
	assert.False(t, consumed)
}

func TestConsumeVerificationToken(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedUser(t, s, "alice@example.com")
	ctx := context.Background()

	require.NoError(t, s.SetVerificationToken(ctx, "alice@example.com", "verify-1", time.Now().Add(time.Hour)))

	consumed, err := s.ConsumeVerificationToken(ctx, "alice@example.com", "verify-1")
	require.NoError(t, err)
	assert.True(t, consumed)

	user, err := s.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, user.Verified)
	assert.Empty(t, user.VerificationToken)

	consumed, err = s.ConsumeVerificationToken(ctx, "alice@example.com", "verify-1")
	require.NoError(t, err)
	assert.False(t, consumed)
}

func TestSetVerificationTokenReplacesPrevious(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedUser(t, s, "alice@example.com")
	ctx := context.Background()

	require.NoError(t, s.SetVerificationToken(ctx, "alice@example.com", "verify-1", time.Now().Add(time.Hour)))
	require.NoError(t, s.SetVerificationToken(ctx, "alice@example.com", "verify-2", time.Now().Add(time.Hour)))

	consumed, err := s.ConsumeVerificationToken(ctx, "alice@example.com", "verify-1")
	require.NoError(t, err)
	assert.False(t, consumed, "replaced secret must not verify")

	consumed, err = s.ConsumeVerificationToken(ctx, "alice@example.com", "verify-2")
	require.NoError(t, err)
	assert.True(t, consumed)
}

func TestUpdateProfileAllowList(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedUser(t, s, "alice@example.com")
	ctx := context.Background()

	first := "Alicia"
	contact := "+1-555-0100"
	err := s.UpdateProfile(ctx, "alice@example.com", models.ProfileUpdate{
		FirstName: &first,
		Contact:   &contact,
	})
	require.NoError(t, err)

	user, err := s.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", user.FirstName)
	assert.Equal(t, "User", user.LastName)
	assert.Equal(t, "+1-555-0100", user.Contact)

	err = s.UpdateProfile(ctx, "nobody@example.com", models.ProfileUpdate{FirstName: &first})
	assert.ErrorIs(t, err, apierr.ErrUserNotFound)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedUser(t, s, "alice@example.com")
	ctx := context.Background()

	require.NoError(t, s.Delete(ctx, "alice@example.com"))
	_, err := s.FindByEmail(ctx, "alice@example.com")
	assert.ErrorIs(t, err, apierr.ErrUserNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "alice@example.com"), apierr.ErrUserNotFound)
}

func TestListSearchRoleAndPagination(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	users := []models.User{
		{Email: "admin@example.com", FirstName: "Ada", Role: models.RoleAdmin, HashedPassword: "h"},
		{Email: "bob@example.com", FirstName: "Bob", Role: models.RoleUser, HashedPassword: "h"},
		{Email: "carol@example.com", FirstName: "Carol", Role: models.RoleUser, HashedPassword: "h"},
	}
	for i := range users {
		require.NoError(t, s.Insert(ctx, &users[i]))
	}

	all, total, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, all, 3)

	admins, total, err := s.List(ctx, ListOptions{Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, admins, 1)
	assert.Equal(t, "admin@example.com", admins[0].Email)

	matched, total, err := s.List(ctx, ListOptions{Search: "CAR"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, matched, 1)
	assert.Equal(t, "carol@example.com", matched[0].Email)

	page, total, err := s.List(ctx, ListOptions{Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 1)
}
