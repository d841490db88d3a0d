package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/internal/fixtures"
	"go.pilab.hu/idcore/memory"
)

func steveSignup(token string) SignupRequest {
	return SignupRequest{
		Token:     token,
		FirstName: fixtures.Steve.FirstName,
		LastName:  fixtures.Steve.LastName,
		Email:     fixtures.Steve.Email,
		Username:  fixtures.Steve.Username,
	}
}

func TestSignupService_Redeem(t *testing.T) {
	ctx := context.Background()

	t.Run("partially used token is accepted", func(t *testing.T) {
		svc := NewSignupService(seededStore(t), testOptions())

		st, err := svc.Redeem(ctx, fixtures.SignupPartiallyUsed)
		require.NoError(t, err)
		assert.Equal(t, 3, st.UsageCount)
		assert.Equal(t, domain.SignupStatePartiallyUsed, st.State(testNow))
	})

	t.Run("fully used token is exhausted", func(t *testing.T) {
		svc := NewSignupService(seededStore(t), testOptions())

		_, err := svc.Redeem(ctx, fixtures.SignupFullyUsed)
		assert.ErrorIs(t, err, domain.ErrExhausted)
	})

	t.Run("expired token is expired", func(t *testing.T) {
		store := seededStore(t)
		svc := NewSignupService(store, testOptions())

		_, err := svc.Redeem(ctx, fixtures.SignupExpired)
		assert.ErrorIs(t, err, domain.ErrExpired)

		st, err := store.GetSignupToken(ctx, fixtures.SignupExpired)
		require.NoError(t, err)
		assert.Equal(t, 1, st.UsageCount)
	})

	t.Run("unknown token", func(t *testing.T) {
		svc := NewSignupService(seededStore(t), testOptions())

		_, err := svc.Redeem(ctx, "DOESNOTEXIST0000")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("single use token moves to exhausted", func(t *testing.T) {
		svc := NewSignupService(seededStore(t), testOptions())

		st, err := svc.Redeem(ctx, fixtures.SignupValid)
		require.NoError(t, err)
		assert.Equal(t, domain.SignupStateExhausted, st.State(testNow))

		_, err = svc.Redeem(ctx, fixtures.SignupValid)
		assert.ErrorIs(t, err, domain.ErrExhausted)
	})
}

func TestSignupService_ConcurrentRedemptions(t *testing.T) {
	store := seededStore(t)
	issuer := NewTokenIssuer(store, testOptions())
	svc := NewSignupService(store, testOptions())
	ctx := context.Background()

	for _, limit := range []int{1, 4, 10} {
		t.Run(fmt.Sprintf("limit %d", limit), func(t *testing.T) {
			st, err := issuer.IssueSignupToken(ctx, time.Hour, limit)
			require.NoError(t, err)

			const workers = 32
			var (
				wg sync.WaitGroup
				ok atomic.Int32
			)
			for range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := svc.Redeem(ctx, st.Token); err == nil {
						ok.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.EqualValues(t, limit, ok.Load())

			after, err := store.GetSignupToken(ctx, st.Token)
			require.NoError(t, err)
			assert.Equal(t, limit, after.UsageCount)
		})
	}
}

func TestSignupService_Signup(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the user", func(t *testing.T) {
		store := seededStore(t)
		svc := NewSignupService(store, testOptions())

		user, err := svc.Signup(ctx, steveSignup(fixtures.SignupValid))
		require.NoError(t, err)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, testNow, user.CreatedAt)

		stored, err := store.GetUserByUsername(ctx, "steve")
		require.NoError(t, err)
		assert.Equal(t, user.ID, stored.ID)

		st, err := store.GetSignupToken(ctx, fixtures.SignupValid)
		require.NoError(t, err)
		assert.Equal(t, 1, st.UsageCount)
	})

	t.Run("taken username leaves the token untouched", func(t *testing.T) {
		store := seededStore(t)
		svc := NewSignupService(store, testOptions())

		req := steveSignup(fixtures.SignupPartiallyUsed)
		req.Username = fixtures.Tim.Username

		_, err := svc.Signup(ctx, req)
		assert.ErrorIs(t, err, domain.ErrConflict)

		st, err := store.GetSignupToken(ctx, fixtures.SignupPartiallyUsed)
		require.NoError(t, err)
		assert.Equal(t, 2, st.UsageCount)
	})

	t.Run("taken email leaves the token untouched", func(t *testing.T) {
		store := seededStore(t)
		svc := NewSignupService(store, testOptions())

		req := steveSignup(fixtures.SignupValid)
		req.Email = fixtures.Craig.Email

		_, err := svc.Signup(ctx, req)
		assert.ErrorIs(t, err, domain.ErrConflict)

		st, err := store.GetSignupToken(ctx, fixtures.SignupValid)
		require.NoError(t, err)
		assert.Equal(t, 0, st.UsageCount)
	})

	t.Run("conflict on insert keeps the use consumed", func(t *testing.T) {
		store := seededStore(t)
		svc := NewSignupService(blindLookupStore{store}, testOptions())

		req := steveSignup(fixtures.SignupPartiallyUsed)
		req.Username = fixtures.Tim.Username

		_, err := svc.Signup(ctx, req)
		assert.ErrorIs(t, err, domain.ErrConflict)

		st, err := store.GetSignupToken(ctx, fixtures.SignupPartiallyUsed)
		require.NoError(t, err)
		assert.Equal(t, 3, st.UsageCount)
	})

	t.Run("invalid input does not touch the token", func(t *testing.T) {
		store := seededStore(t)
		svc := NewSignupService(store, testOptions())

		req := steveSignup(fixtures.SignupValid)
		req.Username = "-steve"

		_, err := svc.Signup(ctx, req)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		st, err := store.GetSignupToken(ctx, fixtures.SignupValid)
		require.NoError(t, err)
		assert.Equal(t, 0, st.UsageCount)
	})

	t.Run("exhausted token", func(t *testing.T) {
		svc := NewSignupService(seededStore(t), testOptions())

		_, err := svc.Signup(ctx, steveSignup(fixtures.SignupFullyUsed))
		assert.ErrorIs(t, err, domain.ErrExhausted)
	})
}

func TestSignupService_Info(t *testing.T) {
	svc := NewSignupService(seededStore(t), testOptions())
	ctx := context.Background()

	info, err := svc.Info(ctx, fixtures.SignupPartiallyUsed)
	require.NoError(t, err)
	assert.Equal(t, domain.SignupStatePartiallyUsed, info.State)
	assert.Equal(t, 3, info.Remaining)

	info, err = svc.Info(ctx, fixtures.SignupExpired)
	require.NoError(t, err)
	assert.Equal(t, domain.SignupStateExpired, info.State)
	assert.True(t, info.State.Terminal())

	_, err = svc.Info(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSignupOutcome(t *testing.T) {
	assert.Equal(t, "success", signupOutcome(nil))
	assert.Equal(t, "exhausted", signupOutcome(fmt.Errorf("signup token: %w", domain.ErrExhausted)))
	assert.Equal(t, "expired", signupOutcome(domain.ErrExpired))
	assert.Equal(t, "not_found", signupOutcome(domain.ErrNotFound))
	assert.Equal(t, "invalid", signupOutcome(domain.ErrInvalidInput))
	assert.Equal(t, "conflict", signupOutcome(domain.ErrConflict))
}

// blindLookupStore hides existing users from lookups so a conflict only
// surfaces when the user is inserted, as with a concurrent signup.
type blindLookupStore struct {
	*memory.Store
}

func (s blindLookupStore) UserRepository() domain.UserRepository {
	return blindUsers{s.Store}
}

type blindUsers struct {
	*memory.Store
}

func (blindUsers) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	return nil, fmt.Errorf("user %s: %w", username, domain.ErrNotFound)
}

func (blindUsers) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	return nil, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
}
