// Package storetest runs the same behavioural checks against every
// domain.RepositoryProvider implementation.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/internal/auth"
	"go.pilab.hu/idcore/internal/fixtures"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) domain.RepositoryProvider

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	seeded := func(t *testing.T) (domain.RepositoryProvider, time.Time) {
		t.Helper()
		store := newStore(t)
		now := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, fixtures.Seed(context.Background(), store, auth.NewBcryptSecretHasher(bcrypt.MinCost), now))
		return store, now
	}

	t.Run("Users", func(t *testing.T) {
		store, _ := seeded(t)
		ctx := context.Background()
		repo := store.UserRepository()

		u, err := repo.GetUserByID(ctx, fixtures.Tim.ID)
		require.NoError(t, err)
		assert.Equal(t, "tim", u.Username)

		u, err = repo.GetUserByUsername(ctx, "craig")
		require.NoError(t, err)
		assert.Equal(t, fixtures.Craig.ID, u.ID)

		u, err = repo.GetUserByEmail(ctx, fixtures.Craig.Email)
		require.NoError(t, err)
		assert.Equal(t, fixtures.Craig.ID, u.ID)

		_, err = repo.GetUserByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		dup := fixtures.Steve
		dup.ID = fixtures.NewID()
		dup.Email = fixtures.Tim.Email
		assert.ErrorIs(t, repo.CreateUser(ctx, &dup), domain.ErrConflict)

		_, err = repo.GetUserByID(ctx, fixtures.NewID())
		assert.ErrorIs(t, err, domain.ErrNotFound)

		require.NoError(t, repo.DeleteUser(ctx, fixtures.Craig.ID))
		assert.ErrorIs(t, repo.DeleteUser(ctx, fixtures.Craig.ID), domain.ErrNotFound)
	})

	t.Run("Groups", func(t *testing.T) {
		store, _ := seeded(t)
		ctx := context.Background()
		repo := store.GroupRepository()

		g, err := repo.GetGroupByName(ctx, "developers")
		require.NoError(t, err)
		assert.Equal(t, fixtures.Developers.ID, g.ID)

		dup := fixtures.HumanResources
		dup.ID = fixtures.NewID()
		dup.Name = "designers"
		assert.ErrorIs(t, repo.CreateGroup(ctx, &dup), domain.ErrConflict)

		require.NoError(t, repo.AddGroupMember(ctx, fixtures.Designers.ID, fixtures.Tim.ID))
		// Adding twice is a no-op.
		require.NoError(t, repo.AddGroupMember(ctx, fixtures.Designers.ID, fixtures.Tim.ID))

		groups, err := repo.ListUserGroups(ctx, fixtures.Tim.ID)
		require.NoError(t, err)
		require.Len(t, groups, 2)
		assert.Equal(t, "designers", groups[0].Name)
		assert.Equal(t, "developers", groups[1].Name)

		assert.ErrorIs(t, repo.AddGroupMember(ctx, fixtures.NewID(), fixtures.Tim.ID), domain.ErrNotFound)
	})

	t.Run("Clients", func(t *testing.T) {
		store, _ := seeded(t)
		ctx := context.Background()
		repo := store.ClientRepository()

		c, err := repo.GetClient(ctx, fixtures.Federated.ID)
		require.NoError(t, err)
		require.NotNil(t, c.FederatedJWT)
		assert.Equal(t, "https://external-idp.local", c.FederatedJWT.Issuer)
		assert.Equal(t, []string{"federated"}, c.AccessCodes)
		assert.False(t, c.IsPublic())

		c, err = repo.GetClient(ctx, fixtures.Nextcloud.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, c.SecretHash)
		assert.Equal(t, []string{"http://nextcloud/auth/logout/callback"}, c.LogoutCallbackURLs)

		dup := fixtures.Immich
		assert.ErrorIs(t, repo.CreateClient(ctx, &dup), domain.ErrConflict)

		_, err = repo.GetClient(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("RefreshTokens", func(t *testing.T) {
		store, now := seeded(t)
		ctx := context.Background()
		repo := store.RefreshTokenRepository()

		rt, err := repo.GetRefreshToken(ctx, fixtures.RefreshTokenValid)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusValid, rt.Status(now))

		rt, err = repo.GetRefreshToken(ctx, fixtures.RefreshTokenExpired)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusExpired, rt.Status(now))

		dup := domain.RefreshToken{Token: fixtures.RefreshTokenValid, ClientID: fixtures.Nextcloud.ID, UserID: fixtures.Tim.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
		assert.ErrorIs(t, repo.CreateRefreshToken(ctx, &dup), domain.ErrConflict)

		require.NoError(t, repo.ExpireRefreshToken(ctx, fixtures.RefreshTokenValid))
		assert.ErrorIs(t, repo.ExpireRefreshToken(ctx, fixtures.RefreshTokenValid), domain.ErrExpired)
		assert.ErrorIs(t, repo.ExpireRefreshToken(ctx, "missing"), domain.ErrNotFound)

		fresh := domain.RefreshToken{Token: "fresh-refresh-token", ClientID: fixtures.Immich.ID, UserID: fixtures.Craig.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
		require.NoError(t, repo.CreateRefreshToken(ctx, &fresh))
		n, err := repo.ExpireUserRefreshTokens(ctx, fixtures.Craig.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	t.Run("OneTimeAccessTokens", func(t *testing.T) {
		store, now := seeded(t)
		ctx := context.Background()
		repo := store.OneTimeAccessTokenRepository()

		ot, err := repo.ConsumeOneTimeAccessToken(ctx, fixtures.OneTimeTokenValid, now)
		require.NoError(t, err)
		assert.True(t, ot.Expired)
		assert.Equal(t, fixtures.Tim.ID, ot.UserID)

		_, err = repo.ConsumeOneTimeAccessToken(ctx, fixtures.OneTimeTokenValid, now)
		assert.ErrorIs(t, err, domain.ErrExpired)

		_, err = repo.ConsumeOneTimeAccessToken(ctx, fixtures.OneTimeTokenExpired, now)
		assert.ErrorIs(t, err, domain.ErrExpired)

		_, err = repo.ConsumeOneTimeAccessToken(ctx, "missing", now)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		timedOut := domain.OneTimeAccessToken{Token: "timedOutToken000", UserID: fixtures.Tim.ID, ExpiresAt: now.Add(-time.Minute), CreatedAt: now.Add(-time.Hour)}
		require.NoError(t, repo.CreateOneTimeAccessToken(ctx, &timedOut))
		_, err = repo.ConsumeOneTimeAccessToken(ctx, timedOut.Token, now)
		assert.ErrorIs(t, err, domain.ErrExpired)

		stored, err := repo.GetOneTimeAccessToken(ctx, timedOut.Token)
		require.NoError(t, err)
		assert.False(t, stored.Expired)
	})

	t.Run("APIKeys", func(t *testing.T) {
		store, now := seeded(t)
		ctx := context.Background()
		repo := store.APIKeyRepository()

		k, err := repo.GetAPIKeyByHash(ctx, fixtures.APIKey.KeyHash)
		require.NoError(t, err)
		assert.Equal(t, fixtures.APIKey.ID, k.ID)
		assert.Nil(t, k.ExpiresAt)
		assert.Equal(t, domain.StatusValid, k.Status(now))

		require.NoError(t, repo.TouchAPIKey(ctx, k.ID, now))
		k, err = repo.GetAPIKey(ctx, k.ID)
		require.NoError(t, err)
		require.NotNil(t, k.LastUsedAt)
		assert.WithinDuration(t, now, *k.LastUsedAt, time.Millisecond)

		revoked, err := repo.RevokeAPIKey(ctx, k.ID)
		require.NoError(t, err)
		assert.True(t, revoked.Revoked)
		assert.Equal(t, domain.StatusRevoked, revoked.Status(now))

		dup := domain.APIKey{ID: fixtures.NewID(), KeyHash: fixtures.APIKey.KeyHash, Name: "dup", CreatedAt: now}
		assert.ErrorIs(t, repo.CreateAPIKey(ctx, &dup), domain.ErrConflict)

		_, err = repo.RevokeAPIKey(ctx, fixtures.NewID())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("SignupTokens", func(t *testing.T) {
		store, now := seeded(t)
		ctx := context.Background()
		repo := store.SignupTokenRepository()

		all, err := repo.ListSignupTokens(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 4)

		st, err := repo.IncrementSignupTokenUsage(ctx, fixtures.SignupPartiallyUsed, now)
		require.NoError(t, err)
		assert.Equal(t, 3, st.UsageCount)

		_, err = repo.IncrementSignupTokenUsage(ctx, fixtures.SignupFullyUsed, now)
		assert.ErrorIs(t, err, domain.ErrExhausted)

		_, err = repo.IncrementSignupTokenUsage(ctx, fixtures.SignupExpired, now)
		assert.ErrorIs(t, err, domain.ErrExpired)

		_, err = repo.IncrementSignupTokenUsage(ctx, "missing", now)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		st, err = repo.IncrementSignupTokenUsage(ctx, fixtures.SignupValid, now)
		require.NoError(t, err)
		assert.Equal(t, 1, st.UsageCount)
		_, err = repo.IncrementSignupTokenUsage(ctx, fixtures.SignupValid, now)
		assert.ErrorIs(t, err, domain.ErrExhausted)

		st, err = repo.GetSignupToken(ctx, fixtures.SignupValid)
		require.NoError(t, err)
		assert.Equal(t, 1, st.UsageCount)

		dup := domain.SignupToken{ID: fixtures.NewID(), Token: fixtures.SignupValid, ExpiresAt: now.Add(time.Hour), UsageLimit: 1, CreatedAt: now}
		assert.ErrorIs(t, repo.CreateSignupToken(ctx, &dup), domain.ErrConflict)

		require.NoError(t, repo.DeleteSignupToken(ctx, st.ID))
		_, err = repo.GetSignupToken(ctx, fixtures.SignupValid)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("ConcurrentRedemption", func(t *testing.T) {
		store, now := seeded(t)
		ctx := context.Background()
		repo := store.SignupTokenRepository()

		// partiallyUsed has 3 uses left.
		const workers = 20
		var (
			wg        sync.WaitGroup
			succeeded atomic.Int32
			exhausted atomic.Int32
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.IncrementSignupTokenUsage(ctx, fixtures.SignupPartiallyUsed, now)
				switch {
				case err == nil:
					succeeded.Add(1)
				case assert.ErrorIs(t, err, domain.ErrExhausted):
					exhausted.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.EqualValues(t, 3, succeeded.Load())
		assert.EqualValues(t, workers-3, exhausted.Load())

		st, err := repo.GetSignupToken(ctx, fixtures.SignupPartiallyUsed)
		require.NoError(t, err)
		assert.Equal(t, st.UsageLimit, st.UsageCount)
	})

	t.Run("Ping", func(t *testing.T) {
		store := newStore(t)
		assert.NoError(t, store.Ping(context.Background()))
	})
}
