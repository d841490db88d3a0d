package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/internal/fixtures"
)

func TestRegistryService_Users(t *testing.T) {
	store := seededStore(t)
	svc := NewRegistryService(store, testHasher(), testOptions())
	ctx := context.Background()

	steve := fixtures.Steve
	require.NoError(t, svc.CreateUser(ctx, &steve))
	assert.NotEmpty(t, steve.ID)
	assert.Equal(t, testNow, steve.CreatedAt)

	bad := domain.User{FirstName: "Bad", Email: "not-an-email", Username: "bad"}
	assert.ErrorIs(t, svc.CreateUser(ctx, &bad), domain.ErrInvalidInput)

	dup := fixtures.Steve
	dup.ID = ""
	assert.ErrorIs(t, svc.CreateUser(ctx, &dup), domain.ErrConflict)

	require.NoError(t, svc.DeleteUser(ctx, fixtures.Tim.ID))
	rt, err := store.GetRefreshToken(ctx, fixtures.RefreshTokenValid)
	require.NoError(t, err)
	assert.True(t, rt.Expired)
}

func TestRegistryService_Groups(t *testing.T) {
	svc := NewRegistryService(seededStore(t), testHasher(), testOptions())
	ctx := context.Background()

	hr := fixtures.HumanResources
	require.NoError(t, svc.CreateGroup(ctx, &hr))
	require.NoError(t, svc.AddGroupMember(ctx, hr.ID, fixtures.Tim.ID))

	names, err := svc.UserGroupNames(ctx, fixtures.Tim.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"developers", "human_resources"}, names)

	assert.ErrorIs(t, svc.CreateGroup(ctx, &domain.UserGroup{FriendlyName: "X"}), domain.ErrInvalidInput)
}

func TestRegistryService_Clients(t *testing.T) {
	svc := NewRegistryService(seededStore(t), testHasher(), testOptions())
	ctx := context.Background()

	client, secret, err := svc.CreateClient(ctx, CreateClientRequest{Client: fixtures.PingvinShare, GenerateSecret: true})
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.NoError(t, testHasher().Verify(client.SecretHash, secret))

	got, err := svc.GetClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, fixtures.PingvinShare.CallbackURLs, got.CallbackURLs)

	_, _, err = svc.CreateClient(ctx, CreateClientRequest{Client: domain.OIDCClient{
		Name:         "Broken",
		CallbackURLs: []string{"not a url"},
	}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, _, err = svc.CreateClient(ctx, CreateClientRequest{Client: domain.OIDCClient{ID: "bad id!", Name: "Bad"}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
