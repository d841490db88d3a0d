package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/internal/fixtures"
)

func TestOneTimeAccessService(t *testing.T) {
	store := seededStore(t)
	svc := NewOneTimeAccessService(store, NewTokenIssuer(store, testOptions()), 15*time.Minute, testOptions())
	ctx := context.Background()

	user, err := svc.Consume(ctx, fixtures.OneTimeTokenValid)
	require.NoError(t, err)
	assert.Equal(t, fixtures.Tim.ID, user.ID)

	_, err = svc.Consume(ctx, fixtures.OneTimeTokenValid)
	assert.ErrorIs(t, err, domain.ErrExpired)

	_, err = svc.Consume(ctx, fixtures.OneTimeTokenExpired)
	assert.ErrorIs(t, err, domain.ErrExpired)

	ot, err := svc.Issue(ctx, fixtures.Craig.ID)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(15*time.Minute), ot.ExpiresAt)

	user, err = svc.Consume(ctx, ot.Token)
	require.NoError(t, err)
	assert.Equal(t, fixtures.Craig.ID, user.ID)
}
