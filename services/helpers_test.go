package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go.pilab.hu/idcore/internal/auth"
	"go.pilab.hu/idcore/internal/fixtures"
	"go.pilab.hu/idcore/memory"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testOptions() Options {
	return Options{Now: func() time.Time { return testNow }}
}

func testHasher() auth.SecretHasher {
	return auth.NewBcryptSecretHasher(bcrypt.MinCost)
}

// seededStore returns a memory store holding the fixtures relative to
// testNow.
func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, fixtures.Seed(context.Background(), store, testHasher(), testNow))
	return store
}

// MockRevocationList is a testify mock of cache.RevocationList.
type MockRevocationList struct {
	mock.Mock
}

func (m *MockRevocationList) Revoke(ctx context.Context, tokenHash string, ttl time.Duration) error {
	args := m.Called(ctx, tokenHash, ttl)
	return args.Error(0)
}

func (m *MockRevocationList) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	args := m.Called(ctx, tokenHash)
	return args.Bool(0), args.Error(1)
}

func (m *MockRevocationList) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRevocationList) Count(ctx context.Context) int {
	args := m.Called(ctx)
	return args.Int(0)
}
