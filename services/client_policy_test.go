package services

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/internal/fixtures"
)

func TestClientService_AuthorizeCallback(t *testing.T) {
	store := seededStore(t)
	svc := NewClientService(store, testHasher(), nil, testOptions())
	ctx := context.Background()

	got, err := svc.AuthorizeCallback(ctx, fixtures.Nextcloud.ID, "http://nextcloud/auth/callback", "")
	require.NoError(t, err)
	assert.Equal(t, "http://nextcloud/auth/callback", got)

	_, err = svc.AuthorizeCallback(ctx, fixtures.Nextcloud.ID, "http://evil/auth/callback", "")
	assert.ErrorIs(t, err, ErrInvalidCallbackURL)

	_, err = svc.AuthorizeCallback(ctx, "missing", "http://nextcloud/auth/callback", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	t.Run("access codes", func(t *testing.T) {
		_, err := svc.AuthorizeCallback(ctx, fixtures.Federated.ID, "http://federated/auth/callback", "")
		assert.ErrorIs(t, err, ErrAccessCodeRequired)

		_, err = svc.AuthorizeCallback(ctx, fixtures.Federated.ID, "http://federated/auth/callback", "wrong")
		assert.ErrorIs(t, err, ErrAccessCodeRequired)

		got, err := svc.AuthorizeCallback(ctx, fixtures.Federated.ID, "http://federated/auth/callback", "federated")
		require.NoError(t, err)
		assert.Equal(t, "http://federated/auth/callback", got)
	})

	t.Run("first match in declared order and loopback ports", func(t *testing.T) {
		client, _, err := NewRegistryService(store, testHasher(), testOptions()).CreateClient(ctx, CreateClientRequest{
			Client: domain.OIDCClient{
				Name:         "Pingvin Share",
				CallbackURLs: []string{"http://localhost/callback", "https://*.pingvin.share/auth/**"},
			},
		})
		require.NoError(t, err)

		got, err := svc.AuthorizeCallback(ctx, client.ID, "http://localhost:53219/callback", "")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:53219/callback", got)

		got, err = svc.AuthorizeCallback(ctx, client.ID, "https://eu.pingvin.share/auth/a/b#frag", "")
		require.NoError(t, err)
		assert.Equal(t, "https://eu.pingvin.share/auth/a/b#frag", got)
	})

	t.Run("no callback urls rejects all", func(t *testing.T) {
		client, _, err := NewRegistryService(store, testHasher(), testOptions()).CreateClient(ctx, CreateClientRequest{
			Client: domain.OIDCClient{Name: "Empty"},
		})
		require.NoError(t, err)

		_, err = svc.AuthorizeCallback(ctx, client.ID, "http://anything/", "")
		assert.ErrorIs(t, err, ErrInvalidCallbackURL)
	})
}

func TestClientService_ResolveLogoutCallback(t *testing.T) {
	svc := NewClientService(seededStore(t), testHasher(), nil, testOptions())
	ctx := context.Background()

	got, err := svc.ResolveLogoutCallback(ctx, fixtures.Nextcloud.ID, "http://nextcloud/auth/logout/callback")
	require.NoError(t, err)
	assert.Equal(t, "http://nextcloud/auth/logout/callback", got)

	_, err = svc.ResolveLogoutCallback(ctx, fixtures.Immich.ID, "http://immich/auth/logout/callback")
	assert.ErrorIs(t, err, ErrInvalidCallbackURL)
}

func TestClientService_AuthenticateSecret(t *testing.T) {
	svc := NewClientService(seededStore(t), testHasher(), nil, testOptions())
	ctx := context.Background()

	client, err := svc.Authenticate(ctx, ClientCredentials{ClientID: fixtures.Nextcloud.ID, ClientSecret: fixtures.NextcloudSecret})
	require.NoError(t, err)
	assert.Equal(t, fixtures.Nextcloud.ID, client.ID)

	_, err = svc.Authenticate(ctx, ClientCredentials{ClientID: fixtures.Nextcloud.ID, ClientSecret: fixtures.ImmichSecret})
	assert.ErrorIs(t, err, ErrInvalidClient)

	_, err = svc.Authenticate(ctx, ClientCredentials{ClientID: fixtures.Nextcloud.ID})
	assert.ErrorIs(t, err, ErrInvalidClient)

	_, err = svc.Authenticate(ctx, ClientCredentials{ClientID: "missing", ClientSecret: "x"})
	assert.ErrorIs(t, err, ErrInvalidClient)

	_, err = svc.Authenticate(ctx, ClientCredentials{ClientID: fixtures.Federated.ID, ClientSecret: "x"})
	assert.ErrorIs(t, err, ErrInvalidClient)
}

func signAssertion(t *testing.T, method jwt.SigningMethod, key crypto.PrivateKey, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func federatedClaims() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    fixtures.Federated.FederatedJWT.Issuer,
		Audience:  jwt.ClaimStrings{fixtures.Federated.FederatedJWT.Audience},
		Subject:   fixtures.Federated.FederatedJWT.Subject,
		ExpiresAt: jwt.NewNumericDate(testNow.Add(5 * time.Minute)),
		IssuedAt:  jwt.NewNumericDate(testNow),
	}
}

func TestClientService_AuthenticateAssertion(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keys := NewStaticKeyResolver(map[string]crypto.PublicKey{
		fixtures.Federated.FederatedJWT.Issuer: &rsaKey.PublicKey,
	})
	svc := NewClientService(seededStore(t), testHasher(), keys, testOptions())
	ctx := context.Background()

	assertion := func(claims jwt.RegisteredClaims) ClientCredentials {
		return ClientCredentials{
			ClientAssertionType: ClientAssertionTypeJWTBearer,
			ClientAssertion:     signAssertion(t, jwt.SigningMethodRS256, rsaKey, claims),
		}
	}

	client, err := svc.Authenticate(ctx, assertion(federatedClaims()))
	require.NoError(t, err)
	assert.Equal(t, fixtures.Federated.ID, client.ID)

	tests := []struct {
		name   string
		mutate func(*jwt.RegisteredClaims)
	}{
		{"wrong issuer", func(c *jwt.RegisteredClaims) { c.Issuer = "https://other-idp.local" }},
		{"wrong audience", func(c *jwt.RegisteredClaims) { c.Audience = jwt.ClaimStrings{"api://Other"} }},
		{"expired", func(c *jwt.RegisteredClaims) { c.ExpiresAt = jwt.NewNumericDate(testNow.Add(-time.Minute)) }},
		{"no expiry", func(c *jwt.RegisteredClaims) { c.ExpiresAt = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := federatedClaims()
			tt.mutate(&claims)
			creds := assertion(claims)
			creds.ClientID = fixtures.Federated.ID

			_, err := svc.Authenticate(ctx, creds)
			assert.ErrorIs(t, err, ErrInvalidClient)
		})
	}

	t.Run("wrong signing key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		_, err = svc.Authenticate(ctx, ClientCredentials{
			ClientAssertionType: ClientAssertionTypeJWTBearer,
			ClientAssertion:     signAssertion(t, jwt.SigningMethodRS256, other, federatedClaims()),
		})
		assert.ErrorIs(t, err, ErrInvalidClient)
	})

	t.Run("wrong assertion type", func(t *testing.T) {
		creds := assertion(federatedClaims())
		creds.ClientAssertionType = "urn:example"

		_, err := svc.Authenticate(ctx, creds)
		assert.ErrorIs(t, err, ErrInvalidClient)
	})

	t.Run("client without federation", func(t *testing.T) {
		claims := federatedClaims()
		claims.Subject = fixtures.Nextcloud.ID

		_, err := svc.Authenticate(ctx, assertion(claims))
		assert.ErrorIs(t, err, ErrInvalidClient)
	})
}

func TestLoadStaticKeyResolver(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&ecKey.PublicKey)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "idp.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	resolver, err := LoadStaticKeyResolver(map[string]string{"https://external-idp.local": path})
	require.NoError(t, err)

	signed := signAssertion(t, jwt.SigningMethodES256, ecKey, federatedClaims())
	token, _, err := jwt.NewParser().ParseUnverified(signed, &jwt.RegisteredClaims{})
	require.NoError(t, err)

	key, err := resolver.ResolveKey(context.Background(), "https://external-idp.local", token)
	require.NoError(t, err)
	assert.Equal(t, &ecKey.PublicKey, key)

	_, err = resolver.ResolveKey(context.Background(), "https://unknown.local", token)
	assert.Error(t, err)

	rsaSigned := jwt.New(jwt.SigningMethodRS256)
	_, err = resolver.ResolveKey(context.Background(), "https://external-idp.local", rsaSigned)
	assert.Error(t, err)

	_, err = LoadStaticKeyResolver(map[string]string{"x": filepath.Join(t.TempDir(), "missing.pem")})
	assert.Error(t, err)
}
