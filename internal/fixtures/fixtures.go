// Package fixtures holds the seed data used by tests across the module.
package fixtures

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/internal/auth"
)

// Users.
var (
	Tim = domain.User{
		ID:        "f4b89dc2-62fb-46bf-9f5f-c34f4eafe93e",
		FirstName: "Tim",
		LastName:  "Cook",
		Email:     "tim.cook@test.com",
		Username:  "tim",
	}
	Craig = domain.User{
		ID:        "1cd19686-f9a6-43f4-a41f-14a0bf5b4036",
		FirstName: "Craig",
		LastName:  "Federighi",
		Email:     "craig.federighi@test.com",
		Username:  "craig",
	}
	// Steve is not seeded; tests create him through signup.
	Steve = domain.User{
		FirstName: "Steve",
		LastName:  "Jobs",
		Email:     "steve.jobs@test.com",
		Username:  "steve",
	}
)

// Groups.
var (
	Developers = domain.UserGroup{ID: "4110f814-56f1-4b28-8998-752b69bc97c0e", FriendlyName: "Developers", Name: "developers"}
	Designers  = domain.UserGroup{ID: "adab18bf-f89d-4087-9ee1-70ff15b48211", FriendlyName: "Designers", Name: "designers"}
	// HumanResources is not seeded.
	HumanResources = domain.UserGroup{FriendlyName: "Human Resources", Name: "human_resources"}
)

// Client secrets in plaintext, as handed to the relying parties.
const (
	NextcloudSecret = "w2mUeZISmEvIDMEDvpY0PnxQIpj1m3zY"
	ImmichSecret    = "PYjrE9u4v9GVqXKi52eur0eb2Ci4kc0x"
)

// Clients. SecretHash is filled in by Seed.
var (
	Nextcloud = domain.OIDCClient{
		ID:                 "3654a746-35d4-4321-ac61-0bdcff2b4055",
		Name:               "Nextcloud",
		CallbackURLs:       []string{"http://nextcloud/auth/callback"},
		LogoutCallbackURLs: []string{"http://nextcloud/auth/logout/callback"},
	}
	Immich = domain.OIDCClient{
		ID:           "606c7782-f2b1-49e5-8ea9-26eb1b06d018",
		Name:         "Immich",
		CallbackURLs: []string{"http://immich/auth/callback"},
	}
	Federated = domain.OIDCClient{
		ID:           "c48232ff-ff65-45ed-ae96-7afa8a9b443b",
		Name:         "Federated",
		CallbackURLs: []string{"http://federated/auth/callback"},
		FederatedJWT: &domain.FederatedJWT{
			Issuer:   "https://external-idp.local",
			Audience: "api://PocketID",
			Subject:  "c48232ff-ff65-45ed-ae96-7afa8a9b443b",
		},
		AccessCodes: []string{"federated"},
	}
	// PingvinShare is not seeded.
	PingvinShare = domain.OIDCClient{
		Name:         "Pingvin Share",
		CallbackURLs: []string{"http://pingvin.share/auth/callback", "http://pingvin.share/auth/callback2"},
	}
)

// One-time access tokens, bound to Tim.
const (
	OneTimeTokenValid   = "HPe6k6uiDRRVuAQV"
	OneTimeTokenExpired = "YCGDtftvsvYWiXd0"
)

// Refresh tokens, issued to Tim through Nextcloud.
const (
	RefreshTokenValid   = "ou87UDg249r1StBLYkMEqy9TXDbV5HmGuDpMcZDo"
	RefreshTokenExpired = "X4vqwtRyCUaq51UafHea4Fsg8Km6CAns6vp3tuX4"
)

// APIKey is stored by hash only; its plaintext is not known.
var APIKey = domain.APIKey{
	ID:      "5f1fa856-c164-4295-961e-175a0d22d725",
	KeyHash: "6c34966f57ef2bb7857649aff0e7ab3ad67af93c846342ced3f5a07be8706c20",
	Name:    "Test API Key",
}

// Signup token values.
const (
	SignupValid         = "VALID1234567890A"
	SignupPartiallyUsed = "PARTIAL567890ABC"
	SignupExpired       = "EXPIRED34567890B"
	SignupFullyUsed     = "FULLYUSED567890C"
)

const day = 24 * time.Hour

// SignupTokens returns the signup token fixtures relative to now.
func SignupTokens(now time.Time) map[string]domain.SignupToken {
	return map[string]domain.SignupToken{
		"valid": {
			ID: "a1b2c3d4-e5f6-7890-abcd-ef1234567890", Token: SignupValid,
			ExpiresAt: now.Add(day), UsageLimit: 1, UsageCount: 0, CreatedAt: now,
		},
		"partiallyUsed": {
			ID: "b2c3d4e5-f6g7-8901-bcde-f12345678901", Token: SignupPartiallyUsed,
			ExpiresAt: now.Add(7 * day), UsageLimit: 5, UsageCount: 2, CreatedAt: now.Add(-2 * day),
		},
		"expired": {
			ID: "c3d4e5f6-g7h8-9012-cdef-123456789012", Token: SignupExpired,
			ExpiresAt: now.Add(-day), UsageLimit: 3, UsageCount: 1, CreatedAt: now.Add(-3 * day),
		},
		"fullyUsed": {
			ID: "d4e5f6g7-h8i9-0123-def0-234567890123", Token: SignupFullyUsed,
			ExpiresAt: now.Add(day), UsageLimit: 1, UsageCount: 1, CreatedAt: now.Add(-time.Hour),
		},
	}
}

// Seed writes the fixtures into a store. Client secrets are hashed with
// hasher.
func Seed(ctx context.Context, store domain.RepositoryProvider, hasher auth.SecretHasher, now time.Time) error {
	for _, u := range []domain.User{Tim, Craig} {
		u.CreatedAt = now
		if err := store.UserRepository().CreateUser(ctx, &u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Username, err)
		}
	}

	for _, g := range []domain.UserGroup{Developers, Designers} {
		g.CreatedAt = now
		if err := store.GroupRepository().CreateGroup(ctx, &g); err != nil {
			return fmt.Errorf("seed group %s: %w", g.Name, err)
		}
	}
	if err := store.GroupRepository().AddGroupMember(ctx, Developers.ID, Tim.ID); err != nil {
		return fmt.Errorf("seed membership: %w", err)
	}
	if err := store.GroupRepository().AddGroupMember(ctx, Designers.ID, Craig.ID); err != nil {
		return fmt.Errorf("seed membership: %w", err)
	}

	secrets := map[string]string{Nextcloud.ID: NextcloudSecret, Immich.ID: ImmichSecret}
	for _, c := range []domain.OIDCClient{Nextcloud, Immich, Federated} {
		c.CreatedAt = now
		if secret, ok := secrets[c.ID]; ok {
			hash, err := hasher.Hash(secret)
			if err != nil {
				return fmt.Errorf("seed client %s: %w", c.Name, err)
			}
			c.SecretHash = hash
		}
		if err := store.ClientRepository().CreateClient(ctx, &c); err != nil {
			return fmt.Errorf("seed client %s: %w", c.Name, err)
		}
	}

	for _, ot := range []domain.OneTimeAccessToken{
		{Token: OneTimeTokenValid, UserID: Tim.ID, Expired: false, ExpiresAt: now.Add(time.Hour), CreatedAt: now},
		{Token: OneTimeTokenExpired, UserID: Tim.ID, Expired: true, ExpiresAt: now.Add(time.Hour), CreatedAt: now},
	} {
		if err := store.OneTimeAccessTokenRepository().CreateOneTimeAccessToken(ctx, &ot); err != nil {
			return fmt.Errorf("seed one-time token: %w", err)
		}
	}

	for _, rt := range []domain.RefreshToken{
		{Token: RefreshTokenValid, ClientID: Nextcloud.ID, UserID: Tim.ID, Expired: false, ExpiresAt: now.Add(30 * day), CreatedAt: now},
		{Token: RefreshTokenExpired, ClientID: Nextcloud.ID, UserID: Tim.ID, Expired: true, ExpiresAt: now.Add(30 * day), CreatedAt: now},
	} {
		if err := store.RefreshTokenRepository().CreateRefreshToken(ctx, &rt); err != nil {
			return fmt.Errorf("seed refresh token: %w", err)
		}
	}

	key := APIKey
	key.CreatedAt = now
	if err := store.APIKeyRepository().CreateAPIKey(ctx, &key); err != nil {
		return fmt.Errorf("seed api key: %w", err)
	}

	for name, st := range SignupTokens(now) {
		if err := store.SignupTokenRepository().CreateSignupToken(ctx, &st); err != nil {
			return fmt.Errorf("seed signup token %s: %w", name, err)
		}
	}

	return nil
}

// NewID returns a fresh entity id.
func NewID() string {
	return uuid.NewString()
}
