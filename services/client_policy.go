package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/internal/auth"
	"go.pilab.hu/idcore/internal/callbackurl"
	"go.pilab.hu/idcore/log"
	"go.pilab.hu/idcore/tracing"
)

// ClientAssertionTypeJWTBearer is the only client_assertion_type accepted.
const ClientAssertionTypeJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// ClientCredentials are the client authentication parameters of a token
// request.
type ClientCredentials struct {
	ClientID            string
	ClientSecret        string
	ClientAssertionType string
	ClientAssertion     string
}

// ClientService enforces per-client policy: redirect allow-lists, access
// codes and client authentication.
type ClientService struct {
	clients domain.ClientRepository
	hasher  auth.SecretHasher
	keys    FederatedKeyResolver
	opts    Options
}

// NewClientService creates the service. keys may be nil when no federated
// issuers are trusted.
func NewClientService(clients domain.ClientRepository, hasher auth.SecretHasher, keys FederatedKeyResolver, opts Options) *ClientService {
	return &ClientService{clients: clients, hasher: hasher, keys: keys, opts: opts.withDefaults()}
}

// AuthorizeCallback checks an authorization request's redirect URI and
// access code against the client and returns the URI to redirect to.
func (s *ClientService) AuthorizeCallback(ctx context.Context, clientID, redirectURI, accessCode string) (string, error) {
	ctx, span := tracing.Start(ctx, "ClientService.AuthorizeCallback")
	defer span.End()

	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		return "", err
	}

	if err := checkAccessCode(client, accessCode); err != nil {
		return "", err
	}

	return matchCallback(client.CallbackURLs, redirectURI)
}

// ResolveLogoutCallback checks a post-logout redirect URI.
func (s *ClientService) ResolveLogoutCallback(ctx context.Context, clientID, redirectURI string) (string, error) {
	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		return "", err
	}
	return matchCallback(client.LogoutCallbackURLs, redirectURI)
}

func matchCallback(patterns []string, redirectURI string) (string, error) {
	matched, err := callbackurl.GetCallbackURLFromList(patterns, redirectURI)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	if matched == "" {
		return "", ErrInvalidCallbackURL
	}
	return matched, nil
}

func checkAccessCode(client *domain.OIDCClient, presented string) error {
	if !client.IsRestricted() {
		return nil
	}
	if presented == "" {
		return ErrAccessCodeRequired
	}
	for _, code := range client.AccessCodes {
		if subtle.ConstantTimeCompare([]byte(code), []byte(presented)) == 1 {
			return nil
		}
	}
	return ErrAccessCodeRequired
}

// Authenticate verifies the client's credentials. Confidential clients use
// their secret, federated clients a signed assertion, public clients only
// their id.
func (s *ClientService) Authenticate(ctx context.Context, creds ClientCredentials) (*domain.OIDCClient, error) {
	ctx, span := tracing.Start(ctx, "ClientService.Authenticate")
	defer span.End()

	clientID := creds.ClientID
	if clientID == "" && creds.ClientAssertion != "" {
		clientID = unverifiedSubject(creds.ClientAssertion)
	}
	if clientID == "" {
		return nil, ErrInvalidClient
	}

	client, err := s.clients.GetClient(ctx, clientID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrInvalidClient
	} else if err != nil {
		return nil, err
	}

	switch {
	case creds.ClientAssertion != "":
		err = s.verifyAssertion(ctx, client, creds)
	case creds.ClientSecret != "":
		if client.SecretHash == "" {
			err = ErrInvalidClient
		} else if verr := s.hasher.Verify(client.SecretHash, creds.ClientSecret); verr != nil {
			err = ErrInvalidClient
		}
	case !client.IsPublic():
		err = ErrInvalidClient
	}

	if err != nil {
		span.RecordError(err)
		s.opts.Logger.Warn(ctx, "Client authentication failed", log.Fields{"clientID": clientID, "error": err.Error()})
		return nil, err
	}
	return client, nil
}

func (s *ClientService) verifyAssertion(ctx context.Context, client *domain.OIDCClient, creds ClientCredentials) error {
	if creds.ClientAssertionType != ClientAssertionTypeJWTBearer {
		return fmt.Errorf("%w: unsupported client assertion type", ErrInvalidClient)
	}
	fed := client.FederatedJWT
	if fed == nil || s.keys == nil {
		return fmt.Errorf("%w: client does not accept assertions", ErrInvalidClient)
	}

	_, err := jwt.Parse(creds.ClientAssertion,
		func(t *jwt.Token) (any, error) {
			return s.keys.ResolveKey(ctx, fed.Issuer, t)
		},
		jwt.WithIssuer(fed.Issuer),
		jwt.WithAudience(fed.Audience),
		jwt.WithSubject(fed.Subject),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods(federatedSigningMethods),
		jwt.WithTimeFunc(s.opts.Now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidClient, err)
	}
	return nil
}

// unverifiedSubject reads sub from an assertion only to find the client to
// authenticate; the signature is checked afterwards.
func unverifiedSubject(assertion string) string {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(assertion, &claims); err != nil {
		return ""
	}
	return claims.Subject
}
