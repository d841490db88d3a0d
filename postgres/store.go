package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go.pilab.hu/idcore/domain"
)

// Store implements domain.RepositoryProvider. Atomic transitions are single
// UPDATE ... RETURNING statements guarded in their WHERE clause.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects, migrates and returns the store.
func NewStore(ctx context.Context, url string, opts ...PoolOption) (*Store, error) {
	pool, err := NewPool(ctx, url, opts...)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) UserRepository() domain.UserRepository                 { return s }
func (s *Store) GroupRepository() domain.GroupRepository               { return s }
func (s *Store) ClientRepository() domain.ClientRepository             { return s }
func (s *Store) RefreshTokenRepository() domain.RefreshTokenRepository { return s }
func (s *Store) APIKeyRepository() domain.APIKeyRepository             { return s }
func (s *Store) SignupTokenRepository() domain.SignupTokenRepository   { return s }
func (s *Store) OneTimeAccessTokenRepository() domain.OneTimeAccessTokenRepository {
	return s
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

// Pool exposes the underlying pool for maintenance tasks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// --- users ---

const userColumns = `id, first_name, last_name, email, username, created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Username, &u.CreatedAt)
	return &u, err
}

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.FirstName, user.LastName, user.Email, user.Username, user.CreatedAt)
	return writeErr("create user", err)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, readErr("user "+id, err)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return nil, readErr("user "+username, err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, readErr("user "+email, err)
	}
	return u, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// --- groups ---

func (s *Store) CreateGroup(ctx context.Context, group *domain.UserGroup) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_groups (id, friendly_name, name, created_at) VALUES ($1, $2, $3, $4)`,
		group.ID, group.FriendlyName, group.Name, group.CreatedAt)
	return writeErr("create group", err)
}

func (s *Store) GetGroupByName(ctx context.Context, name string) (*domain.UserGroup, error) {
	var g domain.UserGroup
	err := s.pool.QueryRow(ctx,
		`SELECT id, friendly_name, name, created_at FROM user_groups WHERE name = $1`, name,
	).Scan(&g.ID, &g.FriendlyName, &g.Name, &g.CreatedAt)
	if err != nil {
		return nil, readErr("group "+name, err)
	}
	return &g, nil
}

func (s *Store) AddGroupMember(ctx context.Context, groupID, userID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		groupID, userID)
	return writeErr("add group member", err)
}

func (s *Store) ListUserGroups(ctx context.Context, userID string) ([]*domain.UserGroup, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT g.id, g.friendly_name, g.name, g.created_at
		FROM user_groups g
		JOIN user_group_members m ON m.group_id = g.id
		WHERE m.user_id = $1
		ORDER BY g.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user groups: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.UserGroup, error) {
		var g domain.UserGroup
		err := row.Scan(&g.ID, &g.FriendlyName, &g.Name, &g.CreatedAt)
		return &g, err
	})
}

// --- clients ---

func (s *Store) CreateClient(ctx context.Context, c *domain.OIDCClient) error {
	var issuer, audience, subject *string
	if c.FederatedJWT != nil {
		issuer, audience, subject = &c.FederatedJWT.Issuer, &c.FederatedJWT.Audience, &c.FederatedJWT.Subject
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oidc_clients (id, name, callback_urls, logout_callback_urls, secret_hash,
			federated_issuer, federated_audience, federated_subject, access_codes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.Name, nonNil(c.CallbackURLs), nonNil(c.LogoutCallbackURLs), c.SecretHash,
		issuer, audience, subject, nonNil(c.AccessCodes), c.CreatedAt)
	return writeErr("create client", err)
}

func (s *Store) GetClient(ctx context.Context, id string) (*domain.OIDCClient, error) {
	var (
		c                         domain.OIDCClient
		issuer, audience, subject *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, callback_urls, logout_callback_urls, secret_hash,
			federated_issuer, federated_audience, federated_subject, access_codes, created_at
		FROM oidc_clients WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.CallbackURLs, &c.LogoutCallbackURLs, &c.SecretHash,
		&issuer, &audience, &subject, &c.AccessCodes, &c.CreatedAt)
	if err != nil {
		return nil, readErr("client "+id, err)
	}
	if issuer != nil {
		c.FederatedJWT = &domain.FederatedJWT{Issuer: *issuer, Audience: deref(audience), Subject: deref(subject)}
	}
	return &c, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// --- refresh tokens ---

func (s *Store) CreateRefreshToken(ctx context.Context, t *domain.RefreshToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (token, client_id, user_id, expired, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.Token, t.ClientID, t.UserID, t.Expired, t.ExpiresAt, t.CreatedAt)
	return writeErr("create refresh token", err)
}

func (s *Store) GetRefreshToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := s.pool.QueryRow(ctx, `
		SELECT token, client_id, user_id, expired, expires_at, created_at
		FROM refresh_tokens WHERE token = $1`, token,
	).Scan(&t.Token, &t.ClientID, &t.UserID, &t.Expired, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return nil, readErr("refresh token", err)
	}
	return &t, nil
}

func (s *Store) ExpireRefreshToken(ctx context.Context, token string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens SET expired = true WHERE token = $1 AND NOT expired`, token)
	if err != nil {
		return fmt.Errorf("expire refresh token: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.GetRefreshToken(ctx, token); err != nil {
		return err
	}
	return fmt.Errorf("refresh token: %w", domain.ErrExpired)
}

func (s *Store) ExpireUserRefreshTokens(ctx context.Context, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens SET expired = true WHERE user_id = $1 AND NOT expired`, userID)
	if err != nil {
		return 0, fmt.Errorf("expire user refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- one-time access tokens ---

const oneTimeColumns = `token, user_id, expired, expires_at, created_at`

func scanOneTime(row pgx.Row) (*domain.OneTimeAccessToken, error) {
	var t domain.OneTimeAccessToken
	err := row.Scan(&t.Token, &t.UserID, &t.Expired, &t.ExpiresAt, &t.CreatedAt)
	return &t, err
}

func (s *Store) CreateOneTimeAccessToken(ctx context.Context, t *domain.OneTimeAccessToken) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO one_time_access_tokens (`+oneTimeColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		t.Token, t.UserID, t.Expired, t.ExpiresAt, t.CreatedAt)
	return writeErr("create one-time access token", err)
}

func (s *Store) GetOneTimeAccessToken(ctx context.Context, token string) (*domain.OneTimeAccessToken, error) {
	t, err := scanOneTime(s.pool.QueryRow(ctx,
		`SELECT `+oneTimeColumns+` FROM one_time_access_tokens WHERE token = $1`, token))
	if err != nil {
		return nil, readErr("one-time access token", err)
	}
	return t, nil
}

func (s *Store) ConsumeOneTimeAccessToken(ctx context.Context, token string, now time.Time) (*domain.OneTimeAccessToken, error) {
	t, err := scanOneTime(s.pool.QueryRow(ctx, `
		UPDATE one_time_access_tokens SET expired = true
		WHERE token = $1 AND NOT expired AND expires_at > $2
		RETURNING `+oneTimeColumns, token, now))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("consume one-time access token: %w", err)
	}

	current, err := s.GetOneTimeAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := current.Status(now).Err(); err != nil {
		return nil, fmt.Errorf("one-time access token: %w", err)
	}
	return nil, fmt.Errorf("one-time access token: %w", domain.ErrExpired)
}

// --- API keys ---

const apiKeyColumns = `id, key_hash, name, expires_at, last_used_at, revoked, created_at`

func scanAPIKey(row pgx.Row) (*domain.APIKey, error) {
	var k domain.APIKey
	err := row.Scan(&k.ID, &k.KeyHash, &k.Name, &k.ExpiresAt, &k.LastUsedAt, &k.Revoked, &k.CreatedAt)
	return &k, err
}

func (s *Store) CreateAPIKey(ctx context.Context, k *domain.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (`+apiKeyColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		k.ID, k.KeyHash, k.Name, k.ExpiresAt, k.LastUsedAt, k.Revoked, k.CreatedAt)
	return writeErr("create api key", err)
}

func (s *Store) GetAPIKey(ctx context.Context, id string) (*domain.APIKey, error) {
	k, err := scanAPIKey(s.pool.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, id))
	if err != nil {
		return nil, readErr("api key "+id, err)
	}
	return k, nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	k, err := scanAPIKey(s.pool.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, keyHash))
	if err != nil {
		return nil, readErr("api key", err)
	}
	return k, nil
}

func (s *Store) RevokeAPIKey(ctx context.Context, id string) (*domain.APIKey, error) {
	k, err := scanAPIKey(s.pool.QueryRow(ctx,
		`UPDATE api_keys SET revoked = true WHERE id = $1 RETURNING `+apiKeyColumns, id))
	if err != nil {
		return nil, readErr("api key "+id, err)
	}
	return k, nil
}

func (s *Store) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("api key %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// --- signup tokens ---

const signupColumns = `id, token, expires_at, usage_limit, usage_count, created_at`

func scanSignup(row pgx.Row) (*domain.SignupToken, error) {
	var t domain.SignupToken
	err := row.Scan(&t.ID, &t.Token, &t.ExpiresAt, &t.UsageLimit, &t.UsageCount, &t.CreatedAt)
	return &t, err
}

func (s *Store) CreateSignupToken(ctx context.Context, t *domain.SignupToken) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO signup_tokens (`+signupColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Token, t.ExpiresAt, t.UsageLimit, t.UsageCount, t.CreatedAt)
	return writeErr("create signup token", err)
}

func (s *Store) GetSignupToken(ctx context.Context, token string) (*domain.SignupToken, error) {
	t, err := scanSignup(s.pool.QueryRow(ctx, `SELECT `+signupColumns+` FROM signup_tokens WHERE token = $1`, token))
	if err != nil {
		return nil, readErr("signup token", err)
	}
	return t, nil
}

func (s *Store) ListSignupTokens(ctx context.Context) ([]*domain.SignupToken, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+signupColumns+` FROM signup_tokens ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list signup tokens: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.SignupToken, error) {
		return scanSignup(row)
	})
}

func (s *Store) DeleteSignupToken(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM signup_tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete signup token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("signup token %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) IncrementSignupTokenUsage(ctx context.Context, token string, now time.Time) (*domain.SignupToken, error) {
	t, err := scanSignup(s.pool.QueryRow(ctx, `
		UPDATE signup_tokens SET usage_count = usage_count + 1
		WHERE token = $1 AND usage_count < usage_limit AND expires_at > $2
		RETURNING `+signupColumns, token, now))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("increment signup token usage: %w", err)
	}

	current, err := s.GetSignupToken(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		current = nil
	} else if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("signup token: %w", domain.SignupRejection(current, now))
}

var _ domain.RepositoryProvider = (*Store)(nil)
