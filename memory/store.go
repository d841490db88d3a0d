// Package memory is an in-process implementation of every repository. It is
// the default backend for development and the reference for tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.pilab.hu/idcore/domain"
)

// Store keeps all entities in maps guarded by one mutex, which makes every
// compare-and-set trivially atomic.
type Store struct {
	mu sync.RWMutex

	users         map[string]*domain.User
	groups        map[string]*domain.UserGroup
	members       map[string]map[string]struct{} // group id -> user ids
	clients       map[string]*domain.OIDCClient
	refreshTokens map[string]*domain.RefreshToken
	oneTimeTokens map[string]*domain.OneTimeAccessToken
	apiKeys       map[string]*domain.APIKey
	signupTokens  map[string]*domain.SignupToken // by token value
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:         make(map[string]*domain.User),
		groups:        make(map[string]*domain.UserGroup),
		members:       make(map[string]map[string]struct{}),
		clients:       make(map[string]*domain.OIDCClient),
		refreshTokens: make(map[string]*domain.RefreshToken),
		oneTimeTokens: make(map[string]*domain.OneTimeAccessToken),
		apiKeys:       make(map[string]*domain.APIKey),
		signupTokens:  make(map[string]*domain.SignupToken),
	}
}

func (s *Store) UserRepository() domain.UserRepository                 { return s }
func (s *Store) GroupRepository() domain.GroupRepository               { return s }
func (s *Store) ClientRepository() domain.ClientRepository             { return s }
func (s *Store) RefreshTokenRepository() domain.RefreshTokenRepository { return s }
func (s *Store) APIKeyRepository() domain.APIKeyRepository             { return s }
func (s *Store) SignupTokenRepository() domain.SignupTokenRepository   { return s }
func (s *Store) Ping(context.Context) error                            { return nil }
func (s *Store) Close(context.Context) error                           { return nil }
func (s *Store) OneTimeAccessTokenRepository() domain.OneTimeAccessTokenRepository {
	return s
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("user %s: %w", user.ID, domain.ErrConflict)
	}
	for _, u := range s.users {
		if u.Email == user.Email || u.Username == user.Username {
			return fmt.Errorf("user email or username: %w", domain.ErrConflict)
		}
	}
	c := *user
	s.users[user.ID] = &c
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	c := *u
	return &c, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", username, domain.ErrNotFound)
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	delete(s.users, id)
	for _, m := range s.members {
		delete(m, id)
	}
	return nil
}

// --- groups ---

func (s *Store) CreateGroup(_ context.Context, group *domain.UserGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[group.ID]; ok {
		return fmt.Errorf("group %s: %w", group.ID, domain.ErrConflict)
	}
	for _, g := range s.groups {
		if g.Name == group.Name {
			return fmt.Errorf("group name %s: %w", group.Name, domain.ErrConflict)
		}
	}
	c := *group
	s.groups[group.ID] = &c
	s.members[group.ID] = make(map[string]struct{})
	return nil
}

func (s *Store) GetGroupByName(_ context.Context, name string) (*domain.UserGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.groups {
		if g.Name == name {
			c := *g
			return &c, nil
		}
	}
	return nil, fmt.Errorf("group %s: %w", name, domain.ErrNotFound)
}

func (s *Store) AddGroupMember(_ context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[groupID]
	if !ok {
		return fmt.Errorf("group %s: %w", groupID, domain.ErrNotFound)
	}
	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	m[userID] = struct{}{}
	return nil
}

func (s *Store) ListUserGroups(_ context.Context, userID string) ([]*domain.UserGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.UserGroup
	for id, m := range s.members {
		if _, ok := m[userID]; ok {
			c := *s.groups[id]
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- clients ---

func (s *Store) CreateClient(_ context.Context, client *domain.OIDCClient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client.ID]; ok {
		return fmt.Errorf("client %s: %w", client.ID, domain.ErrConflict)
	}
	s.clients[client.ID] = cloneClient(client)
	return nil
}

func (s *Store) GetClient(_ context.Context, id string) (*domain.OIDCClient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[id]
	if !ok {
		return nil, fmt.Errorf("client %s: %w", id, domain.ErrNotFound)
	}
	return cloneClient(c), nil
}

func cloneClient(c *domain.OIDCClient) *domain.OIDCClient {
	out := *c
	out.CallbackURLs = append([]string(nil), c.CallbackURLs...)
	out.LogoutCallbackURLs = append([]string(nil), c.LogoutCallbackURLs...)
	out.AccessCodes = append([]string(nil), c.AccessCodes...)
	if c.FederatedJWT != nil {
		f := *c.FederatedJWT
		out.FederatedJWT = &f
	}
	return &out
}

// --- refresh tokens ---

func (s *Store) CreateRefreshToken(_ context.Context, token *domain.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refreshTokens[token.Token]; ok {
		return fmt.Errorf("refresh token: %w", domain.ErrConflict)
	}
	c := *token
	s.refreshTokens[token.Token] = &c
	return nil
}

func (s *Store) GetRefreshToken(_ context.Context, token string) (*domain.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.refreshTokens[token]
	if !ok {
		return nil, fmt.Errorf("refresh token: %w", domain.ErrNotFound)
	}
	c := *t
	return &c, nil
}

func (s *Store) ExpireRefreshToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.refreshTokens[token]
	if !ok {
		return fmt.Errorf("refresh token: %w", domain.ErrNotFound)
	}
	if t.Expired {
		return fmt.Errorf("refresh token: %w", domain.ErrExpired)
	}
	t.Expired = true
	return nil
}

func (s *Store) ExpireUserRefreshTokens(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, t := range s.refreshTokens {
		if t.UserID == userID && !t.Expired {
			t.Expired = true
			n++
		}
	}
	return n, nil
}

// --- one-time access tokens ---

func (s *Store) CreateOneTimeAccessToken(_ context.Context, token *domain.OneTimeAccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.oneTimeTokens[token.Token]; ok {
		return fmt.Errorf("one-time access token: %w", domain.ErrConflict)
	}
	c := *token
	s.oneTimeTokens[token.Token] = &c
	return nil
}

func (s *Store) GetOneTimeAccessToken(_ context.Context, token string) (*domain.OneTimeAccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.oneTimeTokens[token]
	if !ok {
		return nil, fmt.Errorf("one-time access token: %w", domain.ErrNotFound)
	}
	c := *t
	return &c, nil
}

func (s *Store) ConsumeOneTimeAccessToken(_ context.Context, token string, now time.Time) (*domain.OneTimeAccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.oneTimeTokens[token]
	if !ok {
		return nil, fmt.Errorf("one-time access token: %w", domain.ErrNotFound)
	}
	if err := t.Status(now).Err(); err != nil {
		return nil, fmt.Errorf("one-time access token: %w", err)
	}
	t.Expired = true
	c := *t
	return &c, nil
}

// --- API keys ---

func (s *Store) CreateAPIKey(_ context.Context, key *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apiKeys[key.ID]; ok {
		return fmt.Errorf("api key %s: %w", key.ID, domain.ErrConflict)
	}
	for _, k := range s.apiKeys {
		if k.KeyHash == key.KeyHash {
			return fmt.Errorf("api key hash: %w", domain.ErrConflict)
		}
	}
	c := *key
	s.apiKeys[key.ID] = &c
	return nil
}

func (s *Store) GetAPIKey(_ context.Context, id string) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.apiKeys[id]
	if !ok {
		return nil, fmt.Errorf("api key %s: %w", id, domain.ErrNotFound)
	}
	c := *k
	return &c, nil
}

func (s *Store) GetAPIKeyByHash(_ context.Context, keyHash string) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, k := range s.apiKeys {
		if k.KeyHash == keyHash {
			c := *k
			return &c, nil
		}
	}
	return nil, fmt.Errorf("api key: %w", domain.ErrNotFound)
}

func (s *Store) RevokeAPIKey(_ context.Context, id string) (*domain.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.apiKeys[id]
	if !ok {
		return nil, fmt.Errorf("api key %s: %w", id, domain.ErrNotFound)
	}
	k.Revoked = true
	c := *k
	return &c, nil
}

func (s *Store) TouchAPIKey(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.apiKeys[id]
	if !ok {
		return fmt.Errorf("api key %s: %w", id, domain.ErrNotFound)
	}
	k.LastUsedAt = &at
	return nil
}

// --- signup tokens ---

func (s *Store) CreateSignupToken(_ context.Context, token *domain.SignupToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.signupTokens[token.Token]; ok {
		return fmt.Errorf("signup token: %w", domain.ErrConflict)
	}
	for _, t := range s.signupTokens {
		if t.ID == token.ID {
			return fmt.Errorf("signup token %s: %w", token.ID, domain.ErrConflict)
		}
	}
	c := *token
	s.signupTokens[token.Token] = &c
	return nil
}

func (s *Store) GetSignupToken(_ context.Context, token string) (*domain.SignupToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.signupTokens[token]
	if !ok {
		return nil, fmt.Errorf("signup token: %w", domain.ErrNotFound)
	}
	c := *t
	return &c, nil
}

func (s *Store) ListSignupTokens(_ context.Context) ([]*domain.SignupToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.SignupToken, 0, len(s.signupTokens))
	for _, t := range s.signupTokens {
		c := *t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteSignupToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for value, t := range s.signupTokens {
		if t.ID == id {
			delete(s.signupTokens, value)
			return nil
		}
	}
	return fmt.Errorf("signup token %s: %w", id, domain.ErrNotFound)
}

func (s *Store) IncrementSignupTokenUsage(_ context.Context, token string, now time.Time) (*domain.SignupToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.signupTokens[token]
	if !ok {
		return nil, fmt.Errorf("signup token: %w", domain.ErrNotFound)
	}
	if err := t.Status(now).Err(); err != nil {
		return nil, fmt.Errorf("signup token: %w", err)
	}
	t.UsageCount++
	c := *t
	return &c, nil
}

var _ domain.RepositoryProvider = (*Store)(nil)
