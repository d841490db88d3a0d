package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/internal/audit"
	"go.pilab.hu/idcore/internal/validation"
	"go.pilab.hu/idcore/log"
	"go.pilab.hu/idcore/tracing"
)

// SignupRequest is the profile of the user being registered.
type SignupRequest struct {
	Token     string `json:"token"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email"`
	Username  string `json:"username"`
}

// SignupTokenInfo describes a signup token without exposing more than its
// state.
type SignupTokenInfo struct {
	Token      string             `json:"token"`
	State      domain.SignupState `json:"state"`
	Status     domain.TokenStatus `json:"status"`
	UsageLimit int                `json:"usageLimit"`
	UsageCount int                `json:"usageCount"`
	Remaining  int                `json:"remaining"`
	ExpiresAt  time.Time          `json:"expiresAt"`
}

// SignupService gates registration behind signup tokens.
type SignupService struct {
	store domain.RepositoryProvider
	opts  Options
}

func NewSignupService(store domain.RepositoryProvider, opts Options) *SignupService {
	return &SignupService{store: store, opts: opts.withDefaults()}
}

// Redeem takes one use of the token. It fails with ErrExpired, ErrExhausted
// or ErrNotFound and never pushes the count past the limit.
func (s *SignupService) Redeem(ctx context.Context, token string) (*domain.SignupToken, error) {
	ctx, span := tracing.Start(ctx, "SignupService.Redeem")
	defer span.End()

	t, err := s.store.SignupTokenRepository().IncrementSignupTokenUsage(ctx, token, s.opts.Now())

	target := ""
	if t != nil {
		target = t.ID
	}
	s.opts.Audit.Record(audit.ActionRedeem, string(domain.KindSignupToken), "", target, err)

	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return t, nil
}

// Signup redeems the token and creates the user. Username and email are
// checked before the token is touched; a conflict that only shows up on
// insert still consumes the use, since usage counts never go down.
func (s *SignupService) Signup(ctx context.Context, req SignupRequest) (_ *domain.User, err error) {
	ctx, span := tracing.Start(ctx, "SignupService.Signup")
	defer span.End()

	defer func() { s.opts.Metrics.Signup(signupOutcome(err)) }()

	user := &domain.User{
		ID:        uuid.NewString(),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Username:  req.Username,
	}
	if err := validation.Struct(user); err != nil {
		return nil, err
	}
	if err := s.checkAvailable(ctx, user); err != nil {
		return nil, err
	}

	token, err := s.Redeem(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	user.CreatedAt = s.opts.Now()
	if err := s.store.UserRepository().CreateUser(ctx, user); err != nil {
		s.opts.Logger.Warn(ctx, "Signup token use consumed by a failed signup", log.Fields{
			"signupTokenID": token.ID,
			"error":         err.Error(),
		})
		s.opts.Audit.Record(audit.ActionSignup, string(domain.KindSignupToken), "", token.ID, err)
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.opts.Audit.Record(audit.ActionSignup, string(domain.KindSignupToken), user.ID, token.ID, nil)
	s.opts.Logger.Info(ctx, "User signed up", log.Fields{"userID": user.ID, "signupTokenID": token.ID})

	return user, nil
}

// checkAvailable fails with ErrConflict when the username or email is taken.
func (s *SignupService) checkAvailable(ctx context.Context, user *domain.User) error {
	users := s.store.UserRepository()

	_, err := users.GetUserByUsername(ctx, user.Username)
	if err == nil {
		return fmt.Errorf("username %s: %w", user.Username, domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	_, err = users.GetUserByEmail(ctx, user.Email)
	if err == nil {
		return fmt.Errorf("email %s: %w", user.Email, domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

// Info returns the current state of a signup token.
func (s *SignupService) Info(ctx context.Context, token string) (*SignupTokenInfo, error) {
	t, err := s.store.SignupTokenRepository().GetSignupToken(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.opts.Now()
	return &SignupTokenInfo{
		Token:      t.Token,
		State:      t.State(now),
		Status:     t.Status(now),
		UsageLimit: t.UsageLimit,
		UsageCount: t.UsageCount,
		Remaining:  t.Remaining(),
		ExpiresAt:  t.ExpiresAt,
	}, nil
}

func signupOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	}
	if status, ok := domain.StatusFromErr(err); ok {
		return strings.ToLower(string(status))
	}
	return "error"
}
