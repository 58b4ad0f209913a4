package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/restaurant-pos/internal/apperr"
	"github.com/vasiliy-maslov/restaurant-pos/internal/catalog"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = apperr.Unauthorized("invalid email or password")

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Principal Principal `json:"principal"`
}

// Service logs staff in and turns access tokens back into principals.
type Service interface {
	Login(ctx context.Context, email, password string) (*Session, error)
	Authenticate(ctx context.Context, token string) (Principal, error)
}

type service struct {
	users  catalog.UserReader
	tokens *Tokens
}

func NewService(users catalog.UserReader, tokens *Tokens) Service {
	return &service{users: users, tokens: tokens}
}

func (s *service) Login(ctx context.Context, email, password string) (*Session, error) {
	if email == "" || password == "" {
		return nil, apperr.Field("credentials", "email and password are required")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			// Same answer as a wrong password.
			return nil, ErrInvalidCredentials
		}
		log.Error().Err(err).Msg("auth: failed to load user for login")
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		log.Warn().Stringer("user_id", user.ID).Msg("auth: password mismatch")
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, user.Name)
	if err != nil {
		return nil, err
	}

	log.Info().Stringer("user_id", user.ID).Msg("auth: user logged in")
	return &Session{
		Token:     token,
		ExpiresAt: expiresAt,
		Principal: NewPrincipal(user.ID, user.Name, user.Roles),
	}, nil
}

// Authenticate verifies token and resolves its subject to the current user
// record, so role changes and deletions take effect without waiting for expiry.
func (s *service) Authenticate(ctx context.Context, token string) (Principal, error) {
	subject, err := s.tokens.Verify(token)
	if err != nil {
		return Principal{}, err
	}

	user, err := s.users.GetUser(ctx, subject)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Principal{}, apperr.Unauthorized("user no longer exists")
		}
		log.Error().Err(err).Stringer("user_id", subject).Msg("auth: failed to resolve token subject")
		return Principal{}, fmt.Errorf("failed to resolve user: %w", err)
	}

	return NewPrincipal(user.ID, user.Name, user.Roles), nil
}
