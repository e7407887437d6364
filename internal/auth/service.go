// Package auth checks operator credentials.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// Operator is an authenticated desk user.
type Operator struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Service checks credentials against the single configured operator account.
type Service struct {
	username     string
	passwordHash []byte
	role         string
	logger       *zerolog.Logger
}

func NewService(username, passwordHash, role string, logger *zerolog.Logger) *Service {
	l := logger.With().Str("component", "auth").Logger()
	return &Service{
		username:     username,
		passwordHash: []byte(passwordHash),
		role:         role,
		logger:       &l,
	}
}

// Authenticate returns the operator for a valid username and password.
func (s *Service) Authenticate(username, password string) (*Operator, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		s.logger.Warn().Str("username", username).Msg("rejected login")
		return nil, ErrInvalidCredentials
	}
	return &Operator{Username: s.username, Role: s.role}, nil
}

type ctxKey struct{}

func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, ctxKey{}, op)
}

// OperatorFrom returns the operator stored by WithOperator, if any.
func OperatorFrom(ctx context.Context) (*Operator, bool) {
	op, ok := ctx.Value(ctxKey{}).(*Operator)
	return op, ok
}

// HashPassword is used to produce the configured password hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
