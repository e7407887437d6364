package auth

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	logger := zerolog.Nop()
	svc := NewService("desk", hash, "admin", &logger)

	op, err := svc.Authenticate("desk", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, &Operator{Username: "desk", Role: "admin"}, op)

	tests := []struct {
		name, user, pass string
	}{
		{"wrong password", "desk", "nope"},
		{"wrong user", "other", "s3cret"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Authenticate(tt.user, tt.pass)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestOperatorContext(t *testing.T) {
	_, ok := OperatorFrom(context.Background())
	assert.False(t, ok)

	ctx := WithOperator(context.Background(), &Operator{Username: "desk"})
	op, ok := OperatorFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "desk", op.Username)
}
