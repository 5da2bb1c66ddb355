package service

import (
	"testing"
	"time"

	"finguard-ledger/internal/core/ports"
	"finguard-ledger/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-jwt-secret-key-for-unit-tests"

func TestJWTTokenService_GenerateAndValidate(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, 24*time.Hour, "test-issuer", clock.Real{})

	tokenStr, expiresAt, err := svc.Generate("alice", ports.RoleAdmin)
	require.NoError(t, err)
	assert.NotEmpty(t, tokenStr)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.Validate(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, ports.RoleAdmin, claims.Role)
}

func TestJWTTokenService_DefaultsRoleToUser(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, time.Hour, "test-issuer", clock.Real{})

	tokenStr, _, err := svc.Generate("bob", "")
	require.NoError(t, err)

	claims, err := svc.Validate(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, ports.RoleUser, claims.Role)
}

func TestJWTTokenService_ExpiredToken(t *testing.T) {
	clk := clock.NewFake(testNow)
	svc := NewJWTTokenService(testJWTSecret, time.Hour, "test-issuer", clk)

	tokenStr, _, err := svc.Generate("alice", ports.RoleUser)
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	_, err = svc.Validate(tokenStr)
	assert.Error(t, err, "expired token should fail validation")
}

func TestJWTTokenService_Rejects(t *testing.T) {
	issuer := NewJWTTokenService("secret-1", 24*time.Hour, "issuer", clock.Real{})
	token, _, err := issuer.Generate("alice", ports.RoleUser)
	require.NoError(t, err)

	tests := []struct {
		name  string
		svc   *JWTTokenService
		token string
	}{
		{"different secret", NewJWTTokenService("secret-2", 24*time.Hour, "issuer", clock.Real{}), token},
		{"different issuer", NewJWTTokenService("secret-1", 24*time.Hour, "other", clock.Real{}), token},
		{"malformed", issuer, "not.a.valid.jwt"},
		{"empty", issuer, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.svc.Validate(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestJWTTokenService_RequiresSubject(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, time.Hour, "issuer", clock.Real{})
	_, _, err := svc.Generate("", ports.RoleUser)
	assert.Error(t, err)
}
