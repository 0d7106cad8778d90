package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type stubIssuer struct {
	err   error
	calls int
}

func (s *stubIssuer) IssueToken(userID, username string, ttl time.Duration) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "token-for-" + username, nil
}

func newTestAuthService(t *testing.T, issuer TokenIssuer) AuthService {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)
	svc, err := NewAuthService("operator", string(hash), issuer, time.Hour)
	require.NoError(t, err)
	return svc
}

func TestLogin_Success(t *testing.T) {
	issuer := &stubIssuer{}
	svc := newTestAuthService(t, issuer)

	token, ttl, err := svc.Login("operator", "hunter22")

	require.NoError(t, err)
	assert.Equal(t, "token-for-operator", token)
	assert.Equal(t, time.Hour, ttl)
	assert.Equal(t, 1, issuer.calls)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "operator", "hunter2"},
		{"unknown user", "someone", "hunter22"},
		{"empty password", "operator", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer := &stubIssuer{}
			svc := newTestAuthService(t, issuer)

			token, _, err := svc.Login(tt.username, tt.password)

			assert.ErrorIs(t, err, ErrInvalidCredentials)
			assert.Empty(t, token)
			assert.Zero(t, issuer.calls)
		})
	}
}

func TestLogin_IssuerError(t *testing.T) {
	svc := newTestAuthService(t, &stubIssuer{err: errors.New("sign failed")})

	_, _, err := svc.Login("operator", "hunter22")

	assert.EqualError(t, err, "sign failed")
}

func TestNewAuthService_RejectsBadConfig(t *testing.T) {
	_, err := NewAuthService("operator", "not-a-hash", &stubIssuer{}, time.Hour)
	assert.Error(t, err)

	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	_, err = NewAuthService("", hash, &stubIssuer{}, time.Hour)
	assert.Error(t, err)
}

func TestHashPassword_Verifies(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.NoError(t, VerifyPassword(hash, "correct horse"))
	assert.Error(t, VerifyPassword(hash, "battery staple"))
}
