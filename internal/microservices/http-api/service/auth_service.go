package service

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// TokenIssuer signs controller tokens; tcp.TCPAuthService implements it.
type TokenIssuer interface {
	IssueToken(userID, username string, ttl time.Duration) (string, error)
}

// AuthService trades operator credentials for a signed token that works both
// on the admin API and as a controller's auth message.
type AuthService interface {
	Login(username, password string) (token string, expiresIn time.Duration, err error)
}

type authService struct {
	username     string
	passwordHash []byte
	dummyHash    []byte // compared for unknown users so both paths cost the same
	issuer       TokenIssuer
	tokenTTL     time.Duration
}

// NewAuthService checks logins against a single operator account whose
// password is stored as a bcrypt hash.
func NewAuthService(username, passwordHash string, issuer TokenIssuer, tokenTTL time.Duration) (AuthService, error) {
	if username == "" {
		return nil, errors.New("operator username is required")
	}
	cost, err := bcrypt.Cost([]byte(passwordHash))
	if err != nil {
		return nil, fmt.Errorf("invalid operator password hash: %w", err)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(username), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password check: %w", err)
	}
	return &authService{
		username:     username,
		passwordHash: []byte(passwordHash),
		dummyHash:    dummy,
		issuer:       issuer,
		tokenTTL:     tokenTTL,
	}, nil
}

func (s *authService) Login(username, password string) (string, time.Duration, error) {
	if username != s.username {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return "", 0, ErrInvalidCredentials
	}
	if err := VerifyPassword(string(s.passwordHash), password); err != nil {
		return "", 0, ErrInvalidCredentials
	}

	token, err := s.issuer.IssueToken(username, username, s.tokenTTL)
	if err != nil {
		return "", 0, err
	}
	return token, s.tokenTTL, nil
}

// HashPassword produces the value for OPERATOR_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func VerifyPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
