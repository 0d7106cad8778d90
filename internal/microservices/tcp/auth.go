package tcp

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	MsgTypeAuth        = "auth"
	MsgTypeAuthSuccess = "auth_success"
	MsgTypeAuthFailed  = "auth_failed"
)

// TCPAuthService validates the HMAC-signed tokens controllers present in
// their first message when the server runs with a shared secret.
type TCPAuthService struct {
	jwtSecret string
}

func NewTCPAuthService(jwtSecret string) *TCPAuthService {
	return &TCPAuthService{jwtSecret: jwtSecret}
}

func (a *TCPAuthService) ValidateToken(tokenString string) (string, string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(a.jwtSecret), nil
	})

	if err != nil || !token.Valid {
		return "", "", fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return "", "", errors.New("user_id claim is not a string")
	}

	username, ok := claims["username"].(string)
	if !ok {
		return "", "", errors.New("username claim is not a string")
	}

	return userID, username, nil
}

// IssueToken signs a controller token, used by operators handing out access.
func (a *TCPAuthService) IssueToken(userID, username string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  userID,
		"username": username,
		"iat":      time.Now().Unix(),
	}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
