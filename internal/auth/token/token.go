package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	apierr "github.com/akilapilapitiya/TrueGate-sub001/internal/auth"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/models"
)

// secretBytes is the entropy of reset and verification secrets.
const secretBytes = 32

// Identity is the result of verifying a bearer token.
type Identity struct {
	Email string
	Role  models.Role
}

// Service issues and verifies signed bearer tokens and mints the single-use
// secrets used by the password-reset and email-verification flows.
type Service struct {
	secret      []byte
	tokenExpiry time.Duration
}

func NewService(secret []byte, tokenExpiry time.Duration) *Service {
	return &Service{
		secret:      secret,
		tokenExpiry: tokenExpiry,
	}
}

// Issue signs a stateless bearer token carrying the subject email and role.
func (s *Service) Issue(email string, role models.Role) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.tokenExpiry)

	claims := jwt.MapClaims{
		"sub":  email,
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
		"jti":  uuid.NewString(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// Verify parses and validates a bearer token. All failure modes collapse into
// ErrInvalidToken so response bodies cannot be used as an expiry oracle.
func (s *Service) Verify(tokenString string) (Identity, error) {
	tok, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !tok.Valid {
		return Identity{}, apierr.ErrInvalidToken
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, apierr.ErrInvalidToken
	}

	email, ok := claims["sub"].(string)
	if !ok || email == "" {
		return Identity{}, apierr.ErrInvalidToken
	}

	roleStr, ok := claims["role"].(string)
	if !ok {
		return Identity{}, apierr.ErrInvalidToken
	}

	role := models.Role(roleStr)
	if !role.Valid() {
		return Identity{}, apierr.ErrInvalidToken
	}

	return Identity{Email: email, Role: role}, nil
}

// IssueSecret mints a high-entropy single-use secret with an absolute expiry.
func (s *Service) IssueSecret(ttl time.Duration) (string, time.Time, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, err
	}

	return hex.EncodeToString(buf), time.Now().Add(ttl), nil
}

// CheckSecret validates a presented secret against the stored one. The caller
// must clear the stored secret atomically with the state change it authorizes;
// this check only classifies the failure.
func (s *Service) CheckSecret(presented, stored string, expiresAt *time.Time) error {
	if stored == "" || expiresAt == nil {
		return apierr.ErrSecretMismatch
	}
	if time.Now().After(*expiresAt) {
		return apierr.ErrSecretExpired
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) != 1 {
		return apierr.ErrSecretMismatch
	}
	return nil
}
