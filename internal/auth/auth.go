// Package auth implements minimal session authentication for notifyhub's
// demo HTTP controllers (spec §2.2 ambient stack): Argon2id password
// hashing and opaque bearer-token sessions with a configurable TTL. This is
// deliberately thin - notifyhub is a notification fan-out service, not an
// identity provider; the business entities it dispatches on (signups,
// logins, etc.) already carry their own user IDs.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/alexedwards/argon2id"
)

// AuthError is a structured authentication failure carrying the HTTP status
// and machine-readable code the middleware writes back to the client.
type AuthError struct {
	Code    string
	Message string
	Status  int
}

func (e *AuthError) Error() string { return e.Message }

var (
	errMissingSession = &AuthError{Code: "missing_token", Message: "Authorization header with Bearer token is required", Status: 401}
	errInvalidSession = &AuthError{Code: "invalid_session", Message: "session is invalid or has expired", Status: 401}
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{2,32}$`)

// validateUsername enforces the username shape: 2-32 ASCII word characters,
// dots, underscores, or hyphens.
func validateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return &AuthError{Code: "invalid_username", Message: "username must be 2-32 characters of letters, digits, '.', '_', or '-'", Status: 400}
	}
	return nil
}

// validatePassword enforces a minimum length of 8 and a maximum of 128
// runes, matching the teacher's username/password validation style.
func validatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < 8 {
		return &AuthError{Code: "invalid_password", Message: "password must be at least 8 characters", Status: 400}
	}
	if n > 128 {
		return &AuthError{Code: "invalid_password", Message: "password must be at most 128 characters", Status: 400}
	}
	return nil
}

// session is one active login, keyed by its opaque bearer token.
type session struct {
	userID    string
	expiresAt time.Time
}

// Service provides password hashing/verification and session issuance for
// the demo controllers. Sessions are held in memory; notifyhub is not a
// multi-instance identity provider, so no cross-instance session store is
// needed (unlike the socket service's cross-instance concerns).
type Service struct {
	mu              sync.RWMutex
	sessions        map[string]session
	sessionDuration time.Duration
}

// New builds a Service with the given session TTL.
func New(sessionDuration time.Duration) *Service {
	return &Service{
		sessions:        make(map[string]session),
		sessionDuration: sessionDuration,
	}
}

// HashPassword hashes a plaintext password with Argon2id.
func (s *Service) HashPassword(password string) (string, error) {
	if err := validatePassword(password); err != nil {
		return "", err
	}
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return hash, nil
}

// VerifyPassword checks a plaintext password against its Argon2id hash.
func (s *Service) VerifyPassword(hash, password string) (bool, error) {
	match, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return false, fmt.Errorf("comparing password hash: %w", err)
	}
	return match, nil
}

// CreateSession issues a new opaque bearer token for userID, valid for the
// Service's configured session duration.
func (s *Service) CreateSession(_ context.Context, userID string) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}

	s.mu.Lock()
	s.sessions[token] = session{userID: userID, expiresAt: time.Now().Add(s.sessionDuration)}
	s.mu.Unlock()

	return token, nil
}

// ValidateSession resolves a bearer token to its owning user ID, rejecting
// missing, unknown, or expired tokens.
func (s *Service) ValidateSession(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", errMissingSession
	}

	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok || time.Now().After(sess.expiresAt) {
		return "", errInvalidSession
	}
	return sess.userID, nil
}

// RevokeSession invalidates a bearer token immediately (logout).
func (s *Service) RevokeSession(_ context.Context, token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
