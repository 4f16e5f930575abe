package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"devconnect/chat-service/internal/models"
	"devconnect/chat-service/internal/repository"
)

// Rejection reasons carried by Error. Any of them terminates the handshake;
// none of them is retried server-side.
const (
	ReasonMissing        = "missing"
	ReasonMalformed      = "malformed"
	ReasonExpired        = "expired"
	ReasonUnknownSubject = "unknown-subject"
	ReasonSuperseded     = "superseded"
)

// Error is an authentication failure. The reason is surfaced to the rejected
// client only, never to other parties.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("authentication failed: %s credential", e.Reason)
}

type Claims struct {
	jwt.RegisteredClaims
}

// Verifier resolves an opaque bearer token to a stored principal. It is a pure
// read: no session state is created or touched.
type Verifier struct {
	secret []byte
	users  repository.UserRepository
}

func NewVerifier(secret string, users repository.UserRepository) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		users:  users,
	}
}

// Verify validates the token signature and expiry, resolves the subject to a
// user, and rejects tokens issued before the user's last password change.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*models.User, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, &Error{Reason: ReasonMissing}
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(rawToken, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &Error{Reason: ReasonExpired}
		}
		return nil, &Error{Reason: ReasonMalformed}
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, &Error{Reason: ReasonMalformed}
	}

	user, err := v.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, &Error{Reason: ReasonUnknownSubject}
		}
		return nil, err
	}

	// A password change invalidates every token issued before it.
	if user.PasswordChangedAt != nil && claims.IssuedAt != nil &&
		user.PasswordChangedAt.After(claims.IssuedAt.Time) {
		return nil, &Error{Reason: ReasonSuperseded}
	}

	return user, nil
}
