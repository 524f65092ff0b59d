package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sabha-admin/sabha/internal/shared"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is what the provider hands to the session layer. Handle is opaque
// to the authorization core.
type Identity struct {
	Handle string
	Email  string
}

// IdentityProvider verifies credentials.
type IdentityProvider interface {
	Authenticate(ctx context.Context, email, password string) (Identity, error)
}

// Failure causes. All of them match shared.ErrInvalidCredentials so callers
// cannot tell them apart by accident; only the audit trail records which one.
var (
	ErrUnknownUser  = fmt.Errorf("%w: unknown user", shared.ErrInvalidCredentials)
	ErrInactiveUser = fmt.Errorf("%w: inactive user", shared.ErrInvalidCredentials)
	ErrBadPassword  = fmt.Errorf("%w: password mismatch", shared.ErrInvalidCredentials)
)

// FailureReason classifies a login error for the audit trail.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownUser):
		return "unknown_user"
	case errors.Is(err, ErrInactiveUser):
		return "inactive"
	case errors.Is(err, ErrBadPassword):
		return "bad_password"
	case errors.Is(err, shared.ErrInvalidCredentials):
		return "invalid_credentials"
	default:
		return "provider_error"
	}
}
