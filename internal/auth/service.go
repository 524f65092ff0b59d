package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sabha-admin/sabha/internal/shared"
)

// Service is the default IdentityProvider. It checks bcrypt hashes stored in
// users and records session rows for logout and revocation.
type Service struct {
	repo Repository

	dummyOnce sync.Once
	dummyHash []byte
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate verifies email and password. An unknown email still costs one
// bcrypt comparison so response time does not reveal which accounts exist.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.repo.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrInvalidCredentials):
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		return Identity{}, ErrUnknownUser
	case err != nil:
		return Identity{}, fmt.Errorf("auth: find user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return Identity{}, ErrBadPassword
	}
	if !user.IsActive {
		return Identity{}, ErrInactiveUser
	}
	return Identity{Handle: strconv.FormatInt(user.ID, 10), Email: user.Email}, nil
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("sabha-timing-equaliser"), bcrypt.DefaultCost)
	})
	return s.dummyHash
}

// RegisterSession records the session row for the user behind handle.
func (s *Service) RegisterSession(ctx context.Context, id, handle string, expiresAt time.Time, ip, ua string) error {
	userID, err := strconv.ParseInt(handle, 10, 64)
	if err != nil {
		return fmt.Errorf("auth: handle %q is not a user id: %w", handle, err)
	}
	return s.repo.CreateSession(ctx, id, userID, expiresAt.UTC(), ip, truncate(ua, 255))
}

// RemoveSession deletes the session row. Unknown IDs are not an error.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.repo.DeleteSession(ctx, id)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ IdentityProvider = (*Service)(nil)
