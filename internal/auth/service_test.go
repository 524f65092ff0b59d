package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sabha-admin/sabha/internal/auth"
	"github.com/sabha-admin/sabha/internal/shared"
)

type sessionRepo struct {
	stubRepo
	created []string
	deleted []string
	ua      string
	err     error
}

func (s *sessionRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.stubRepo.FindByEmail(ctx, email)
}

func (s *sessionRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.created = append(s.created, id)
	s.ua = ua
	return nil
}

func (s *sessionRepo) DeleteSession(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestAuthenticateOutcomes(t *testing.T) {
	user := &auth.User{ID: 42, Email: "admin@sabha.local", PasswordHash: hashed(t, "s3cret!pass"), IsActive: true}
	svc := auth.NewService(&sessionRepo{stubRepo: stubRepo{user: user}})

	id, err := svc.Authenticate(context.Background(), "  Admin@Sabha.local ", "s3cret!pass")
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{Handle: "42", Email: "admin@sabha.local"}, id)

	_, err = svc.Authenticate(context.Background(), "admin@sabha.local", "wrong")
	assert.ErrorIs(t, err, auth.ErrBadPassword)

	_, err = svc.Authenticate(context.Background(), "ghost@sabha.local", "wrong")
	assert.ErrorIs(t, err, auth.ErrUnknownUser)
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateInactiveOnlyAfterPasswordMatches(t *testing.T) {
	user := &auth.User{ID: 7, Email: "off@sabha.local", PasswordHash: hashed(t, "right"), IsActive: false}
	svc := auth.NewService(&sessionRepo{stubRepo: stubRepo{user: user}})

	_, err := svc.Authenticate(context.Background(), "off@sabha.local", "guess")
	assert.ErrorIs(t, err, auth.ErrBadPassword)
	_, err = svc.Authenticate(context.Background(), "off@sabha.local", "right")
	assert.ErrorIs(t, err, auth.ErrInactiveUser)
	assert.Equal(t, "inactive", auth.FailureReason(err))
}

func TestAuthenticateStoreErrorIsNotCredentialFailure(t *testing.T) {
	svc := auth.NewService(&sessionRepo{err: errors.New("conn refused")})
	_, err := svc.Authenticate(context.Background(), "a@b.c", "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrInvalidCredentials)
	assert.Equal(t, "provider_error", auth.FailureReason(err))
}

func TestSessionRows(t *testing.T) {
	repo := &sessionRepo{}
	svc := auth.NewService(repo)

	require.NoError(t, svc.RegisterSession(context.Background(), "sid", "42", time.Now().Add(time.Hour), "10.0.0.1", strings.Repeat("x", 400)))
	assert.Equal(t, []string{"sid"}, repo.created)
	assert.Len(t, repo.ua, 255)
	assert.Error(t, svc.RegisterSession(context.Background(), "sid", "not-a-number", time.Now(), "", ""))

	require.NoError(t, svc.RemoveSession(context.Background(), ""))
	require.NoError(t, svc.RemoveSession(context.Background(), "sid"))
	assert.Equal(t, []string{"sid"}, repo.deleted)
}
