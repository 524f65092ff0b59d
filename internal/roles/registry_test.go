package roles

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	mu    sync.Mutex
	roles []Role
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func (s *stubSource) ListActiveRoles(ctx context.Context) ([]Role, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]Role, 0, len(s.roles))
	for _, r := range s.roles {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubSource) set(roles []Role, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles = roles
	s.err = err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func seedRoles() []Role {
	return []Role{
		{Name: "viewer", DisplayName: "Viewer", IsActive: true},
		{Name: "admin", DisplayName: "Administrator", IsSystem: true, IsActive: true},
		{Name: "archived", DisplayName: "Archived", IsActive: false},
	}
}

func TestLoadActiveRolesOrderedAndActiveOnly(t *testing.T) {
	src := &stubSource{roles: seedRoles()}
	reg := NewRegistry(src, time.Second, nil)

	roles, err := reg.LoadActiveRoles(context.Background())
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "admin", roles[0].Name)
	assert.Equal(t, "viewer", roles[1].Name)
}

func TestLoadActiveRolesStoreUnavailableFailsClosed(t *testing.T) {
	src := &stubSource{err: errors.New("connection refused")}
	reg := NewRegistry(src, time.Second, nil)

	roles, err := reg.LoadActiveRoles(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotNil(t, roles)
	assert.Empty(t, roles)

	active, err := reg.IsActive(context.Background(), "viewer")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.False(t, active)
}

func TestDisplayNameFor(t *testing.T) {
	src := &stubSource{roles: seedRoles()}
	reg := NewRegistry(src, time.Second, nil)

	assert.Equal(t, "viewer", reg.DisplayNameFor("viewer"), "no snapshot yet echoes the key")

	_, err := reg.LoadActiveRoles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Administrator", reg.DisplayNameFor("admin"))
	assert.Equal(t, "archived", reg.DisplayNameFor("archived"))
	assert.Equal(t, "ghost", reg.DisplayNameFor("ghost"))
}

func TestRegistryCachesWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	src := &stubSource{roles: seedRoles()}
	reg := NewRegistry(src, 5*time.Second, nil, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		_, err := reg.RoleNames(context.Background())
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestDeactivatedRoleStopsWithinStalenessBound(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	roles := seedRoles()
	src := &stubSource{roles: roles}
	reg := NewRegistry(src, 5*time.Second, nil, WithClock(clock.Now))
	ctx := context.Background()

	active, err := reg.IsActive(ctx, "viewer")
	require.NoError(t, err)
	require.True(t, active)

	updated := seedRoles()
	updated[0].IsActive = false
	src.set(updated, nil)

	clock.Advance(4 * time.Second)
	active, err = reg.IsActive(ctx, "viewer")
	require.NoError(t, err)
	assert.True(t, active, "still inside the staleness window")

	clock.Advance(reg.TTL())
	active, err = reg.IsActive(ctx, "viewer")
	require.NoError(t, err)
	assert.False(t, active, "must stop granting once the window elapses")
}

func TestInvalidateForcesReload(t *testing.T) {
	src := &stubSource{roles: seedRoles()}
	reg := NewRegistry(src, MaxCacheTTL, nil)
	ctx := context.Background()

	names, err := reg.FilterActive(ctx, []string{"viewer", "archived", "admin"})
	require.NoError(t, err)
	assert.Equal(t, []string{"viewer", "admin"}, names)

	updated := seedRoles()
	updated[0].IsActive = false
	src.set(updated, nil)
	reg.Invalidate()

	names, err = reg.FilterActive(ctx, []string{"viewer", "admin"})
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, names)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestRefreshReportsStoreError(t *testing.T) {
	src := &stubSource{roles: seedRoles()}
	reg := NewRegistry(src, time.Minute, nil)
	require.NoError(t, reg.Refresh(context.Background()))
	assert.Equal(t, MaxCacheTTL, reg.TTL())

	src.set(nil, errors.New("timeout"))
	err := reg.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, "Viewer", reg.DisplayNameFor("viewer"), "labels survive a failed refresh")
}

func TestZeroTTLDisablesCaching(t *testing.T) {
	src := &stubSource{roles: seedRoles()}
	reg := NewRegistry(src, 0, nil)
	for i := 0; i < 3; i++ {
		_, err := reg.LoadActiveRoles(context.Background())
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, src.calls.Load())
}

func TestConcurrentLoadsCollapse(t *testing.T) {
	src := &stubSource{roles: seedRoles(), gate: make(chan struct{})}
	reg := NewRegistry(src, time.Second, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = reg.LoadActiveRoles(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return src.calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestCancelledCallerGetsContextError(t *testing.T) {
	src := &stubSource{roles: seedRoles(), gate: make(chan struct{})}
	reg := NewRegistry(src, time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	roles, err := reg.LoadActiveRoles(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, roles)
	close(src.gate)
}
