package users

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabha-admin/sabha/internal/audit"
	"github.com/sabha-admin/sabha/internal/identity"
	"github.com/sabha-admin/sabha/internal/roles"
	"github.com/sabha-admin/sabha/internal/shared"
)

type memRepo struct {
	mu          sync.Mutex
	users       []User
	assignments map[int64][]string
	rolesErr    error
}

func (m *memRepo) ListUsers(ctx context.Context) ([]User, error) {
	return m.users, nil
}

func (m *memRepo) RolesFor(ctx context.Context, userID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rolesErr != nil {
		return nil, m.rolesErr
	}
	return append([]string(nil), m.assignments[userID]...), nil
}

func (m *memRepo) Assignments(ctx context.Context) (map[int64][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64][]string, len(m.assignments))
	for k, v := range m.assignments {
		out[k] = append([]string(nil), v...)
	}
	return out, nil
}

func (m *memRepo) AssignRole(ctx context.Context, userID int64, role string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.assignments[userID] {
		if r == role {
			return false, nil
		}
	}
	m.assignments[userID] = append(m.assignments[userID], role)
	sort.Strings(m.assignments[userID])
	return true, nil
}

func (m *memRepo) RemoveRole(ctx context.Context, userID int64, role string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.assignments[userID]
	for i, r := range current {
		if r == role {
			m.assignments[userID] = append(current[:i], current[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type directory map[string]roles.Role

func (d directory) GetRole(ctx context.Context, name string) (roles.Role, error) {
	role, ok := d[name]
	if !ok {
		return roles.Role{}, roles.ErrNotFound
	}
	return role, nil
}

type labels map[string]string

func (l labels) DisplayNameFor(name string) string {
	if v, ok := l[name]; ok {
		return v
	}
	return name
}

type eventLog struct {
	mu     sync.Mutex
	events []audit.Event
}

func (e *eventLog) Record(ev audit.Event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

type countingNotifier struct {
	reasons []string
}

func (c *countingNotifier) Publish(ctx context.Context, reason string) error {
	c.reasons = append(c.reasons, reason)
	return nil
}

func newFixture() (*Service, *memRepo, *eventLog, *countingNotifier) {
	repo := &memRepo{
		users: []User{{ID: 1, Email: "admin@example.com", IsActive: true}, {ID: 2, Email: "k@example.com", IsActive: true}},
		assignments: map[int64][]string{
			1: {"system_admin"},
			2: {"karyakar"},
		},
	}
	dir := directory{
		"system_admin": {Name: "system_admin", DisplayName: "System Admin", IsSystem: true, IsActive: true},
		"karyakar":     {Name: "karyakar", DisplayName: "Karyakar", IsActive: true},
		"auditor":      {Name: "auditor", DisplayName: "Auditor", IsActive: true},
		"retired":      {Name: "retired", DisplayName: "Retired"},
	}
	log := &eventLog{}
	notifier := &countingNotifier{}
	svc := NewService(repo, dir, labels{"karyakar": "Karyakar", "system_admin": "System Admin"}, log, notifier, nil)
	return svc, repo, log, notifier
}

func TestListUsersUsesDisplayNames(t *testing.T) {
	svc, _, _, _ := newFixture()
	rows, err := svc.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []RoleLabel{{Name: "karyakar", Label: "Karyakar"}}, rows[1].Roles)
}

func TestAssignRoleRecordsAndPublishes(t *testing.T) {
	svc, repo, log, notifier := newFixture()
	actor := &identity.Principal{Handle: "1", Roles: []string{"system_admin"}}

	require.NoError(t, svc.AssignRole(context.Background(), actor, 2, " Auditor "))
	assert.Equal(t, []string{"auditor", "karyakar"}, repo.assignments[2])
	require.Len(t, log.events, 1)
	assert.Equal(t, audit.EventRoleChange, log.events[0].Type)
	assert.Equal(t, "assigned", log.events[0].Metadata["change"])
	assert.Equal(t, "2", log.events[0].Metadata["user"])
	assert.Equal(t, []string{"user:2"}, notifier.reasons)

	require.NoError(t, svc.AssignRole(context.Background(), actor, 2, "auditor"))
	assert.Len(t, log.events, 1, "repeat assignment is a no-op")
}

func TestRemoveRoleRecords(t *testing.T) {
	svc, repo, log, _ := newFixture()
	actor := &identity.Principal{Handle: "1", Roles: []string{"system_admin"}}

	require.NoError(t, svc.RemoveRole(context.Background(), actor, 2, "karyakar"))
	assert.Empty(t, repo.assignments[2])
	require.Len(t, log.events, 1)
	assert.Equal(t, "unassigned", log.events[0].Metadata["change"])
}

func TestAssignSystemRoleRequiresSystemAdmin(t *testing.T) {
	svc, _, log, _ := newFixture()
	actor := &identity.Principal{Handle: "2", Roles: []string{"karyakar"}}

	err := svc.AssignRole(context.Background(), actor, 2, "system_admin")
	require.ErrorIs(t, err, roles.ErrSystemRole)
	assert.Empty(t, log.events)
}

func TestAssignUnknownRole(t *testing.T) {
	svc, _, _, _ := newFixture()
	actor := &identity.Principal{Handle: "1", Roles: []string{"system_admin"}}
	require.ErrorIs(t, svc.AssignRole(context.Background(), actor, 2, "ghost"), ErrUnknownRole)
}

func TestRolesForRejectsNonNumericHandle(t *testing.T) {
	svc, _, _, _ := newFixture()
	_, err := svc.RolesFor(context.Background(), "admin@example.com")
	require.ErrorIs(t, err, ErrInvalidHandle)

	names, err := svc.RolesFor(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, []string{"karyakar"}, names)
}

func TestPrincipalMiddleware(t *testing.T) {
	svc, repo, _, _ := newFixture()
	resolver := NewPrincipalResolver(svc, time.Second, nil)

	var seen *identity.Principal
	handler := resolver.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = identity.FromContext(r.Context())
	}))

	sm := shared.NewSessionManager(nil, "sid", "secret", 0, false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)

	handler.ServeHTTP(httptest.NewRecorder(), req.WithContext(shared.ContextWithSession(req.Context(), sess)))
	assert.Nil(t, seen, "no session user means no principal")

	sess.SetUser("2")
	handler.ServeHTTP(httptest.NewRecorder(), req.WithContext(shared.ContextWithSession(req.Context(), sess)))
	require.NotNil(t, seen)
	assert.Equal(t, "2", seen.Handle)
	assert.Equal(t, []string{"karyakar"}, seen.Roles)

	repo.rolesErr = assert.AnError
	handler.ServeHTTP(httptest.NewRecorder(), req.WithContext(shared.ContextWithSession(req.Context(), sess)))
	require.NotNil(t, seen)
	assert.Empty(t, seen.Roles, "lookup failure leaves the principal without roles")
	assert.True(t, seen.RolesUnavailable)
}

type stalledRoles struct{}

func (stalledRoles) RolesFor(ctx context.Context, handle string) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestResolveStalledLookupIsBounded(t *testing.T) {
	resolver := NewPrincipalResolver(stalledRoles{}, 50*time.Millisecond, nil)

	done := make(chan *identity.Principal, 1)
	go func() { done <- resolver.Resolve(context.Background(), "7") }()

	select {
	case p := <-done:
		require.NotNil(t, p)
		assert.Equal(t, "7", p.Handle)
		assert.Empty(t, p.Roles)
		assert.True(t, p.RolesUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("role lookup was not cut off by the timeout")
	}
}

func TestAssignInactiveRoleRejected(t *testing.T) {
	svc, repo, log, _ := newFixture()
	actor := &identity.Principal{Handle: "1", Roles: []string{"system_admin"}}

	err := svc.AssignRole(context.Background(), actor, 2, "retired")
	require.ErrorIs(t, err, ErrInactiveRole)
	assert.Equal(t, []string{"karyakar"}, repo.assignments[2])
	assert.Empty(t, log.events)
}

func TestRemoveInactiveRoleAllowed(t *testing.T) {
	svc, repo, _, _ := newFixture()
	repo.assignments[2] = []string{"karyakar", "retired"}
	actor := &identity.Principal{Handle: "1", Roles: []string{"system_admin"}}

	require.NoError(t, svc.RemoveRole(context.Background(), actor, 2, "retired"))
	assert.Equal(t, []string{"karyakar"}, repo.assignments[2])
}
