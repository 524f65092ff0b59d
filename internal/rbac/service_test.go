package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabha-admin/sabha/internal/audit"
	"github.com/sabha-admin/sabha/internal/identity"
	"github.com/sabha-admin/sabha/internal/roles"
)

type memGrants struct {
	grants map[string][]Grant
}

func (m *memGrants) ListGrants(ctx context.Context) ([]Grant, error) {
	var out []Grant
	for _, gs := range m.grants {
		out = append(out, gs...)
	}
	return out, nil
}

func (m *memGrants) ReplaceRoleGrants(ctx context.Context, role string, grants []Grant) (int, int, error) {
	before := map[string]bool{}
	for _, g := range m.grants[role] {
		before[g.Key()] = true
	}
	after := map[string]bool{}
	added := 0
	for _, g := range grants {
		after[g.Key()] = true
		if !before[g.Key()] {
			added++
		}
	}
	removed := 0
	for k := range before {
		if !after[k] {
			removed++
		}
	}
	m.grants[role] = grants
	return added, removed, nil
}

type directory struct {
	roles []roles.Role
}

func (d directory) ListRoles(ctx context.Context, filters roles.ListFilters) ([]roles.Role, error) {
	return d.roles, nil
}

func (d directory) GetRole(ctx context.Context, name string) (roles.Role, error) {
	for _, r := range d.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return roles.Role{}, roles.ErrNotFound
}

type recorded struct{ events []audit.Event }

func (r *recorded) Record(e audit.Event) { r.events = append(r.events, e) }

type notices struct{ reasons []string }

func (n *notices) Publish(ctx context.Context, reason string) error {
	n.reasons = append(n.reasons, reason)
	return nil
}

func newTestService() (*Service, *memGrants, *recorded, *notices) {
	repo := &memGrants{grants: map[string][]Grant{
		"viewer": {{RoleName: "viewer", Module: "karyakars", Action: "view"}},
	}}
	dir := directory{roles: []roles.Role{
		{Name: "admin", IsSystem: true, IsActive: true},
		{Name: "viewer", IsActive: true},
	}}
	rec := &recorded{}
	n := &notices{}
	return NewService(repo, dir, rec, n, nil), repo, rec, n
}

func TestSetRoleGrantsRecordsChange(t *testing.T) {
	svc, repo, rec, n := newTestService()
	actor := &identity.Principal{Handle: "5", Roles: []string{"admin"}}

	err := svc.SetRoleGrants(context.Background(), actor, "viewer", []Grant{
		{Module: "Karyakars", Action: "view"},
		{Module: "karyakars", Action: "edit"},
		{Module: "karyakars", Action: "edit"},
	})
	require.NoError(t, err)
	assert.Len(t, repo.grants["viewer"], 2)

	require.Len(t, rec.events, 1)
	assert.Equal(t, audit.EventRoleChange, rec.events[0].Type)
	assert.Equal(t, "1", rec.events[0].Metadata["grants_added"])
	assert.Equal(t, "0", rec.events[0].Metadata["grants_removed"])
	assert.Equal(t, []string{"grants:viewer"}, n.reasons)
}

func TestSetRoleGrantsUnchangedIsSilent(t *testing.T) {
	svc, _, rec, n := newTestService()
	actor := &identity.Principal{Handle: "5", Roles: []string{"admin"}}
	err := svc.SetRoleGrants(context.Background(), actor, "viewer", []Grant{{Module: "karyakars", Action: "view"}})
	require.NoError(t, err)
	assert.Empty(t, rec.events)
	assert.Empty(t, n.reasons)
}

func TestSetRoleGrantsRejects(t *testing.T) {
	svc, _, _, _ := newTestService()
	actor := &identity.Principal{Handle: "5", Roles: []string{"admin"}}

	err := svc.SetRoleGrants(context.Background(), actor, "viewer", []Grant{{Module: "karyakars", Action: "*"}})
	assert.ErrorIs(t, err, ErrUnknownPermission)

	err = svc.SetRoleGrants(context.Background(), actor, "admin", nil)
	assert.ErrorIs(t, err, roles.ErrSystemRole)

	err = svc.SetRoleGrants(context.Background(), actor, "ghost", nil)
	assert.ErrorIs(t, err, roles.ErrNotFound)

	sys := &identity.Principal{Handle: "1", Roles: []string{roles.SystemAdminRole}}
	assert.NoError(t, svc.SetRoleGrants(context.Background(), sys, "admin", []Grant{{Module: "admin", Action: "edit"}}))
}

func TestMatrix(t *testing.T) {
	svc, _, _, _ := newTestService()
	m, err := svc.Matrix(context.Background())
	require.NoError(t, err)
	require.Len(t, m.Rows, 2)
	assert.Contains(t, m.Modules, "karyakars")
	assert.Contains(t, m.Actions, "view")
	assert.False(t, m.Rows[0].Granted["karyakars:view"])
	assert.True(t, m.Rows[1].Granted["karyakars:view"])
}

func TestParseGrantKey(t *testing.T) {
	g, ok := ParseGrantKey("viewer", " Admin:View ")
	require.True(t, ok)
	assert.Equal(t, Grant{RoleName: "viewer", Module: "admin", Action: "view"}, g)

	_, ok = ParseGrantKey("viewer", "admin")
	assert.False(t, ok)
	_, ok = ParseGrantKey("viewer", ":view")
	assert.False(t, ok)
	assert.Equal(t, "allow", Allow.String())
	assert.Equal(t, "deny", Decision(0).String())
}
