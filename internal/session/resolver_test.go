package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promanage/promanage/internal/permstore"
	"github.com/promanage/promanage/internal/session"
	"github.com/promanage/promanage/internal/shared"
)

type stubStore struct {
	user      *permstore.User
	roles     map[int64]permstore.Role
	rolePerms map[int64][]string
	active    []string
	modules   []permstore.Module
	flags     []permstore.FeatureFlag
	dashboard json.RawMessage

	modulesErr error
	flagsErr   error
}

func (s *stubStore) FindUserByID(ctx context.Context, id int64) (permstore.User, error) {
	if s.user == nil || s.user.ID != id {
		return permstore.User{}, permstore.ErrNotFound
	}
	return *s.user, nil
}

func (s *stubStore) FindRoleByID(ctx context.Context, id int64) (permstore.Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return permstore.Role{}, permstore.ErrNotFound
	}
	return role, nil
}

func (s *stubStore) FindRoleByName(ctx context.Context, name string) (permstore.Role, error) {
	for _, role := range s.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return permstore.Role{}, permstore.ErrNotFound
}

func (s *stubStore) RolePermissions(ctx context.Context, roleID int64) ([]string, error) {
	return s.rolePerms[roleID], nil
}

func (s *stubStore) ListActiveModules(ctx context.Context) ([]string, error) {
	return s.active, nil
}

func (s *stubStore) ListModules(ctx context.Context) ([]permstore.Module, error) {
	if s.modulesErr != nil {
		return nil, s.modulesErr
	}
	return s.modules, nil
}

func (s *stubStore) ListFeatureFlags(ctx context.Context) ([]permstore.FeatureFlag, error) {
	if s.flagsErr != nil {
		return nil, s.flagsErr
	}
	return s.flags, nil
}

func (s *stubStore) DashboardSettings(ctx context.Context, userID int64) (json.RawMessage, error) {
	if s.dashboard == nil {
		return nil, permstore.ErrNotFound
	}
	return s.dashboard, nil
}

func TestResolveUnknownUser(t *testing.T) {
	r := session.NewResolver(&stubStore{}, nil)
	_, err := r.Resolve(context.Background(), 99)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestResolveRoleDerivedPermissions(t *testing.T) {
	store := &stubStore{
		user:      &permstore.User{ID: 7, Email: "ops@test.local", Role: "3"},
		roles:     map[int64]permstore.Role{3: {ID: 3, Name: "Operator"}},
		rolePerms: map[int64][]string{3: {shared.PermIncidentsView, shared.PermIncidentsEdit}},
		active:    []string{"incidents", "suppliers"},
	}
	r := session.NewResolver(store, nil)

	snap, err := r.Resolve(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{shared.PermIncidentsView: true, shared.PermIncidentsEdit: true}, snap.Permissions)
	assert.Equal(t, map[string]bool{"incidents": true, "suppliers": true}, snap.ActiveModules)
}

func TestResolveRoleByName(t *testing.T) {
	store := &stubStore{
		user:      &permstore.User{ID: 7, Role: "Operator"},
		roles:     map[int64]permstore.Role{3: {ID: 3, Name: "Operator"}},
		rolePerms: map[int64][]string{3: {"vacations:view"}},
	}
	r := session.NewResolver(store, nil)

	snap, err := r.Resolve(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, snap.Permissions["vacations:view"],
		"a human-readable role value must resolve through name lookup")
}

func TestResolveOverrideReplacesRolePermissions(t *testing.T) {
	store := &stubStore{
		user: &permstore.User{
			ID:        7,
			Role:      "3",
			Overrides: map[string]bool{shared.PermComplianceView: true},
		},
		roles:     map[int64]permstore.Role{3: {ID: 3, Name: "Operator"}},
		rolePerms: map[int64][]string{3: {shared.PermIncidentsView, shared.PermIncidentsEdit}},
	}
	r := session.NewResolver(store, nil)

	snap, err := r.Resolve(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{shared.PermComplianceView: true}, snap.Permissions,
		"override must replace role permissions, never merge")
}

func TestResolveDegradesPerFetch(t *testing.T) {
	store := &stubStore{
		user:       &permstore.User{ID: 7, Role: ""},
		active:     []string{"incidents"},
		modulesErr: errors.New("boom"),
		flagsErr:   errors.New("boom"),
	}
	r := session.NewResolver(store, nil)

	snap, err := r.Resolve(context.Background(), 7)
	require.NoError(t, err, "metadata and flag failures must not fail resolution")
	assert.True(t, snap.ActiveModules["incidents"])
	assert.Nil(t, snap.Modules)
	assert.Empty(t, snap.FeatureFlags)
	assert.Nil(t, snap.DashboardSettings)
}

func TestResolveDashboardSettings(t *testing.T) {
	store := &stubStore{
		user:      &permstore.User{ID: 7},
		dashboard: json.RawMessage(`{"layout":"wide"}`),
	}
	r := session.NewResolver(store, nil)

	snap, err := r.Resolve(context.Background(), 7)
	require.NoError(t, err)
	assert.JSONEq(t, `{"layout":"wide"}`, string(snap.DashboardSettings))
}

func TestModuleGranted(t *testing.T) {
	snap := &session.Snapshot{Permissions: map[string]bool{
		"incidents:view": true,
		"analytics":      true,
		"vacations:view": false,
	}}

	assert.True(t, snap.ModuleGranted("incidents"), "any action inside the module grants entry")
	assert.True(t, snap.ModuleGranted("analytics"), "bare module key grants entry")
	assert.False(t, snap.ModuleGranted("vacations"), "explicit false does not grant")
	assert.False(t, snap.ModuleGranted("suppliers"))
}
