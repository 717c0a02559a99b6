package permstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveColumnsPrefersCurrentSpelling(t *testing.T) {
	present := map[string]map[string]bool{
		"roles":            {"id": true, "name": true},
		"permissions":      {"name": true, "key": true},
		"role_permissions": {"role_id": true, "permission_id": true},
		"modules":          {"key": true, "active": true, "visible": true},
		"feature_flags":    {"key": true, "enabled": true},
		"users":            {"email": true, "role": true, "permissions": true},
	}

	cols := resolveColumns(present)
	assert.Equal(t, "id", cols.rolesID)
	assert.Equal(t, "name", cols.permsName, "name wins over key when both exist")
	assert.Equal(t, "key", cols.modulesKey)
	assert.Equal(t, "visible", cols.modulesVisible)
	assert.Equal(t, "", cols.modulesBeta, "absent optional column resolves empty")
	assert.Equal(t, "permissions", cols.usersOverrides)
	assert.Equal(t, "", cols.usersDashboard)
}

func TestResolveColumnsLegacySpellings(t *testing.T) {
	present := map[string]map[string]bool{
		"roles":            {"role_id": true, "role_name": true},
		"permissions":      {"permission_key": true},
		"role_permissions": {"roles_id": true, "perm_id": true},
		"modules":          {"module_key": true, "is_active": true, "is_beta": true},
		"feature_flags":    {"flag_key": true, "is_enabled": true, "owner_module": true},
		"users":            {"email_address": true, "role_name": true},
	}

	cols := resolveColumns(present)
	assert.Equal(t, "role_id", cols.rolesID)
	assert.Equal(t, "role_name", cols.rolesName)
	assert.Equal(t, "permission_key", cols.permsName)
	assert.Equal(t, "roles_id", cols.rolePermsRoleID)
	assert.Equal(t, "perm_id", cols.rolePermsPermID)
	assert.Equal(t, "module_key", cols.modulesKey)
	assert.Equal(t, "is_active", cols.modulesActive)
	assert.Equal(t, "is_beta", cols.modulesBeta)
	assert.Equal(t, "flag_key", cols.flagsKey)
	assert.Equal(t, "owner_module", cols.flagsModule)
	assert.Equal(t, "email_address", cols.usersEmail)
	assert.Equal(t, "role_name", cols.usersRole)
}

func TestResolveColumnsFallsBackToConvention(t *testing.T) {
	cols := resolveColumns(map[string]map[string]bool{})
	assert.Equal(t, "id", cols.rolesID)
	assert.Equal(t, "key", cols.modulesKey)
	assert.Equal(t, "", cols.usersOverrides, "optional fields stay empty without introspection data")
}

func TestParseOverrides(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]bool
	}{
		{"nil", "", nil},
		{"empty list", "[]", nil},
		{"empty map", "{}", nil},
		{"list", `["incidents:view","suppliers:edit"]`, map[string]bool{"incidents:view": true, "suppliers:edit": true}},
		{"map", `{"incidents:view":true,"vacations:view":false}`, map[string]bool{"incidents:view": true, "vacations:view": false}},
		{"garbage", `17`, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseOverrides([]byte(tc.raw)))
		})
	}
}
