package permstore

import (
	"context"
	"fmt"
)

// columnMap holds the physical column names resolved for each logical field.
// It is computed once at startup and cached on the repository; queries are
// built against it rather than re-detecting per call.
type columnMap struct {
	rolesID   string
	rolesName string

	permsName string

	rolePermsRoleID string
	rolePermsPermID string

	modulesKey     string
	modulesActive  string
	modulesVisible string
	modulesBeta    string
	modulesDeps    string

	flagsKey     string
	flagsEnabled string
	flagsModule  string

	usersEmail     string
	usersRole      string
	usersOverrides string
	usersDashboard string
}

// candidate spellings per logical field, most recent schema first.
var columnCandidates = map[string][]string{
	"roles.id":              {"id", "role_id"},
	"roles.name":            {"name", "role_name", "title"},
	"permissions.name":      {"name", "key", "permission_key", "code"},
	"role_permissions.role": {"role_id", "roles_id"},
	"role_permissions.perm": {"permission_id", "permissions_id", "perm_id"},
	"modules.key":           {"key", "module_key", "slug"},
	"modules.active":        {"active", "is_active", "enabled"},
	"modules.visible":       {"visible", "is_visible"},
	"modules.beta":          {"beta", "is_beta"},
	"modules.deps":          {"depends_on", "dependencies"},
	"feature_flags.key":     {"key", "flag_key", "name"},
	"feature_flags.enabled": {"enabled", "is_enabled", "active"},
	"feature_flags.module":  {"module_key", "module", "owner_module"},
	"users.email":           {"email", "email_address"},
	"users.role":            {"role", "role_id", "role_name"},
	"users.overrides":       {"permissions", "permission_overrides", "custom_permissions"},
	"users.dashboard":       {"dashboard_settings", "dashboard_preferences", "preferences"},
}

// introspect reads information_schema once and resolves every candidate list
// against the columns that actually exist. Missing optional columns resolve
// to "" and the corresponding query degrades gracefully.
func (r *Repository) introspect(ctx context.Context) (columnMap, error) {
	rows, err := r.db.Query(ctx, `
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = 'public'
		  AND table_name = ANY($1)`,
		[]string{"roles", "permissions", "role_permissions", "modules", "feature_flags", "users"})
	if err != nil {
		return columnMap{}, fmt.Errorf("permstore: introspect: %w", err)
	}
	defer rows.Close()

	present := make(map[string]map[string]bool)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return columnMap{}, fmt.Errorf("permstore: introspect scan: %w", err)
		}
		if present[table] == nil {
			present[table] = make(map[string]bool)
		}
		present[table][column] = true
	}
	if err := rows.Err(); err != nil {
		return columnMap{}, fmt.Errorf("permstore: introspect rows: %w", err)
	}
	return resolveColumns(present), nil
}

func resolveColumns(present map[string]map[string]bool) columnMap {
	pick := func(table, field string) string {
		for _, cand := range columnCandidates[table+"."+field] {
			if present[table][cand] {
				return cand
			}
		}
		return ""
	}
	required := func(table, field string) string {
		if col := pick(table, field); col != "" {
			return col
		}
		// Fall back to the first candidate so a query against a schema that
		// was not introspectable fails loudly with the conventional name.
		return columnCandidates[table+"."+field][0]
	}
	return columnMap{
		rolesID:         required("roles", "id"),
		rolesName:       required("roles", "name"),
		permsName:       required("permissions", "name"),
		rolePermsRoleID: required("role_permissions", "role"),
		rolePermsPermID: required("role_permissions", "perm"),
		modulesKey:      required("modules", "key"),
		modulesActive:   required("modules", "active"),
		modulesVisible:  pick("modules", "visible"),
		modulesBeta:     pick("modules", "beta"),
		modulesDeps:     pick("modules", "deps"),
		flagsKey:        required("feature_flags", "key"),
		flagsEnabled:    required("feature_flags", "enabled"),
		flagsModule:     pick("feature_flags", "module"),
		usersEmail:      required("users", "email"),
		usersRole:       required("users", "role"),
		usersOverrides:  pick("users", "overrides"),
		usersDashboard:  pick("users", "dashboard"),
	}
}
