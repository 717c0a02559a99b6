package permstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/text/cases"
)

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed read access to authorization data.
type Repository struct {
	db   DB
	cols columnMap
}

// NewRepository constructs a repository, resolving the column mapping once.
func NewRepository(ctx context.Context, db DB) (*Repository, error) {
	r := &Repository{db: db}
	cols, err := r.introspect(ctx)
	if err != nil {
		return nil, err
	}
	r.cols = cols
	return r, nil
}

// FindUserByID fetches the identity record the session resolver starts from.
func (r *Repository) FindUserByID(ctx context.Context, id int64) (User, error) {
	overridesCol := "NULL"
	if r.cols.usersOverrides != "" {
		overridesCol = quoteIdent(r.cols.usersOverrides)
	}
	query := fmt.Sprintf(
		`SELECT id, %s, %s::text, %s FROM users WHERE id = $1`,
		quoteIdent(r.cols.usersEmail), quoteIdent(r.cols.usersRole), overridesCol)

	var (
		user User
		role *string
		raw  []byte
	)
	if err := r.db.QueryRow(ctx, query, id).Scan(&user.ID, &user.Email, &role, &raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("permstore: find user: %w", err)
	}
	if role != nil {
		user.Role = *role
	}
	user.Overrides = parseOverrides(raw)
	return user, nil
}

// FindRoleByID fetches a role by its identifier.
func (r *Repository) FindRoleByID(ctx context.Context, id int64) (Role, error) {
	query := fmt.Sprintf(`SELECT %s, %s FROM roles WHERE %s = $1`,
		quoteIdent(r.cols.rolesID), quoteIdent(r.cols.rolesName), quoteIdent(r.cols.rolesID))
	var role Role
	if err := r.db.QueryRow(ctx, query, id).Scan(&role.ID, &role.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, fmt.Errorf("permstore: find role: %w", err)
	}
	return role, nil
}

// FindRoleByName resolves a human-readable role name to a role. Matching is
// caseless and happens client side.
func (r *Repository) FindRoleByName(ctx context.Context, name string) (Role, error) {
	query := fmt.Sprintf(`SELECT %s, %s FROM roles`,
		quoteIdent(r.cols.rolesID), quoteIdent(r.cols.rolesName))
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return Role{}, fmt.Errorf("permstore: list roles: %w", err)
	}
	defer rows.Close()

	// A Caser is stateful and not safe for concurrent use, so build one per
	// call.
	fold := cases.Fold()
	want := fold.String(name)
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return Role{}, fmt.Errorf("permstore: scan role: %w", err)
		}
		if fold.String(role.Name) == want {
			return role, nil
		}
	}
	if err := rows.Err(); err != nil {
		return Role{}, fmt.Errorf("permstore: roles rows: %w", err)
	}
	return Role{}, ErrNotFound
}

// RolePermissions expands a role into its permission keys.
func (r *Repository) RolePermissions(ctx context.Context, roleID int64) ([]string, error) {
	query := fmt.Sprintf(
		`SELECT p.%s
		 FROM role_permissions rp
		 JOIN permissions p ON p.id = rp.%s
		 WHERE rp.%s = $1`,
		quoteIdent(r.cols.permsName), quoteIdent(r.cols.rolePermsPermID), quoteIdent(r.cols.rolePermsRoleID))

	rows, err := r.db.Query(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("permstore: role permissions: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("permstore: scan permission: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("permstore: permission rows: %w", err)
	}
	return keys, nil
}

// ListActiveModules returns the keys of all modules flagged active.
func (r *Repository) ListActiveModules(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT %s FROM modules WHERE %s = TRUE`,
		quoteIdent(r.cols.modulesKey), quoteIdent(r.cols.modulesActive))
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("permstore: active modules: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("permstore: scan module key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("permstore: module rows: %w", err)
	}
	return keys, nil
}

// ListModules returns full module metadata. Optional columns absent from the
// schema come back zero-valued.
func (r *Repository) ListModules(ctx context.Context) ([]Module, error) {
	visible := "TRUE"
	if r.cols.modulesVisible != "" {
		visible = quoteIdent(r.cols.modulesVisible)
	}
	beta := "FALSE"
	if r.cols.modulesBeta != "" {
		beta = quoteIdent(r.cols.modulesBeta)
	}
	deps := "NULL"
	if r.cols.modulesDeps != "" {
		deps = quoteIdent(r.cols.modulesDeps)
	}
	query := fmt.Sprintf(`SELECT %s, %s, %s, %s, %s FROM modules`,
		quoteIdent(r.cols.modulesKey), quoteIdent(r.cols.modulesActive), visible, beta, deps)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("permstore: list modules: %w", err)
	}
	defer rows.Close()

	var modules []Module
	for rows.Next() {
		var (
			m       Module
			rawDeps []byte
		)
		if err := rows.Scan(&m.Key, &m.Active, &m.Visible, &m.Beta, &rawDeps); err != nil {
			return nil, fmt.Errorf("permstore: scan module: %w", err)
		}
		if len(rawDeps) > 0 {
			_ = json.Unmarshal(rawDeps, &m.DependsOn)
		}
		modules = append(modules, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("permstore: module rows: %w", err)
	}
	return modules, nil
}

// ModuleActive reports the active flag for one module key. ErrNotFound means
// the module row does not exist; callers treat absence as inactive.
func (r *Repository) ModuleActive(ctx context.Context, key string) (bool, error) {
	query := fmt.Sprintf(`SELECT %s FROM modules WHERE %s = $1`,
		quoteIdent(r.cols.modulesActive), quoteIdent(r.cols.modulesKey))
	var active bool
	if err := r.db.QueryRow(ctx, query, key).Scan(&active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		if isMissingRelation(err) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("permstore: module active: %w", err)
	}
	return active, nil
}

// ListFeatureFlags returns all feature flags.
func (r *Repository) ListFeatureFlags(ctx context.Context) ([]FeatureFlag, error) {
	module := "''"
	if r.cols.flagsModule != "" {
		module = "COALESCE(" + quoteIdent(r.cols.flagsModule) + ", '')"
	}
	query := fmt.Sprintf(`SELECT %s, %s, %s FROM feature_flags`,
		quoteIdent(r.cols.flagsKey), quoteIdent(r.cols.flagsEnabled), module)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		if isMissingRelation(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("permstore: feature flags: %w", err)
	}
	defer rows.Close()

	var flags []FeatureFlag
	for rows.Next() {
		var f FeatureFlag
		if err := rows.Scan(&f.Key, &f.Enabled, &f.ModuleKey); err != nil {
			return nil, fmt.Errorf("permstore: scan flag: %w", err)
		}
		flags = append(flags, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("permstore: flag rows: %w", err)
	}
	return flags, nil
}

// DashboardSettings returns the stored preferences blob for a user, or
// ErrNotFound when the user has none or the schema lacks the column.
func (r *Repository) DashboardSettings(ctx context.Context, userID int64) (json.RawMessage, error) {
	if r.cols.usersDashboard == "" {
		return nil, ErrNotFound
	}
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, quoteIdent(r.cols.usersDashboard))
	var raw []byte
	if err := r.db.QueryRow(ctx, query, userID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("permstore: dashboard settings: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	return json.RawMessage(raw), nil
}

// Postgres error codes for undefined column and undefined table. Seen when a
// deployment runs against an older schema revision than the introspection
// snapshot assumed.
const (
	pgUndefinedColumn = "42703"
	pgUndefinedTable  = "42P01"
)

func isMissingRelation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUndefinedColumn || pgErr.Code == pgUndefinedTable
	}
	return false
}

// quoteIdent protects resolved identifiers when interpolated into SQL. Only
// names that came out of information_schema or the candidate table ever pass
// through here.
func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
