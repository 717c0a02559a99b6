// Package session assembles the authorization snapshot the request gate
// consults for the admin area.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/promanage/promanage/internal/permstore"
	"github.com/promanage/promanage/internal/shared"
)

// Store is the read surface the resolver needs from the permission store.
type Store interface {
	FindUserByID(ctx context.Context, id int64) (permstore.User, error)
	FindRoleByID(ctx context.Context, id int64) (permstore.Role, error)
	FindRoleByName(ctx context.Context, name string) (permstore.Role, error)
	RolePermissions(ctx context.Context, roleID int64) ([]string, error)
	ListActiveModules(ctx context.Context) ([]string, error)
	ListModules(ctx context.Context) ([]permstore.Module, error)
	ListFeatureFlags(ctx context.Context) ([]permstore.FeatureFlag, error)
	DashboardSettings(ctx context.Context, userID int64) (json.RawMessage, error)
}

// Identity is the user part of a snapshot.
type Identity struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Snapshot is the resolved authorization state for one user at one moment.
// It is never persisted; every request recomputes it (subject to the module
// activation cache downstream).
type Snapshot struct {
	User              Identity                    `json:"user"`
	Permissions       map[string]bool             `json:"permissions"`
	ActiveModules     map[string]bool             `json:"activeModules"`
	Modules           map[string]permstore.Module `json:"modules,omitempty"`
	FeatureFlags      map[string]bool             `json:"featureFlags"`
	DashboardSettings json.RawMessage             `json:"dashboardSettings,omitempty"`
}

// ModuleGranted reports whether the snapshot allows entry to a module area.
// Permission keys follow the module:action convention; the bare module key or
// any action inside the module grants entry.
func (s *Snapshot) ModuleGranted(moduleID string) bool {
	if s == nil {
		return false
	}
	if s.Permissions[moduleID] {
		return true
	}
	prefix := moduleID + ":"
	for key, granted := range s.Permissions {
		if granted && strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// Resolver builds snapshots from the permission store.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(store Store, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Resolve assembles the snapshot for a user. Only the primary user lookup is
// fatal; module, flag, and preference fetches each degrade independently to
// an absent value.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (*Snapshot, error) {
	user, err := r.store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, permstore.ErrNotFound) {
			return nil, shared.ErrUnauthorized
		}
		return nil, fmt.Errorf("session: user lookup: %w", err)
	}

	snap := &Snapshot{
		User:          Identity{ID: user.ID, Email: user.Email, Role: user.Role},
		Permissions:   r.resolvePermissions(ctx, user),
		ActiveModules: map[string]bool{},
		FeatureFlags:  map[string]bool{},
	}

	// The remaining reads are independent; run them concurrently and let
	// each one fail on its own.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		keys, err := r.store.ListActiveModules(gctx)
		if err != nil {
			r.warn("active modules", err)
			return nil
		}
		for _, key := range keys {
			snap.ActiveModules[key] = true
		}
		return nil
	})
	g.Go(func() error {
		mods, err := r.store.ListModules(gctx)
		if err != nil {
			r.warn("module metadata", err)
			return nil
		}
		if len(mods) > 0 {
			snap.Modules = make(map[string]permstore.Module, len(mods))
			for _, m := range mods {
				snap.Modules[m.Key] = m
			}
		}
		return nil
	})
	g.Go(func() error {
		flags, err := r.store.ListFeatureFlags(gctx)
		if err != nil {
			r.warn("feature flags", err)
			return nil
		}
		for _, f := range flags {
			snap.FeatureFlags[f.Key] = f.Enabled
		}
		return nil
	})
	g.Go(func() error {
		prefs, err := r.store.DashboardSettings(gctx, userID)
		if err != nil {
			if !errors.Is(err, permstore.ErrNotFound) {
				r.warn("dashboard settings", err)
			}
			return nil
		}
		snap.DashboardSettings = prefs
		return nil
	})
	_ = g.Wait()

	return snap, nil
}

// resolvePermissions applies the override-wins rule: a non-empty per-user
// override replaces role-derived permissions entirely.
func (r *Resolver) resolvePermissions(ctx context.Context, user permstore.User) map[string]bool {
	if len(user.Overrides) > 0 {
		perms := make(map[string]bool, len(user.Overrides))
		for key, granted := range user.Overrides {
			perms[key] = granted
		}
		return perms
	}

	perms := map[string]bool{}
	roleValue := strings.TrimSpace(user.Role)
	if roleValue == "" {
		return perms
	}

	role, err := r.lookupRole(ctx, roleValue)
	if err != nil {
		r.warn("role lookup", err)
		return perms
	}
	keys, err := r.store.RolePermissions(ctx, role.ID)
	if err != nil {
		r.warn("role permissions", err)
		return perms
	}
	for _, key := range keys {
		if key != "" {
			perms[key] = true
		}
	}
	return perms
}

// lookupRole detects by shape whether the stored role value is already an
// identifier or a human-readable name.
func (r *Resolver) lookupRole(ctx context.Context, value string) (permstore.Role, error) {
	if id, err := strconv.ParseInt(value, 10, 64); err == nil {
		return r.store.FindRoleByID(ctx, id)
	}
	return r.store.FindRoleByName(ctx, value)
}

func (r *Resolver) warn(what string, err error) {
	if r.logger != nil {
		r.logger.Warn("session resolve degraded", slog.String("fetch", what), slog.Any("error", err))
	}
}
