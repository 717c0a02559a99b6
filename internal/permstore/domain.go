// Package permstore provides read-only access to the role, permission,
// module, and feature-flag tables. The underlying schema evolved informally,
// so column names are resolved once at startup instead of being assumed.
package permstore

import (
	"encoding/json"
	"errors"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("permstore: not found")

// Role is an assignable bundle of permissions.
type Role struct {
	ID   int64
	Name string
}

// Module is a named, independently activatable feature area.
type Module struct {
	Key       string
	Active    bool
	Visible   bool
	Beta      bool
	DependsOn []string
}

// FeatureFlag is a kill switch independent of the permission system.
type FeatureFlag struct {
	Key       string
	Enabled   bool
	ModuleKey string
}

// User is the identity record the session resolver starts from.
type User struct {
	ID    int64
	Email string
	// Role holds whatever the schema stores: a numeric role ID or a
	// human-readable role name. Callers detect the shape.
	Role string
	// Overrides, when non-empty, replaces role-derived permissions entirely.
	Overrides map[string]bool
}

// parseOverrides accepts both stored shapes: a JSON list of permission keys
// or a key-to-bool map.
func parseOverrides(raw []byte) map[string]bool {
	if len(raw) == 0 {
		return nil
	}
	var asMap map[string]bool
	if err := json.Unmarshal(raw, &asMap); err == nil {
		if len(asMap) == 0 {
			return nil
		}
		return asMap
	}
	var asList []string
	if err := json.Unmarshal(raw, &asList); err == nil && len(asList) > 0 {
		m := make(map[string]bool, len(asList))
		for _, key := range asList {
			if key != "" {
				m[key] = true
			}
		}
		if len(m) == 0 {
			return nil
		}
		return m
	}
	return nil
}
