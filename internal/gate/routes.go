package gate

import "strings"

// Well-known paths.
const (
	APIPrefix          = "/api/"
	AdminPrefix        = "/admin-panel"
	LoginPath          = "/login"
	DefaultLandingPath = "/admin-panel"
)

// bypassPrefixes pass through the gate untouched.
var bypassPrefixes = []string{
	"/static/",
	"/assets/",
	"/favicon.ico",
	"/robots.txt",
	"/healthz",
	"/metrics",
}

// devOnlyPrefixes are hard-blocked in production with a generic 404 so the
// existence of the debug surface is not disclosed.
var devOnlyPrefixes = []string{
	"/api/dev/",
	"/api/seed/",
	"/api/debug/",
}

// publicAPIPaths are reachable without a credential.
var publicAPIPaths = map[string]bool{
	"/api/health":               true,
	"/api/auth/login":           true,
	"/api/auth/refresh":         true,
	"/api/auth/forgot-password": true,
	"/api/auth/reset-password":  true,
	"/api/auth/whoami":          true,
}

var publicAPIPrefixes = []string{
	"/api/cron/",
}

// sensitivePaths are the public endpoints worth brute-forcing; they get rate
// limited per (client IP, path).
var sensitivePaths = map[string]bool{
	"/api/auth/login":           true,
	"/api/auth/refresh":         true,
	"/api/auth/forgot-password": true,
	"/api/auth/reset-password":  true,
}

// publicPages are the auth-flow pages reachable without a credential.
var publicPages = map[string]bool{
	"/login":           true,
	"/signup":          true,
	"/forgot-password": true,
	"/reset-password":  true,
	"/welcome":         true,
}

// moduleRoute maps one logical module to the path prefixes that reach it,
// current shape first, legacy aliases after. Adding an alias is a data
// change, not a code change.
type moduleRoute struct {
	ID       string
	Prefixes []string
}

var moduleRoutes = []moduleRoute{
	{ID: "analytics", Prefixes: []string{"/admin-panel/analytics"}},
	{ID: "incidents", Prefixes: []string{"/admin-panel/incidents", "/admin-panel/incident-management"}},
	{ID: "inventory", Prefixes: []string{"/admin-panel/inventory", "/admin-panel/stock"}},
	{ID: "suppliers", Prefixes: []string{"/admin-panel/suppliers", "/admin-panel/vendors"}},
	{ID: "vacations", Prefixes: []string{"/admin-panel/vacations", "/admin-panel/leave"}},
	{ID: "compliance", Prefixes: []string{"/admin-panel/compliance"}},
	{ID: "users", Prefixes: []string{"/admin-panel/users", "/admin-panel/user-management"}},
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func isPublicAPI(path string) bool {
	return publicAPIPaths[path] || hasAnyPrefix(path, publicAPIPrefixes)
}

func isAdminPath(path string) bool {
	return path == AdminPrefix || strings.HasPrefix(path, AdminPrefix+"/")
}

// classifyModule resolves an admin path to a logical module ID by longest
// matching prefix, or "" when the path belongs to no module area.
func classifyModule(path string) string {
	bestID := ""
	bestLen := 0
	for _, route := range moduleRoutes {
		for _, prefix := range route.Prefixes {
			if len(prefix) <= bestLen {
				continue
			}
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				bestID = route.ID
				bestLen = len(prefix)
			}
		}
	}
	return bestID
}
