// Package gate is the single chokepoint every inbound request crosses before
// any handler runs. It classifies the route, rate-limits sensitive public
// endpoints, verifies credentials, enforces idle expiry, and authorizes
// module access for the admin area.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/promanage/promanage/internal/modules"
	"github.com/promanage/promanage/internal/platform/httpx"
	"github.com/promanage/promanage/internal/session"
	"github.com/promanage/promanage/internal/shared"
	"github.com/promanage/promanage/internal/token"
)

// SnapshotResolver yields the authorization snapshot for a verified user.
type SnapshotResolver interface {
	Resolve(ctx context.Context, userID int64) (*session.Snapshot, error)
}

// Config carries the gate's tunables.
type Config struct {
	// Production enables the hard block of dev/seed/debug endpoints.
	Production bool
	// IdleTimeout forces re-authentication after inactivity; 0 disables.
	IdleTimeout time.Duration
	// SecureCookies marks cookies Secure; off only in local development.
	SecureCookies bool
	// ActivityCookieTTL bounds the lifetime of the refreshed last-active
	// cookie.
	ActivityCookieTTL time.Duration
}

// Gate evaluates the admission rules for one request, top to bottom,
// short-circuiting on the first match. It never writes business data; its
// side effects are cookies and redirects.
type Gate struct {
	cfg      Config
	codec    *token.Codec
	resolver SnapshotResolver
	cache    modules.ActivationCache
	limiter  RateLimiter
	denylist token.Denylist
	logger   *slog.Logger
	verdicts func(kind string)

	// now is swapped in tests.
	now func() time.Time
}

// Options groups the gate's collaborators. Denylist and Verdicts may be nil.
type Options struct {
	Config   Config
	Codec    *token.Codec
	Resolver SnapshotResolver
	Cache    modules.ActivationCache
	Limiter  RateLimiter
	Denylist token.Denylist
	Logger   *slog.Logger
	Verdicts func(kind string)
}

// New constructs a Gate.
func New(opts Options) *Gate {
	return &Gate{
		cfg:      opts.Config,
		codec:    opts.Codec,
		resolver: opts.Resolver,
		cache:    opts.Cache,
		limiter:  opts.Limiter,
		denylist: opts.Denylist,
		logger:   opts.Logger,
		verdicts: opts.Verdicts,
		now:      time.Now,
	}
}

// Middleware wires the gate into a chi middleware chain.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.serve(w, r, next)
	})
}

func (g *Gate) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	path := r.URL.Path

	// 1. Root and asset paths pass through unchanged.
	if path == "/" || hasAnyPrefix(path, bypassPrefixes) {
		g.record("bypass")
		next.ServeHTTP(w, r)
		return
	}

	// 2. In production, debug surface looks like it does not exist.
	if g.cfg.Production && hasAnyPrefix(path, devOnlyPrefixes) {
		g.record("blocked")
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
		return
	}

	// 3. API routes: public allow-list (with rate limiting on the sensitive
	// subset), everything else requires an access credential. Outside
	// production the dev surface is public; it exists to mint credentials.
	if strings.HasPrefix(path, APIPrefix) {
		if isPublicAPI(path) || (!g.cfg.Production && hasAnyPrefix(path, devOnlyPrefixes)) {
			if sensitivePaths[path] && g.limiter != nil {
				if g.limiter.OnLimit(w, r, clientIP(r)+":"+path) {
					g.record("rate_limited")
					httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "retry later")
					return
				}
			}
			g.record("public_api")
			next.ServeHTTP(w, r)
			return
		}
		claims, ok := g.credential(r)
		if !ok {
			g.record("api_unauthorized")
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
			return
		}
		g.record("api_admit")
		next.ServeHTTP(w, r.WithContext(g.identityContext(r.Context(), claims)))
		return
	}

	// 4. Auth-flow pages need no credential.
	if publicPages[path] {
		g.record("public_page")
		next.ServeHTTP(w, r)
		return
	}

	// 5. Every other page requires a credential; failure bounces to login
	// with the original path preserved.
	claims, ok := g.credential(r)
	if !ok {
		g.record("login_redirect")
		g.redirectToLogin(w, r, path)
		return
	}

	// 6. Idle expiry. An expired session loses its credential cookies
	// before the bounce.
	if g.cfg.IdleTimeout > 0 {
		if last, found := g.lastActive(r); found && g.now().Sub(last) > g.cfg.IdleTimeout {
			g.record("idle_timeout")
			ClearAuthCookies(w, g.cfg.SecureCookies)
			g.redirectToLogin(w, r, path)
			return
		}
	}

	// 7. Admin area: authorize per module against the session snapshot.
	if isAdminPath(path) {
		userID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			g.record("login_redirect")
			g.redirectToLogin(w, r, path)
			return
		}
		snap, err := g.resolveSnapshot(r.Context(), userID)
		if err != nil {
			if errors.Is(err, shared.ErrForbidden) {
				g.record("forbidden_redirect")
				http.Redirect(w, r, DefaultLandingPath, http.StatusFound)
				return
			}
			g.record("login_redirect")
			g.redirectToLogin(w, r, path)
			return
		}
		if moduleID := classifyModule(path); moduleID != "" {
			if !snap.ModuleGranted(moduleID) || !g.moduleActive(r.Context(), moduleID) {
				g.record("forbidden_redirect")
				http.Redirect(w, r, DefaultLandingPath, http.StatusFound)
				return
			}
		}
		g.record("admit")
		g.refreshActivity(w)
		next.ServeHTTP(w, r.WithContext(g.identityContext(r.Context(), claims)))
		return
	}

	// 8. Any other authenticated page.
	g.record("admit")
	g.refreshActivity(w)
	next.ServeHTTP(w, r.WithContext(g.identityContext(r.Context(), claims)))
}

// credential reads the access credential from the cookie first, then the
// Authorization header, and verifies it. A revoked credential counts as
// invalid.
func (g *Gate) credential(r *http.Request) (*token.Claims, bool) {
	raw := ""
	if cookie, err := r.Cookie(CookieAccess); err == nil {
		raw = cookie.Value
	}
	if raw == "" {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			raw = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if raw == "" {
		return nil, false
	}
	claims, ok := g.codec.VerifyAccess(raw)
	if !ok {
		return nil, false
	}
	if g.denylist != nil && g.denylist.IsRevoked(r.Context(), claims.ID) {
		return nil, false
	}
	return claims, true
}

// resolveSnapshot shields the gate from resolver panics and failures; a
// failed fetch is an authorization failure, never a 500.
func (g *Gate) resolveSnapshot(ctx context.Context, userID int64) (snap *session.Snapshot, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if g.logger != nil {
				g.logger.Error("session resolve panicked", slog.Any("panic", rec))
			}
			snap, err = nil, shared.ErrUnauthorized
		}
	}()
	snap, err = g.resolver.Resolve(ctx, userID)
	if err == nil && snap == nil {
		err = shared.ErrUnauthorized
	}
	return snap, err
}

func (g *Gate) moduleActive(ctx context.Context, moduleID string) bool {
	if g.cache == nil {
		return true
	}
	return g.cache.IsActive(ctx, moduleID)
}

func (g *Gate) lastActive(r *http.Request) (time.Time, bool) {
	cookie, err := r.Cookie(CookieLastActive)
	if err != nil {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(cookie.Value, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}

func (g *Gate) refreshActivity(w http.ResponseWriter) {
	if g.cfg.IdleTimeout <= 0 {
		return
	}
	ttl := g.cfg.ActivityCookieTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	setLastActive(w, g.now(), ttl, g.cfg.SecureCookies)
}

func (g *Gate) redirectToLogin(w http.ResponseWriter, r *http.Request, returnTo string) {
	http.Redirect(w, r, LoginPath+"?returnTo="+url.QueryEscape(returnTo), http.StatusFound)
}

func (g *Gate) identityContext(ctx context.Context, claims *token.Claims) context.Context {
	return shared.ContextWithIdentity(ctx, shared.Identity{
		UserID:  claims.Subject,
		Role:    claims.Role,
		TokenID: claims.ID,
	})
}

func (g *Gate) record(kind string) {
	if g.verdicts != nil {
		g.verdicts(kind)
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
