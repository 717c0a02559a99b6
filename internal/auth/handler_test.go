package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/promanage/promanage/internal/auth"
	"github.com/promanage/promanage/internal/gate"
	"github.com/promanage/promanage/internal/permstore"
	"github.com/promanage/promanage/internal/shared"
	"github.com/promanage/promanage/internal/token"
)

type stubRepo struct {
	user    *auth.User
	resets  map[string]int64
	updated map[int64]string
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreatePasswordReset(ctx context.Context, resetToken string, userID int64, expiresAt time.Time) error {
	if s.resets == nil {
		s.resets = make(map[string]int64)
	}
	s.resets[resetToken] = userID
	return nil
}

func (s *stubRepo) ResetPassword(ctx context.Context, resetToken, hash string) error {
	id, ok := s.resets[resetToken]
	if !ok {
		return shared.ErrNotFound
	}
	delete(s.resets, resetToken)
	if s.updated == nil {
		s.updated = make(map[int64]string)
	}
	s.updated[id] = hash
	return nil
}

func (s *stubRepo) DeleteExpiredPasswordResets(ctx context.Context) (int64, error) {
	return 0, nil
}

type stubRoles struct{ role string }

func (s *stubRoles) FindUserByID(ctx context.Context, id int64) (permstore.User, error) {
	return permstore.User{ID: id, Role: s.role}, nil
}

type recordingMailer struct {
	to     string
	tokens []string
}

func (m *recordingMailer) EnqueueResetMail(ctx context.Context, to, resetToken string) error {
	m.to = to
	m.tokens = append(m.tokens, resetToken)
	return nil
}

func activeUser(t *testing.T, password string) *auth.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &auth.User{ID: 7, Email: "ops@test.local", Name: "Ops", PasswordHash: string(hash), IsActive: true}
}

// mountAuthRoutes mounts the handler the way the application router does.
func mountAuthRoutes(h *auth.Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/auth", h.MountRoutes)
	return r
}

func newHandler(t *testing.T, repo auth.Repository, mailer auth.MailEnqueuer, denylist token.Denylist) (*auth.Handler, *token.Codec) {
	t.Helper()
	codec := token.NewCodec("handler-secret", time.Hour, 7*24*time.Hour, time.Minute)
	service := auth.NewService(repo, &stubRoles{role: "operator"}, codec, denylist, mailer, nil)
	return auth.NewHandler(nil, service, codec, false), codec
}

func TestLoginSetsCookiesAndReturnsTokens(t *testing.T) {
	handler, codec := newHandler(t, &stubRepo{user: activeUser(t, "correctpass1")}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"ops@test.local","password":"correctpass1"}`))
	res := httptest.NewRecorder()
	mountAuthRoutes(handler).ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	cookies := map[string]*http.Cookie{}
	for _, c := range res.Result().Cookies() {
		cookies[c.Name] = c
	}
	for _, name := range []string{gate.CookieAccess, gate.CookieRefresh, gate.CookieUser, gate.CookieLastActive} {
		require.Contains(t, cookies, name)
		assert.NotEmpty(t, cookies[name].Value)
	}

	claims, ok := codec.VerifyAccess(cookies[gate.CookieAccess].Value)
	require.True(t, ok)
	assert.Equal(t, "7", claims.Subject)
	assert.Equal(t, "operator", claims.Role)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	handler, _ := newHandler(t, &stubRepo{user: activeUser(t, "correctpass1")}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"ops@test.local","password":"wrongpass99"}`))
	res := httptest.NewRecorder()
	mountAuthRoutes(handler).ServeHTTP(res, req)

	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLoginUnknownAccountAnswersLikeBadPassword(t *testing.T) {
	handler, _ := newHandler(t, &stubRepo{user: activeUser(t, "correctpass1")}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"ghost@test.local","password":"correctpass1"}`))
	res := httptest.NewRecorder()
	mountAuthRoutes(handler).ServeHTTP(res, req)

	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Contains(t, res.Body.String(), "invalid credentials",
		"unknown accounts answer exactly like bad passwords")
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	user := activeUser(t, "correctpass1")
	user.IsActive = false
	handler, _ := newHandler(t, &stubRepo{user: user}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"ops@test.local","password":"correctpass1"}`))
	res := httptest.NewRecorder()
	mountAuthRoutes(handler).ServeHTTP(res, req)

	assert.Equal(t, http.StatusUnauthorized, res.Code,
		"inactive accounts answer exactly like bad passwords")
}

func TestRefreshRotatesAccessToken(t *testing.T) {
	handler, codec := newHandler(t, &stubRepo{user: activeUser(t, "correctpass1")}, nil, nil)
	refresh, err := codec.IssueRefresh("7")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: gate.CookieRefresh, Value: refresh})
	res := httptest.NewRecorder()
	mountAuthRoutes(handler).ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "accessToken")
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	handler, codec := newHandler(t, &stubRepo{}, nil, nil)
	access, err := codec.IssueAccess("7", "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: gate.CookieRefresh, Value: access})
	res := httptest.NewRecorder()
	mountAuthRoutes(handler).ServeHTTP(res, req)

	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLogoutClearsCookiesAndRevokes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	denylist := token.NewRedisDenylist(client, nil)

	handler, codec := newHandler(t, &stubRepo{}, nil, denylist)
	access, err := codec.IssueAccess("7", "")
	require.NoError(t, err)
	claims, ok := codec.VerifyAccess(access)
	require.True(t, ok)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: gate.CookieAccess, Value: access})
	res := httptest.NewRecorder()
	mountAuthRoutes(handler).ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	assert.True(t, denylist.IsRevoked(context.Background(), claims.ID))

	for _, c := range res.Result().Cookies() {
		assert.Less(t, c.MaxAge, 0, "cookie %s must be expired", c.Name)
		assert.Empty(t, c.Value)
	}
}

func TestForgotPasswordQueuesMailOnlyForKnownAccounts(t *testing.T) {
	mailer := &recordingMailer{}
	repo := &stubRepo{user: activeUser(t, "correctpass1")}
	handler, _ := newHandler(t, repo, mailer, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/forgot-password",
		strings.NewReader(`{"email":"ops@test.local"}`))
	res := httptest.NewRecorder()
	mountAuthRoutes(handler).ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, mailer.tokens, 1)

	// Unknown account: identical response, no mail.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/forgot-password",
		strings.NewReader(`{"email":"ghost@test.local"}`))
	res = httptest.NewRecorder()
	mountAuthRoutes(handler).ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, mailer.tokens, 1)
}

func TestResetPasswordConsumesToken(t *testing.T) {
	mailer := &recordingMailer{}
	repo := &stubRepo{user: activeUser(t, "correctpass1")}
	handler, _ := newHandler(t, repo, mailer, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/forgot-password",
		strings.NewReader(`{"email":"ops@test.local"}`))
	res := httptest.NewRecorder()
	mountAuthRoutes(handler).ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Len(t, mailer.tokens, 1)

	body := `{"token":"` + mailer.tokens[0] + `","password":"newpassword1"}`
	req = httptest.NewRequest(http.MethodPost, "/api/auth/reset-password", strings.NewReader(body))
	res = httptest.NewRecorder()
	mountAuthRoutes(handler).ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	assert.NotEmpty(t, repo.updated[7])

	// Second use fails.
	res = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/auth/reset-password", strings.NewReader(body))
	mountAuthRoutes(handler).ServeHTTP(res, req)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestWhoami(t *testing.T) {
	handler, codec := newHandler(t, &stubRepo{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/whoami", nil)
	res := httptest.NewRecorder()
	mountAuthRoutes(handler).ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"authenticated":false`)

	access, err := codec.IssueAccess("7", "operator")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/auth/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	res = httptest.NewRecorder()
	mountAuthRoutes(handler).ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"authenticated":true`)
	assert.Contains(t, res.Body.String(), `"operator"`)
}
