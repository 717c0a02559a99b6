package gate

import (
	"net/http"
	"strconv"
	"time"
)

// Cookie names for the credential set. The access and refresh cookies are
// HTTP-only; the identity marker and activity timestamp are readable by the
// UI.
const (
	CookieAccess     = "pm_access_token"
	CookieRefresh    = "pm_refresh_token"
	CookieUser       = "pm_user"
	CookieLastActive = "pm_last_active"
)

func newCookie(name, value string, maxAge time.Duration, httpOnly, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: httpOnly,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// SetAuthCookies writes the full credential cookie set after a successful
// login or refresh.
func SetAuthCookies(w http.ResponseWriter, access, refresh, userID string, accessTTL, refreshTTL time.Duration, secure bool) {
	http.SetCookie(w, newCookie(CookieAccess, access, accessTTL, true, secure))
	if refresh != "" {
		http.SetCookie(w, newCookie(CookieRefresh, refresh, refreshTTL, true, secure))
	}
	http.SetCookie(w, newCookie(CookieUser, userID, refreshTTL, false, secure))
	http.SetCookie(w, newCookie(CookieLastActive, strconv.FormatInt(time.Now().Unix(), 10), refreshTTL, false, secure))
}

// ClearAuthCookies expires all four credential cookies.
func ClearAuthCookies(w http.ResponseWriter, secure bool) {
	for _, c := range []struct {
		name     string
		httpOnly bool
	}{
		{CookieAccess, true},
		{CookieRefresh, true},
		{CookieUser, false},
		{CookieLastActive, false},
	} {
		cookie := newCookie(c.name, "", 0, c.httpOnly, secure)
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
	}
}

func setLastActive(w http.ResponseWriter, now time.Time, maxAge time.Duration, secure bool) {
	http.SetCookie(w, newCookie(CookieLastActive, strconv.FormatInt(now.Unix(), 10), maxAge, false, secure))
}
