package handlers

import (
	"net/http"
	"time"

	"github.com/nkiryanov/accounts/internal/models"
)

const refreshCookieName = "refreshToken"

type refreshCookies struct {
	secure bool
	now    func() time.Time
}

// Refresh token lives only in HttpOnly cookie, scripts never see it
func (c refreshCookies) set(w http.ResponseWriter, refresh models.IssuedToken) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    refresh.Value,
		Path:     "/",
		MaxAge:   int(refresh.ExpiresAt.Sub(c.now()).Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (c refreshCookies) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (c refreshCookies) get(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
