// Package cookies sets and clears the session cookies.
package cookies

import (
	"net/http"
	"time"
)

const (
	AccessToken  = "access_token"
	RefreshToken = "refresh_token"
)

type Jar struct {
	secure     bool
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// New returns a jar whose cookies are Secure when secure is set.
func New(secure bool, accessTTL, refreshTTL time.Duration) Jar {
	return Jar{secure: secure, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

func (j Jar) SetAccess(w http.ResponseWriter, token string) {
	http.SetCookie(w, j.cookie(AccessToken, token, j.accessTTL))
}

func (j Jar) SetRefresh(w http.ResponseWriter, token string) {
	http.SetCookie(w, j.cookie(RefreshToken, token, j.refreshTTL))
}

func (j Jar) SetPair(w http.ResponseWriter, access, refresh string) {
	j.SetAccess(w, access)
	j.SetRefresh(w, refresh)
}

// Clear expires both session cookies using the attributes they were set with.
func (j Jar) Clear(w http.ResponseWriter) {
	for _, name := range []string{AccessToken, RefreshToken} {
		c := j.cookie(name, "", 0)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

// Value returns the named cookie's value or "" when absent.
func Value(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}

	return c.Value
}

func (j Jar) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteStrictMode,
	}
}
