package ipernity

import (
	"net/http"
	"net/url"
)

// User is the person behind the request, as known from the session's token.
type User struct {
	ID       string
	Username string
	Realname string

	authenticated bool
}

// IsAuthenticated reports whether the user logged in with Ipernity.
func (u *User) IsAuthenticated() bool {
	return u.authenticated
}

// IsAnonymous is the opposite of IsAuthenticated.
func (u *User) IsAnonymous() bool {
	return !u.authenticated
}

// CurrentUser returns the user owning the session's token, or an anonymous
// user. With login integration on, the token must belong to the user
// recorded at callback time; a token without user information or for a
// different user is dropped and the session logged out.
func (ip *Ipernity) CurrentUser(r *http.Request) *User {
	a := ip.API(r)
	tok := a.Token()
	if tok == nil {
		return &User{}
	}

	if ip.cfg.Login {
		id := a.State().GetString(keyUserID, "")
		if id == "" {
			return &User{}
		}
		if tok.User.UserID == "" {
			ip.logger.Errorw("no user info for API token, dumping token")
			a.Logout()
			return &User{}
		}
		if tok.User.UserID != id {
			ip.logger.Errorw("user mismatch, dumping token", "given", id, "token", tok.User.UserID)
			a.Logout()
			return &User{}
		}
	}

	return &User{
		ID:            tok.User.UserID,
		Username:      tok.User.Username,
		Realname:      tok.User.Realname,
		authenticated: true,
	}
}

// LoginURL returns the path of the login route.
func (ip *Ipernity) LoginURL() string {
	return ip.cfg.LoginURLPrefix + "/login"
}

// LoginRequired redirects anonymous users to the login route, passing the
// current URL as "next".
func (ip *Ipernity) LoginRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip.CurrentUser(r).IsAuthenticated() {
			next.ServeHTTP(w, r)
			return
		}
		target := ip.LoginURL() + "?" + url.Values{"next": {requestURI(r)}}.Encode()
		http.Redirect(w, r, target, http.StatusFound)
	})
}

// LoginHandler starts authorization with Config.Permissions, returning to
// the "next" query parameter when it is a local URL.
func (ip *Ipernity) LoginHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip.logger.Debugw("login called")
		next := localURL(r.URL.Query().Get("next"))
		if next == "" {
			next = "/"
		}
		ip.Authorize(w, r, ip.cfg.Permissions, next)
	})
}

// LogoutHandler logs the user out and redirects to "/".
func (ip *Ipernity) LogoutHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip.Logout(r)
		http.Redirect(w, r, "/", http.StatusFound)
	})
}
