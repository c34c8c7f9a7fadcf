package ipernity

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bluescreen10/ipernity/api"
)

// ErrNoFrob is returned by SetToken when the callback request carries no
// frob.
var ErrNoFrob = errors.New("ipernity: callback without frob")

// Authorize sends the user to Ipernity to grant perms to the application
// and records nextURL as the page to come back to after the callback. A nil
// perms uses Config.Permissions, an empty nextURL the current request URI.
func (ip *Ipernity) Authorize(w http.ResponseWriter, r *http.Request, perms api.Permissions, nextURL string) {
	if perms == nil {
		perms = ip.cfg.Permissions
	}
	if nextURL == "" {
		nextURL = requestURI(r)
	}
	ip.logger.Debugw("authorizing", "permissions", perms, "next", nextURL)

	ip.State(r).Set(keyNextURL, nextURL)
	http.Redirect(w, r, ip.client.AuthURL(perms), http.StatusFound)
}

// SetToken exchanges frob for a token and stores it in the session. An
// empty frob is read from the request's "frob" query parameter. The session
// identifier is renewed when the session supports it. When login integration
// is on the token's user is recorded as logged in.
func (ip *Ipernity) SetToken(r *http.Request, frob string) (api.Token, error) {
	if frob == "" {
		frob = r.URL.Query().Get("frob")
	}
	if frob == "" {
		return api.Token{}, ErrNoFrob
	}
	ip.logger.Debugw("exchanging frob", "frob", frob)

	tok, err := ip.client.GetToken(r.Context(), frob)
	if err != nil {
		return api.Token{}, fmt.Errorf("getting token: %w", err)
	}

	st := ip.State(r)
	st.Renew()
	st.Set(keyToken, tok)
	if ip.cfg.Login {
		st.Set(keyUserID, tok.User.UserID)
	}
	return tok, nil
}

// Logout removes the token and everything else the extension stored in the
// request's session.
func (ip *Ipernity) Logout(r *http.Request) {
	ip.logger.Debugw("logging out")
	ip.API(r).Logout()
}

// CallbackHandler serves the web authentication callback: it stores the
// token for the frob and redirects to the URL recorded by Authorize, or "/"
// when there is none.
func (ip *Ipernity) CallbackHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip.logger.Debugw("callback called")
		if _, err := ip.SetToken(r, ""); err != nil {
			ip.logger.Errorw("callback failed", "error", err)
			ip.onError(w, r, err)
			return
		}

		next, _ := ip.State(r).Pop(keyNextURL, "/").(string)
		http.Redirect(w, r, next, http.StatusFound)
	})
}

// requestURI returns the URI the client asked for, unaffected by prefix
// stripping in routers.
func requestURI(r *http.Request) string {
	if r.RequestURI != "" {
		return r.RequestURI
	}
	return r.URL.RequestURI()
}

// localURL returns u when it is a path on this site, and "" otherwise, so
// that user-supplied "next" parameters cannot redirect off-site. Browsers
// drop tabs and newlines from URLs, so any control byte rejects u.
func localURL(u string) string {
	if strings.ContainsFunc(u, func(r rune) bool { return r < 0x20 || r == 0x7f }) {
		return ""
	}
	if !strings.HasPrefix(u, "/") || strings.HasPrefix(u, "//") || strings.HasPrefix(u, "/\\") {
		return ""
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed.Scheme != "" || parsed.Host != "" {
		return ""
	}
	return u
}
