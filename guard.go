package ipernity

import (
	"net/http"

	"github.com/bluescreen10/ipernity/api"
)

// RequirePermissions returns a middleware that runs the wrapped handler only
// when the session's token grants perms (Config.Permissions when nil).
// Otherwise the user is sent through Authorize and comes back to the
// current URL once the callback completes.
func (ip *Ipernity) RequirePermissions(perms api.Permissions) Middleware {
	if perms == nil {
		perms = ip.cfg.Permissions
	}
	return MiddlewareFunc(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip.API(r).HasPermissions(perms) {
				next.ServeHTTP(w, r)
				return
			}
			ip.logger.Debugw("insufficient permissions", "required", perms, "path", r.URL.Path)
			ip.Authorize(w, r, perms, "")
		})
	})
}
