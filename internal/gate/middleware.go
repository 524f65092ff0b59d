package gate

import (
	"net/http"
	"net/url"

	"github.com/sabha-admin/sabha/internal/identity"
)

// DenialRenderer writes the 403 response for a denied outcome.
type DenialRenderer func(w http.ResponseWriter, r *http.Request, out Outcome)

func plainDenial(w http.ResponseWriter, r *http.Request, out Outcome) {
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

// Require returns chi-compatible middleware that gates next on (module, action).
// The principal is read from the request context.
func (g *Gate) Require(module, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			out := g.Check(r.Context(), identity.FromContext(r.Context()), module, action)
			switch {
			case out.Discarded:
				return
			case out.State == Unauthenticated:
				target := g.loginPath
				if r.Method == http.MethodGet {
					target += "?next=" + url.QueryEscape(r.URL.RequestURI())
				}
				http.Redirect(w, r, target, http.StatusSeeOther)
			case out.Allowed():
				next.ServeHTTP(w, r)
			default:
				g.denied(w, r, out)
			}
		})
	}
}
