package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/rhuss/cadence/pkg/observability"
)

// Rule requires Scope for requests whose method and path match.
type Rule struct {
	Method string // empty matches every method
	Path   string // path prefix
	Scope  string
}

func (r Rule) matches(req *http.Request) bool {
	if r.Method != "" && !strings.EqualFold(r.Method, req.Method) {
		return false
	}
	return strings.HasPrefix(req.URL.Path, r.Path)
}

// RequireScopes rejects requests with 403 when the identity in the context
// lacks the scope of the first matching rule. Requests matching no rule
// pass unchanged. It must run after Middleware.
func RequireScopes(rules []Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(rules) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, rule := range rules {
				if !rule.matches(r) {
					continue
				}
				id := IdentityFromContext(r.Context())
				if !id.HasScope(rule.Scope) {
					slog.Warn("missing scope",
						"subject", SubjectFromContext(r.Context()),
						"scope", rule.Scope,
						"path", r.URL.Path,
					)
					observability.ScopeRejectedTotal.WithLabelValues(rule.Scope).Inc()
					writeError(w, http.StatusForbidden, "permission_error", ErrForbidden.Error())
					return
				}
				break
			}
			next.ServeHTTP(w, r)
		})
	}
}
