package tenant

import (
	"encoding/json"
	"net/http"
	"strings"

	"leadflow/internal/observability"

	"go.uber.org/zap"
)

// HeaderSlug is the normalized header downstream handlers read the tenant from.
const HeaderSlug = "X-Tenant-Slug"

// PathPrefix is prepended to the path of resolved requests.
const PathPrefix = "/t/"

type MiddlewareOptions struct {
	Production    bool
	CanonicalHost string
}

// Middleware resolves the tenant for every request before it reaches next.
func Middleware(resolver *Resolver, opts MiddlewareOptions, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("tenant")
	canonical := Hostname(opts.CanonicalHost)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Del(HeaderSlug)
			res := resolver.Resolve(r.Host, r.URL.Path, r.Header)

			switch res.State {
			case StateResolved:
				next.ServeHTTP(w, annotate(r, res.Identity))
			case StateRejected:
				observability.Logger(r.Context(), logger).Warn("Rejected tenant header",
					zap.String("host", r.Host),
					zap.String("path", r.URL.Path),
					zap.String("reason", res.Reason),
				)
				writeRejection(w)
			case StateUnresolved:
				if opts.Production && !res.Local() && canonical != "" && Hostname(r.Host) != canonical {
					target := "https://" + canonical + r.URL.RequestURI()
					observability.Logger(r.Context(), logger).Debug("Redirecting unresolved host",
						zap.String("host", r.Host),
						zap.String("reason", res.Reason),
						zap.String("location", target),
					)
					http.Redirect(w, r, target, redirectStatus(r.Method))
					return
				}
				if strings.HasPrefix(r.URL.Path, PathPrefix) {
					// Tenant-scoped routes are only reachable through resolution.
					http.NotFound(w, r)
					return
				}
				next.ServeHTTP(w, r)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func annotate(r *http.Request, id Identity) *http.Request {
	out := r.Clone(WithIdentity(observability.WithTenant(r.Context(), id.Slug), id))
	out.Header.Set(HeaderSlug, id.Slug)
	out.URL.Path = PathPrefix + id.Slug + r.URL.Path
	if r.URL.RawPath != "" {
		out.URL.RawPath = PathPrefix + id.Slug + r.URL.RawPath
	}
	return out
}

func redirectStatus(method string) int {
	if method == http.MethodGet || method == http.MethodHead {
		return http.StatusPermanentRedirect
	}
	return http.StatusTemporaryRedirect
}

func writeRejection(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":      "INVALID_TENANT",
			"message":   "invalid tenant identifier",
			"details":   nil,
			"retryable": false,
		},
	})
}
