package tenant

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"leadflow/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type seen struct {
	called bool
	path   string
	header string
	id     Identity
	hasID  bool
	logged string
}

func recorder(s *seen) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.called = true
		s.path = r.URL.Path
		s.header = r.Header.Get(HeaderSlug)
		s.id, s.hasID = FromContext(r.Context())
		s.logged = observability.Tenant(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func serve(opts Options, mw MiddlewareOptions, req *http.Request) (*httptest.ResponseRecorder, *seen) {
	s := &seen{}
	h := Middleware(NewResolver(opts), mw, zap.NewNop())(recorder(s))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, s
}

func TestMiddlewareResolvedRewritesPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://acme.example.com/campaigns/spring", nil)
	req.Header.Set(HeaderSlug, "evil")

	rec, s := serve(Options{}, MiddlewareOptions{Production: true, CanonicalHost: "www.example.com"}, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, s.called)
	assert.Equal(t, "/t/acme/campaigns/spring", s.path)
	assert.Equal(t, "acme", s.header)
	assert.True(t, s.hasID)
	assert.Equal(t, Identity{Slug: "acme", Source: SourceSubdomain}, s.id)
	assert.Equal(t, "acme", s.logged)
}

func TestMiddlewareHeaderSourceLooksTheSame(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://app.example.com/campaigns/spring", nil)
	req.Header.Set("X-Tenant", "acme")

	_, s := serve(Options{TrustedHeader: "X-Tenant"}, MiddlewareOptions{}, req)
	require.True(t, s.called)
	assert.Equal(t, "/t/acme/campaigns/spring", s.path)
	assert.Equal(t, "acme", s.header)
	assert.Equal(t, SourceHeader, s.id.Source)
}

func TestMiddlewareStripsSpoofedHeaderOnUnresolved(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://localhost:3000/dashboard", nil)
	req.Header.Set(HeaderSlug, "victim")

	_, s := serve(Options{}, MiddlewareOptions{Production: true, CanonicalHost: "www.example.com"}, req)
	require.True(t, s.called)
	assert.Equal(t, "/dashboard", s.path)
	assert.Empty(t, s.header)
	assert.False(t, s.hasID)
}

func TestMiddlewareRedirectsInProduction(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://www.example.com.evil.io/pricing?plan=pro", nil)
	rec, s := serve(Options{Reserved: []string{"www"}}, MiddlewareOptions{Production: true, CanonicalHost: "www.example.com"}, req)
	assert.False(t, s.called)
	assert.Equal(t, http.StatusPermanentRedirect, rec.Code)
	assert.Equal(t, "https://www.example.com/pricing?plan=pro", rec.Header().Get("Location"))

	post := httptest.NewRequest(http.MethodPost, "http://example.com/signup", nil)
	rec, _ = serve(Options{}, MiddlewareOptions{Production: true, CanonicalHost: "www.example.com"}, post)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
}

func TestMiddlewareCanonicalHostPassesThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://www.example.com/pricing", nil)
	rec, s := serve(Options{}, MiddlewareOptions{Production: true, CanonicalHost: "www.example.com"}, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, s.called)
	assert.Equal(t, "/pricing", s.path)
}

func TestMiddlewareDevelopmentPassesThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/pricing", nil)
	rec, s := serve(Options{}, MiddlewareOptions{CanonicalHost: "www.example.com"}, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, s.called)
}

func TestMiddlewareRejectsInvalidTrustedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://app.example.com/dashboard", nil)
	req.Header.Set("X-Tenant", "../admin")
	rec, s := serve(Options{TrustedHeader: "X-Tenant"}, MiddlewareOptions{}, req)
	assert.False(t, s.called)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_TENANT")
}

func TestMiddlewareRejectionLogCarriesRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := Middleware(NewResolver(Options{TrustedHeader: "X-Tenant"}), MiddlewareOptions{}, zap.New(core))(recorder(&seen{}))
	req := httptest.NewRequest(http.MethodGet, "http://app.example.com/dashboard", nil)
	req.Header.Set("X-Tenant", "Bad Slug")
	req = req.WithContext(observability.WithRequestID(req.Context(), "req-t1"))

	h.ServeHTTP(httptest.NewRecorder(), req)
	entries := logs.FilterMessage("Rejected tenant header").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-t1", entries[0].ContextMap()["request_id"])
}

func TestMiddlewareBypassedPaths(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://acme.example.com/v1/webhooks/github", nil)
	req.Header.Set(HeaderSlug, "spoof")
	_, s := serve(Options{}, MiddlewareOptions{Production: true, CanonicalHost: "www.example.com"}, req)
	require.True(t, s.called)
	assert.Equal(t, "/v1/webhooks/github", s.path)
	assert.Empty(t, s.header)
	assert.False(t, s.hasID)
}

func TestMiddlewareUnresolvedCannotReachTenantRoutes(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://localhost/t/acme/whoami", nil)
	rec, s := serve(Options{}, MiddlewareOptions{}, req)
	assert.False(t, s.called)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFromContextEmpty(t *testing.T) {
	_, ok := FromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
