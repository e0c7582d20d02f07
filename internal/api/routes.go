package api

import (
	"net/http"

	"leadflow/internal/tenant"
)

// Routes is the bare router. Tenant-scoped routes live under /t/{slug}/ and
// are only reachable through the tenant middleware rewrite.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/webhooks/", s.handleWebhook)
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.HandleFunc(tenant.PathPrefix, s.handleTenant)
	return mux
}

// Handler is the full inbound chain: request id, tenant resolution, HTTP
// metrics, router.
func (s *Server) Handler() http.Handler {
	h := s.httpMetrics.Wrap(s.Routes())
	h = tenant.Middleware(s.tenant.Resolver, tenant.MiddlewareOptions{
		Production:    s.tenant.Production,
		CanonicalHost: s.tenant.CanonicalHost,
	}, s.logger)(h)
	return requestID(h)
}
