package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetricsCollapsesTenantRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	h := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	for _, p := range []string{"/t/acme/whoami", "/t/globex/whoami"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	got := testutil.ToFloat64(m.requestsTotal.WithLabelValues(http.MethodGet, "/t/{slug}", "418"))
	if got != 2 {
		t.Fatalf("expected 2 tenant requests, got %v", got)
	}
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/healthz":            "/healthz",
		"/v1/events":          "/v1/events",
		"/v1/webhooks/github": "/v1/webhooks/{provider}",
		"/t/acme/campaigns/1": "/t/{slug}",
		"/random/path":        "other",
		"/v1/webhooks/":       "other",
	}
	for in, want := range cases {
		if got := RouteLabel(in); got != want {
			t.Fatalf("RouteLabel(%q)=%q want %q", in, got, want)
		}
	}
}

func TestPipelineMetricsNilSafe(t *testing.T) {
	var d *DeliveryMetrics
	d.Attempt("email", "ok")
	d.Outcome("email", "delivered", time.Second)
	var p *PipelineMetrics
	p.Webhook("github", "push", "ok")
	p.Orchestrated("ACTION_TAKEN", "ok")
	p.CollaboratorFailed("analytics")
	var q *QueueMetrics
	q.Dropped("analytics", 1)
}

func TestDeliveryMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDeliveryMetrics(reg)
	m.Attempt("campaign_email", "transient")
	m.Attempt("campaign_email", "ok")
	m.Outcome("campaign_email", "delivered", 10*time.Millisecond)
	if got := testutil.ToFloat64(m.attempts.WithLabelValues("campaign_email", "transient")); got != 1 {
		t.Fatalf("expected 1 transient attempt, got %v", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("campaign_email", "delivered")); got != 1 {
		t.Fatalf("expected 1 delivered outcome, got %v", got)
	}
}
