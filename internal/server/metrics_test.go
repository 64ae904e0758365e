package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newMetricsTestServer builds a Server backed by a fresh isolated registry so
// tests do not pollute prometheus.DefaultRegisterer.
func newMetricsTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s := &Server{
		cfg:     &Config{Port: 8080},
		log:     slog.Default(),
		metrics: newServerMetrics(reg),
	}
	return s, reg
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	_, reg := newMetricsTestServer(t)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_QuestionCounterIncremented(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	// Simulate a successful question request via the counter directly.
	s.metrics.questionRequestsTotal.WithLabelValues("ok").Inc()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	found := false
	for _, mf := range mfs {
		if mf.GetName() == "docqa_question_requests_total" {
			for _, m := range mf.GetMetric() {
				for _, lp := range m.GetLabel() {
					if lp.GetName() == "outcome" && lp.GetValue() == "ok" {
						if m.GetCounter().GetValue() != 1 {
							t.Errorf("want counter=1, got %v", m.GetCounter().GetValue())
						}
						found = true
					}
				}
			}
		}
	}
	if !found {
		t.Error("docqa_question_requests_total{outcome=\"ok\"} not found in gathered metrics")
	}
}

func Test_Metrics_IngestChunksCounter(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	s.metrics.ingestChunksTotal.Add(12)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, mf := range mfs {
		if mf.GetName() == "docqa_ingest_chunks_total" {
			v := mf.GetMetric()[0].GetCounter().GetValue()
			if v != 12 {
				t.Errorf("want chunks_total=12, got %v", v)
			}
			return
		}
	}
	t.Error("docqa_ingest_chunks_total not found in gathered metrics")
}

func Test_Metrics_MiddlewareBoundsHandlerLabel(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	h := s.metricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	// Arbitrary unmatched paths must share one label value, not mint one
	// series per path.
	for _, p := range []string{"/api/v1/unknown", "/favicon.ico", "/../../etc/passwd"} {
		req := httptest.NewRequest(http.MethodGet, p, nil)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, mf := range mfs {
		if mf.GetName() != "docqa_http_requests_total" {
			continue
		}
		if n := len(mf.GetMetric()); n != 1 {
			t.Fatalf("want 1 series for unmatched paths, got %d", n)
		}
		m := mf.GetMetric()[0]
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "handler" && lp.GetValue() != "other" {
				t.Errorf("handler label: want %q, got %q", "other", lp.GetValue())
			}
		}
		if got := m.GetCounter().GetValue(); got != 3 {
			t.Errorf("want counter=3, got %v", got)
		}
		return
	}
	t.Error("docqa_http_requests_total not found in gathered metrics")
}

func Test_RouteLabel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want string
	}{
		{"/api/v1/document/index", "/api/v1/document/index"},
		{"/api/v1/chat/question/", "/api/v1/chat/question"},
		{"/metrics", "/metrics"},
		{"/", "other"},
		{"/api/v1/bogus", "other"},
	}
	for _, tc := range cases {
		if got := routeLabel(tc.path); got != tc.want {
			t.Errorf("routeLabel(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func Test_Metrics_MiddlewareRecordsStatusCode(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	h := s.metricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/document/list", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	found := false
	for _, mf := range mfs {
		if mf.GetName() != "docqa_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var code, method string
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "code":
					code = lp.GetValue()
				case "method":
					method = lp.GetValue()
				}
			}
			if code == "404" && method == http.MethodGet {
				found = true
			}
		}
	}
	if !found {
		t.Error("docqa_http_requests_total{code=\"404\"} not found in gathered metrics")
	}
}
