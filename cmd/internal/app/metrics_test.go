package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetrics_WrapCountsByRoutePattern(t *testing.T) {
	t.Parallel()

	m := NewMetrics()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /identities/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.Handle("/metrics", m.Handler())

	h := m.Wrap(mux)

	for _, id := range []string{"abc", "def"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/identities/"+id, nil))
		if rr.Code != http.StatusNotFound {
			t.Fatalf("unexpected status: %d", rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics endpoint: %d", rr.Code)
	}

	body := rr.Body.String()
	// Both requests collapse onto the route pattern, not the raw URLs.
	want := `brink_http_requests_total{method="GET",route="GET /identities/{id}",status="404"} 2`
	if !strings.Contains(body, want) {
		t.Fatalf("missing %q in metrics output:\n%s", want, body)
	}
	if strings.Contains(body, "/identities/abc") {
		t.Fatalf("raw URL leaked into metric labels")
	}
}

func TestMetrics_UnmatchedRoute(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	h := m.Wrap(mux)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), `route="unmatched"`) {
		t.Fatalf("expected unmatched route label")
	}
}
