package httpapi

import (
	"bytes"
	"net/http"
	"testing"

	"omnid/pkg/types"
)

func TestMetricsUseRoutePattern(t *testing.T) {
	h := newTestMux(Services{Models: &fakeModels{models: []types.Model{{ID: "acme/a.gguf"}}}})
	if w := do(t, h, http.MethodGet, "/v1/models/acme/a.gguf", ""); w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	w := do(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", w.Code)
	}
	body := w.Body.Bytes()
	if !bytes.Contains(body, []byte("omnid_http_requests_total")) {
		t.Fatalf("request counter missing")
	}
	if !bytes.Contains(body, []byte(`path="/v1/models/*"`)) {
		t.Fatalf("expected route pattern label, got:\n%s", body)
	}
	if bytes.Contains(body, []byte(`path="/v1/models/acme/a.gguf"`)) {
		t.Fatalf("raw path leaked into labels")
	}
}

func TestBackpressureCounted(t *testing.T) {
	IncrementBackpressure("")
	IncrementBackpressure("queue")
	w := do(t, newTestMux(Services{}), http.MethodGet, "/metrics", "")
	body := w.Body.Bytes()
	for _, want := range []string{`omnid_http_backpressure_total{reason="unspecified"}`, `omnid_http_backpressure_total{reason="queue"}`} {
		if !bytes.Contains(body, []byte(want)) {
			t.Fatalf("missing %s", want)
		}
	}
}
