package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                  "/",
		"/metrics":                          "/metrics",
		"/v1/documents":                     "/v1/documents",
		"/v1/documents?status=pending":      "/v1/documents",
		"/v1/documents/01J0ABC":             "/v1/documents/:id",
		"/v1/documents/01J0ABC/history":     "/v1/documents/:id/history",
		"/v1/documents/01J0ABC/transitions": "/v1/documents/:id/transitions",
		"/v1/documents/01J0ABC/extra":       "/v1/documents/01J0ABC/extra",
		"/v1/revisions/01J0ABC/start":       "/v1/revisions/:id/start",
		"/v1/notes/01J0ABC/resolve":         "/v1/notes/:id/resolve",
		"/v1/notes/01J0ABC/resolve?x=1":     "/v1/notes/:id/resolve",
		"/v1/stats":                         "/v1/stats",
		"/v1/auth/token":                    "/v1/auth/token",
		"/v1/documents/01J0ABC/notes/extra": "/v1/documents/01J0ABC/notes/extra",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestObserveTransition(t *testing.T) {
	before := testutil.ToFloat64(transitionsTotal.WithLabelValues("pending", "under_review", "ok"))
	ObserveTransition("pending", "under_review", "ok")
	after := testutil.ToFloat64(transitionsTotal.WithLabelValues("pending", "under_review", "ok"))
	if after != before+1 {
		t.Fatalf("counter = %v, want %v", after, before+1)
	}
	ObserveTransition("", "approved", "not_found")
	if got := testutil.ToFloat64(transitionsTotal.WithLabelValues("unknown", "approved", "not_found")); got < 1 {
		t.Fatalf("unknown source not counted")
	}
}

func TestInstrumentRecordsStatus(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/documents/abc", nil))
	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/documents/:id", "418"))
	if got < 1 {
		t.Fatalf("request not counted under canonical path")
	}
}

func TestReady(t *testing.T) {
	SetReady(true)
	if !Ready() {
		t.Fatal("expected ready")
	}
	SetReady(false)
	if Ready() {
		t.Fatal("expected not ready")
	}
}

func TestSetOutputWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	l := Component("test")
	l.Info().Str("document_id", "D1").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v (%q)", err, buf.String())
	}
	if entry["component"] != "test" || entry["document_id"] != "D1" || entry["service"] != "folio" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}
