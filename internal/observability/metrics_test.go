package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("sink-a", "GET", "/health", 200, 12*time.Millisecond)
	RecordSinkStore("sink-a", 2048)
}

func TestUploadMetricsObserve(t *testing.T) {
	m := NewUploadMetrics()
	m.Observe("http", 3, true, 1024, 2, time.Second)
	m.Observe("http", 1, false, 4096, 1, time.Second)

	if got := testutil.ToFloat64(m.Artifacts.WithLabelValues("http", "success")); got != 3 {
		t.Fatalf("unexpected success count: %v", got)
	}
	if got := testutil.ToFloat64(m.Artifacts.WithLabelValues("http", "failure")); got != 1 {
		t.Fatalf("unexpected failure count: %v", got)
	}
	if got := testutil.ToFloat64(m.Attempts); got != 3 {
		t.Fatalf("unexpected attempts: %v", got)
	}
	if got := testutil.ToFloat64(m.Bytes); got != 1024 {
		t.Fatalf("failed runs must not count as sent bytes: %v", got)
	}

	var nilMetrics *UploadMetrics
	nilMetrics.Observe("curl", 1, true, 0, 1, 0)
}

func TestPushUploadMetrics(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewUploadMetrics()
	m.Observe("http", 2, true, 10, 1, time.Millisecond)
	err := PushUploadMetrics(context.Background(), srv.URL, m, map[string]string{"build": "42", "branch": ""})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if !strings.Contains(gotPath, "/job/"+UploadJob) || !strings.Contains(gotPath, "/build/42") {
		t.Fatalf("unexpected push path: %s", gotPath)
	}
	if strings.Contains(gotPath, "branch") {
		t.Fatalf("empty grouping label should be skipped: %s", gotPath)
	}
	if len(gotBody) == 0 {
		t.Fatalf("expected metrics body")
	}
}

func TestPushUploadMetricsNoGateway(t *testing.T) {
	if err := PushUploadMetrics(context.Background(), " ", NewUploadMetrics(), nil); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}
