package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersByResult(t *testing.T) {
	t.Parallel()
	m := New()
	m.ObserveLoad(time.Second, nil)
	m.ObserveLoad(time.Second, errors.New("boom"))
	m.ReuseLoad()
	m.ObserveGeneration("txt2img", time.Second, nil)
	m.Reject("busy")
	m.Reject("busy")
	m.SetBusy(true)

	if got := testutil.ToFloat64(m.loads.WithLabelValues("ok")); got != 1 {
		t.Fatalf("loads ok = %v", got)
	}
	if got := testutil.ToFloat64(m.loads.WithLabelValues("reused")); got != 1 {
		t.Fatalf("loads reused = %v", got)
	}
	if got := testutil.ToFloat64(m.rejections.WithLabelValues("busy")); got != 2 {
		t.Fatalf("rejections busy = %v", got)
	}
	if got := testutil.ToFloat64(m.busy); got != 1 {
		t.Fatalf("busy = %v", got)
	}
}

func TestHandlerExposesNamespace(t *testing.T) {
	t.Parallel()
	m := New()
	m.ImageSaved()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "cudiffusion_images_saved_total 1") {
		t.Fatalf("metrics body missing counter:\n%s", body)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.ObserveLoad(time.Second, nil)
	m.ObserveGeneration("img2img", time.Second, nil)
	m.Reject("busy")
	m.SetBusy(true)
	m.ImageSaved()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("nil metrics handler status = %d, want 404", rec.Code)
	}
}
