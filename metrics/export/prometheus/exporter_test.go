package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	identity "github.com/pulseapp/identity"
)

type fakeSource struct {
	snapshot identity.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() identity.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewFromSource(fakeSource{
		snapshot: identity.MetricsSnapshot{
			Counters:   map[identity.MetricID]uint64{},
			Histograms: map[identity.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output, got:\n%s", got)
	}
}

func TestRenderIncludesCountersAndHistogram(t *testing.T) {
	exp := NewFromSource(fakeSource{
		snapshot: identity.MetricsSnapshot{
			Counters: map[identity.MetricID]uint64{
				identity.MetricLoginSuccess:    7,
				identity.MetricCaptchaRejected: 2,
			},
			Histograms: map[identity.MetricID][]uint64{
				identity.MetricAuthenticateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 3,
	})

	out := exp.Render()
	for _, want := range []string{
		"identity_login_success_total 7",
		"identity_captcha_rejected_total 2",
		"identity_register_success_total 0",
		"# TYPE identity_authenticate_latency_seconds histogram",
		"identity_authenticate_latency_seconds_bucket{le=\"0.005\"} 1",
		"identity_authenticate_latency_seconds_bucket{le=\"0.05\"} 10",
		"identity_authenticate_latency_seconds_bucket{le=\"+Inf\"} 36",
		"identity_authenticate_latency_seconds_count 36",
		"identity_audit_dropped_total 3",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestNilExporterRendersNothing(t *testing.T) {
	var nilExporter *Exporter
	if nilExporter.Render() != "" {
		t.Fatal("nil exporter should render nothing")
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewFromSource(fakeSource{
		snapshot: identity.MetricsSnapshot{
			Counters:   map[identity.MetricID]uint64{identity.MetricLogout: 1},
			Histograms: map[identity.MetricID][]uint64{},
		},
	})

	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("unexpected content type %q", got)
	}
	if !strings.Contains(rec.Body.String(), "identity_logout_total 1") {
		t.Fatalf("unexpected body:\n%s", rec.Body.String())
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewFromSource(fakeSource{
		snapshot: identity.MetricsSnapshot{
			Counters: map[identity.MetricID]uint64{
				identity.MetricRegisterSuccess:     120,
				identity.MetricLoginSuccess:        1000,
				identity.MetricLoginFailure:        40,
				identity.MetricTFAPinSuccess:       300,
				identity.MetricSessionCreated:      1000,
				identity.MetricAuthenticateSuccess: 90000,
			},
			Histograms: map[identity.MetricID][]uint64{
				identity.MetricAuthenticateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
