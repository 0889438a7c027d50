package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSubmitted(t *testing.T) {
	m := New()
	m.Submitted(KindBulk, 3, 187000)
	m.Submitted(KindSingle, 1, 170000)

	if got := testutil.ToFloat64(m.submissions.WithLabelValues(KindBulk)); got != 1 {
		t.Errorf("bulk submissions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.certificates); got != 4 {
		t.Errorf("certificates = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.fees); got != 357000 {
		t.Errorf("fees = %v, want 357000", got)
	}
}

func TestReconcileRun(t *testing.T) {
	m := New()
	m.ReconcileRun(2*time.Second, 5, 2, 1, 0)
	m.ReconcileRun(time.Second, 1, 1, 0, 1)

	if got := testutil.ToFloat64(m.reconcileConfirmed); got != 6 {
		t.Errorf("confirmed = %v, want 6", got)
	}
	if got := testutil.ToFloat64(m.reconcilePending); got != 1 {
		t.Errorf("pending = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.reconcileErrors.WithLabelValues("tenant")); got != 1 {
		t.Errorf("tenant errors = %v, want 1", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.Submitted(KindSingle, 1, 1)
	m.Failed("build")
	m.Rebuilt()
	m.ReconcileRun(time.Second, 1, 1, 1, 1)
}

func TestHandler(t *testing.T) {
	m := New()
	m.Failed("insufficient_funds")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Result().Body)
	for _, want := range []string{
		`certanchor_anchor_failures_total{reason="insufficient_funds"} 1`,
		"certanchor_uptime_seconds",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
