package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は指定名・指定ラベルのメトリクスを探す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestRecordAccessDecision_CountsPerKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAccessDecision("allow")
	c.RecordAccessDecision("allow")
	c.RecordAccessDecision("ownership_violation")

	m := findMetric(t, reg, "campusevent_access_decisions_total", map[string]string{"kind": "allow"})
	if m == nil {
		t.Fatal("allow metric not found")
	}
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("allow = %v, want 2", got)
	}

	m = findMetric(t, reg, "campusevent_access_decisions_total", map[string]string{"kind": "ownership_violation"})
	if m == nil || m.GetCounter().GetValue() != 1 {
		t.Errorf("ownership_violation metric = %v, want 1", m)
	}
}

func TestRecordHTTPStatus_IncrementsByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(http.StatusForbidden)

	m := findMetric(t, reg, "campusevent_http_status_total", map[string]string{"status_code": "403"})
	if m == nil || m.GetCounter().GetValue() != 1 {
		t.Errorf("status 403 metric = %v, want 1", m)
	}
}

func TestRecordNotification_SplitsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordNotification("email", true)
	c.RecordNotification("email", false)
	c.RecordNotification("webhook", false)

	tests := []struct {
		channel, result string
		want            float64
	}{
		{"email", "success", 1},
		{"email", "failure", 1},
		{"webhook", "failure", 1},
	}
	for _, tt := range tests {
		m := findMetric(t, reg, "campusevent_notifications_total", map[string]string{"channel": tt.channel, "result": tt.result})
		if m == nil || m.GetCounter().GetValue() != tt.want {
			t.Errorf("%s/%s = %v, want %v", tt.channel, tt.result, m, tt.want)
		}
	}
}

func TestObserveCacheRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveCacheRequest(true)
	c.ObserveCacheRequest(false)
	c.ObserveCacheRequest(false)

	if m := findMetric(t, reg, "campusevent_cache_requests_total", map[string]string{"result": "miss"}); m == nil || m.GetCounter().GetValue() != 2 {
		t.Errorf("miss = %v, want 2", m)
	}
}

func TestRecordRequestDuration_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequestDuration(150 * time.Millisecond)

	m := findMetric(t, reg, "campusevent_http_request_duration_seconds", nil)
	if m == nil {
		t.Fatal("histogram not found")
	}
	if got := m.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestWorkerCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRemindersSent(3)
	c.RecordEventsPurged(2)

	if m := findMetric(t, reg, "campusevent_reminders_sent_total", nil); m == nil || m.GetCounter().GetValue() != 3 {
		t.Errorf("reminders_sent = %v, want 3", m)
	}
	if m := findMetric(t, reg, "campusevent_events_purged_total", nil); m == nil || m.GetCounter().GetValue() != 2 {
		t.Errorf("events_purged = %v, want 2", m)
	}
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordAccessDecision("authentication_required")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `campusevent_access_decisions_total{kind="authentication_required"} 1`) {
		t.Error("response should contain campusevent_access_decisions_total")
	}
}
