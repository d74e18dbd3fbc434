package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordCallStarted_IncrementsCounter は通話開始カウンタが増加することを検証する。
func TestRecordCallStarted_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCallStarted()
	c.RecordCallStarted()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "alexlistens_calls_started_total" {
			found = true
			val := mf.GetMetric()[0].GetCounter().GetValue()
			if val != 2 {
				t.Errorf("calls_started_total = %v, want 2", val)
			}
		}
	}
	if !found {
		t.Error("alexlistens_calls_started_total metric not found")
	}
}

// TestRecordCallEnded_IncrementsCounterWithLabel は通話終了カウンタがステータスラベル付きで増加することを検証する。
func TestRecordCallEnded_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCallEnded("ended")
	c.RecordCallEnded("ended")
	c.RecordCallEnded("failed")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "alexlistens_calls_ended_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
			for _, m := range mf.GetMetric() {
				label := m.GetLabel()[0].GetValue()
				val := m.GetCounter().GetValue()
				switch label {
				case "ended":
					if val != 2 {
						t.Errorf("calls_ended_total{status=ended} = %v, want 2", val)
					}
				case "failed":
					if val != 1 {
						t.Errorf("calls_ended_total{status=failed} = %v, want 1", val)
					}
				default:
					t.Errorf("unexpected label value: %s", label)
				}
			}
		}
	}
	if !found {
		t.Error("alexlistens_calls_ended_total metric not found")
	}
}

// TestRecordBilledSeconds_AddsToCounter は課金秒数カウンタが加算されることを検証する。
func TestRecordBilledSeconds_AddsToCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBilledSeconds(120)
	c.RecordBilledSeconds(45)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "alexlistens_billed_seconds_total" {
			found = true
			val := mf.GetMetric()[0].GetCounter().GetValue()
			if val != 165 {
				t.Errorf("billed_seconds_total = %v, want 165", val)
			}
		}
	}
	if !found {
		t.Error("alexlistens_billed_seconds_total metric not found")
	}
}

// TestRecordMemoryFailure_IncrementsCounter は記憶失敗カウンタが増加することを検証する。
func TestRecordMemoryFailure_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordMemoryFailure()
	c.RecordMemoryFailure()
	c.RecordMemoryFailure()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "alexlistens_memory_failures_total" {
			found = true
			val := mf.GetMetric()[0].GetCounter().GetValue()
			if val != 3 {
				t.Errorf("memory_failures_total = %v, want 3", val)
			}
		}
	}
	if !found {
		t.Error("alexlistens_memory_failures_total metric not found")
	}
}

// TestRecordUpstreamLatency_ObservesHistogram は外部サービスレイテンシのヒストグラムに値が記録されることを検証する。
func TestRecordUpstreamLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpstreamLatency("voice", 100*time.Millisecond)
	c.RecordUpstreamLatency("voice", 2*time.Second)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "alexlistens_upstream_latency_seconds" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 2 {
				t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
			}
			// 合計は0.1 + 2.0 = 2.1秒
			if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
				t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
			}
		}
	}
	if !found {
		t.Error("alexlistens_upstream_latency_seconds metric not found")
	}
}

// TestRecordCallsReaped_AddsToCounter は回収通話カウンタが加算されることを検証する。
func TestRecordCallsReaped_AddsToCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCallsReaped(2)
	c.RecordCallsReaped(1)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "alexlistens_calls_reaped_total" {
			found = true
			val := mf.GetMetric()[0].GetCounter().GetValue()
			if val != 3 {
				t.Errorf("calls_reaped_total = %v, want 3", val)
			}
		}
	}
	if !found {
		t.Error("alexlistens_calls_reaped_total metric not found")
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	// いくつかのメトリクスを記録
	c.RecordCallStarted()
	c.RecordCallEnded("ended")
	c.RecordBilledSeconds(60)
	c.RecordUpstreamStatus("embeddings", 200)
	c.RecordUpstreamLatency("voice", 500*time.Millisecond)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	// Prometheus形式のメトリクスが含まれていることを確認
	expectedMetrics := []string{
		"alexlistens_calls_started_total",
		"alexlistens_calls_ended_total",
		"alexlistens_billed_seconds_total",
		"alexlistens_upstream_status_total",
		"alexlistens_upstream_latency_seconds",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestCollector_ImplementsMetricsCollectorInterface はCollectorがMetricsCollectorインターフェースを実装することを検証する。
func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	reg := prometheus.NewRegistry()
	var _ MetricsCollector = NewCollector(reg)
}
