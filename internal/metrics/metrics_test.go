package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は指定名・ラベルのメトリクスを返す。見つからない場合はnil。
func findMetric(t *testing.T, reg *prometheus.Registry, name, labelName, labelValue string) *dto.Metric {
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
			if labelName == "" {
				return m
			}
			for _, lp := range m.GetLabel() {
				if lp.GetName() == labelName && lp.GetValue() == labelValue {
					return m
				}
			}
		}
	}
	return nil
}

// TestRecordRewrite_CountsByResult は結果ラベルごとにカウントされることを検証する。
func TestRecordRewrite_CountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRewrite(ResultSuccess)
	c.RecordRewrite(ResultSuccess)
	c.RecordRewrite(ResultInsufficient)

	tests := []struct {
		result string
		want   float64
	}{
		{ResultSuccess, 2},
		{ResultInsufficient, 1},
	}
	for _, tt := range tests {
		m := findMetric(t, reg, "humanize_rewrite_total", "result", tt.result)
		if m == nil {
			t.Fatalf("humanize_rewrite_total{result=%q} not found", tt.result)
		}
		if got := m.GetCounter().GetValue(); got != tt.want {
			t.Errorf("rewrite_total{%s} = %v, want %v", tt.result, got, tt.want)
		}
	}
}

// TestRecordCreditsSpent_AddsCredits は消費クレジットが加算されることを検証する。
func TestRecordCreditsSpent_AddsCredits(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCreditsSpent(1)
	c.RecordCreditsSpent(3)

	m := findMetric(t, reg, "humanize_credits_spent_total", "", "")
	if m == nil {
		t.Fatal("humanize_credits_spent_total not found")
	}
	if got := m.GetCounter().GetValue(); got != 4 {
		t.Errorf("credits_spent_total = %v, want 4", got)
	}
}

// TestRecordUpstreamLatency_ObservesHistogram はレイテンシがヒストグラムに記録されることを検証する。
func TestRecordUpstreamLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpstreamLatency(300 * time.Millisecond)
	c.RecordUpstreamLatency(2 * time.Second)

	m := findMetric(t, reg, "humanize_upstream_latency_seconds", "", "")
	if m == nil {
		t.Fatal("humanize_upstream_latency_seconds not found")
	}
	h := m.GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample count = %d, want 2", h.GetSampleCount())
	}
	if sum := h.GetSampleSum(); sum < 2.29 || sum > 2.31 {
		t.Errorf("sample sum = %v, want 2.3", sum)
	}
}

// TestRecordHTTPStatus_LabelsByCode はステータスコードごとにカウントされることを検証する。
func TestRecordHTTPStatus_LabelsByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(403)
	c.RecordHTTPStatus(403)

	m := findMetric(t, reg, "humanize_http_status_total", "status_code", "403")
	if m == nil {
		t.Fatal("humanize_http_status_total{status_code=403} not found")
	}
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("http_status_total{403} = %v, want 2", got)
	}
}

// TestRecordWorkerRows_LabelsByJob はジョブごとに処理行数が加算されることを検証する。
func TestRecordWorkerRows_LabelsByJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordWorkerRows("renewal", 5)
	c.RecordWorkerRows("renewal", 2)

	m := findMetric(t, reg, "humanize_worker_rows_total", "job", "renewal")
	if m == nil {
		t.Fatal("humanize_worker_rows_total{job=renewal} not found")
	}
	if got := m.GetCounter().GetValue(); got != 7 {
		t.Errorf("worker_rows_total{renewal} = %v, want 7", got)
	}
}

// TestNewCollector_DuplicateRegistrationPanics は同一レジストリへの二重登録がpanicすることを検証する。
func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	_ = NewCollector(reg)
}
