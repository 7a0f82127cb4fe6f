package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestWebhookEventsTotal_Labels(t *testing.T) {
	before := counterValue(t, WebhookEventsTotal.WithLabelValues("applied"))
	WebhookEventsTotal.WithLabelValues("applied").Inc()
	after := counterValue(t, WebhookEventsTotal.WithLabelValues("applied"))

	if after != before+1 {
		t.Fatalf("expected counter to increase by 1, got %v -> %v", before, after)
	}
}

func TestDisputesResolvedTotal_ByAction(t *testing.T) {
	before := counterValue(t, DisputesResolvedTotal.WithLabelValues("REFUND_CLIENT"))
	DisputesResolvedTotal.WithLabelValues("REFUND_CLIENT").Inc()
	DisputesResolvedTotal.WithLabelValues("PAY_WORKER").Inc()
	after := counterValue(t, DisputesResolvedTotal.WithLabelValues("REFUND_CLIENT"))

	if after != before+1 {
		t.Fatalf("expected REFUND_CLIENT counter to increase by 1, got %v -> %v", before, after)
	}
}

func TestStatusBucket(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{500, "5xx"},
		{101, "1xx"},
	}
	for _, tt := range tests {
		if got := statusBucket(tt.code); got != tt.want {
			t.Errorf("statusBucket(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}
