package observability_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/spec-kit/loan-query-service/internal/observability"
)

func TestMetricsNilSafe(t *testing.T) {
	var m *observability.Metrics
	m.RecordRequest("/queries", "GET", 200, time.Millisecond)
	m.RecordBroadcastFailure("sales", "queue_full")
	m.PushConnected(1)
}

func TestMetricsRegistry(t *testing.T) {
	m := observability.NewMetrics()
	m.RecordTicketIssued()
	m.RecordTicketIssued()
	m.RecordStoreFallback("save")

	count, err := testutil.GatherAndCount(m.Registry,
		"loanquery_approval_tickets_issued_total", "loanquery_store_fallbacks_total")
	gt.NoError(t, err).Required()
	gt.Value(t, count).Equal(2)
}
