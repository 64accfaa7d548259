package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const startLiveMethod = "/uwb.ingest.v1.IngestService/StartLive"

func newCollector(t *testing.T) (*IngestCollector, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()
	collector, err := NewIngestCollector(reg)
	require.NoError(t, err)

	return collector, reg
}

// TestIngestCollector_Counters checks the ingestion metrics hooks.
func TestIngestCollector_Counters(t *testing.T) {
	t.Parallel()

	collector, _ := newCollector(t)

	collector.RecordMeasurement("COM4")
	collector.RecordMeasurement("COM4")
	collector.RecordSkipped("COM4")
	collector.RecordReplayEnded()
	collector.SetActiveWorkers("serial", 2)
	collector.SetAnchorCount(4)
	collector.SetSourceCount(3)

	require.InDelta(t, 2, testutil.ToFloat64(collector.Records.WithLabelValues("COM4", OutcomeAccepted)), 0)
	require.InDelta(t, 1, testutil.ToFloat64(collector.Records.WithLabelValues("COM4", OutcomeSkipped)), 0)
	require.InDelta(t, 1, testutil.ToFloat64(collector.ReplaysFinished), 0)
	require.InDelta(t, 2, testutil.ToFloat64(collector.ActiveWorkers.WithLabelValues("serial")), 0)
	require.InDelta(t, 4, testutil.ToFloat64(collector.KnownAnchors), 0)
	require.InDelta(t, 3, testutil.ToFloat64(collector.TrackedSources), 0)
}

// TestIngestCollector_NilIsNoop makes sure a nil collector can be passed around.
func TestIngestCollector_NilIsNoop(t *testing.T) {
	t.Parallel()

	var collector *IngestCollector

	require.NotPanics(t, func() {
		collector.RecordMeasurement("COM4")
		collector.RecordSkipped("COM4")
		collector.RecordReplayEnded()
		collector.SetActiveWorkers("csv", 1)
		collector.SetAnchorCount(1)
		collector.SetSourceCount(1)

		_, err := collector.UnaryServerInterceptor()(context.Background(), nil, nil,
			func(context.Context, any) (any, error) { return "ok", nil })
		require.NoError(t, err)
	})
}

// TestIngestCollector_RegisterTwice reuses collectors already in the registry.
func TestIngestCollector_RegisterTwice(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()

	first, err := NewIngestCollector(reg)
	require.NoError(t, err)

	second, err := NewIngestCollector(reg)
	require.NoError(t, err)

	second.RecordReplayEnded()
	require.InDelta(t, 1, testutil.ToFloat64(first.ReplaysFinished), 0)
}

// TestUnaryServerInterceptor records code and latency per method.
func TestUnaryServerInterceptor(t *testing.T) {
	t.Parallel()

	collector, reg := newCollector(t)
	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: startLiveMethod}

	resp, err := interceptor(context.Background(), struct{}{}, info,
		func(context.Context, any) (any, error) { return "ok", nil })
	require.NoError(t, err)
	require.Equal(t, "ok", resp)

	_, err = interceptor(context.Background(), struct{}{}, info,
		func(context.Context, any) (any, error) { return nil, status.Error(codes.FailedPrecondition, "busy") })
	require.Error(t, err)

	require.InDelta(t, 1, testutil.ToFloat64(collector.RPCRequests.WithLabelValues("IngestService", "StartLive", "OK")), 0)
	require.InDelta(t, 1,
		testutil.ToFloat64(collector.RPCRequests.WithLabelValues("IngestService", "StartLive", "FailedPrecondition")), 0)
	require.Equal(t, uint64(2), histogramSampleCount(t, reg, "uwb_rpc_duration_seconds", map[string]string{
		"service": "IngestService",
		"method":  "StartLive",
	}))
}

// TestStreamServerInterceptor counts finished streams.
func TestStreamServerInterceptor(t *testing.T) {
	t.Parallel()

	collector, _ := newCollector(t)
	info := &grpc.StreamServerInfo{FullMethod: "/uwb.ingest.v1.IngestService/Watch", IsServerStream: true}

	err := collector.StreamServerInterceptor()(nil, nil, info, func(any, grpc.ServerStream) error {
		return status.Error(codes.Canceled, "client gone")
	})
	require.Error(t, err)
	require.InDelta(t, 1, testutil.ToFloat64(collector.RPCRequests.WithLabelValues("IngestService", "Watch", "Canceled")), 0)
}

// TestHandler exposes the registered metrics.
func TestHandler(t *testing.T) {
	t.Parallel()

	collector, _ := newCollector(t)
	collector.SetAnchorCount(4)
	collector.RecordMeasurement("csv-2")
	collector.SetActiveWorkers("csv", 1)

	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	require.Contains(t, body, "uwb_known_anchors 4")
	require.Contains(t, body, `uwb_records_total{outcome="accepted",source="csv-2"} 1`)
	require.Contains(t, body, `uwb_active_workers{kind="csv"} 1`)
}

// TestSplitMethod covers full and partial method names.
func TestSplitMethod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		service string
		method  string
	}{
		{in: startLiveMethod, service: "IngestService", method: "StartLive"},
		{in: "Svc/Call", service: "Svc", method: "Call"},
		{in: "", service: "unknown", method: "unknown"},
		{in: "/only", service: "unknown", method: "unknown"},
		{in: "/pkg.Svc/", service: "Svc", method: "unknown"},
	}

	for _, tt := range tests {
		service, method := SplitMethod(tt.in)
		require.Equal(t, tt.service, service, tt.in)
		require.Equal(t, tt.method, method, tt.in)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	families, err := gatherer.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}

		for _, m := range mf.GetMetric() {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}

	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	matched := 0

	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}

	return matched == len(want)
}
