package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Record outcomes used as the "outcome" label of uwb_records_total.
const (
	OutcomeAccepted = "accepted"
	OutcomeSkipped  = "skipped"
)

// IngestCollector bundles the daemon metrics. A nil collector ignores every call.
type IngestCollector struct {
	gatherer prometheus.Gatherer

	Records         *prometheus.CounterVec
	ActiveWorkers   *prometheus.GaugeVec
	ReplaysFinished prometheus.Counter
	KnownAnchors    prometheus.Gauge
	TrackedSources  prometheus.Gauge

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
}

// NewIngestCollector registers the metrics against reg, the global registry when nil.
func NewIngestCollector(reg prometheus.Registerer) (*IngestCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	records, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uwb_records_total",
		Help: "Telemetry records per source, labeled by outcome.",
	}, []string{"source", "outcome"}))
	if err != nil {
		return nil, err
	}

	active, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "uwb_active_workers",
		Help: "Running ingestion workers by kind.",
	}, []string{"kind"}))
	if err != nil {
		return nil, err
	}

	replays, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uwb_replays_completed_total",
		Help: "Replays that reached the end of their file.",
	}))
	if err != nil {
		return nil, err
	}

	anchors, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "uwb_known_anchors",
		Help: "Distinct anchors in the aggregate.",
	}))
	if err != nil {
		return nil, err
	}

	sources, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "uwb_tracked_sources",
		Help: "Sources in the aggregate.",
	}))
	if err != nil {
		return nil, err
	}

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uwb_rpc_requests_total",
		Help: "Handled control RPCs, labeled by service, method and gRPC status code.",
	}, []string{"service", "method", "code"}))
	if err != nil {
		return nil, err
	}

	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "uwb_rpc_duration_seconds",
		Help:    "Control RPC latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
	}, []string{"service", "method"}))
	if err != nil {
		return nil, err
	}

	return &IngestCollector{
		gatherer:        gatherer,
		Records:         records,
		ActiveWorkers:   active,
		ReplaysFinished: replays,
		KnownAnchors:    anchors,
		TrackedSources:  sources,
		RPCRequests:     requests,
		RPCDurations:    durations,
	}, nil
}

// RecordMeasurement counts an accepted record.
func (c *IngestCollector) RecordMeasurement(sourceID string) {
	if c == nil {
		return
	}

	c.Records.WithLabelValues(sourceID, OutcomeAccepted).Inc()
}

// RecordSkipped counts a malformed record.
func (c *IngestCollector) RecordSkipped(sourceID string) {
	if c == nil {
		return
	}

	c.Records.WithLabelValues(sourceID, OutcomeSkipped).Inc()
}

// RecordReplayEnded counts a replay that reached end of file.
func (c *IngestCollector) RecordReplayEnded() {
	if c == nil {
		return
	}

	c.ReplaysFinished.Inc()
}

// SetActiveWorkers sets the running worker gauge for kind.
func (c *IngestCollector) SetActiveWorkers(kind string, n int) {
	if c == nil {
		return
	}

	c.ActiveWorkers.WithLabelValues(kind).Set(float64(n))
}

// SetAnchorCount sets the known anchor gauge.
func (c *IngestCollector) SetAnchorCount(n int) {
	if c == nil {
		return
	}

	c.KnownAnchors.Set(float64(n))
}

// SetSourceCount sets the tracked source gauge.
func (c *IngestCollector) SetSourceCount(n int) {
	if c == nil {
		return
	}

	c.TrackedSources.Set(float64(n))
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *IngestCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}

		c.observeRPC(fullMethod, start, err)

		return resp, err
	}
}

// StreamServerInterceptor records streams the same way once they end.
func (c *IngestCollector) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}

		c.observeRPC(fullMethod, start, err)

		return err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *IngestCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}

	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *IngestCollector) observeRPC(fullMethod string, start time.Time, err error) {
	if c == nil {
		return
	}

	service, method := SplitMethod(fullMethod)

	c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
	c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
}

// SplitMethod parses "/pkg.Service/Method" into its short service and method
// names, returning "unknown" for parts it cannot find.
func SplitMethod(fullMethod string) (string, string) {
	const unknown = "unknown"

	parts := strings.Split(strings.TrimPrefix(fullMethod, "/"), "/")
	if len(parts) < 2 {
		return unknown, unknown
	}

	service, method := parts[len(parts)-2], parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 {
		service = service[dot+1:]
	}

	if service == "" {
		service = unknown
	}

	if method == "" {
		method = unknown
	}

	return service, method
}

// register adds collector to reg, returning the already registered one when
// an identical collector exists.
func register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return collector, err
	}

	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return collector, fmt.Errorf("collector already registered with incompatible type: %w", err)
	}

	return existing, nil
}
