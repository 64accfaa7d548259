package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"

	api "github.com/oshokin/uwb-telemetry/internal/api/grpc/ingest"
	"github.com/oshokin/uwb-telemetry/internal/aggregate"
	"github.com/oshokin/uwb-telemetry/internal/config"
	"github.com/oshokin/uwb-telemetry/internal/logger"
	"github.com/oshokin/uwb-telemetry/internal/observability"
	"github.com/oshokin/uwb-telemetry/internal/record"
	repo "github.com/oshokin/uwb-telemetry/internal/repository/snapshot"
	"github.com/oshokin/uwb-telemetry/internal/service/ingest"
	"github.com/oshokin/uwb-telemetry/internal/service/render"
	"github.com/oshokin/uwb-telemetry/internal/worker"
)

// Options controls the uwb-ingest process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
	// MetricsAddress overrides the /metrics listen address.
	MetricsAddress string
	// SnapshotFile overrides the anchor snapshot path.
	SnapshotFile string
	// LogLevel overrides the configured log level.
	LogLevel string
	// Live and Replay add slots to start, replacing configured slots with the same index.
	Live   []config.LiveSlot
	Replay []config.ReplaySlot
}

// ErrNoServerAddress indicates missing server configuration.
var ErrNoServerAddress = errors.New("no server address configured")

// Run starts the ingestion daemon and blocks until ctx is canceled or the gRPC server stops.
func Run(ctx context.Context, opts *Options) error {
	// Load configuration first, the logger depends on it.
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}

	level, _ := logger.ParseLogLevel(settings.LogLevel)
	format, _ := logger.ParseFormat(settings.LogFormat)
	logger.Setup(level, format)

	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "uwb-ingest")

	warnOtherInstances(ctx)

	// Determine listen address: CLI argument overrides config port extraction.
	listenAddress, err := resolveListenAddress(settings.ServerAddress, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     settings.Tracing.Enabled,
		ServiceName: settings.Tracing.ServiceName,
		Exporter:    settings.Tracing.Exporter,
		Endpoint:    settings.Tracing.Endpoint,
		SampleRatio: settings.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("initialise tracing: %w", err)
	}

	defer observability.ShutdownWithTimeout(ctx, shutdownTracing)

	collector, err := observability.NewIngestCollector(nil)
	if err != nil {
		return fmt.Errorf("initialise metrics: %w", err)
	}

	// Restore the anchors of the previous run.
	var repository repo.Repository
	if settings.SnapshotFile != "" {
		repository = repo.NewFileRepository(settings.SnapshotFile)
	}

	state, err := newState(ctx, repository,
		aggregate.WithPalette(settings.Palette),
		aggregate.WithMetricsRecorder(collector),
	)
	if err != nil {
		return fmt.Errorf("initialise state: %w", err)
	}

	ingestOptions, err := serviceOptions(settings)
	if err != nil {
		return err
	}

	svc := ingest.New(ctx, ingestOptions, ingest.WithState(state), ingest.WithMetrics(collector))

	// Setup TCP listener before starting workers, a busy port fails fast.
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		_ = svc.Close(ctx)

		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	// Cancelled on return so the ticker ends even when Serve fails.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	autostart(ctx, svc, settings)

	tickerDone := make(chan struct{})

	go func() {
		defer close(tickerDone)

		_ = render.NewTicker(state, render.LogRenderer{}, settings.RenderInterval.Std()).Run(ctx)
	}()

	metricsServer := serveMetrics(ctx, settings.MetricsAddress, collector)

	// Create and configure gRPC server with the ingestion API.
	apiServer := api.NewServer(svc)
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			api.TracingUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
			api.AuditUnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(collector.StreamServerInterceptor()),
	)
	api.RegisterIngestServiceServer(grpcServer, apiServer)

	logger.InfoKV(ctx, "Ingestion daemon listening",
		"listen_address", listenAddress,
		"metrics_address", settings.MetricsAddress,
		"snapshot_file", settings.SnapshotFile,
	)

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		apiServer.Close()
		grpcServer.GracefulStop()
		close(done)
	}()

	serveErr := grpcServer.Serve(lis)
	if serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
		serveErr = fmt.Errorf("serve gRPC: %w", serveErr)

		cancel()
	} else {
		serveErr = nil
		<-done
	}

	<-tickerDone

	return errors.Join(serveErr, shutdown(ctx, settings, svc, repository, state, metricsServer))
}

// shutdown stops every worker, then saves the anchors and closes the metrics endpoint.
func shutdown(
	ctx context.Context,
	settings *config.Config,
	svc *ingest.Service,
	repository repo.Repository,
	state *aggregate.State,
	metricsServer *http.Server,
) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settings.Timeout.Std())
	defer cancel()

	stats := svc.EventStats()

	err := svc.Close(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Workers did not stop in time", "error", err)
	}

	if saveErr := saveAnchors(ctx, repository, state); saveErr != nil {
		logger.ErrorKV(ctx, "Failed to persist anchors", "error", saveErr)
		err = errors.Join(err, saveErr)
	}

	if metricsServer != nil {
		_ = metricsServer.Shutdown(ctx)
	}

	logger.InfoKV(ctx, "Ingestion daemon stopped",
		"events_published", stats.Published,
		"events_dropped", stats.Dropped,
	)

	return err
}

// loadSettings reads the settings file and applies command line overrides.
func loadSettings(opts *Options) (*config.Config, error) {
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if opts.MetricsAddress != "" {
		settings.MetricsAddress = opts.MetricsAddress
	}

	if opts.SnapshotFile != "" {
		settings.SnapshotFile = opts.SnapshotFile
	}

	if opts.LogLevel != "" {
		settings.LogLevel = opts.LogLevel
	}

	settings.Live = mergeSlots(settings.Live, opts.Live, func(s config.LiveSlot) int { return s.Slot })
	settings.Replay = mergeSlots(settings.Replay, opts.Replay, func(s config.ReplaySlot) int { return s.Slot })

	if err = config.Validate(settings); err != nil {
		return nil, fmt.Errorf("validate settings: %w", err)
	}

	return settings, nil
}

// mergeSlots returns configured slots with overrides replacing the same index.
func mergeSlots[T any](configured, overrides []T, index func(T) int) []T {
	if len(overrides) == 0 {
		return configured
	}

	replaced := make(map[int]struct{}, len(overrides))
	for _, o := range overrides {
		replaced[index(o)] = struct{}{}
	}

	merged := make([]T, 0, len(configured)+len(overrides))

	for _, c := range configured {
		if _, ok := replaced[index(c)]; !ok {
			merged = append(merged, c)
		}
	}

	return append(merged, overrides...)
}

// serviceOptions converts validated settings into ingestion options.
func serviceOptions(settings *config.Config) (ingest.Options, error) {
	layout, err := record.ParseLayout(settings.ReplayLayout)
	if err != nil {
		return ingest.Options{}, fmt.Errorf("replay layout: %w", err)
	}

	mode, err := worker.ParseTimestampMode(settings.TimestampMode)
	if err != nil {
		return ingest.Options{}, fmt.Errorf("timestamp mode: %w", err)
	}

	return ingest.Options{
		LogDirectory: settings.LogDirectory,
		ReadTimeout:  settings.ReadTimeout.Std(),
		Handshake: worker.Handshake{
			Settle:       settings.Handshake.Settle.Std(),
			CommandGap:   settings.Handshake.CommandGap.Std(),
			ActivateWait: settings.Handshake.ActivateWait.Std(),
		},
		ReplayInterval: settings.ReplayInterval.Std(),
		ReplayLayout:   layout,
		TimestampMode:  mode,
		MaxLiveSlots:   settings.MaxLiveSlots,
		MaxReplaySlots: settings.MaxReplaySlots,
	}, nil
}

// autostart starts the configured slots. Failures are logged and the daemon keeps running.
func autostart(ctx context.Context, svc *ingest.Service, settings *config.Config) {
	for _, l := range settings.Live {
		err := svc.StartLive(ctx, ingest.LiveRequest{
			Slot:          l.Slot,
			Port:          l.Port,
			BaudRate:      l.BaudRate,
			EnableLogging: l.Logging,
			Color:         l.Color,
		})
		if err != nil {
			logger.ErrorKV(ctx, "Failed to start live slot", "slot", l.Slot, "port", l.Port, "error", err)
		}
	}

	for _, r := range settings.Replay {
		err := svc.StartReplay(ctx, ingest.ReplayRequest{
			Slot:     r.Slot,
			Path:     r.File,
			SourceID: r.SourceID,
			Color:    r.Color,
		})
		if err != nil {
			logger.ErrorKV(ctx, "Failed to start replay slot", "slot", r.Slot, "file", r.File, "error", err)
		}
	}
}

// serveMetrics exposes /metrics on addr. An empty address disables the endpoint.
func serveMetrics(ctx context.Context, addr string, collector *observability.IngestCollector) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WarnKV(ctx, "Metrics server exited", "error", err)
		}
	}()

	logger.InfoKV(ctx, "Serving Prometheus metrics", "metrics_address", addr)

	return srv
}

// resolveListenAddress determines the listen address for the gRPC server.
// If override is provided, uses it directly. Otherwise extracts port from configAddr.
func resolveListenAddress(configAddr, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	// Bind every interface on the configured port ("lab-pc:7070" -> ":7070").
	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid server address format %q: %w", configAddr, err)
	}

	return ":" + port, nil
}
