package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/uwb-telemetry/internal/aggregate"
	"github.com/oshokin/uwb-telemetry/internal/logger"
	"github.com/oshokin/uwb-telemetry/internal/record"
)

// Config holds the settings of the ingestion daemon and its control client.
type Config struct {
	// ServerAddress is the gRPC address of the ingestion API.
	ServerAddress string `yaml:"server_addr" toml:"server_addr"`
	// MetricsAddress is where /metrics is served. Empty disables the endpoint.
	MetricsAddress string `yaml:"metrics_addr,omitempty" toml:"metrics_addr,omitempty"`
	// Timeout bounds control RPCs and worker shutdown.
	Timeout Duration `yaml:"timeout" toml:"timeout"`
	// LogLevel is a zap level name.
	LogLevel string `yaml:"log_level" toml:"log_level"`
	// LogFormat is "console" or "json".
	LogFormat string `yaml:"log_format" toml:"log_format"`
	// LogDirectory receives capture files of live slots with logging enabled.
	LogDirectory string `yaml:"log_directory" toml:"log_directory"`
	// SnapshotFile keeps the known anchor set across restarts. Empty disables it.
	SnapshotFile string `yaml:"snapshot_file,omitempty" toml:"snapshot_file,omitempty"`
	// RenderInterval is the cadence of the render ticker.
	RenderInterval Duration `yaml:"render_interval" toml:"render_interval"`
	// ReadTimeout bounds one serial read and therefore live stop latency.
	ReadTimeout Duration `yaml:"read_timeout" toml:"read_timeout"`
	// ReplayInterval is the pause after each replayed record.
	ReplayInterval Duration `yaml:"replay_interval" toml:"replay_interval"`
	// ReplayLayout is the record layout of replayed files, see record.ParseLayout.
	ReplayLayout string `yaml:"replay_layout" toml:"replay_layout"`
	// TimestampMode is "wall" or "elapsed" for live capture.
	TimestampMode string `yaml:"timestamp_mode" toml:"timestamp_mode"`
	// MaxLiveSlots is the number of serial slots.
	MaxLiveSlots int `yaml:"max_live_slots" toml:"max_live_slots"`
	// MaxReplaySlots is the number of replay slots.
	MaxReplaySlots int `yaml:"max_replay_slots" toml:"max_replay_slots"`
	// Handshake configures the device activation sequence.
	Handshake Handshake `yaml:"handshake" toml:"handshake"`
	// Palette is the ordered list of colors handed to new sources.
	Palette []string `yaml:"palette,omitempty" toml:"palette,omitempty"`
	// Tracing configures OpenTelemetry export of control RPCs.
	Tracing Tracing `yaml:"tracing" toml:"tracing"`
	// Live lists serial slots started with the daemon.
	Live []LiveSlot `yaml:"live,omitempty" toml:"live,omitempty"`
	// Replay lists replay slots started with the daemon.
	Replay []ReplaySlot `yaml:"replay,omitempty" toml:"replay,omitempty"`
}

// Handshake holds the waits of the device activation sequence.
type Handshake struct {
	// Settle is the wait after opening the port, before the first byte.
	Settle Duration `yaml:"settle" toml:"settle"`
	// CommandGap is the wait after each carriage return.
	CommandGap Duration `yaml:"command_gap" toml:"command_gap"`
	// ActivateWait is the wait after the "lec" command.
	ActivateWait Duration `yaml:"activate_wait" toml:"activate_wait"`
}

// Tracing holds OpenTelemetry settings.
type Tracing struct {
	Enabled     bool    `yaml:"enabled" toml:"enabled"`
	Exporter    string  `yaml:"exporter" toml:"exporter"`
	Endpoint    string  `yaml:"endpoint,omitempty" toml:"endpoint,omitempty"`
	SampleRatio float64 `yaml:"sample_ratio" toml:"sample_ratio"`
	ServiceName string  `yaml:"service_name" toml:"service_name"`
}

// LiveSlot is a serial slot started at boot.
type LiveSlot struct {
	Slot     int    `yaml:"slot" toml:"slot"`
	Port     string `yaml:"port" toml:"port"`
	BaudRate int    `yaml:"baud_rate,omitempty" toml:"baud_rate,omitempty"`
	Logging  bool   `yaml:"logging" toml:"logging"`
	Color    string `yaml:"color,omitempty" toml:"color,omitempty"`
}

// ReplaySlot is a replay slot started at boot.
type ReplaySlot struct {
	Slot     int    `yaml:"slot" toml:"slot"`
	File     string `yaml:"file" toml:"file"`
	SourceID string `yaml:"source_id,omitempty" toml:"source_id,omitempty"`
	Color    string `yaml:"color,omitempty" toml:"color,omitempty"`
}

const (
	// DefaultConfigFilename is the default settings file.
	DefaultConfigFilename = "uwb-settings.yaml"
	// DefaultSnapshotFilename is the default anchor snapshot file.
	DefaultSnapshotFilename = "uwb-anchors.json"
	// DefaultLogDirectory is where capture files go unless configured.
	DefaultLogDirectory = "logs"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second
	// DefaultRenderInterval matches the redraw timer of the desktop viewer.
	DefaultRenderInterval = 10 * time.Millisecond
	// DefaultReadTimeout is the serial read timeout.
	DefaultReadTimeout = time.Second
	// DefaultReplayInterval is the pause between replayed records.
	DefaultReplayInterval = 100 * time.Millisecond
	// DefaultSettle is the wait between opening the port and the first command.
	DefaultSettle = 2 * time.Second
	// DefaultCommandGap is the wait after each carriage return.
	DefaultCommandGap = 500 * time.Millisecond
	// DefaultActivateWait is the wait after the activation command.
	DefaultActivateWait = 100 * time.Millisecond
	// DefaultBaudRate is the baud rate of the ranging tags.
	DefaultBaudRate = 115200
	// DefaultMaxSlots is the number of slots of each kind.
	DefaultMaxSlots = 4

	// TimestampWall stamps live lines with the UTC wall clock.
	TimestampWall = "wall"
	// TimestampElapsed stamps live lines with seconds since capture start.
	TimestampElapsed = "elapsed"

	// ExporterStdout prints spans to stdout.
	ExporterStdout = "stdout"
	// ExporterOTLP ships spans over OTLP/gRPC.
	ExporterOTLP = "otlp"
	// DefaultServiceName is the tracing service name.
	DefaultServiceName = "uwb-ingest"

	// DefaultFilePermissions is the default file permission for written files.
	DefaultFilePermissions = 0o600
	// DefaultDirPermissions is the default permission for created directories.
	DefaultDirPermissions = 0o750
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errServerSocketRequired is returned when server address is missing.
	errServerSocketRequired = errors.New("server address must be provided")
)

// Load reads configuration from the provided path and validates it.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config

	if isTOML(path) {
		err = toml.Unmarshal(contents, &cfg)
	} else {
		err = yaml.Unmarshal(contents, &cfg)
	}

	if err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save validates cfg and writes it to path in the format picked by the extension.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)

	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}

	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the settings and fills defaults in place.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.ServerAddress == "" {
		return errServerSocketRequired
	}

	if _, err := net.ResolveTCPAddr("tcp", settings.ServerAddress); err != nil {
		return fmt.Errorf("invalid server socket: %w", err)
	}

	if settings.MetricsAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", settings.MetricsAddress); err != nil {
			return fmt.Errorf("invalid metrics socket: %w", err)
		}
	}

	if _, ok := logger.ParseLogLevel(settings.LogLevel); !ok {
		return fmt.Errorf("unknown log level %q", settings.LogLevel)
	}

	if _, ok := logger.ParseFormat(settings.LogFormat); !ok {
		return fmt.Errorf("unknown log format %q", settings.LogFormat)
	}

	if _, err := record.ParseLayout(settings.ReplayLayout); err != nil {
		return fmt.Errorf("invalid replay layout: %w", err)
	}

	applyDefaults(settings)

	switch settings.TimestampMode {
	case TimestampWall, TimestampElapsed:
	default:
		return fmt.Errorf("unknown timestamp mode %q", settings.TimestampMode)
	}

	if err := validateHandshake(&settings.Handshake); err != nil {
		return err
	}

	if err := validateTracing(&settings.Tracing); err != nil {
		return err
	}

	return validateSlots(settings)
}

func applyDefaults(s *Config) {
	setDuration(&s.Timeout, DefaultTimeout)
	setDuration(&s.RenderInterval, DefaultRenderInterval)
	setDuration(&s.ReadTimeout, DefaultReadTimeout)
	setDuration(&s.ReplayInterval, DefaultReplayInterval)
	setDuration(&s.Handshake.Settle, DefaultSettle)
	setDuration(&s.Handshake.CommandGap, DefaultCommandGap)
	setDuration(&s.Handshake.ActivateWait, DefaultActivateWait)

	if s.LogDirectory == "" {
		s.LogDirectory = DefaultLogDirectory
	}

	if s.LogLevel == "" {
		s.LogLevel = "info"
	}

	if s.LogFormat == "" {
		s.LogFormat = string(logger.FormatConsole)
	}

	if s.ReplayLayout == "" {
		s.ReplayLayout = record.LayoutCSV.String()
	}

	s.TimestampMode = strings.ToLower(strings.TrimSpace(s.TimestampMode))
	if s.TimestampMode == "" {
		s.TimestampMode = TimestampWall
	}

	if s.MaxLiveSlots <= 0 {
		s.MaxLiveSlots = DefaultMaxSlots
	}

	if s.MaxReplaySlots <= 0 {
		s.MaxReplaySlots = DefaultMaxSlots
	}

	if len(s.Palette) == 0 {
		s.Palette = slices.Clone(aggregate.DefaultPalette)
	}

	for i := range s.Live {
		if s.Live[i].BaudRate <= 0 {
			s.Live[i].BaudRate = DefaultBaudRate
		}
	}
}

func setDuration(d *Duration, fallback time.Duration) {
	if *d <= 0 {
		*d = Duration(fallback)
	}
}

// validateHandshake rejects waits shorter than the tag firmware accepts.
// Longer waits are allowed.
func validateHandshake(h *Handshake) error {
	minimums := []struct {
		name  string
		value Duration
		min   time.Duration
	}{
		{name: "settle", value: h.Settle, min: DefaultSettle},
		{name: "command_gap", value: h.CommandGap, min: DefaultCommandGap},
		{name: "activate_wait", value: h.ActivateWait, min: DefaultActivateWait},
	}

	for _, m := range minimums {
		if m.value.Std() < m.min {
			return fmt.Errorf("handshake %s %s is shorter than %s", m.name, m.value, m.min)
		}
	}

	return nil
}

func validateTracing(t *Tracing) error {
	if t.Exporter == "" {
		t.Exporter = ExporterStdout
	}

	if t.ServiceName == "" {
		t.ServiceName = DefaultServiceName
	}

	if t.SampleRatio <= 0 {
		t.SampleRatio = 1
	}

	if t.SampleRatio > 1 {
		return fmt.Errorf("tracing sample ratio %v must be within (0, 1]", t.SampleRatio)
	}

	switch t.Exporter {
	case ExporterStdout:
		return nil
	case ExporterOTLP:
		if t.Enabled && t.Endpoint == "" {
			return errors.New("tracing endpoint is required for the otlp exporter")
		}

		return nil
	default:
		return fmt.Errorf("unknown tracing exporter %q", t.Exporter)
	}
}

func validateSlots(s *Config) error {
	seen := make(map[int]struct{}, len(s.Live))

	for _, l := range s.Live {
		if l.Slot < 1 || l.Slot > s.MaxLiveSlots {
			return fmt.Errorf("live slot %d out of range 1..%d", l.Slot, s.MaxLiveSlots)
		}

		if _, dup := seen[l.Slot]; dup {
			return fmt.Errorf("live slot %d configured twice", l.Slot)
		}

		if l.Port == "" {
			return fmt.Errorf("live slot %d has no port", l.Slot)
		}

		seen[l.Slot] = struct{}{}
	}

	clear(seen)

	for _, r := range s.Replay {
		if r.Slot < 1 || r.Slot > s.MaxReplaySlots {
			return fmt.Errorf("replay slot %d out of range 1..%d", r.Slot, s.MaxReplaySlots)
		}

		if _, dup := seen[r.Slot]; dup {
			return fmt.Errorf("replay slot %d configured twice", r.Slot)
		}

		if r.File == "" {
			return fmt.Errorf("replay slot %d has no file", r.Slot)
		}

		seen[r.Slot] = struct{}{}
	}

	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
