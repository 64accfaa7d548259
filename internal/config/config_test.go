package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/uwb-telemetry/internal/aggregate"
)

// TestValidate checks required fields and format validations.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Missing socket.
	require.Error(t, Validate(new(Config)))

	// Bad socket.
	require.Error(t, Validate(&Config{ServerAddress: "bad:address"}))

	cases := map[string]*Config{
		"bad metrics address": {ServerAddress: "127.0.0.1:0", MetricsAddress: "nope"},
		"bad log level":       {ServerAddress: "127.0.0.1:0", LogLevel: "loud"},
		"bad log format":      {ServerAddress: "127.0.0.1:0", LogFormat: "xml"},
		"bad layout":          {ServerAddress: "127.0.0.1:0", ReplayLayout: "parquet"},
		"bad timestamp mode":  {ServerAddress: "127.0.0.1:0", TimestampMode: "lunar"},
		"bad exporter":        {ServerAddress: "127.0.0.1:0", Tracing: Tracing{Exporter: "zipkin"}},
		"otlp w/o endpoint":   {ServerAddress: "127.0.0.1:0", Tracing: Tracing{Enabled: true, Exporter: ExporterOTLP}},
		"sample ratio > 1":    {ServerAddress: "127.0.0.1:0", Tracing: Tracing{SampleRatio: 2}},
		"live slot zero":      {ServerAddress: "127.0.0.1:0", Live: []LiveSlot{{Slot: 0, Port: "COM3"}}},
		"live slot too big":   {ServerAddress: "127.0.0.1:0", Live: []LiveSlot{{Slot: 5, Port: "COM3"}}},
		"live slot no port":   {ServerAddress: "127.0.0.1:0", Live: []LiveSlot{{Slot: 1}}},
		"live slot twice": {ServerAddress: "127.0.0.1:0", Live: []LiveSlot{
			{Slot: 1, Port: "COM3"},
			{Slot: 1, Port: "COM4"},
		}},
		"replay no file":   {ServerAddress: "127.0.0.1:0", Replay: []ReplaySlot{{Slot: 1}}},
		"replay slot high": {ServerAddress: "127.0.0.1:0", MaxReplaySlots: 2, Replay: []ReplaySlot{{Slot: 3, File: "a-1.csv"}}},
		"short settle": {ServerAddress: "127.0.0.1:0", Handshake: Handshake{
			Settle: Duration(100 * time.Millisecond),
		}},
		"short command gap": {ServerAddress: "127.0.0.1:0", Handshake: Handshake{
			CommandGap: Duration(time.Millisecond),
		}},
		"short activate wait": {ServerAddress: "127.0.0.1:0", Handshake: Handshake{
			ActivateWait: Duration(50 * time.Millisecond),
		}},
	}

	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			require.Error(t, Validate(cfg))
		})
	}
}

// TestValidate_Defaults verifies that a minimal config is completed with defaults.
func TestValidate_Defaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		ServerAddress: "127.0.0.1:50051",
		Live:          []LiveSlot{{Slot: 1, Port: "COM3"}},
		Replay:        []ReplaySlot{{Slot: 1, File: "logs/a-3.csv"}},
	}

	require.NoError(t, Validate(cfg))

	require.Equal(t, DefaultTimeout, cfg.Timeout.Std())
	require.Equal(t, DefaultRenderInterval, cfg.RenderInterval.Std())
	require.Equal(t, DefaultReadTimeout, cfg.ReadTimeout.Std())
	require.Equal(t, DefaultReplayInterval, cfg.ReplayInterval.Std())
	require.Equal(t, DefaultSettle, cfg.Handshake.Settle.Std())
	require.Equal(t, DefaultCommandGap, cfg.Handshake.CommandGap.Std())
	require.Equal(t, DefaultActivateWait, cfg.Handshake.ActivateWait.Std())
	require.Equal(t, DefaultLogDirectory, cfg.LogDirectory)
	require.Equal(t, "csv", cfg.ReplayLayout)
	require.Equal(t, TimestampWall, cfg.TimestampMode)
	require.Equal(t, DefaultMaxSlots, cfg.MaxLiveSlots)
	require.Equal(t, DefaultMaxSlots, cfg.MaxReplaySlots)
	require.Equal(t, aggregate.DefaultPalette, cfg.Palette)
	require.Equal(t, DefaultBaudRate, cfg.Live[0].BaudRate)
	require.Equal(t, ExporterStdout, cfg.Tracing.Exporter)
	require.Equal(t, DefaultServiceName, cfg.Tracing.ServiceName)
	require.InDelta(t, 1.0, cfg.Tracing.SampleRatio, 1e-9)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly in both formats.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"settings.yaml", "settings.toml"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), name)

			settings := &Config{
				ServerAddress:  "127.0.0.1:50051",
				MetricsAddress: "127.0.0.1:9464",
				ReplayInterval: Duration(250 * time.Millisecond),
				TimestampMode:  TimestampElapsed,
				Palette:        []string{"red", "blue"},
				Live: []LiveSlot{
					{Slot: 2, Port: "/dev/ttyACM0", BaudRate: 9600, Logging: true, Color: "gold"},
				},
				Replay: []ReplaySlot{
					{Slot: 1, File: "logs/20260101T000000Z-4.csv"},
				},
			}

			require.NoError(t, Save(path, settings))

			loaded, err := Load(path)
			require.NoError(t, err)
			require.Equal(t, settings, loaded)

			// File exists.
			_, err = os.Stat(path)
			require.NoError(t, err)
		})
	}
}

// TestLoad_DurationStrings checks that durations are read from their string form.
func TestLoad_DurationStrings(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "a.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(
		"server_addr: 127.0.0.1:50051\nread_timeout: 300ms\nhandshake:\n  settle: 2.5s\n",
	), DefaultFilePermissions))

	cfg, err := Load(yamlPath)
	require.NoError(t, err)
	require.Equal(t, 300*time.Millisecond, cfg.ReadTimeout.Std())
	require.Equal(t, 2500*time.Millisecond, cfg.Handshake.Settle.Std())

	tomlPath := filepath.Join(dir, "a.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(
		"server_addr = \"127.0.0.1:50051\"\nreplay_interval = \"20ms\"\n\n[[replay]]\nslot = 2\nfile = \"x-7.csv\"\n",
	), DefaultFilePermissions))

	cfg, err = Load(tomlPath)
	require.NoError(t, err)
	require.Equal(t, 20*time.Millisecond, cfg.ReplayInterval.Std())
	require.Len(t, cfg.Replay, 1)
	require.Equal(t, "x-7.csv", cfg.Replay[0].File)

	badPath := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte(
		"server_addr: 127.0.0.1:50051\ntimeout: soon\n",
	), DefaultFilePermissions))

	_, err = Load(badPath)
	require.Error(t, err)
}
