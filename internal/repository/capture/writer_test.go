package capture

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/uwb-telemetry/internal/domain/telemetry"
	"github.com/oshokin/uwb-telemetry/internal/record"
)

// TestPortSuffix covers Windows and Unix port names.
func TestPortSuffix(t *testing.T) {
	t.Parallel()

	require.Equal(t, "4", PortSuffix("COM4", 1))
	require.Equal(t, "12", PortSuffix("/dev/ttyUSB12", 1))
	require.Equal(t, "3", PortSuffix("/dev/cu.usbmodem", 3))
	require.Equal(t, "2", PortSuffix("", 2))
}

// TestFileName checks the timestamped name and that replay can recover the id from it.
func TestFileName(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 10, 18, 9, 30, 5, 0, time.FixedZone("CEST", 2*3600))
	require.Equal(t, "20261018T073005Z-4.csv", FileName(start, "COM4", 1))
}

// TestWriter_AppendAndClose writes rows that decode back to the same measurements.
func TestWriter_AppendAndClose(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "logs")

	w, err := Open(dir, time.Unix(0, 0), "COM7", 1)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "19700101T000000Z-7.csv"), w.Path())

	want := []*telemetry.Measurement{
		{
			Timestamp: "0.125",
			Anchors: []telemetry.AnchorReading{
				{AnchorID: "4818", X: 0.65, Y: 2.49, Z: 2.1, DistanceToTag: 1.93},
				{AnchorID: "4819", X: 1, Y: 2, Z: 3, DistanceToTag: 1.5},
				{AnchorID: "4820", X: 2, Y: 2, Z: 1, DistanceToTag: 0.9},
			},
			Fix: telemetry.TagFix{X: 1.83, Y: 3.33, Z: 2.16, QualityFactor: 47},
		},
		{
			Timestamp: "0.25",
			Anchors: []telemetry.AnchorReading{
				{AnchorID: "a", X: -1},
				{AnchorID: "b", Y: -2},
				{AnchorID: "c", Z: -3},
				{AnchorID: "d", DistanceToTag: 4},
			},
			Fix: telemetry.TagFix{QualityFactor: 100},
		},
	}

	for _, m := range want {
		require.NoError(t, w.Append(m))
	}

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	require.ErrorIs(t, w.Append(want[0]), ErrClosed)

	f, err := os.Open(w.Path())
	require.NoError(t, err)

	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, len(want))

	for i, row := range rows {
		got, err := record.Decode(row, record.LayoutCSV)
		require.NoError(t, err)
		require.Equal(t, want[i], got)
	}
}

// TestOpen_BadDirectory reports directory creation failures.
func TestOpen_BadDirectory(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	_, err := Open(filepath.Join(file, "logs"), time.Now(), "COM1", 1)
	require.Error(t, err)
}

// TestOpen_SameSecondSameDigits gives two ports ending in the same digits separate files.
func TestOpen_SameSecondSameDigits(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	start := time.Date(2026, 10, 18, 9, 30, 5, 0, time.UTC)

	first, err := Open(dir, start, "COM4", 1)
	require.NoError(t, err)

	defer first.Close()

	second, err := Open(dir, start, "/dev/ttyUSB4", 2)
	require.NoError(t, err)

	defer second.Close()

	require.Equal(t, filepath.Join(dir, "20261018T093005Z-4.csv"), first.Path())
	require.Equal(t, filepath.Join(dir, "20261018T093005Z-1-4.csv"), second.Path())

	m := &telemetry.Measurement{
		Timestamp: "1",
		Anchors: []telemetry.AnchorReading{
			{AnchorID: "4818"}, {AnchorID: "4819"}, {AnchorID: "4820"},
		},
	}

	require.NoError(t, first.Append(m))
	require.NoError(t, second.Append(m))
	require.NoError(t, second.Append(m))

	for path, rows := range map[string]int{first.Path(): 1, second.Path(): 2} {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, rows, strings.Count(string(data), "\n"), path)
	}
}
