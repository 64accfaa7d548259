package record

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/uwb-telemetry/internal/domain/telemetry"
)

// TestEncodeCSV_Format pins the persisted column order.
func TestEncodeCSV_Format(t *testing.T) {
	t.Parallel()

	m, err := telemetry.NewMeasurement("12.5", scenarioAnchors(), telemetry.TagFix{X: 1.83, Y: 3.33, Z: 2.16, QualityFactor: 47})
	require.NoError(t, err)

	require.Equal(t, []string{
		"12.5", "3",
		"4818", "0.65", "2.49", "2.1", "1.93",
		"4819", "1", "2", "3", "1.5",
		"4820", "2", "2", "1", "0.9",
		"1.83", "3.33", "2.16", "47",
	}, EncodeCSV(m))

	withPort := EncodeCSVWithPort(m, "COM3")
	require.Equal(t, "COM3", withPort[1])
	require.Equal(t, "3", withPort[2])
	require.Len(t, withPort, len(EncodeCSV(m))+1)
}

// TestEncodeDecode_Roundtrip checks that decoding an encoded measurement gives it back unchanged.
func TestEncodeDecode_Roundtrip(t *testing.T) {
	t.Parallel()

	four := append(scenarioAnchors(), telemetry.AnchorReading{
		AnchorID:      "A9",
		X:             -0.1,
		Y:             1e-7,
		Z:             123456.789,
		DistanceToTag: 0.30000000000000004,
	})

	cases := []*telemetry.Measurement{
		{Timestamp: "2026-10-18T09:00:00.123456789Z", Anchors: scenarioAnchors(), Fix: telemetry.TagFix{X: 1.83, Y: 3.33, Z: 2.16, QualityFactor: 47}},
		{Timestamp: "0.001", Anchors: four, Fix: telemetry.TagFix{X: -2.5, Y: 1.0 / 3.0, Z: 0, QualityFactor: 0}},
	}

	for _, want := range cases {
		got, err := Decode(EncodeCSV(want), LayoutCSV)
		require.NoError(t, err)
		require.Equal(t, want, got)

		got, err = Decode(EncodeCSVWithPort(want, "COM7"), LayoutCSVWithPort)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}
