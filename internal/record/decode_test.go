package record

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/uwb-telemetry/internal/domain/telemetry"
)

const (
	serialThree = "12.5,DIST,3,AN0,4818,0.65,2.49,2.10,1.93,AN1,4819,1.0,2.0,3.0,1.5," +
		"AN2,4820,2.0,2.0,1.0,0.9,POS,1.83,3.33,2.16,47"
	serialFour = "13.0,DIST,4,AN0,4818,0.65,2.49,2.10,1.93,AN1,4819,1.0,2.0,3.0,1.5," +
		"AN2,4820,2.0,2.0,1.0,0.9,AN3,4821,4.5,0.5,2.5,3.25,POS,1.9,3.4,2.2,88"
	csvThree = "12.5,3,4818,0.65,2.49,2.1,1.93,4819,1,2,3,1.5,4820,2,2,1,0.9,1.83,3.33,2.16,47"
	csvFour  = "13.0,4,4818,0.65,2.49,2.1,1.93,4819,1,2,3,1.5,4820,2,2,1,0.9,4821,4.5,0.5,2.5,3.25,1.9,3.4,2.2,88"
)

func scenarioAnchors() []telemetry.AnchorReading {
	return []telemetry.AnchorReading{
		{AnchorID: "4818", X: 0.65, Y: 2.49, Z: 2.10, DistanceToTag: 1.93},
		{AnchorID: "4819", X: 1.0, Y: 2.0, Z: 3.0, DistanceToTag: 1.5},
		{AnchorID: "4820", X: 2.0, Y: 2.0, Z: 1.0, DistanceToTag: 0.9},
	}
}

// TestDecode_SerialThreeAnchorScenario decodes the reference device line.
func TestDecode_SerialThreeAnchorScenario(t *testing.T) {
	t.Parallel()

	m, err := DecodeLine(serialThree, LayoutSerial)
	require.NoError(t, err)

	require.Equal(t, "12.5", m.Timestamp)
	require.Equal(t, telemetry.ThreeAnchorFix, m.Shape())
	require.Equal(t, scenarioAnchors(), m.Anchors)
	require.Equal(t, telemetry.TagFix{X: 1.83, Y: 3.33, Z: 2.16, QualityFactor: 47}, m.Fix)
}

// TestDecode_FourAnchorVariants checks that the "4" branch reads the extra block in every layout.
func TestDecode_FourAnchorVariants(t *testing.T) {
	t.Parallel()

	fourth := telemetry.AnchorReading{AnchorID: "4821", X: 4.5, Y: 0.5, Z: 2.5, DistanceToTag: 3.25}
	wantFix := telemetry.TagFix{X: 1.9, Y: 3.4, Z: 2.2, QualityFactor: 88}

	cases := map[string]struct {
		line   string
		layout Layout
	}{
		"serial":        {line: serialFour, layout: LayoutSerial},
		"csv":           {line: csvFour, layout: LayoutCSV},
		"csv-with-port": {line: strings.Replace(csvFour, "13.0,4,", "13.0,COM3,4,", 1), layout: LayoutCSVWithPort},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			m, err := DecodeLine(tc.line, tc.layout)
			require.NoError(t, err)
			require.Equal(t, telemetry.FourAnchorFix, m.Shape())
			require.Len(t, m.Anchors, 4)
			require.Equal(t, fourth, m.Anchors[3])
			require.Equal(t, wantFix, m.Fix)
		})
	}
}

// TestDecode_ThreeAnchorCSV reads the persisted three-anchor form.
func TestDecode_ThreeAnchorCSV(t *testing.T) {
	t.Parallel()

	m, err := DecodeLine(csvThree, LayoutCSV)
	require.NoError(t, err)
	require.Equal(t, scenarioAnchors(), m.Anchors)
	require.Equal(t, 47, m.Fix.QualityFactor)

	// Whitespace around fields is tolerated.
	m, err = DecodeLine(strings.ReplaceAll(csvThree, ",", " , "), LayoutCSV)
	require.NoError(t, err)
	require.Equal(t, scenarioAnchors(), m.Anchors)
}

// TestDecode_Malformed verifies that every broken record fails as a whole.
func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		line   string
		layout Layout
	}{
		"bad discriminator":      {line: strings.Replace(serialThree, "DIST,3", "DIST,5", 1), layout: LayoutSerial},
		"non-numeric anchor":     {line: strings.Replace(serialThree, "0.65", "abc", 1), layout: LayoutSerial},
		"non-numeric distance":   {line: strings.Replace(csvThree, "1.93", "x", 1), layout: LayoutCSV},
		"float quality factor":   {line: strings.Replace(serialThree, ",47", ",47.5", 1), layout: LayoutSerial},
		"quality out of range":   {line: strings.Replace(serialThree, ",47", ",470", 1), layout: LayoutSerial},
		"truncated fix":          {line: serialThree[:strings.LastIndex(serialThree, ",")], layout: LayoutSerial},
		"truncated anchor block": {line: serialThree[:strings.Index(serialThree, ",AN2")+9], layout: LayoutSerial},
		"missing fourth anchor":  {line: strings.Replace(serialThree, "DIST,3", "DIST,4", 1), layout: LayoutSerial},
		"empty anchor id":        {line: strings.Replace(csvThree, ",4819,", ",,", 1), layout: LayoutCSV},
		"nan coordinate":         {line: strings.Replace(csvThree, "0.65", "NaN", 1), layout: LayoutCSV},
		"empty line":             {line: "", layout: LayoutCSV},
		"only timestamp":         {line: "12.5", layout: LayoutSerial},
		"unknown layout":         {line: csvThree, layout: Layout(99)},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			m, err := DecodeLine(tc.line, tc.layout)
			require.ErrorIs(t, err, telemetry.ErrMalformedRecord)
			require.Nil(t, m)
		})
	}
}

// TestDecode_TrailingFieldsIgnored keeps decoding when the device appends extra columns.
func TestDecode_TrailingFieldsIgnored(t *testing.T) {
	t.Parallel()

	m, err := DecodeLine(serialThree+",extra,1", LayoutSerial)
	require.NoError(t, err)
	require.Equal(t, 47, m.Fix.QualityFactor)
}

// TestAcceptSerialLine covers the pre-filter applied to raw device output.
func TestAcceptSerialLine(t *testing.T) {
	t.Parallel()

	require.True(t, AcceptSerialLine("DIST,3,AN0,4818,0.65,2.49,2.10,1.93,POS,1,2,3,4"))
	require.False(t, AcceptSerialLine("dwm> lec"))
	require.False(t, AcceptSerialLine("DIST,3,AN0,4818,0.65,2.49,2.10,1.93"))
	require.False(t, AcceptSerialLine("POS,DIST"))
	require.False(t, AcceptSerialLine(""))
}

// TestParseLayout maps configuration strings to layouts.
func TestParseLayout(t *testing.T) {
	t.Parallel()

	for _, l := range []Layout{LayoutSerial, LayoutCSVWithPort, LayoutCSV} {
		got, err := ParseLayout(l.String())
		require.NoError(t, err)
		require.Equal(t, l, got)
	}

	got, err := ParseLayout("")
	require.NoError(t, err)
	require.Equal(t, LayoutCSV, got)

	_, err = ParseLayout("json")
	require.Error(t, err)
}
