package record

import (
	"strconv"

	"github.com/oshokin/uwb-telemetry/internal/domain/telemetry"
)

// EncodeCSV renders a measurement in the LayoutCSV form:
// timestamp,anchor_count,{anchor_id,x,y,z,distance}×n,fixX,fixY,fixZ,qualityFactor.
func EncodeCSV(m *telemetry.Measurement) []string {
	fields := make([]string, 0, 2+len(m.Anchors)*anchorFields+4)
	fields = append(fields, m.Timestamp, strconv.Itoa(len(m.Anchors)))

	return appendBody(fields, m)
}

// EncodeCSVWithPort renders a measurement in the LayoutCSVWithPort form.
func EncodeCSVWithPort(m *telemetry.Measurement, port string) []string {
	fields := make([]string, 0, 3+len(m.Anchors)*anchorFields+4)
	fields = append(fields, m.Timestamp, port, strconv.Itoa(len(m.Anchors)))

	return appendBody(fields, m)
}

func appendBody(fields []string, m *telemetry.Measurement) []string {
	for _, a := range m.Anchors {
		fields = append(fields, a.AnchorID, ftoa(a.X), ftoa(a.Y), ftoa(a.Z), ftoa(a.DistanceToTag))
	}

	return append(fields,
		ftoa(m.Fix.X),
		ftoa(m.Fix.Y),
		ftoa(m.Fix.Z),
		strconv.Itoa(m.Fix.QualityFactor),
	)
}

// ftoa uses the shortest representation that parses back to the same float.
func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
