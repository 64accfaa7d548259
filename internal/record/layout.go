package record

import (
	"fmt"
	"strings"
)

// Layout selects the positional schema of a record.
type Layout int

const (
	// LayoutSerial is a device line prefixed with a capture timestamp:
	// ts,DIST,n,AN0,id,x,y,z,d,AN1,...,POS,x,y,z,qf.
	LayoutSerial Layout = iota + 1
	// LayoutCSVWithPort is a persisted row carrying the capture port after the timestamp:
	// ts,port,n,id,x,y,z,d,...,x,y,z,qf.
	LayoutCSVWithPort
	// LayoutCSV is the persisted row written by the capture log:
	// ts,n,id,x,y,z,d,...,x,y,z,qf.
	LayoutCSV
)

// anchorFields is the width of one anchor block: id, x, y, z, distance.
const anchorFields = 5

// offsets describes where the parts of a record sit for one layout.
type offsets struct {
	// discriminator is the index of the "3"/"4" branch flag.
	discriminator int
	// firstAnchor is the index of the first anchor id.
	firstAnchor int
	// anchorStride is the distance between two anchor ids. The serial layout
	// carries an ANn label before every block, so its stride is one wider.
	anchorStride int
}

// layoutOffsets is the canonical offset table, checked against captured device output.
//
//nolint:gochecknoglobals // Read-only lookup table.
var layoutOffsets = map[Layout]offsets{
	LayoutSerial:      {discriminator: 2, firstAnchor: 4, anchorStride: anchorFields + 1},
	LayoutCSVWithPort: {discriminator: 2, firstAnchor: 3, anchorStride: anchorFields},
	LayoutCSV:         {discriminator: 1, firstAnchor: 2, anchorStride: anchorFields},
}

// fixOffset returns the index of the fix block after count anchor blocks.
func (o offsets) fixOffset(count int) int {
	return o.firstAnchor + count*o.anchorStride
}

// String implements fmt.Stringer.
func (l Layout) String() string {
	switch l {
	case LayoutSerial:
		return "serial"
	case LayoutCSVWithPort:
		return "csv-with-port"
	case LayoutCSV:
		return "csv"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// ParseLayout converts a configuration value into a Layout.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "serial":
		return LayoutSerial, nil
	case "csv-with-port", "csv_with_port":
		return LayoutCSVWithPort, nil
	case "csv", "":
		return LayoutCSV, nil
	default:
		return 0, fmt.Errorf("unknown record layout %q", s)
	}
}
