package telemetry

import "errors"

var (
	// ErrMalformedRecord is returned when a line or row cannot be decoded into a Measurement.
	// The caller skips the record and keeps reading.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrSourceNotFound is returned when a replay file does not exist.
	ErrSourceNotFound = errors.New("source not found")
	// ErrUnidentifiableSource is returned when no source id can be derived for a replay file.
	ErrUnidentifiableSource = errors.New("unidentifiable source")
	// ErrConnectionFault is returned when a serial port cannot be opened, read or written.
	ErrConnectionFault = errors.New("connection fault")
	// ErrInvalidShape is returned when a measurement does not carry exactly three or four anchors.
	ErrInvalidShape = errors.New("measurement must carry 3 or 4 anchors")
)
