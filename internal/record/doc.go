// Package record decodes UWB telemetry records into telemetry.Measurement values
// and encodes measurements back into the persisted CSV form.
//
// Records are comma-separated and positional. A discriminator field ("3" or "4")
// at a layout-specific offset tells whether a fourth anchor block precedes the
// fix. The offset table for every supported Layout lives in layout.go.
package record
