// Package telemetry contains the core domain types of UWB positioning telemetry.
//
// A Measurement is one resolved tag fix together with the three or four anchor
// ranges it was computed from. Measurements are immutable once built by
// NewMeasurement and are shared by the decoder, the workers and the aggregate.
package telemetry
