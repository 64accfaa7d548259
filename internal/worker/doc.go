// Package worker runs one ingestion goroutine per source.
//
// A Live worker reads a serial-attached ranging tag, a Replay worker paces a
// recorded CSV file. Both push decoded measurements into a Sink. The Registry
// owns the goroutines, keyed by slot, and stops them cooperatively through
// their contexts.
package worker
