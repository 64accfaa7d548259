// Package capture persists decoded live measurements to CSV files that can be
// replayed later.
package capture
