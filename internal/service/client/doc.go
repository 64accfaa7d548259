// Package client implements the uwb-ctl commands.
//
// Each command loads the settings, connects to the ingestion daemon, performs
// one call and prints the outcome.
package client
