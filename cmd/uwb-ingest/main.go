// Command uwb-ingest runs the UWB telemetry ingestion daemon.
package main

import "github.com/oshokin/uwb-telemetry/cmd/uwb-ingest/cmd"

func main() {
	cmd.Execute()
}
