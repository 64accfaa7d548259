// Command uwb-ctl controls a running uwb-ingest daemon.
package main

import "github.com/oshokin/uwb-telemetry/cmd/uwb-ctl/cmd"

func main() {
	cmd.Execute()
}
