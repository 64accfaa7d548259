// Package server runs the ingestion daemon: it wires configuration, the
// ingestion service, the render ticker, metrics and the gRPC API together.
package server
