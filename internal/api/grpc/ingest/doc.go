// Package ingest implements the gRPC transport of the ingestion service.
//
// Messages are google.protobuf.Struct documents built by package wire, so the
// service descriptor below is written by hand instead of generated.
package ingest
