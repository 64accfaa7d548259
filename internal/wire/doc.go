// Package wire converts domain values to and from google.protobuf.Struct.
//
// The ingestion API, the control client and the anchor snapshot file all
// exchange these Struct documents, so the field names below are the public
// JSON shape of the service.
package wire
