// Package common holds helpers shared by the daemon and the control CLI.
//
// It provides a gRPC client of the ingestion service with call timeouts and
// detection of the calling user and host, sent along for the audit log.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
