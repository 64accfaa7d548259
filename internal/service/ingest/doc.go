// Package ingest is the in-process ingestion API: it starts and stops live
// and replay slots, folds their measurements into the aggregate and
// republishes them as events.
package ingest
