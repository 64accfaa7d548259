// Package events fans ingestion events out to subscribers.
//
// Publish never blocks: a subscriber whose channel is full misses the event
// and its dropped counter grows. Workers publish from their read loops, so a
// slow watcher must not stall ingestion.
package events
