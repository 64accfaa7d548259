// Package snapshot persists the known anchor positions between daemon runs.
//
// Anchors are fixed installations, so a restarted daemon can show them
// before the first tag reports in. The file is protobuf JSON of a Struct
// document, the same shape the API returns.
package snapshot
