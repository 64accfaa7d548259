// Package aggregate holds the shared view built from every source: the set of
// known anchors, the latest fix of each source and its display color.
//
// Workers write through Apply while the render ticker and API readers take
// Snapshot copies, all serialized by one RWMutex.
package aggregate
