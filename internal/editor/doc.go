// Package editor wires one editing session together: it opens a project
// from storage, loads and instantiates scenes, saves documents, and turns
// asset events into in-place component reconstructions.
//
// A Session is owned by a single goroutine. Events arriving from the
// filesystem watcher or the event bridge are handed over through a channel
// and applied with Pump or HandleAssetEvent on that goroutine.
package editor
