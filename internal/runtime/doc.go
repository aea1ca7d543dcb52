// Package runtime is the boundary to the live engine scene graph. Engine is
// what the editor drives; Headless is an in-process engine that keeps the
// instance graph in memory, loads assets from storage asynchronously and
// records every call so tools and tests can observe it.
package runtime
